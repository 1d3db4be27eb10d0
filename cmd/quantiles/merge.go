package main

import (
	"quantiles/metrics/tdigest"
	"quantiles/snapshot"

	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var (
		digestOpts digestFlags
		output     string
		codecName  string
	)

	cmd := &cobra.Command{
		Use:   "merge <snapshot> <snapshot> [snapshots...]",
		Short: "Merge snapshots into one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			codec, err := snapshot.ParseCodec(codecName)
			if err != nil {
				return err
			}

			merged, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}
			for _, path := range args[1:] {
				next, err := snapshot.ReadFile(path)
				if err != nil {
					return err
				}
				merged, err = tdigest.Merge(merged, next, digestOpts.options()...)
				if err != nil {
					return err
				}
			}
			return snapshot.WriteFile(output, merged, codec)
		},
	}

	digestOpts.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Snapshot file to write.")
	cmd.Flags().StringVar(&codecName, "codec", snapshot.CodecZstd.String(), "Snapshot compression: none, zstd or lz4.")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
