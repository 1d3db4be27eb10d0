package main

import (
	"os"
	"quantiles/metrics/tdigest"
	"quantiles/snapshot"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		digestOpts digestFlags
		output     string
		codecName  string
		quantiles  = newQuantilesFlag()
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Build a digest from numbers in files or stdin",
		RunE: func(c *cobra.Command, args []string) error {
			codec, err := snapshot.ParseCodec(codecName)
			if err != nil {
				return err
			}
			digest, err := tdigest.New(digestOpts.options()...)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				if err := readValues(c.InOrStdin(), "stdin", digest); err != nil {
					return err
				}
			}
			for _, path := range args {
				if err := ingestFile(path, digest); err != nil {
					return err
				}
			}

			if len(output) > 0 {
				if err := snapshot.WriteFile(output, digest, codec); err != nil {
					return err
				}
			}
			return printSummary(c.OutOrStdout(), digest, quantiles.Values())
		},
	}

	digestOpts.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Snapshot file to write.")
	cmd.Flags().StringVar(&codecName, "codec", snapshot.CodecZstd.String(), "Snapshot compression: none, zstd or lz4.")
	quantiles.register(cmd)
	return cmd
}

func ingestFile(path string, digest *tdigest.TDigest) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return readValues(file, path, digest)
}
