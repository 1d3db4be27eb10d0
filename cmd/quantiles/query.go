package main

import (
	"fmt"
	"quantiles/snapshot"

	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	quantiles := newQuantilesFlag()
	var centroids bool

	cmd := &cobra.Command{
		Use:   "query <snapshot>",
		Short: "Print quantiles of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			digest, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := printSummary(c.OutOrStdout(), digest, quantiles.Values()); err != nil {
				return err
			}
			if centroids {
				for _, centroid := range digest.ToCentroids() {
					_, _ = fmt.Fprintf(c.OutOrStdout(), "centroid\t%g\t%g\n", centroid.Mean, centroid.Count)
				}
			}
			return nil
		},
	}

	quantiles.register(cmd)
	cmd.Flags().BoolVar(&centroids, "centroids", false, "Also print mean and count of every centroid.")
	return cmd
}
