package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"quantiles/metrics"
	"quantiles/metrics/tdigest"
	"quantiles/reporters"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var defaultQuantiles = []metrics.Quantile{metrics.P50, metrics.P90, metrics.P95, metrics.P99}

func NewRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "quantiles",
		Short: "Estimate quantiles of streams with t-digests",
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(c.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error.")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// digestFlags are shared by commands building digests.
type digestFlags struct {
	accuracy            float64
	compressionConstant float64
	seed                uint64
}

func (f *digestFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.accuracy, "accuracy", tdigest.DefaultAccuracy, "Size bound of centroids, smaller is more precise.")
	cmd.Flags().Float64Var(&f.compressionConstant, "compression", tdigest.DefaultCompressionConstant, "Centroids tolerated per accuracy before compressing.")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Seed of the randomizer, zero picks a random one.")
}

func (f *digestFlags) options() []tdigest.Option {
	opts := []tdigest.Option{
		tdigest.Accuracy(f.accuracy),
		tdigest.CompressionConstant(f.compressionConstant),
	}
	if randomizer := f.randomizer(); randomizer != nil {
		opts = append(opts, tdigest.Randomizer(randomizer))
	}
	return opts
}

func (f *digestFlags) randomizer() *rand.Rand {
	if f.seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(f.seed, f.seed))
}

// quantilesFlag takes comma separated quantiles such as "0.5,p99,99.9%".
// Values given on the command line replace the defaults.
type quantilesFlag struct {
	values  []float64
	changed bool
}

func newQuantilesFlag() *quantilesFlag {
	values := make([]float64, 0, len(defaultQuantiles))
	for _, q := range defaultQuantiles {
		values = append(values, q.Float())
	}
	return &quantilesFlag{values: values}
}

func (f *quantilesFlag) register(cmd *cobra.Command) {
	cmd.Flags().VarP(f, "quantile", "q", "Quantiles to print, as fractions, percents or percentile names.")
}

func (f *quantilesFlag) Set(text string) error {
	if !f.changed {
		f.values = nil
		f.changed = true
	}
	for _, part := range strings.Split(text, ",") {
		q, err := metrics.ParseQuantile(part)
		if err != nil {
			return err
		}
		f.values = append(f.values, q.Float())
	}
	return nil
}

func (f *quantilesFlag) String() string {
	names := make([]string, 0, len(f.values))
	for _, value := range f.values {
		names = append(names, metrics.Quantile(value).Name())
	}
	return strings.Join(names, ",")
}

func (f *quantilesFlag) Type() string {
	return "quantiles"
}

func (f *quantilesFlag) Values() []float64 {
	return slices.Clone(f.values)
}

// readValues adds every whitespace separated number of r to digest.
func readValues(r io.Reader, name string, digest *tdigest.TDigest) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for index := 1; scanner.Scan(); index++ {
		value, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return fmt.Errorf("%s: value %d %q is not a number", name, index, scanner.Text())
		}
		if err := digest.Add(value); err != nil {
			return fmt.Errorf("%s: value %d: %w", name, index, err)
		}
	}
	return scanner.Err()
}

func printSummary(w io.Writer, digest *tdigest.TDigest, quantiles []float64) error {
	summary, err := reporters.Summarize("", digest, quantiles)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "count\t%g\n", summary.Count)
	_, _ = fmt.Fprintf(w, "min\t%g\n", summary.Min)
	_, _ = fmt.Fprintf(w, "max\t%g\n", summary.Max)
	_, _ = fmt.Fprintf(w, "average\t%g\n", digest.Average())
	for _, q := range summary.Quantiles {
		_, _ = fmt.Fprintf(w, "q%g\t%g\n", q.Quantile, q.Value)
	}
	return nil
}
