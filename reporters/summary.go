package reporters

import (
	"fmt"
	"quantiles/metrics/tdigest"
)

type QuantileValue struct {
	Quantile float64
	Value    float64
}

// SeriesSummary is a point in time view of a digest.
type SeriesSummary struct {
	Series    string
	Count     float64
	Sum       float64
	Min       float64
	Max       float64
	Quantiles []QuantileValue
}

func Summarize(series string, digest *tdigest.TDigest, quantiles []float64) (SeriesSummary, error) {
	values, err := digest.Quantiles(quantiles...)
	if err != nil {
		return SeriesSummary{}, fmt.Errorf("could not summarize %s: %w", series, err)
	}

	summary := SeriesSummary{
		Series:    series,
		Count:     digest.Count(),
		Sum:       digest.Average() * digest.Count(),
		Min:       digest.Min(),
		Max:       digest.Max(),
		Quantiles: make([]QuantileValue, len(quantiles)),
	}
	for i, q := range quantiles {
		summary.Quantiles[i] = QuantileValue{Quantile: q, Value: values[i]}
	}
	return summary, nil
}
