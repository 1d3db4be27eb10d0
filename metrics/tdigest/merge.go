package tdigest

import (
	"fmt"
	"math"
)

// Merge builds a new digest approximating the union of a and b by replaying
// the centroids of both in random order. The inputs are only read.
func Merge(a *TDigest, b *TDigest, opts ...Option) (*TDigest, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: cannot merge a nil digest", ErrInvalidArgument)
	}

	merged, err := New(opts...)
	if err != nil {
		return nil, err
	}

	list := CentroidList(append(a.centroids.ToList(), b.centroids.ToList()...))
	merged.randomizer.Shuffle(len(list), list.Swap)
	for _, centroid := range list {
		merged.ingest(centroid.Mean, centroid.Count)
	}

	if merged.count > 0 {
		merged.average = (a.average*a.count + b.average*b.count) / merged.count
		merged.previousAverage = (a.previousAverage*a.count + b.previousAverage*b.count) / merged.count
	}
	merged.min, merged.max = mergeExtremes(a, b)
	return merged, nil
}

func mergeExtremes(a *TDigest, b *TDigest) (float64, float64) {
	switch {
	case a.count == 0:
		return b.min, b.max
	case b.count == 0:
		return a.min, a.max
	default:
		return math.Min(a.min, b.min), math.Max(a.max, b.max)
	}
}
