package tdigest

import (
	"fmt"
	"math"
)

// Quantile estimates the value below which the fraction q of all added
// weight lies. The exact min and max are returned at the extremes.
func (d *TDigest) Quantile(q float64) (float64, error) {
	if math.IsNaN(q) || q < 0 || q > 1 {
		return 0, fmt.Errorf("%w: quantile must be in range [0, 1], got %v", ErrInvalidArgument, q)
	}
	if d.centroids.Size() == 0 {
		return 0, fmt.Errorf("%w: quantile of an empty digest", ErrInvalidState)
	}
	return d.quantile(q), nil
}

func (d *TDigest) Quantiles(qs ...float64) ([]float64, error) {
	values := make([]float64, 0, len(qs))
	for _, q := range qs {
		value, err := d.Quantile(q)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// Percentiles returns quantiles 0.00, 0.01 ... 0.99.
func (d *TDigest) Percentiles() ([]float64, error) {
	qs := make([]float64, 100)
	for i := range qs {
		qs[i] = float64(i) / 100.0
	}
	return d.Quantiles(qs...)
}

func (d *TDigest) quantile(q float64) float64 {
	c := d.centroids
	n := c.Size()
	first, _ := c.First()
	last, _ := c.Last()
	if n == 1 {
		return first.Mean
	}

	total := d.count
	index := q * total
	if index < 1 {
		return d.min
	}
	if index > total-1 {
		return d.max
	}

	// a centroid of two samples at an edge holds the extreme and one hidden
	// sample mirrored around its mean
	if first.Count == 2 && index <= 2 {
		return 2*first.Mean - d.min
	}
	if last.Count == 2 && index >= total-2 {
		return 2*last.Mean - d.max
	}

	// a heavier edge centroid still holds one sample at the extreme
	if first.Count > 2 && index < first.Count/2 {
		return d.min + (index-1)/(first.Count/2-1)*(first.Mean-d.min)
	}
	if last.Count > 2 && total-index <= last.Count/2 {
		return d.max - (total-index-1)/(last.Count/2-1)*(d.max-last.Mean)
	}

	weightSoFar := first.Count / 2
	for i := 0; i < n-1; i++ {
		current := c.at(i)
		next := c.at(i + 1)
		dw := (current.Count + next.Count) / 2

		if index < weightSoFar+dw {
			leftExclusion := 0.0
			if current.Count == 1 {
				if index < weightSoFar+0.5 {
					return current.Mean
				}
				leftExclusion = 0.5
			}

			rightExclusion := 0.0
			if next.Count == 1 {
				if index >= weightSoFar+dw-0.5 {
					return next.Mean
				}
				rightExclusion = 0.5
			}

			nextWeight := index - weightSoFar - leftExclusion
			currentWeight := weightSoFar + dw - index - rightExclusion
			return weightedAverage(current.Mean, currentWeight, next.Mean, nextWeight)
		}
		weightSoFar += dw
	}

	toMax := index - weightSoFar
	return weightedAverage(last.Mean, total-weightSoFar-toMax, d.max, toMax)
}

// weightedAverage never leaves the [x1, x2] interval, whatever the rounding.
func weightedAverage(x1 float64, w1 float64, x2 float64, w2 float64) float64 {
	if x1 > x2 {
		x1, w1, x2, w2 = x2, w2, x1, w1
	}
	w1 = math.Max(w1, 0)
	w2 = math.Max(w2, 0)
	if w1+w2 == 0 {
		return (x1 + x2) / 2
	}
	x := (x1*w1 + x2*w2) / (w1 + w2)
	return math.Max(x1, math.Min(x, x2))
}
