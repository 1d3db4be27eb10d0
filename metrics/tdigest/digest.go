package tdigest

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Computing Extremely Accurate Quantiles Using t-Digests
// https://arxiv.org/pdf/1902.04023

// TDigest is not safe for concurrent use. Build independent digests per
// goroutine and combine them with Merge.
type TDigest struct {
	centroids           *Centroids
	sizeBound           *SizeBound
	accuracy            float64
	compressionConstant float64

	count           float64
	min             float64
	max             float64
	average         float64
	previousAverage float64

	randomizer  *rand.Rand
	compressing bool
}

func New(opts ...Option) (*TDigest, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return newDigest(cfg), nil
}

func NewTDigest(accuracy float64, compressionConstant float64, randomizer *rand.Rand) (*TDigest, error) {
	return New(
		Accuracy(accuracy),
		CompressionConstant(compressionConstant),
		Randomizer(randomizer),
	)
}

// maxPreallocatedCentroids caps the capacity reserved up front. Digests
// with a larger centroid limit grow their storage on demand.
const maxPreallocatedCentroids = 1024

func newDigest(cfg config) *TDigest {
	return &TDigest{
		centroids:           NewCentroids(centroidCapacity(cfg)),
		sizeBound:           NewSizeBound(cfg.accuracy),
		accuracy:            cfg.accuracy,
		compressionConstant: cfg.compressionConstant,
		randomizer:          cfg.randomizer,
	}
}

func centroidCapacity(cfg config) int {
	limit := math.Ceil(cfg.compressionConstant / cfg.accuracy)
	if limit > maxPreallocatedCentroids {
		return maxPreallocatedCentroids
	}
	return int(limit)
}

func (d *TDigest) emptyCopy() *TDigest {
	return newDigest(config{
		accuracy:            d.accuracy,
		compressionConstant: d.compressionConstant,
		randomizer:          d.randomizer,
	})
}

func (d *TDigest) Add(value float64) error {
	return d.AddWeighted(value, 1)
}

func (d *TDigest) AddWeighted(value float64, weight float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: value must be finite, got %v", ErrInvalidArgument, value)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		return fmt.Errorf("%w: weight must be positive and finite, got %v", ErrInvalidArgument, weight)
	}

	d.updateStatistics(value, weight)
	d.ingest(value, weight)
	return nil
}

func (d *TDigest) updateStatistics(value float64, weight float64) {
	if d.count == 0 {
		d.min = value
		d.max = value
		d.average = value
		d.previousAverage = value
		return
	}

	d.previousAverage = d.average
	d.average = d.previousAverage + weight*(value-d.previousAverage)/(d.count+weight)
	d.min = math.Min(d.min, value)
	d.max = math.Max(d.max, value)
}

func (d *TDigest) ingest(value float64, weight float64) {
	d.count += weight
	d.addEntry(value, weight)

	if !d.compressing && d.exceedsCentroidLimit() {
		d.Compress()
	}
}

func (d *TDigest) exceedsCentroidLimit() bool {
	return float64(d.centroids.Size()) > d.compressionConstant/d.accuracy
}

type candidate struct {
	centroid  Centroid
	threshold float64
}

func (d *TDigest) addEntry(value float64, weight float64) {
	if d.centroids.Size() == 0 {
		d.centroids.Insert(value, weight)
		return
	}

	var eligible []candidate
	for _, centroid := range d.nearestCentroids(value) {
		threshold := d.threshold(centroid)
		if centroid.Count+weight < threshold {
			eligible = append(eligible, candidate{centroid: centroid, threshold: threshold})
		}
	}

	residual := weight
	for len(eligible) > 0 && residual > 0 {
		picked := d.randomizer.IntN(len(eligible))
		c := eligible[picked]
		eligible = slices.Delete(eligible, picked, picked+1)

		delta := math.Min(c.threshold-c.centroid.Count, residual)
		if delta <= 0 {
			continue
		}
		if _, absorbed := d.centroids.Absorb(c.centroid.Mean, value, delta); absorbed {
			residual -= delta
		}
	}

	if residual > 0 {
		d.centroids.AddOrMerge(value, residual)
	}
}

// nearestCentroids returns the centroid closest to value, or both
// neighbours when they are equally distant.
func (d *TDigest) nearestCentroids(value float64) []Centroid {
	successor, hasSuccessor := d.centroids.Ceiling(value)
	predecessor, hasPredecessor := d.centroids.Floor(value)

	switch {
	case !hasSuccessor:
		return []Centroid{predecessor}
	case !hasPredecessor:
		return []Centroid{successor}
	case successor.Mean == predecessor.Mean:
		return []Centroid{successor}
	}

	successorDistance := successor.Mean - value
	predecessorDistance := value - predecessor.Mean
	switch {
	case successorDistance < predecessorDistance:
		return []Centroid{successor}
	case predecessorDistance < successorDistance:
		return []Centroid{predecessor}
	default:
		return []Centroid{predecessor, successor}
	}
}

func (d *TDigest) centroidQuantile(centroid Centroid) float64 {
	return (centroid.Count/2 + d.centroids.WeightBelow(centroid.Mean)) / d.count
}

func (d *TDigest) threshold(centroid Centroid) float64 {
	return d.sizeBound.MaxWeight(d.centroidQuantile(centroid), d.count)
}

// Compress re-ingests all centroids in random order into a fresh index.
// It does not always reduce the number of centroids.
func (d *TDigest) Compress() {
	list := CentroidList(d.centroids.ToList())
	d.randomizer.Shuffle(len(list), list.Swap)

	fresh := d.emptyCopy()
	fresh.compressing = true
	for _, centroid := range list {
		fresh.ingest(centroid.Mean, centroid.Count)
	}
	d.centroids = fresh.centroids
}

func (d *TDigest) Count() float64 {
	return d.count
}

func (d *TDigest) CentroidCount() int {
	return d.centroids.Size()
}

func (d *TDigest) Accuracy() float64 {
	return d.accuracy
}

func (d *TDigest) CompressionConstant() float64 {
	return d.compressionConstant
}

// Average is the exact arithmetic mean of all added values.
func (d *TDigest) Average() float64 {
	return d.average
}

func (d *TDigest) Min() float64 {
	return d.min
}

func (d *TDigest) Max() float64 {
	return d.max
}

func (d *TDigest) ToCentroids() []Centroid {
	return d.centroids.ToList()
}

type DistributionPoint struct {
	Value float64
	Count float64
}

func (d *TDigest) Distribution() []DistributionPoint {
	points := make([]DistributionPoint, 0, d.centroids.Size())
	for centroid := range d.centroids.All() {
		points = append(points, DistributionPoint{
			Value: centroid.Mean,
			Count: centroid.Count,
		})
	}
	return points
}
