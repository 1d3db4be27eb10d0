package metrics

import (
	"errors"
	"fmt"
	"quantiles/metrics/tdigest"
	"time"
)

var ErrNoActiveWindow = errors.New("no active window")

type Sample struct {
	Value  float64
	Weight float64
}

type DigestAccumulator struct {
	Digest *tdigest.TDigest
}

func (a *DigestAccumulator) Add(sample Sample) error {
	return a.Digest.AddWeighted(sample.Value, sample.Weight)
}

// LatencyDigest estimates quantiles of latencies observed within the last
// window size.
type LatencyDigest struct {
	window *SlidingWindow[Sample, *DigestAccumulator]
}

func NewLatencyDigest(size time.Duration, gracePeriod time.Duration, opts ...tdigest.Option) (*LatencyDigest, error) {
	if size <= 0 || gracePeriod <= 0 || gracePeriod > size {
		return nil, fmt.Errorf("%w: window size %s and grace period %s", tdigest.ErrInvalidArgument, size, gracePeriod)
	}
	// options are validated once, windows are created lazily
	if _, err := tdigest.New(opts...); err != nil {
		return nil, err
	}

	createAcc := func() *DigestAccumulator {
		digest, _ := tdigest.New(opts...)
		return &DigestAccumulator{Digest: digest}
	}
	return &LatencyDigest{
		window: NewSlidingWindow[Sample](createAcc, size, gracePeriod),
	}, nil
}

func (l *LatencyDigest) Add(now time.Time, latency float64) error {
	return l.AddWeighted(now, latency, 1)
}

func (l *LatencyDigest) AddWeighted(now time.Time, latency float64, weight float64) error {
	return l.window.AddValue(now, Sample{Value: latency, Weight: weight})
}

// Digest returns the digest of the window completed at now. It is shared
// with the window and must not be modified.
func (l *LatencyDigest) Digest(now time.Time) (*tdigest.TDigest, error) {
	active := l.window.GetActiveWindow(now)
	if active == nil {
		return nil, ErrNoActiveWindow
	}
	return active.Accumulator.Digest, nil
}

// Idle is true once every window holding observations has closed.
func (l *LatencyDigest) Idle(now time.Time) bool {
	return l.window.ActiveWindows(now) == 0
}

func (l *LatencyDigest) Quantile(now time.Time, q float64) (float64, error) {
	digest, err := l.Digest(now)
	if err != nil {
		return 0, err
	}
	return digest.Quantile(q)
}
