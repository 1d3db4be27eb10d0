package ingestions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"quantiles/concurrency"
	"quantiles/metrics"
	"quantiles/metrics/tdigest"
	"slices"
	"sync"
	"time"
)

var ErrClosed = errors.New("sharded digests closed")

const DefaultMaxSeries = 10000

type ShardsConfig struct {
	Shards      int
	QueueLength int
	Digest      DigestConfig
	// zero WindowSize keeps all observations since start
	WindowSize  time.Duration
	GracePeriod time.Duration
	// series kept per shard, zero means DefaultMaxSeries
	MaxSeries int
}

type DigestConfig struct {
	Accuracy            float64
	CompressionConstant float64
}

// Options leaves unset fields at digest defaults.
func (c DigestConfig) Options() []tdigest.Option {
	var opts []tdigest.Option
	if c.Accuracy != 0 {
		opts = append(opts, tdigest.Accuracy(c.Accuracy))
	}
	if c.CompressionConstant != 0 {
		opts = append(opts, tdigest.CompressionConstant(c.CompressionConstant))
	}
	return opts
}

// ShardedDigests spreads observations over shards, each shard owning its
// digests on a single goroutine. Snapshots combine shard copies per series.
type ShardedDigests struct {
	cfg       ShardsConfig
	scopes    *concurrency.Scopes[shardScope]
	fanOut    *concurrency.FanOut[concurrency.ScopedAction[shardScope], shardScope]
	publisher *concurrency.FanoutPublisher[shardScope]

	lock   sync.RWMutex
	closed bool
}

func NewShardedDigests(cfg ShardsConfig) (*ShardedDigests, error) {
	if cfg.Shards <= 0 {
		return nil, fmt.Errorf("%w: number of shards must be positive, got %d", tdigest.ErrInvalidArgument, cfg.Shards)
	}
	if cfg.MaxSeries < 0 {
		return nil, fmt.Errorf("%w: max series must not be negative, got %d", tdigest.ErrInvalidArgument, cfg.MaxSeries)
	}
	if cfg.MaxSeries == 0 {
		cfg.MaxSeries = DefaultMaxSeries
	}
	newSeries, err := seriesFactory(cfg)
	if err != nil {
		return nil, err
	}

	scopes := concurrency.NewScopes(
		concurrency.GenerateScopeIds("shard", cfg.Shards),
		func() *shardScope {
			return &shardScope{
				series:    make(map[string]seriesDigest),
				newSeries: newSeries,
				maxSeries: cfg.MaxSeries,
			}
		})
	fanOut := concurrency.NewActionFanOut(scopes, cfg.QueueLength)
	return &ShardedDigests{
		cfg:       cfg,
		scopes:    scopes,
		fanOut:    fanOut,
		publisher: concurrency.NewFanoutPublisher(fanOut),
	}, nil
}

// Ingest validates all observations first and routes them only when all
// of them are valid.
func (s *ShardedDigests) Ingest(now time.Time, observations ...Observation) error {
	for _, observation := range observations {
		if err := observation.Validate(); err != nil {
			return err
		}
	}

	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for _, observation := range observations {
		s.publisher.Publish(&observeAction{now: now, observation: observation})
	}
	return nil
}

// Snapshot returns a digest per series, combining copies from all shards.
func (s *ShardedDigests) Snapshot(ctx context.Context, now time.Time) (map[string]*tdigest.TDigest, error) {
	replies := make(chan shardSnapshot, s.cfg.Shards)
	if err := s.broadcast(&snapshotAction{now: now, replies: replies}); err != nil {
		return nil, err
	}

	copies := make(map[string][][]byte)
	for range s.cfg.Shards {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case reply := <-replies:
			for series, data := range reply {
				copies[series] = append(copies[series], data)
			}
		}
	}
	return s.combine(copies)
}

func (s *ShardedDigests) broadcast(action concurrency.ScopedAction[shardScope]) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.publisher.Publish(action)
	return nil
}

func (s *ShardedDigests) combine(copies map[string][][]byte) (map[string]*tdigest.TDigest, error) {
	digests := make(map[string]*tdigest.TDigest, len(copies))
	for series, serialized := range copies {
		var combined *tdigest.TDigest
		for _, data := range serialized {
			digest, err := tdigest.FromBytes(data)
			if err != nil {
				return nil, fmt.Errorf("could not decode shard copy of %s: %w", series, err)
			}
			if combined == nil {
				combined = digest
				continue
			}
			combined, err = tdigest.Merge(combined, digest, s.cfg.Digest.Options()...)
			if err != nil {
				return nil, fmt.Errorf("could not merge shard copies of %s: %w", series, err)
			}
		}
		digests[series] = combined
	}
	return digests, nil
}

// Close waits until all routed observations are ingested.
func (s *ShardedDigests) Close() {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
	s.fanOut.Close()
}

func SortedSeries(digests map[string]*tdigest.TDigest) []string {
	series := make([]string, 0, len(digests))
	for name := range digests {
		series = append(series, name)
	}
	slices.Sort(series)
	return series
}

type seriesDigest interface {
	add(now time.Time, value float64, weight float64) error
	digest(now time.Time) (*tdigest.TDigest, bool)
	idle(now time.Time) bool
}

type shardScope struct {
	series    map[string]seriesDigest
	newSeries func() seriesDigest
	maxSeries int
}

func (s *shardScope) evictIdle(now time.Time) {
	for name, digest := range s.series {
		if digest.idle(now) {
			delete(s.series, name)
		}
	}
}

func seriesFactory(cfg ShardsConfig) (func() seriesDigest, error) {
	opts := cfg.Digest.Options()
	if cfg.WindowSize == 0 {
		if _, err := tdigest.New(opts...); err != nil {
			return nil, err
		}
		return func() seriesDigest {
			digest, _ := tdigest.New(opts...)
			return &cumulativeDigest{TDigest: digest}
		}, nil
	}

	if _, err := metrics.NewLatencyDigest(cfg.WindowSize, cfg.GracePeriod, opts...); err != nil {
		return nil, err
	}
	return func() seriesDigest {
		digest, _ := metrics.NewLatencyDigest(cfg.WindowSize, cfg.GracePeriod, opts...)
		return &windowedDigest{LatencyDigest: digest}
	}, nil
}

type cumulativeDigest struct {
	*tdigest.TDigest
}

func (c *cumulativeDigest) add(_ time.Time, value float64, weight float64) error {
	return c.AddWeighted(value, weight)
}

func (c *cumulativeDigest) digest(_ time.Time) (*tdigest.TDigest, bool) {
	return c.TDigest, c.Count() > 0
}

func (c *cumulativeDigest) idle(_ time.Time) bool {
	return false
}

type windowedDigest struct {
	*metrics.LatencyDigest
}

func (w *windowedDigest) add(now time.Time, value float64, weight float64) error {
	return w.AddWeighted(now, value, weight)
}

func (w *windowedDigest) idle(now time.Time) bool {
	return w.Idle(now)
}

func (w *windowedDigest) digest(now time.Time) (*tdigest.TDigest, bool) {
	digest, err := w.Digest(now)
	if err != nil {
		return nil, false
	}
	return digest, digest.Count() > 0
}

type observeAction struct {
	now         time.Time
	observation Observation
}

func (a *observeAction) GetShardingKey() concurrency.ShardingKey {
	return a.observation.GetShardingKey()
}

func (a *observeAction) Execute(ctx context.Context, scopeID string, scope *shardScope) {
	digest, found := scope.series[a.observation.Series]
	if !found {
		if len(scope.series) >= scope.maxSeries {
			scope.evictIdle(a.now)
		}
		if len(scope.series) >= scope.maxSeries {
			slog.WarnContext(ctx, "Dropped observation of new series, shard is full",
				slog.String("shard", scopeID),
				slog.String("series", a.observation.Series),
				slog.Int("maxSeries", scope.maxSeries))
			return
		}
		digest = scope.newSeries()
		scope.series[a.observation.Series] = digest
	}
	if err := digest.add(a.now, a.observation.Value, a.observation.weight()); err != nil {
		slog.ErrorContext(ctx, "Failed to ingest observation",
			slog.String("shard", scopeID),
			slog.String("series", a.observation.Series),
			slog.Any("error", err))
	}
}

// series name to serialized digest
type shardSnapshot map[string][]byte

type snapshotAction struct {
	now     time.Time
	replies chan<- shardSnapshot
}

func (a *snapshotAction) GetShardingKey() concurrency.ShardingKey {
	return nil
}

func (a *snapshotAction) Execute(ctx context.Context, scopeID string, scope *shardScope) {
	scope.evictIdle(a.now)
	snapshot := make(shardSnapshot, len(scope.series))
	for series, digest := range scope.series {
		active, found := digest.digest(a.now)
		if !found {
			continue
		}
		data, err := active.MarshalBinary()
		if err != nil {
			slog.ErrorContext(ctx, "Failed to serialize digest",
				slog.String("shard", scopeID),
				slog.String("series", series),
				slog.Any("error", err))
			continue
		}
		snapshot[series] = data
	}
	a.replies <- snapshot
}
