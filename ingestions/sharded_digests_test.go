package ingestions_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"quantiles/clock"
	"quantiles/ingestions"
	"quantiles/metrics/tdigest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sharded Digests", func() {
	sut := shardedDigestsSut{}
	AfterEach(func() {
		sut.Close()
	})

	It("combines copies of series from all shards", func() {
		sut.forShardedDigests(4)
		sut.ingestUniform("checkout", 10_000)

		digests := sut.snapshot()
		Expect(digests).To(HaveKey("checkout"))
		digest := digests["checkout"]
		Expect(digest.Count()).To(BeNumerically("~", 10_000, 1e-6))
		Expect(digest.Min()).To(Equal(sut.minimum))
		Expect(digest.Max()).To(Equal(sut.maximum))

		median, err := digest.Quantile(0.5)
		Expect(err).NotTo(HaveOccurred())
		Expect(median).To(BeNumerically("~", 50, 3))
	})

	It("keeps series apart", func() {
		sut.forShardedDigests(3)
		sut.ingest(
			ingestions.Observation{Series: "a", Source: "1", Value: 1},
			ingestions.Observation{Series: "b", Source: "2", Value: 100, Weight: 2},
			ingestions.Observation{Series: "a", Source: "3", Value: 3},
		)

		digests := sut.snapshot()
		Expect(ingestions.SortedSeries(digests)).To(Equal([]string{"a", "b"}))
		Expect(digests["a"].Count()).To(Equal(2.0))
		Expect(digests["a"].Min()).To(Equal(1.0))
		Expect(digests["a"].Max()).To(Equal(3.0))
		Expect(digests["b"].Count()).To(Equal(2.0))
		Expect(digests["b"].Average()).To(Equal(100.0))
	})

	It("returns empty snapshot without observations", func() {
		sut.forShardedDigests(2)
		Expect(sut.snapshot()).To(BeEmpty())
	})

	It("ingests nothing when any observation is invalid", func() {
		sut.forShardedDigests(2)
		err := sut.digests.Ingest(sut.now,
			ingestions.Observation{Series: "a", Source: "1", Value: 1},
			ingestions.Observation{Source: "1", Value: 1},
		)
		Expect(err).To(MatchError(ingestions.ErrInvalidObservation))
		Expect(sut.snapshot()).To(BeEmpty())
	})

	It("refuses work once closed", func() {
		sut.forShardedDigests(2)
		sut.Close()

		err := sut.digests.Ingest(sut.now, ingestions.Observation{Series: "a", Value: 1})
		Expect(err).To(MatchError(ingestions.ErrClosed))
		_, err = sut.digests.Snapshot(context.Background(), sut.now)
		Expect(err).To(MatchError(ingestions.ErrClosed))
	})

	It("refuses zero shards", func() {
		_, err := ingestions.NewShardedDigests(ingestions.ShardsConfig{})
		Expect(err).To(MatchError(tdigest.ErrInvalidArgument))
	})

	It("refuses invalid digest configuration", func() {
		_, err := ingestions.NewShardedDigests(ingestions.ShardsConfig{
			Shards: 1,
			Digest: ingestions.DigestConfig{CompressionConstant: 3},
		})
		Expect(err).To(MatchError(tdigest.ErrInvalidArgument))
	})

	It("drops new series once shard is full", func() {
		sut.forConfig(ingestions.ShardsConfig{Shards: 1, MaxSeries: 2})
		sut.ingest(
			ingestions.Observation{Series: "a", Source: "1", Value: 1},
			ingestions.Observation{Series: "b", Source: "1", Value: 2},
			ingestions.Observation{Series: "c", Source: "1", Value: 3},
			ingestions.Observation{Series: "a", Source: "1", Value: 5},
		)

		digests := sut.snapshot()
		Expect(ingestions.SortedSeries(digests)).To(Equal([]string{"a", "b"}))
		Expect(digests["a"].Count()).To(Equal(2.0))
	})

	It("refuses negative max series", func() {
		_, err := ingestions.NewShardedDigests(ingestions.ShardsConfig{Shards: 1, MaxSeries: -1})
		Expect(err).To(MatchError(tdigest.ErrInvalidArgument))
	})

	Context("windowed", func() {
		It("returns series of window completing at snapshot time", func() {
			sut.forWindowedShardedDigests(2)
			sut.ingest(ingestions.Observation{Series: "a", Source: "1", Value: 10})

			digests := sut.snapshotAt("2025-02-22T12:03:59Z")
			Expect(digests).To(HaveKey("a"))
			Expect(digests["a"].Count()).To(Equal(1.0))
		})

		It("drops observations older than window", func() {
			sut.forWindowedShardedDigests(2)
			sut.ingest(ingestions.Observation{Series: "a", Source: "1", Value: 10})

			Expect(sut.snapshotAt("2025-02-22T12:04:05Z")).To(BeEmpty())
		})

		It("keeps full shard while its series have open windows", func() {
			sut.forWindowedShardedDigestsWithMaxSeries(1)
			sut.ingest(
				ingestions.Observation{Series: "a", Source: "1", Value: 10},
				ingestions.Observation{Series: "b", Source: "1", Value: 20},
			)

			digests := sut.snapshotAt("2025-02-22T12:03:59Z")
			Expect(ingestions.SortedSeries(digests)).To(Equal([]string{"a"}))
		})

		It("makes room for new series once all windows of old series closed", func() {
			sut.forWindowedShardedDigestsWithMaxSeries(1)
			sut.ingest(ingestions.Observation{Series: "a", Source: "1", Value: 10})

			sut.now = clock.ParseTime("2025-02-22T12:04:05Z")
			sut.ingest(ingestions.Observation{Series: "b", Source: "1", Value: 20})

			digests := sut.snapshotAt("2025-02-22T12:04:59Z")
			Expect(ingestions.SortedSeries(digests)).To(Equal([]string{"b"}))
			Expect(digests["b"].Count()).To(Equal(1.0))
		})
	})
})

type shardedDigestsSut struct {
	digests *ingestions.ShardedDigests
	now     time.Time
	minimum float64
	maximum float64
}

func (s *shardedDigestsSut) forShardedDigests(shards int) {
	s.forConfig(ingestions.ShardsConfig{
		Shards:      shards,
		QueueLength: 64,
	})
}

func (s *shardedDigestsSut) forWindowedShardedDigests(shards int) {
	s.forConfig(ingestions.ShardsConfig{
		Shards:      shards,
		WindowSize:  time.Minute,
		GracePeriod: 10 * time.Second,
	})
}

func (s *shardedDigestsSut) forWindowedShardedDigestsWithMaxSeries(maxSeries int) {
	s.forConfig(ingestions.ShardsConfig{
		Shards:      1,
		WindowSize:  time.Minute,
		GracePeriod: 10 * time.Second,
		MaxSeries:   maxSeries,
	})
}

func (s *shardedDigestsSut) forConfig(cfg ingestions.ShardsConfig) {
	digests, err := ingestions.NewShardedDigests(cfg)
	Expect(err).NotTo(HaveOccurred())
	s.digests = digests
	s.now = clock.ParseTime("2025-02-22T12:03:05Z")
	s.minimum = 0
	s.maximum = 0
}

func (s *shardedDigestsSut) ingest(observations ...ingestions.Observation) {
	Expect(s.digests.Ingest(s.now, observations...)).To(Succeed())
}

func (s *shardedDigestsSut) ingestUniform(series string, count int) {
	randomizer := rand.New(rand.NewPCG(21, 12))
	s.minimum = 100
	for i := range count {
		value := 100 * randomizer.Float64()
		s.minimum = min(s.minimum, value)
		s.maximum = max(s.maximum, value)
		s.ingest(ingestions.Observation{
			Series: series,
			Source: fmt.Sprintf("trace-%d", i),
			Value:  value,
		})
	}
}

func (s *shardedDigestsSut) snapshot() map[string]*tdigest.TDigest {
	digests, err := s.digests.Snapshot(context.Background(), s.now)
	Expect(err).NotTo(HaveOccurred())
	return digests
}

func (s *shardedDigestsSut) snapshotAt(nowString string) map[string]*tdigest.TDigest {
	digests, err := s.digests.Snapshot(context.Background(), clock.ParseTime(nowString))
	Expect(err).NotTo(HaveOccurred())
	return digests
}

func (s *shardedDigestsSut) Close() {
	if s.digests != nil {
		s.digests.Close()
	}
}
