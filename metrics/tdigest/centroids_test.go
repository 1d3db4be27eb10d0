package tdigest_test

import (
	"quantiles/metrics/tdigest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Centroids", func() {
	sut := centroidsSut{}

	It("has empty size for an empty centroids", func() {
		sut.forCentroids()
		Expect(sut.centroids.Size()).To(Equal(0))
		_, found := sut.centroids.First()
		Expect(found).To(BeFalse())
	})

	It("should store centroid", func() {
		sut.forCentroids()
		sut.WithSingleCentroid()
		Expect(sut.centroids.Size()).To(Equal(1))
	})

	It("should store centroids ordered by mean", func() {
		sut.forCentroids()
		sut.WithShuffledDataset()

		Expect(sut.centroids.ToList()).To(Equal(sut.sortedDataset()))
	})

	It("refuses to insert an already indexed mean", func() {
		sut.forCentroids()
		sut.WithDataset()

		inserted := sut.centroids.Insert(3.14, 100)
		Expect(inserted).To(BeFalse())
		Expect(sut.centroids.Size()).To(Equal(10))
		Expect(sut.centroids.TotalWeight()).To(Equal(373.0))
	})

	It("computes total sum of all weights", func() {
		sut.forCentroids()
		sut.WithDataset()

		Expect(sut.centroids.TotalWeight()).To(Equal(373.0))
	})

	It("removes centroid by mean", func() {
		sut.forCentroids()
		sut.WithDataset()

		removed, found := sut.centroids.Remove(3.14)
		Expect(found).To(BeTrue())
		Expect(removed).To(Equal(tdigest.Centroid{Mean: 3.14, Count: 15}))
		Expect(sut.centroids.Size()).To(Equal(9))
		Expect(sut.centroids.TotalWeight()).To(Equal(358.0))

		_, found = sut.centroids.Get(3.14)
		Expect(found).To(BeFalse())
	})

	It("does not remove not indexed mean", func() {
		sut.forCentroids()
		sut.WithDataset()

		_, found := sut.centroids.Remove(3.15)
		Expect(found).To(BeFalse())
		Expect(sut.centroids.Size()).To(Equal(10))
	})

	It("reuses removed slots and keeps order", func() {
		sut.forCentroids()
		sut.WithDataset()

		sut.centroids.Remove(1.618)
		sut.centroids.Remove(9.635)
		sut.centroids.Insert(0.5, 1)
		sut.centroids.Insert(11.5, 2)

		list := sut.centroids.ToList()
		Expect(list).To(HaveLen(10))
		Expect(list[0]).To(Equal(tdigest.Centroid{Mean: 0.5, Count: 1}))
		Expect(list[9]).To(Equal(tdigest.Centroid{Mean: 11.5, Count: 2}))
		Expect(sut.centroids.TotalWeight()).To(Equal(373.0 - 3 - 98 + 1 + 2))
	})

	It("finds exact centroid", func() {
		sut.forCentroids()
		sut.WithDataset()

		centroid, found := sut.centroids.Get(4.765)
		Expect(found).To(BeTrue())
		Expect(centroid).To(Equal(tdigest.Centroid{Mean: 4.765, Count: 41}))
	})

	Context("neighbours", func() {
		It("finds inclusive neighbours for indexed mean", func() {
			sut.forCentroids()
			sut.WithDataset()

			Expect(sut.ceiling(3.14)).To(Equal(3.14))
			Expect(sut.floor(3.14)).To(Equal(3.14))
		})

		It("finds strict neighbours for indexed mean", func() {
			sut.forCentroids()
			sut.WithDataset()

			Expect(sut.higher(3.14)).To(Equal(4.765))
			Expect(sut.lower(3.14)).To(Equal(2.718))
		})

		It("finds neighbours between means", func() {
			sut.forCentroids()
			sut.WithDataset()

			Expect(sut.ceiling(3.9524)).To(Equal(4.765))
			Expect(sut.higher(3.9524)).To(Equal(4.765))
			Expect(sut.floor(3.9524)).To(Equal(3.14))
			Expect(sut.lower(3.9524)).To(Equal(3.14))
		})

		It("finds no neighbours beyond the edges", func() {
			sut.forCentroids()
			sut.WithDataset()

			_, found := sut.centroids.Floor(1.0)
			Expect(found).To(BeFalse())
			_, found = sut.centroids.Lower(1.618)
			Expect(found).To(BeFalse())
			_, found = sut.centroids.Ceiling(11.0)
			Expect(found).To(BeFalse())
			_, found = sut.centroids.Higher(10.635)
			Expect(found).To(BeFalse())
		})

		It("finds no neighbours in empty centroids", func() {
			sut.forCentroids()

			_, found := sut.centroids.Ceiling(1.0)
			Expect(found).To(BeFalse())
			_, found = sut.centroids.Floor(1.0)
			Expect(found).To(BeFalse())
		})
	})

	It("sums weight strictly below mean", func() {
		sut.forCentroids()
		sut.WithDataset()

		Expect(sut.centroids.WeightBelow(1.618)).To(Equal(0.0))
		Expect(sut.centroids.WeightBelow(3.14)).To(Equal(11.0))
		Expect(sut.centroids.WeightBelow(3.15)).To(Equal(26.0))
		Expect(sut.centroids.WeightBelow(100)).To(Equal(373.0))
	})

	It("absorbs weight and reindexes centroid under new mean", func() {
		sut.forCentroids()
		sut.WithDataset()

		updated, absorbed := sut.centroids.Absorb(3.14, 3.1, 5)
		Expect(absorbed).To(BeTrue())
		Expect(updated.Mean).To(BeNumerically("~", 3.13, 1e-12))
		Expect(updated.Count).To(Equal(20.0))

		_, found := sut.centroids.Get(3.14)
		Expect(found).To(BeFalse())
		stored, found := sut.centroids.Get(updated.Mean)
		Expect(found).To(BeTrue())
		Expect(stored).To(Equal(updated))
		Expect(sut.centroids.TotalWeight()).To(Equal(378.0))
		Expect(sut.centroids.Size()).To(Equal(10))
	})

	It("does not absorb into not indexed mean", func() {
		sut.forCentroids()
		sut.WithDataset()

		_, absorbed := sut.centroids.Absorb(100, 3.1, 5)
		Expect(absorbed).To(BeFalse())
		Expect(sut.centroids.TotalWeight()).To(Equal(373.0))
	})

	It("folds centroids when absorbed mean collides", func() {
		sut.forCentroids()
		sut.centroids.Insert(1, 1)
		sut.centroids.Insert(2, 1)

		updated, absorbed := sut.centroids.Absorb(1, 3, 1)
		Expect(absorbed).To(BeTrue())
		Expect(updated).To(Equal(tdigest.Centroid{Mean: 2, Count: 3}))
		Expect(sut.centroids.ToList()).To(Equal([]tdigest.Centroid{{Mean: 2, Count: 3}}))
		Expect(sut.centroids.TotalWeight()).To(Equal(3.0))
	})

	It("merges weight into exact match", func() {
		sut.forCentroids()
		sut.WithDataset()

		merged := sut.centroids.AddOrMerge(3.14, 5)
		Expect(merged).To(Equal(tdigest.Centroid{Mean: 3.14, Count: 20}))
		Expect(sut.centroids.Size()).To(Equal(10))

		added := sut.centroids.AddOrMerge(3.5, 5)
		Expect(added).To(Equal(tdigest.Centroid{Mean: 3.5, Count: 5}))
		Expect(sut.centroids.Size()).To(Equal(11))
		Expect(sut.centroids.TotalWeight()).To(Equal(383.0))
	})

	It("stops iteration early", func() {
		sut.forCentroids()
		sut.WithDataset()

		var visited []float64
		for centroid := range sut.centroids.All() {
			if centroid.Mean > 4 {
				break
			}
			visited = append(visited, centroid.Mean)
		}
		Expect(visited).To(Equal([]float64{1.618, 2.718, 3.14}))
	})
})

type centroidsSut struct {
	centroids *tdigest.Centroids
}

func (s *centroidsSut) forCentroids() {
	s.centroids = tdigest.NewCentroids(100)
}

func (s *centroidsSut) sortedDataset() []tdigest.Centroid {
	return []tdigest.Centroid{
		{Mean: 1.618, Count: 3},
		{Mean: 2.718, Count: 8},
		{Mean: 3.14, Count: 15},
		{Mean: 4.765, Count: 41},
		{Mean: 5.635, Count: 31},
		{Mean: 6.123, Count: 73},
		{Mean: 7.123, Count: 41},
		{Mean: 8.156, Count: 60},
		{Mean: 9.635, Count: 98},
		{Mean: 10.635, Count: 3},
	}
}

func (s *centroidsSut) WithDataset() {
	for _, centroid := range s.sortedDataset() {
		s.centroids.Insert(centroid.Mean, centroid.Count)
	}
}

func (s *centroidsSut) WithShuffledDataset() {
	dataset := s.sortedDataset()
	for _, index := range []int{7, 2, 9, 0, 5, 3, 8, 1, 6, 4} {
		s.centroids.Insert(dataset[index].Mean, dataset[index].Count)
	}
}

func (s *centroidsSut) WithSingleCentroid() {
	s.centroids.Insert(3.14, 5)
}

func (s *centroidsSut) ceiling(mean float64) float64 {
	centroid, found := s.centroids.Ceiling(mean)
	Expect(found).To(BeTrue())
	return centroid.Mean
}

func (s *centroidsSut) higher(mean float64) float64 {
	centroid, found := s.centroids.Higher(mean)
	Expect(found).To(BeTrue())
	return centroid.Mean
}

func (s *centroidsSut) floor(mean float64) float64 {
	centroid, found := s.centroids.Floor(mean)
	Expect(found).To(BeTrue())
	return centroid.Mean
}

func (s *centroidsSut) lower(mean float64) float64 {
	centroid, found := s.centroids.Lower(mean)
	Expect(found).To(BeTrue())
	return centroid.Mean
}
