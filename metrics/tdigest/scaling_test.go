package tdigest_test

import (
	"quantiles/metrics/tdigest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scaling", func() {
	It("size bound gives biggest capacity in the center, nothing on the edges", func() {
		bound := tdigest.NewSizeBound(0.02)

		var maxWeights []float64
		totalWeight := 1000.0
		for quantile := 0; quantile <= 100; quantile += 10 {
			q := float64(quantile) / 100.0
			maxWeights = append(maxWeights, round(bound.MaxWeight(q, totalWeight), 2))
		}

		Expect(maxWeights).To(Equal([]float64{
			0, 7.2, 12.8, 16.8, 19.2, 20, 19.2, 16.8, 12.8, 7.2, 0,
		}))
	})

	It("size bound grows linearly with total weight", func() {
		bound := tdigest.NewSizeBound(0.02)

		Expect(bound.MaxWeight(0.5, 100)).To(BeNumerically("~", 2, 1e-12))
		Expect(bound.MaxWeight(0.5, 1000)).To(BeNumerically("~", 20, 1e-12))
		Expect(bound.MaxWeight(0.5, 10000)).To(BeNumerically("~", 200, 1e-12))
	})

	It("smaller accuracy gives tighter clusters", func() {
		loose := tdigest.NewSizeBound(0.1)
		tight := tdigest.NewSizeBound(0.01)

		Expect(tight.MaxWeight(0.3, 1000)).To(BeNumerically("<", loose.MaxWeight(0.3, 1000)))
	})
})
