package ingestions_test

import (
	"math"
	"quantiles/ingestions"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Observation", func() {
	DescribeTable("refuses invalid observations",
		func(observation ingestions.Observation) {
			Expect(observation.Validate()).To(MatchError(ingestions.ErrInvalidObservation))
		},
		Entry("empty series", ingestions.Observation{Value: 1}),
		Entry("NaN value", ingestions.Observation{Series: "a", Value: math.NaN()}),
		Entry("infinite value", ingestions.Observation{Series: "a", Value: math.Inf(-1)}),
		Entry("negative weight", ingestions.Observation{Series: "a", Value: 1, Weight: -1}),
		Entry("infinite weight", ingestions.Observation{Series: "a", Value: 1, Weight: math.Inf(1)}),
	)

	It("accepts observation with default weight", func() {
		Expect(ingestions.Observation{Series: "a", Value: -3}.Validate()).To(Succeed())
	})

	It("shards by source", func() {
		observation := ingestions.Observation{Series: "a", Source: "trace-1"}
		Expect(observation.GetShardingKey()).To(BeEquivalentTo([]byte("trace-1")))
	})

	It("shards by series without source", func() {
		observation := ingestions.Observation{Series: "a"}
		Expect(observation.GetShardingKey()).To(BeEquivalentTo([]byte("a")))
	})
})
