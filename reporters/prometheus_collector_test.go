package reporters_test

import (
	"quantiles/reporters"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var _ = Describe("Summary Collector", func() {
	sut := summaryCollectorSut{}

	It("exposes nothing before first summaries", func() {
		sut.forCollector()
		Expect(sut.gather()).To(BeEmpty())
	})

	It("exposes summary per series", func() {
		sut.forCollector()
		sut.collector.Set(simpleSummaries())

		families := sut.gather()
		Expect(families).To(HaveLen(1))
		Expect(families[0].GetName()).To(Equal("quantiles_latency"))
		Expect(families[0].GetType()).To(Equal(dto.MetricType_SUMMARY))
		Expect(families[0].GetMetric()).To(HaveLen(2))

		checkout := families[0].GetMetric()[0]
		Expect(checkout.GetLabel()[0].GetName()).To(Equal("series"))
		Expect(checkout.GetLabel()[0].GetValue()).To(Equal("checkout"))
		Expect(checkout.GetSummary().GetSampleCount()).To(Equal(uint64(10)))
		Expect(checkout.GetSummary().GetSampleSum()).To(Equal(155.0))
		Expect(checkout.GetSummary().GetQuantile()).To(HaveLen(2))
		Expect(checkout.GetSummary().GetQuantile()[0].GetQuantile()).To(Equal(0.5))
		Expect(checkout.GetSummary().GetQuantile()[0].GetValue()).To(Equal(12.0))
	})

	It("forgets series missing from latest summaries", func() {
		sut.forCollector()
		sut.collector.Set(simpleSummaries())
		sut.collector.Set(simpleSummaries()[1:])

		families := sut.gather()
		Expect(families).To(HaveLen(1))
		Expect(families[0].GetMetric()).To(HaveLen(1))
		Expect(families[0].GetMetric()[0].GetLabel()[0].GetValue()).To(Equal("login"))
	})
})

type summaryCollectorSut struct {
	collector *reporters.SummaryCollector
	registry  *prometheus.Registry
}

func (s *summaryCollectorSut) forCollector() {
	s.collector = reporters.NewSummaryCollector("quantiles_latency", "Quantiles of observed series.")
	s.registry = prometheus.NewPedanticRegistry()
	s.registry.MustRegister(s.collector)
}

func (s *summaryCollectorSut) gather() []*dto.MetricFamily {
	families, err := s.registry.Gather()
	Expect(err).NotTo(HaveOccurred())
	return families
}
