package reporters_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"quantiles/concurrency"
	"quantiles/reporters"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
)

var _ = Describe("Scoped OTEL Reporter", func() {
	It("reports all queued summaries before close returns", func() {
		collector := &countingCollector{}
		server := httptest.NewServer(newOtelCollector(collector))
		defer server.Close()

		reporter := reporters.NewScopedOtelReporter(
			concurrency.NewScopes(
				concurrency.GenerateScopeIds("otel-reporter", 2),
				reporters.NewEmptyOtelReporterScope),
			func(context.Context, time.Duration) error {
				return nil
			},
			&reporters.OtelReporterConfig{
				OtelUrl:    otelUrlOf(server),
				Method:     http.MethodPost,
				UserAgent:  "quantiles",
				InstanceID: "instance-1",
			},
			10)

		now := parseTime("2025-02-22T12:04:05Z")
		for range 5 {
			reporter.Report(now, simpleSummaries())
		}
		reporter.Report(now, nil)
		reporter.Close()

		Expect(collector.count()).To(Equal(5))
		Expect(collector.userAgents).To(ContainElement(HavePrefix("quantiles-otel-reporter-")))
	})
})

type countingCollector struct {
	lock       sync.Mutex
	messages   int
	userAgents []string
}

func (c *countingCollector) receive(request *http.Request, _ *colmetricspb.ExportMetricsServiceRequest) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.messages++
	c.userAgents = append(c.userAgents, request.UserAgent())
	return http.StatusOK
}

func (c *countingCollector) count() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.messages
}
