package reporters

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SummaryCollector re-exposes the last reported summaries to prometheus.
type SummaryCollector struct {
	desc      *prometheus.Desc
	summaries map[string]SeriesSummary
	lock      sync.RWMutex
}

func NewSummaryCollector(name string, help string) *SummaryCollector {
	return &SummaryCollector{
		desc: prometheus.NewDesc(
			name,
			help,
			[]string{"series"},
			prometheus.Labels{},
		),
		summaries: map[string]SeriesSummary{},
	}
}

func (c *SummaryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Set replaces all summaries, series not present are forgotten.
func (c *SummaryCollector) Set(summaries []SeriesSummary) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.summaries = make(map[string]SeriesSummary, len(summaries))
	for _, summary := range summaries {
		c.summaries[summary.Series] = summary
	}
}

func (c *SummaryCollector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	for series, summary := range c.summaries {
		quantiles := make(map[float64]float64, len(summary.Quantiles))
		for _, quantile := range summary.Quantiles {
			quantiles[quantile.Quantile] = quantile.Value
		}
		ch <- prometheus.MustNewConstSummary(
			c.desc,
			uint64(math.Round(summary.Count)),
			summary.Sum,
			quantiles,
			series,
		)
	}
}
