package reporters

import (
	"context"
	"log/slog"
	"net/http"
	"quantiles/concurrency"
	quantileshttp "quantiles/http"
	"time"

	"google.golang.org/protobuf/proto"
)

type ReportMessage struct {
	Now       time.Time
	Summaries []SeriesSummary
}

// OtelReporterScope is the state owned by one reporting worker.
type OtelReporterScope struct {
	client *http.Client
	gzip   *quantileshttp.GzipWriter
}

func NewEmptyOtelReporterScope() *OtelReporterScope {
	return &OtelReporterScope{}
}

// ScopedOtelReporter exports summaries in the background. A report is
// dropped when all workers are busy and the queue is full.
type ScopedOtelReporter struct {
	workers *concurrency.ScopeWorkers[OtelReporterScope, OtelReporter, ReportMessage]
}

func NewScopedOtelReporter(
	scopes *concurrency.Scopes[OtelReporterScope],
	sleep quantileshttp.SleepFunc,
	cfg *OtelReporterConfig,
	queueLength int,
) *ScopedOtelReporter {
	newWorker := func(id string, scope *OtelReporterScope) *OtelReporter {
		scope.client = DefaultOtelHttpClient(sleep)
		scope.gzip = quantileshttp.NewGzipWriter()

		workerCfg := *cfg
		workerCfg.UserAgent = cfg.UserAgent + "-" + id
		return NewOtelReporter(&workerCfg, scope.client, scope.gzip, proto.Marshal)
	}
	export := func(ctx context.Context, id string, _ *OtelReporterScope, reporter *OtelReporter, message *ReportMessage) {
		if err := reporter.Report(ctx, message.Now, message.Summaries); err != nil {
			slog.ErrorContext(ctx, "Failed to report quantiles",
				slog.String("worker", id),
				slog.Time("now", message.Now),
				slog.Any("error", err))
		}
	}
	return &ScopedOtelReporter{
		workers: concurrency.NewScopeWorkers(scopes, newWorker, export, queueLength),
	}
}

func (r *ScopedOtelReporter) Report(now time.Time, summaries []SeriesSummary) {
	if !r.workers.TryExecute(&ReportMessage{Now: now, Summaries: summaries}) {
		slog.Warn("Dropped quantiles report, exporters are busy",
			slog.Time("now", now),
			slog.Int("series", len(summaries)))
	}
}

// Close waits for queued reports to finish.
func (r *ScopedOtelReporter) Close() {
	r.workers.Close()
}
