package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"quantiles/clock"
	"quantiles/concurrency"
	"quantiles/config"
	"quantiles/ingestions"
	"quantiles/ingestions/otel"
	"quantiles/reporters"
	"quantiles/snapshot"
	"quantiles/uuid"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultReportPeriod = 10 * time.Second
	ingestionQueueLen   = 1000
	reporterQueueLen    = 100
	reporterWorkers     = 4
)

type App struct {
	cfg         *config.Config
	managedTime clock.ManagedTime

	digests      *ingestions.ShardedDigests
	collector    *reporters.SummaryCollector
	otelReporter *reporters.ScopedOtelReporter
	server       HttpServer

	stopTick func()
	// held while reporting, reports after stop are dropped
	lock    sync.Mutex
	stopped bool
}

func NewApp(
	cfg *config.Config,
	managedTime clock.ManagedTime,
	createServer CreateServer,
) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, codecErr := snapshot.ParseCodec(cfg.Snapshot.Codec)
	if codecErr != nil {
		return nil, codecErr
	}

	digests, digestsErr := ingestions.NewShardedDigests(ingestions.ShardsConfig{
		Shards:      cfg.Shards,
		QueueLength: ingestionQueueLen,
		Digest: ingestions.DigestConfig{
			Accuracy:            cfg.Digest.Accuracy,
			CompressionConstant: cfg.Digest.CompressionConstant,
		},
		WindowSize:  cfg.Window.Size.Std(),
		GracePeriod: cfg.Window.GracePeriod.Std(),
		MaxSeries:   cfg.MaxSeries,
	})
	if digestsErr != nil {
		return nil, digestsErr
	}

	var otelReporter *reporters.ScopedOtelReporter
	if len(cfg.Otel.Host) > 0 {
		reporter, reporterErr := newOtelReporter(cfg, managedTime)
		if reporterErr != nil {
			digests.Close()
			return nil, reporterErr
		}
		otelReporter = reporter
	}

	collector := reporters.NewSummaryCollector("quantiles_summary", "Quantiles of ingested series.")
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	mapping := otel.NewSpanDurationMapping()
	tracesHandler := otel.NewTracesHandler(func(_ context.Context, observations []ingestions.Observation) error {
		return digests.Ingest(managedTime.Now(), observations...)
	}, mapping.ConvertMessage)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/traces", tracesHandler)
	mux.Handle("/v1/quantiles", NewQueryHandler(digests.Snapshot, managedTime.Now, cfg.Quantiles))
	mux.Handle("GET /v1/snapshots", NewSnapshotHandler(digests.Snapshot, managedTime.Now, codec))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &App{
		cfg:          cfg,
		managedTime:  managedTime,
		digests:      digests,
		collector:    collector,
		otelReporter: otelReporter,
		server:       createServer(cfg.Http.Host, mux),
	}, nil
}

func newOtelReporter(cfg *config.Config, managedTime clock.ManagedTime) (*reporters.ScopedOtelReporter, error) {
	oUrl, urlErr := reporters.NewOtelUrl(cfg.Otel.Secured, cfg.Otel.Host)
	if urlErr != nil {
		return nil, urlErr
	}
	instanceID, idErr := uuid.NewInstanceIDs(rand.Reader).New(managedTime.Now())
	if idErr != nil {
		return nil, idErr
	}

	scopes := concurrency.NewScopes(
		concurrency.GenerateScopeIds("otel-reporter", reporterWorkers),
		reporters.NewEmptyOtelReporterScope)
	reporterCfg := &reporters.OtelReporterConfig{
		OtelUrl:    oUrl,
		Method:     http.MethodPost,
		UserAgent:  "quantiles",
		InstanceID: instanceID,
		Unit:       "ms",
	}
	slog.Info("Reporting quantiles to otel collector",
		slog.String("otel-url", oUrl.String()),
		slog.String("instance-id", instanceID))

	sleep := func(ctx context.Context, d time.Duration) error {
		managedTime.Sleep(d)
		return ctx.Err()
	}
	return reporters.NewScopedOtelReporter(scopes, sleep, reporterCfg, reporterQueueLen), nil
}

func (a *App) Start() error {
	if startErr := a.server.Start(); startErr != nil {
		return fmt.Errorf("failed to start http server on %s: %w", a.server.Host(), startErr)
	}

	reportPeriod := a.cfg.Otel.ReportPeriod.Std()
	if reportPeriod <= 0 {
		reportPeriod = defaultReportPeriod
	}
	a.lock.Lock()
	a.stopTick = a.managedTime.TickPeriodically(reportPeriod, a.report)
	a.lock.Unlock()
	slog.Info("Started quantiles server", slog.String("url", a.Url()))
	return nil
}

// report publishes summaries of the digests active at now.
func (a *App) report(now time.Time) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.stopped {
		return
	}

	ctx := context.Background()
	digests, snapshotErr := a.digests.Snapshot(ctx, now)
	if snapshotErr != nil {
		slog.ErrorContext(ctx, "Failed to snapshot digests", slog.Any("error", snapshotErr))
		return
	}

	summaries := make([]reporters.SeriesSummary, 0, len(digests))
	for _, series := range ingestions.SortedSeries(digests) {
		summary, summaryErr := reporters.Summarize(series, digests[series], a.cfg.Quantiles)
		if summaryErr != nil {
			slog.ErrorContext(ctx, "Failed to summarize series",
				slog.String("series", series),
				slog.Any("error", summaryErr))
			continue
		}
		summaries = append(summaries, summary)
	}

	a.collector.Set(summaries)
	if a.otelReporter != nil {
		a.otelReporter.Report(now, summaries)
	}
	slog.Debug("Reported quantiles", slog.Time("now", now), slog.Int("series", len(summaries)))
}

func (a *App) Url() string {
	return "http://" + a.server.Host()
}

func (a *App) Stop() error {
	if a == nil {
		return nil
	}
	a.lock.Lock()
	if a.stopped {
		a.lock.Unlock()
		return nil
	}
	a.stopped = true
	if a.stopTick != nil {
		a.stopTick()
	}
	a.lock.Unlock()

	stopErr := a.server.Close()
	if stopErr != nil {
		slog.Error("Failed to close quantiles server", slog.Any("error", stopErr))
	} else {
		slog.Info("Closed quantiles server")
	}

	a.digests.Close()
	if a.otelReporter != nil {
		a.otelReporter.Close()
	}
	return stopErr
}
