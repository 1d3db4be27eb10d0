package reporters

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"quantiles/clock"
	quantileshttp "quantiles/http"
	"time"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"
)

const summaryMetricName = "quantiles_summary"

type OtelUrl string

func NewOtelUrl(secure bool, host string) (OtelUrl, error) {
	scheme := "https"
	if !secure {
		scheme = "http"
	}
	otelUrl, parseErr := url.ParseRequestURI(fmt.Sprintf("%s://%s/v1/metrics", scheme, host))
	if parseErr != nil {
		return "", parseErr
	}

	return OtelUrl(otelUrl.String()), nil
}

func (o *OtelUrl) String() string {
	return string(*o)
}

type OtelReporterConfig struct {
	OtelUrl    OtelUrl
	Method     string
	UserAgent  string
	InstanceID string
	Unit       string
}

// OtelReporter exports series summaries as OTLP summary metrics. It reuses
// one gzip writer and is not safe for concurrent use.
type OtelReporter struct {
	client       *http.Client
	cfg          *OtelReporterConfig
	protoMarshal func(proto.Message) ([]byte, error)
	gzipWriter   *quantileshttp.GzipWriter
}

func NewOtelReporter(cfg *OtelReporterConfig, client *http.Client, gzipWriter *quantileshttp.GzipWriter, protoMarshal func(proto.Message) ([]byte, error)) *OtelReporter {
	return &OtelReporter{
		client:       client,
		cfg:          cfg,
		protoMarshal: protoMarshal,
		gzipWriter:   gzipWriter,
	}
}

func (o *OtelReporter) Report(ctx context.Context, now time.Time, summaries []SeriesSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	message := &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						StringAttribute("service.instance.id", o.cfg.InstanceID),
					},
				},
				ScopeMetrics: []*metricspb.ScopeMetrics{
					{
						Metrics: []*metricspb.Metric{
							toSummaryMetric(now, o.cfg.Unit, summaries),
						},
					},
				},
			},
		},
	}

	marshalledBytes, marshalErr := o.protoMarshal(message)
	if marshalErr != nil {
		return marshalErr
	}
	compressed, compressErr := o.gzipWriter.Compress(marshalledBytes)
	if compressErr != nil {
		return compressErr
	}

	postReq, reqErr := http.NewRequestWithContext(
		ctx,
		o.cfg.Method,
		o.cfg.OtelUrl.String(),
		bytes.NewReader(compressed))
	if reqErr != nil {
		return reqErr
	}

	postReq.Header.Set("User-Agent", o.cfg.UserAgent)
	postReq.Header.Set("Content-Encoding", "gzip")
	postReq.Header.Set("Content-Type", "application/x-protobuf")

	response, respErr := o.client.Do(postReq)
	if respErr != nil {
		return respErr
	}
	defer response.Body.Close()

	if sc := response.StatusCode; sc >= 200 && sc <= 299 {
		return nil
	}
	return fmt.Errorf("received unexpected status code: %d for req %s %s", response.StatusCode, postReq.Method, postReq.URL.String())
}

func toSummaryMetric(now time.Time, unit string, summaries []SeriesSummary) *metricspb.Metric {
	dataPoints := make([]*metricspb.SummaryDataPoint, 0, len(summaries))
	for _, summary := range summaries {
		quantileValues := make([]*metricspb.SummaryDataPoint_ValueAtQuantile, 0, len(summary.Quantiles))
		for _, quantile := range summary.Quantiles {
			quantileValues = append(quantileValues, &metricspb.SummaryDataPoint_ValueAtQuantile{
				Quantile: quantile.Quantile,
				Value:    quantile.Value,
			})
		}

		dataPoints = append(dataPoints, &metricspb.SummaryDataPoint{
			Attributes: []*commonpb.KeyValue{
				StringAttribute("series", summary.Series),
			},
			TimeUnixNano:   clock.TimeToUint64NanoOrZero(now),
			Count:          uint64(math.Round(summary.Count)),
			Sum:            summary.Sum,
			QuantileValues: quantileValues,
		})
	}

	return &metricspb.Metric{
		Name: summaryMetricName,
		Unit: unit,
		Data: &metricspb.Metric_Summary{
			Summary: &metricspb.Summary{
				DataPoints: dataPoints,
			},
		},
	}
}

func StringAttribute(key string, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key: key,
		Value: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_StringValue{StringValue: value},
		},
	}
}

func DefaultOtelHttpClient(sleep quantileshttp.SleepFunc) *http.Client {
	transport := &http.Transport{}
	roundTripper := quantileshttp.WrapWithRetries(
		transport,
		quantileshttp.RetryStatusCodes(
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		),
		5,
		1.2,
		sleep)

	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: roundTripper,
	}
}
