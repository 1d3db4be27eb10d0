package otel

import (
	"encoding/hex"
	"quantiles/ingestions"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

const unknownService = "unknown_service"

type AttributeNames struct {
	ServiceName string // resource attribute
	Series      string // span attribute overriding the derived series
}

var StandardMappingNames = AttributeNames{
	ServiceName: "service.name",
	Series:      "quantiles.series",
}

// SpanDurationMapping turns span durations in milliseconds into
// observations of series "<service.name>/<span name>", sharded by trace id.
type SpanDurationMapping struct {
	attNames AttributeNames
	kinds    map[tracepb.Span_SpanKind]struct{}
}

// NewSpanDurationMapping accepts only given span kinds, all when none given.
func NewSpanDurationMapping(kinds ...tracepb.Span_SpanKind) *SpanDurationMapping {
	var accepted map[tracepb.Span_SpanKind]struct{}
	if len(kinds) > 0 {
		accepted = make(map[tracepb.Span_SpanKind]struct{}, len(kinds))
		for _, kind := range kinds {
			accepted[kind] = struct{}{}
		}
	}
	return &SpanDurationMapping{attNames: StandardMappingNames, kinds: accepted}
}

func (m *SpanDurationMapping) ConvertMessage(reqProto *coltracepb.ExportTraceServiceRequest) []ingestions.Observation {
	var observations []ingestions.Observation
	for _, resource := range reqProto.ResourceSpans {
		serviceName, found := toMap(resource.GetResource().GetAttributes()).GetStringValue(m.attNames.ServiceName)
		if !found || len(serviceName) == 0 {
			serviceName = unknownService
		}

		for _, scope := range resource.ScopeSpans {
			for _, span := range scope.Spans {
				if !m.accepts(span.Kind) {
					continue
				}
				if span.StartTimeUnixNano == 0 || span.EndTimeUnixNano < span.StartTimeUnixNano {
					continue
				}

				series, found := toMap(span.Attributes).GetStringValue(m.attNames.Series)
				if !found || len(series) == 0 {
					series = serviceName + "/" + span.Name
				}

				observations = append(observations, ingestions.Observation{
					Series: series,
					Source: hex.EncodeToString(span.TraceId),
					Value:  float64(span.EndTimeUnixNano-span.StartTimeUnixNano) / 1e6,
				})
			}
		}
	}
	return observations
}

func (m *SpanDurationMapping) accepts(kind tracepb.Span_SpanKind) bool {
	if m.kinds == nil {
		return true
	}
	_, found := m.kinds[kind]
	return found
}

type AttributePBMap map[string]*commonpb.KeyValue

func toMap(attributes []*commonpb.KeyValue) AttributePBMap {
	values := make(AttributePBMap)
	for _, attribute := range attributes {
		values[attribute.Key] = attribute
	}
	return values
}

func (m AttributePBMap) GetStringValue(name string) (string, bool) {
	attr, found := m[name]
	if found {
		return attr.Value.GetStringValue(), true
	}
	return "", false
}
