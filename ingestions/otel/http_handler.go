package otel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	quantileshttp "quantiles/http"
	"quantiles/ingestions"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"
)

const DefaultMaxBodyBytes = 16 << 20

type TracesHandler struct {
	ingestion           func(ctx context.Context, observations []ingestions.Observation) error
	convertProtoMessage func(c *coltracepb.ExportTraceServiceRequest) []ingestions.Observation
	maxBodyBytes        int64
}

func NewTracesHandler(
	ingestion func(ctx context.Context, observations []ingestions.Observation) error,
	convertProtoMessage func(c *coltracepb.ExportTraceServiceRequest) []ingestions.Observation,
) *TracesHandler {
	return &TracesHandler{
		ingestion:           ingestion,
		convertProtoMessage: convertProtoMessage,
		maxBodyBytes:        DefaultMaxBodyBytes,
	}
}

// WithMaxBodyBytes limits the uncompressed size of accepted requests.
func (h *TracesHandler) WithMaxBodyBytes(limit int64) *TracesHandler {
	h.maxBodyBytes = limit
	return h
}

func (h *TracesHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()

	raw, readErr := quantileshttp.ReadBody(req.Body, req.Header.Get("Content-Encoding"), h.maxBodyBytes)
	switch {
	case errors.Is(readErr, quantileshttp.ErrBodyTooLarge):
		http.Error(w, readErr.Error(), http.StatusRequestEntityTooLarge)
		return
	case errors.Is(readErr, quantileshttp.ErrUnsupportedEncoding):
		http.Error(w, readErr.Error(), http.StatusUnsupportedMediaType)
		return
	case readErr != nil:
		http.Error(w, "could not read body", http.StatusInternalServerError)
		return
	}

	var reqProto coltracepb.ExportTraceServiceRequest
	unmarshalErr := proto.Unmarshal(raw, &reqProto)
	if unmarshalErr != nil {
		http.Error(w, "could not parse proto", http.StatusBadRequest)
		return
	}

	ingestErr := h.ingestion(req.Context(), h.convertProtoMessage(&reqProto))
	switch {
	case ingestErr == nil:
		w.WriteHeader(http.StatusCreated)
	case errors.Is(ingestErr, ingestions.ErrInvalidObservation):
		http.Error(w, ingestErr.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(req.Context(), "Failed to ingest traces", slog.Any("error", ingestErr))
		http.Error(w, "could not ingest traces", http.StatusServiceUnavailable)
	}
}
