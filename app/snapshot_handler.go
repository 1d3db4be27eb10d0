package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"quantiles/ingestions"
	"quantiles/metrics/tdigest"
	"quantiles/snapshot"
	"time"
)

// SnapshotHandler serves GET /v1/snapshots?series=a as a snapshot file
// readable by snapshot.Read.
type SnapshotHandler struct {
	snapshot func(ctx context.Context, now time.Time) (map[string]*tdigest.TDigest, error)
	now      func() time.Time
	codec    snapshot.Codec
}

func NewSnapshotHandler(
	snapshot func(ctx context.Context, now time.Time) (map[string]*tdigest.TDigest, error),
	now func() time.Time,
	codec snapshot.Codec,
) *SnapshotHandler {
	return &SnapshotHandler{
		snapshot: snapshot,
		now:      now,
		codec:    codec,
	}
}

func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	series := req.URL.Query().Get("series")
	if len(series) == 0 {
		http.Error(w, "series is required", http.StatusBadRequest)
		return
	}

	digests, snapshotErr := h.snapshot(req.Context(), h.now())
	if snapshotErr != nil {
		if errors.Is(snapshotErr, ingestions.ErrClosed) {
			http.Error(w, "ingestion is closed", http.StatusServiceUnavailable)
			return
		}
		slog.ErrorContext(req.Context(), "Failed to snapshot digests", slog.Any("error", snapshotErr))
		http.Error(w, "could not snapshot digests", http.StatusInternalServerError)
		return
	}

	digest, found := digests[series]
	if !found {
		http.Error(w, "unknown series "+series, http.StatusNotFound)
		return
	}

	var body bytes.Buffer
	if err := snapshot.Write(&body, digest, h.codec); err != nil {
		slog.ErrorContext(req.Context(), "Failed to write snapshot",
			slog.String("series", series),
			slog.Any("error", err))
		http.Error(w, "could not write snapshot", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}
