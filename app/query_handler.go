package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"quantiles/ingestions"
	"quantiles/metrics/tdigest"
	"quantiles/reporters"
	"time"

	"github.com/oapi-codegen/runtime"
)

type QueryResponse struct {
	Series []SeriesResponse `json:"series"`
}

type SeriesResponse struct {
	Series    string             `json:"series"`
	Count     float64            `json:"count"`
	Sum       float64            `json:"sum"`
	Min       float64            `json:"min"`
	Max       float64            `json:"max"`
	Quantiles []QuantileResponse `json:"quantiles"`
}

type QuantileResponse struct {
	Quantile float64 `json:"quantile"`
	Value    float64 `json:"value"`
}

// QueryHandler serves GET /v1/quantiles?series=a&q=0.5&q=0.99. Without
// series all known series are returned, without q the configured quantiles.
type QueryHandler struct {
	snapshot  func(ctx context.Context, now time.Time) (map[string]*tdigest.TDigest, error)
	now       func() time.Time
	quantiles []float64
}

func NewQueryHandler(
	snapshot func(ctx context.Context, now time.Time) (map[string]*tdigest.TDigest, error),
	now func() time.Time,
	quantiles []float64,
) *QueryHandler {
	return &QueryHandler{
		snapshot:  snapshot,
		now:       now,
		quantiles: quantiles,
	}
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params queryParams
	if bindErr := params.bind(req.URL.Query()); bindErr != nil {
		http.Error(w, bindErr.Error(), http.StatusBadRequest)
		return
	}
	quantiles := params.Quantiles
	if len(quantiles) == 0 {
		quantiles = h.quantiles
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

	requested := params.Series
	if len(requested) == 0 {
		requested = ingestions.SortedSeries(digests)
	}

	response := QueryResponse{Series: make([]SeriesResponse, 0, len(requested))}
	for _, series := range requested {
		digest, found := digests[series]
		if !found {
			http.Error(w, "unknown series "+series, http.StatusNotFound)
			return
		}
		summary, summaryErr := reporters.Summarize(series, digest, quantiles)
		if summaryErr != nil {
			http.Error(w, summaryErr.Error(), http.StatusInternalServerError)
			return
		}
		response.Series = append(response.Series, toSeriesResponse(summary))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

var errInvalidQuantile = errors.New("quantile must be in range [0, 1]")

type queryParams struct {
	Series    []string
	Quantiles []float64
}

func (p *queryParams) bind(values url.Values) error {
	if err := runtime.BindQueryParameter("form", true, false, "series", values, &p.Series); err != nil {
		return err
	}
	if err := runtime.BindQueryParameter("form", true, false, "q", values, &p.Quantiles); err != nil {
		return err
	}
	for _, q := range p.Quantiles {
		if math.IsNaN(q) || q < 0 || q > 1 {
			return errInvalidQuantile
		}
	}
	return nil
}

func toSeriesResponse(summary reporters.SeriesSummary) SeriesResponse {
	quantiles := make([]QuantileResponse, len(summary.Quantiles))
	for i, q := range summary.Quantiles {
		quantiles[i] = QuantileResponse{Quantile: q.Quantile, Value: q.Value}
	}
	return SeriesResponse{
		Series:    summary.Series,
		Count:     summary.Count,
		Sum:       summary.Sum,
		Min:       summary.Min,
		Max:       summary.Max,
		Quantiles: quantiles,
	}
}
