package metrics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidQuantile = errors.New("invalid quantile")

// Quantile is a fraction of the distribution in [0, 1].
type Quantile float64

var (
	P50  = Quantile(0.5)
	P90  = Quantile(0.9)
	P95  = Quantile(0.95)
	P99  = Quantile(0.99)
	P999 = Quantile(0.999)
)

// ParseQuantile reads a fraction ("0.99"), a percent ("99%") or a
// percentile name ("p99").
func ParseQuantile(text string) (Quantile, error) {
	value := strings.TrimSpace(text)
	scale := 1.0
	switch {
	case strings.HasSuffix(value, "%"):
		value = strings.TrimSuffix(value, "%")
		scale = 100
	case strings.HasPrefix(value, "p"), strings.HasPrefix(value, "P"):
		value = value[1:]
		scale = 100
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantile, text)
	}
	return NewQuantile(parsed / scale)
}

func NewQuantile(q float64) (Quantile, error) {
	if math.IsNaN(q) || q < 0 || q > 1 {
		return 0, fmt.Errorf("%w: %v is outside [0, 1]", ErrInvalidQuantile, q)
	}
	return Quantile(q), nil
}

// Name renders the quantile as a percentile, 0.999 is "p99.9".
func (q Quantile) Name() string {
	return "p" + strconv.FormatFloat(math.Round(float64(q)*1e7)/1e5, 'f', -1, 64)
}

func (q Quantile) Float() float64 {
	return float64(q)
}
