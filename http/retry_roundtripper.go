package http

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"time"
)

type IsRetryableResponse func(statusCode int, err error) bool
type BackoffFunc func(retryCount int) time.Duration

// SleepFunc waits for d unless ctx ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

type RetryRoundTripper struct {
	origin      http.RoundTripper
	shouldRetry IsRetryableResponse

	retryMax int
	backoff  BackoffFunc
	sleep    SleepFunc
}

func RetryStatusCodes(retryStatus ...int) IsRetryableResponse {
	retryCodes := make(map[int]struct{}, len(retryStatus))
	for _, status := range retryStatus {
		retryCodes[status] = struct{}{}
	}

	return func(statusCode int, err error) bool {
		if err != nil {
			return false
		}
		_, found := retryCodes[statusCode]
		return found
	}
}

func WrapWithRetries(origin http.RoundTripper, shouldRetry IsRetryableResponse, retryMax int, inSeconds float64, sleep SleepFunc) *RetryRoundTripper {
	backoff := ExponentialBackoff{
		Exponent: inSeconds,
	}

	return &RetryRoundTripper{
		origin:      origin,
		shouldRetry: shouldRetry,
		retryMax:    retryMax,
		backoff:     backoff.Delay,
		sleep:       sleep,
	}
}

type ExponentialBackoff struct {
	Exponent float64
}

func (e *ExponentialBackoff) Delay(retryCount int) time.Duration {
	millis := int64(math.Pow(e.Exponent, float64(retryCount)) * 1000)
	return time.Duration(millis) * time.Millisecond
}

func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *RetryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var readErr error
		bodyBytes, readErr = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	response, responseErr := t.origin.RoundTrip(req)
	retries := 0
	for t.shouldRetry(statusCodeOf(response), responseErr) && retries < t.retryMax {
		if sleepErr := t.sleep(req.Context(), t.backoff(retries+1)); sleepErr != nil {
			return response, responseErr
		}
		if response != nil && response.Body != nil {
			_, _ = io.Copy(io.Discard, response.Body)
			_ = response.Body.Close()
		}

		if req.Body != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
		response, responseErr = t.origin.RoundTrip(req)
		retries++
	}

	return response, responseErr
}

func statusCodeOf(response *http.Response) int {
	if response == nil {
		return 0
	}
	return response.StatusCode
}
