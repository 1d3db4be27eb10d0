package metrics

import (
	"errors"
	"slices"
	"time"
)

type Accumulator[T any] interface {
	Add(value T) error
}

// Window accumulates every value observed while it was open.
type Window[T any, A Accumulator[T]] struct {
	StartTime   time.Time
	EndTime     time.Time
	Accumulator A
}

func (w *Window[T, A]) IsActive(now time.Time) bool {
	return !now.Before(w.StartTime) && now.Before(w.EndTime)
}

// IsActiveGracePeriod is true during the last gracePeriod before EndTime.
// A window is reported as complete only then.
func (w *Window[T, A]) IsActiveGracePeriod(now time.Time, gracePeriod time.Duration) bool {
	return !now.Before(w.EndTime.Add(-gracePeriod)) && now.Before(w.EndTime)
}

// SlidingWindow opens a window of Size at every multiple of GracePeriod.
// Windows overlap, so a value lands in all windows open at its time.
type SlidingWindow[T any, A Accumulator[T]] struct {
	Size        time.Duration
	GracePeriod time.Duration
	// ordered by StartTime
	windows   []*Window[T, A]
	createAcc func() A
}

func NewSlidingWindow[T any, A Accumulator[T]](createAcc func() A, size time.Duration, gracePeriod time.Duration) *SlidingWindow[T, A] {
	return &SlidingWindow[T, A]{
		Size:        size,
		GracePeriod: gracePeriod,
		createAcc:   createAcc,
	}
}

func (w *SlidingWindow[T, A]) GetActiveWindow(now time.Time) *Window[T, A] {
	w.expire(now)
	for _, window := range w.windows {
		if window.IsActiveGracePeriod(now, w.GracePeriod) {
			return window
		}
	}
	return nil
}

// ActiveWindows counts windows still open at now.
func (w *SlidingWindow[T, A]) ActiveWindows(now time.Time) int {
	w.expire(now)
	return len(w.windows)
}

func (w *SlidingWindow[T, A]) AddValue(now time.Time, value T) error {
	w.expire(now)
	for start := now.Truncate(w.GracePeriod); start.Add(w.Size).After(now); start = start.Add(-w.GracePeriod) {
		w.open(start)
	}

	var errs []error
	for _, window := range w.windows {
		if err := window.Accumulator.Add(value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *SlidingWindow[T, A]) expire(now time.Time) {
	w.windows = slices.DeleteFunc(w.windows, func(window *Window[T, A]) bool {
		return !window.IsActive(now)
	})
}

func (w *SlidingWindow[T, A]) open(start time.Time) {
	position, found := slices.BinarySearchFunc(w.windows, start, func(window *Window[T, A], start time.Time) int {
		return window.StartTime.Compare(start)
	})
	if found {
		return
	}
	w.windows = slices.Insert(w.windows, position, &Window[T, A]{
		StartTime:   start,
		EndTime:     start.Add(w.Size),
		Accumulator: w.createAcc(),
	})
}
