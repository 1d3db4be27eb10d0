package clock

import (
	"context"
	"time"
)

type SystemClock struct {
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	return time.Now()
}

func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// TickPeriodically runs handler on its own goroutine, ticks missed by a slow
// handler are dropped. The returned stop may be called many times and does
// not wait for a running handler.
func (c *SystemClock) TickPeriodically(period time.Duration, handler func(now time.Time)) func() {
	ticker := time.NewTicker(period)
	ctx, stop := context.WithCancel(context.Background())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				handler(now)
			}
		}
	}()
	return stop
}
