package clock

import (
	"sync"
	"time"
)

// ManualClock moves only when told to. Advance fires due tickers
// synchronously in chronological order, ties in registration order, and
// Now reads the tick time while a handler runs.
type ManualClock struct {
	lock    sync.Mutex
	now     time.Time
	nextID  uint64
	tickers map[uint64]*manualTicker
}

type manualTicker struct {
	id      uint64
	period  time.Duration
	next    time.Time
	handler func(now time.Time)
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{
		now:     now,
		tickers: make(map[uint64]*manualTicker),
	}
}

func (c *ManualClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(_ time.Duration) {
}

// Set jumps to now without firing tickers. Tickers keep their schedule.
func (c *ManualClock) Set(now time.Time) {
	c.lock.Lock()
	c.now = now
	c.lock.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.lock.Lock()
	target := c.now.Add(d)
	c.lock.Unlock()

	for {
		ticker, at, found := c.nextDue(target)
		if !found {
			break
		}
		ticker.handler(at)
	}

	c.Set(target)
}

func (c *ManualClock) nextDue(target time.Time) (*manualTicker, time.Time, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var due *manualTicker
	for _, ticker := range c.tickers {
		if ticker.next.After(target) {
			continue
		}
		if due == nil || ticker.next.Before(due.next) || (ticker.next.Equal(due.next) && ticker.id < due.id) {
			due = ticker
		}
	}
	if due == nil {
		return nil, time.Time{}, false
	}

	at := due.next
	due.next = at.Add(due.period)
	c.now = at
	return due, at, true
}

// TickPeriodically panics on a non positive period, as time.NewTicker does.
func (c *ManualClock) TickPeriodically(period time.Duration, handler func(now time.Time)) func() {
	if period <= 0 {
		panic("non-positive period for ManualClock.TickPeriodically")
	}

	c.lock.Lock()
	c.nextID++
	id := c.nextID
	c.tickers[id] = &manualTicker{
		id:      id,
		period:  period,
		next:    c.now.Add(period),
		handler: handler,
	}
	c.lock.Unlock()

	return func() {
		c.lock.Lock()
		delete(c.tickers, id)
		c.lock.Unlock()
	}
}
