package clock

import (
	"math"
	"time"
)

type ManagedTime interface {
	Now() time.Time
	Sleep(time.Duration)
	TickPeriodically(duration time.Duration, handler func(now time.Time)) func()
}

func ParseTime(nowString string) time.Time {
	now, _ := time.Parse(time.RFC3339, nowString)
	return now
}

// TimeFromUint64OrZero converts unix nanos, as carried by OTLP, to time.
func TimeFromUint64OrZero(nanos uint64) time.Time {
	if nanos > math.MaxInt64 {
		return time.Time{}.UTC()
	}
	return time.Unix(0, int64(nanos)).UTC()
}

func TimeToUint64NanoOrZero(t time.Time) uint64 {
	nanos := t.UnixNano()
	if nanos < 0 {
		return 0
	}
	return uint64(nanos)
}
