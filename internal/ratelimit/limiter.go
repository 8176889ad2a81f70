package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultWindowSeconds = 10
	DefaultMaxRequests   = 10
)

type Policy struct {
	WindowSeconds int // length of the sliding window
	MaxRequests   int // admitted requests per window
}

// OrDefault replaces non-positive fields with the defaults. A zero quota
// would deny every eligible request.
func (p Policy) OrDefault() Policy {
	if p.WindowSeconds <= 0 {
		p.WindowSeconds = DefaultWindowSeconds
	}
	if p.MaxRequests <= 0 {
		p.MaxRequests = DefaultMaxRequests
	}
	return p
}

type Decision struct {
	Allowed           bool
	Limit             int
	Remaining         int   // quota left after this request (min 0)
	ResetAfterSeconds int64 // until the oldest entry in the window expires
}

// ResetUnix is the absolute epoch second at which the oldest entry expires.
func (d Decision) ResetUnix(now int64) int64 {
	return now + d.ResetAfterSeconds
}

type Limiter interface {
	Allow(ctx context.Context, key string, p Policy, now time.Time) (Decision, error)
	Close() error
}

// Clock supplies wall time in whole seconds.
type Clock interface {
	NowUnix() int64
}

type ClockFunc func() int64

func (f ClockFunc) NowUnix() int64 { return f() }

type systemClock struct{}

func (systemClock) NowUnix() int64 { return UnixSeconds(time.Now()) }

var SystemClock Clock = systemClock{}

// UnixSeconds floors t to whole epoch seconds.
func UnixSeconds(t time.Time) int64 {
	return t.UnixMilli() / 1000
}
