package memory

import (
	"context"
	"time"

	"github.com/AlexKimmel/ReqGate/internal/ratelimit"
)

// Limiter is an in-process sliding window limiter over a Store.
type Limiter struct {
	store *Store
}

func New(store *Store) *Limiter {
	if store == nil {
		store = NewStore()
	}
	return &Limiter{store: store}
}

func (l *Limiter) Store() *Store { return l.store }

func (l *Limiter) Close() error { return nil }

func (l *Limiter) Allow(_ context.Context, key string, p ratelimit.Policy, now time.Time) (ratelimit.Decision, error) {
	return l.Check(key, ratelimit.UnixSeconds(now), p.WindowSeconds, p.MaxRequests), nil
}

// Check admits or denies one request for key at now. The window is the
// half-open interval (now-windowSeconds, now]; denied requests consume no quota.
func (l *Limiter) Check(key string, now int64, windowSeconds, maxRequests int) ratelimit.Decision {
	windowStart := now - int64(windowSeconds)
	dec := ratelimit.Decision{Limit: maxRequests}

	l.store.update(key, func(record []int64) []int64 {
		live := record[:0]
		for _, ts := range record {
			if ts > windowStart {
				live = append(live, ts)
			}
		}

		if len(live) >= maxRequests {
			dec.Allowed = false
			dec.Remaining = 0
			dec.ResetAfterSeconds = resetAfter(live, now, windowSeconds)
			return live
		}

		live = append(live, now)
		dec.Allowed = true
		dec.Remaining = max(0, maxRequests-len(live))
		dec.ResetAfterSeconds = resetAfter(live, now, windowSeconds)
		return live
	})

	return dec
}

func resetAfter(live []int64, now int64, windowSeconds int) int64 {
	oldest := now
	for _, ts := range live {
		oldest = min(oldest, ts)
	}
	return max(0, int64(windowSeconds)-(now-oldest))
}
