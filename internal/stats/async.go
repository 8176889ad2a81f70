package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBuffer  = 1024
	defaultTimeout = 250 * time.Millisecond
)

// Async takes recording off the request path. Record only enqueues; a single
// goroutine drains the queue into the wrapped Recorder, each write bounded by
// a timeout. Events that find the queue full are dropped and counted.
type Async struct {
	next    Recorder
	events  chan Event
	timeout time.Duration
	onErr   func(error)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped atomic.Int64
}

type AsyncOption func(*Async)

func WithBuffer(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.events = make(chan Event, n)
		}
	}
}

// WithTimeout bounds each write to the wrapped Recorder.
func WithTimeout(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithErrorHandler receives write failures from the drain goroutine.
func WithErrorHandler(fn func(error)) AsyncOption {
	return func(a *Async) { a.onErr = fn }
}

func NewAsync(next Recorder, opts ...AsyncOption) *Async {
	a := &Async{
		next:    next,
		timeout: defaultTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.events == nil {
		a.events = make(chan Event, defaultBuffer)
	}
	go a.drain()
	return a
}

// Record never blocks. ctx is ignored: the request that produced ev may be
// gone by the time the event is written.
func (a *Async) Record(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return nil
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Dropped reports how many events were discarded because the queue was full
// or the recorder was closed.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events and waits for the queue to drain.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}

func (a *Async) drain() {
	defer close(a.done)
	for ev := range a.events {
		if a.next == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Record(ctx, ev)
		cancel()
		if err != nil && a.onErr != nil {
			a.onErr(err)
		}
	}
}
