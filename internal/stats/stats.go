// Package stats records gate decisions for offline inspection.
//
// Recording is best-effort: the gate logs a failed Record and carries on.
// Recorders that talk to the network go behind Async so the gate never waits
// on them. Nothing here feeds back into admission decisions.
package stats

import (
	"context"
	"sync"
	"time"
)

// Event is one terminal gate outcome.
type Event struct {
	Key     string // rate limit key, empty when the limiter did not run
	Outcome string
	Class   string // route class; the only per-route label that is persisted
	Method  string
	Path    string
	At      time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Memory keeps counters in process. Useful for tests and development; it
// never expires anything.
type Memory struct {
	mu      sync.Mutex
	total   map[string]int64
	byClass map[string]map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		total:   make(map[string]int64),
		byClass: make(map[string]map[string]int64),
	}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	class := classLabel(ev.Class)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total[ev.Outcome]++
	c := m.byClass[class]
	if c == nil {
		c = make(map[string]int64)
		m.byClass[class] = c
	}
	c[ev.Outcome]++
	return nil
}

// Total returns how many events were recorded with outcome.
func (m *Memory) Total(outcome string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total[outcome]
}

// ByClass returns outcome counts per route class.
func (m *Memory) ByClass() map[string]map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]int64, len(m.byClass))
	for class, c := range m.byClass {
		cp := make(map[string]int64, len(c))
		for k, v := range c {
			cp[k] = v
		}
		out[class] = cp
	}
	return out
}

func classLabel(class string) string {
	if class == "" {
		return "public"
	}
	return class
}
