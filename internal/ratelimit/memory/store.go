package memory

import "sync"

// Store owns every per-key timestamp record. A single mutex guards the map so
// that a whole purge-count-append sequence is applied atomically.
type Store struct {
	mu      sync.Mutex
	records map[string][]int64
}

func NewStore() *Store {
	return &Store{records: make(map[string][]int64)}
}

// update runs fn on the record for key while holding the lock and persists
// the result. Empty results are removed from the map.
func (s *Store) update(key string, fn func(record []int64) []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.records[key])
	if len(next) == 0 {
		delete(s.records, key)
		return
	}
	s.records[key] = next
}

// Reset drops all records. Test-only; production code never calls it.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]int64)
}

// Size reports how many keys are tracked. Test and metrics use only.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Entries reports how many timestamps are stored for key, without purging.
// Test-only.
func (s *Store) Entries(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[key])
}
