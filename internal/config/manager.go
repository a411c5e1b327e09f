package config

import (
	"sync/atomic"
)

// Manager holds the current Snapshot behind an atomic pointer, the same
// lock-free-read / single-writer discipline the teacher uses for its
// operational logger (internal/logging.opLogger atomic.Pointer[slog.Logger]).
// Current is wait-free: one atomic load, no allocation, no lock — the cost
// §4.1 requires on the accept-loop hot path.
type Manager struct {
	current atomic.Pointer[Snapshot]
	gen     atomic.Uint64
}

// NewManager builds a Manager whose first generation is the given,
// already-validated snapshot.
func NewManager(initial Snapshot) *Manager {
	m := &Manager{}
	initial.Generation = m.gen.Add(1)
	m.current.Store(&initial)
	return m
}

// Current returns the snapshot in effect right now. Safe for concurrent use
// from any number of goroutines; never blocks.
func (m *Manager) Current() Snapshot {
	return *m.current.Load()
}

// Swap validates next, stamps it with the next generation, installs it as
// current, and returns the previous snapshot. It rejects next without
// touching current state if validation fails. Swapping in a snapshot that
// is value-identical to the current one (ignoring Generation) is a no-op
// that returns the unchanged current snapshot, satisfying the
// swap(current()) == current() idempotence property of §8.
func (m *Manager) Swap(next Snapshot) (prev Snapshot, err error) {
	if err := Validate(next); err != nil {
		return Snapshot{}, err
	}

	prev = m.Current()
	if prev.Equal(next) {
		return prev, nil
	}

	next.Generation = m.gen.Add(1)
	m.current.Store(&next)
	return prev, nil
}
