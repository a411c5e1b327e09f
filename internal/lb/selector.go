// Package lb selects which eligible backend serves the next connection.
// Only round robin is implemented today; Selector exists as a narrow seam
// so a future policy doesn't have to touch the proxy's accept loop.
package lb

import (
	"sync/atomic"
)

// Selector picks a candidate order over a pool's currently eligible
// backends. Implementations must be safe for concurrent use.
type Selector interface {
	// Order returns pool indices, drawn from eligible, in the order they
	// should be tried. The caller iterates this slice for connect-time
	// failover (§4.5); Order itself does not dial anything.
	Order(eligible []int) []int
}

// RoundRobin cycles a shared cursor across successive calls so that
// concurrent connections spread evenly over the eligible set, per §4.3.
// The cursor advances once per call regardless of how many backends end up
// eligible, so a backend flapping in and out of eligibility never skews the
// rotation more than a single position.
type RoundRobin struct {
	cursor atomic.Uint64
}

// NewRoundRobin returns a fresh round-robin selector starting at position 0.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Order rotates eligible so it starts at the next cursor position and wraps
// around, giving every backend in eligible equal precedence across calls.
// An empty eligible returns nil without advancing the cursor.
func (r *RoundRobin) Order(eligible []int) []int {
	n := len(eligible)
	if n == 0 {
		return nil
	}
	start := int((r.cursor.Add(1) - 1) % uint64(n))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = eligible[(start+i)%n]
	}
	return out
}

// Reset returns the cursor to 0, per §4.3's requirement that a config swap
// restart the rotation rather than carry position across a changed backend
// set.
func (r *RoundRobin) Reset() {
	r.cursor.Store(0)
}
