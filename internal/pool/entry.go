// Package pool maintains per-backend mutable health state and answers
// "which backends are currently eligible?" — grounded on the health-status
// map pattern used by the jellyfin-proxy reference proxy: an in-memory map
// of per-backend counters guarded by a single mutex, with availability
// flipped by hysteresis thresholds rather than on every single probe
// result.
package pool

import (
	"sync"
	"time"

	"github.com/oriys/bal/internal/balerr"
	"github.com/oriys/bal/internal/config"
)

// Entry is the per-backend mutable health record of §3.
type Entry struct {
	Endpoint             config.Endpoint
	Available            bool
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	CooldownUntil        time.Time
	LastProbeOutcome     balerr.ProbeOutcome
	LastProbeAt          time.Time
}

// eligible reports whether the entry is eligible for selection at now:
// available and past its cooldown.
func (e *Entry) eligible(now time.Time) bool {
	return e.Available && !now.Before(e.CooldownUntil)
}

// Pool is a shared-read/single-writer ordered sequence of backend entries.
// Readers (Eligible/Snapshot) take the read lock; Rebuild (the only
// structural mutation — add/remove backends) takes the write lock, so
// readers wait while a Rebuild runs and never observe a partially replaced
// list. Per-entry counter updates (MarkSuccess/MarkFailure) take the same
// write lock for the duration of updating one element, so concurrent
// probes of distinct entries are serialized, each holding the lock only
// briefly.
type Pool struct {
	mu      sync.RWMutex
	entries []*Entry
	byAddr  map[config.Endpoint]*Entry
}

// New builds a Pool from a snapshot's backend list with every entry starting
// available, per §3's "initial value is true".
func New(backends []config.Endpoint) *Pool {
	p := &Pool{
		byAddr: make(map[config.Endpoint]*Entry, len(backends)),
	}
	for _, ep := range backends {
		e := &Entry{Endpoint: ep, Available: true}
		p.entries = append(p.entries, e)
		p.byAddr[ep] = e
	}
	return p
}

// Rebuild migrates health state across a config swap: entries whose
// endpoint is unchanged keep their counters, removed endpoints are dropped,
// added endpoints start fresh (available, zeroed counters), per §4.2.
func (p *Pool) Rebuild(backends []config.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	newEntries := make([]*Entry, 0, len(backends))
	newByAddr := make(map[config.Endpoint]*Entry, len(backends))
	for _, ep := range backends {
		if existing, ok := p.byAddr[ep]; ok {
			newEntries = append(newEntries, existing)
			newByAddr[ep] = existing
			continue
		}
		e := &Entry{Endpoint: ep, Available: true}
		newEntries = append(newEntries, e)
		newByAddr[ep] = e
	}
	p.entries = newEntries
	p.byAddr = newByAddr
}

// Len returns the number of backends currently in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Snapshot returns a shallow copy of the pool-order entry list, each entry
// copied by value so callers can inspect health state without racing
// concurrent MarkSuccess/MarkFailure calls on the live entries.
func (p *Pool) Snapshot() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = *e
	}
	return out
}

// Eligible returns, in pool order, the indices of entries eligible for
// selection at now: available and past cooldown.
func (p *Pool) Eligible(now time.Time) []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := make([]int, 0, len(p.entries))
	for i, e := range p.entries {
		if e.eligible(now) {
			idx = append(idx, i)
		}
	}
	return idx
}

// EndpointAt returns the endpoint at a pool index obtained from Eligible.
func (p *Pool) EndpointAt(i int) config.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[i].Endpoint
}

// MarkSuccess records a successful probe or connect for the entry at pool
// index i: increments consecutive successes, resets consecutive failures,
// and — once the success threshold is reached — marks the backend
// available and clears its cooldown.
func (p *Pool) MarkSuccess(i int, now time.Time, successThreshold uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.entries) {
		return
	}
	e := p.entries[i]
	e.ConsecutiveSuccesses++
	e.ConsecutiveFailures = 0
	e.LastProbeOutcome = balerr.ProbeOK
	e.LastProbeAt = now
	if e.ConsecutiveSuccesses >= successThreshold {
		e.Available = true
		e.CooldownUntil = time.Time{}
	}
}

// MarkFailure records a failed probe or connect for the entry at pool index
// i: increments consecutive failures, resets consecutive successes, and —
// once the fail threshold is reached — marks the backend unavailable and
// sets its cooldown deadline to now + cooldown, doubled when protection
// is on.
func (p *Pool) MarkFailure(i int, now time.Time, kind balerr.ProbeOutcome, failThreshold uint32, cooldown time.Duration, protectionOn bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.entries) {
		return
	}
	e := p.entries[i]
	e.ConsecutiveFailures++
	e.ConsecutiveSuccesses = 0
	e.LastProbeOutcome = kind
	e.LastProbeAt = now
	if e.ConsecutiveFailures >= failThreshold {
		e.Available = false
		effective := cooldown
		if protectionOn {
			effective *= 2
		}
		e.CooldownUntil = now.Add(effective)
	}
}

// EntryByEndpoint returns the live entry for an endpoint, if still present
// in the pool. Used by the health checker to discard probe results for
// endpoints removed by a concurrent config reload (§4.4).
func (p *Pool) EntryByEndpoint(ep config.Endpoint) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, e := range p.entries {
		if e.Endpoint == ep {
			return i, true
		}
	}
	return 0, false
}
