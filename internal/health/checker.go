// Package health runs the background probe loop that keeps the backend
// pool's availability bits current. The loop shape — ticker, immediate
// first pass, per-backend probes fanned out under a WaitGroup, cancel via
// context — is grounded directly on the jellyfin-proxy reference health
// checker's Start/checkAll structure.
package health

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/oriys/bal/internal/balerr"
	"github.com/oriys/bal/internal/config"
	"github.com/oriys/bal/internal/pool"
	"github.com/oriys/bal/internal/protection"
)

// Dialer abstracts the network dial so tests can substitute a fake without
// opening real sockets.
type Dialer interface {
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Checker periodically probes every backend in a pool and feeds the result
// back into the pool's health counters, per §4.4.
type Checker struct {
	pool   *pool.Pool
	cfg    func() config.Snapshot
	prot   *protection.Controller
	dialer Dialer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewChecker builds a Checker that reads its tuning parameters from cfg on
// every tick, so a config reload takes effect on the next probe round
// without restarting the loop. prot receives every probe outcome, since
// §4.6's sliding window counts probe and connect outcomes alike.
func NewChecker(p *pool.Pool, cfg func() config.Snapshot, prot *protection.Controller) *Checker {
	return &Checker{pool: p, cfg: cfg, prot: prot, dialer: netDialer{}}
}

// Start launches the probe loop in a goroutine. It runs one pass
// immediately, then on every HealthCheckInterval tick, until ctx is
// canceled or Stop is called.
func (c *Checker) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	go c.loop(ctx)
}

// Stop cancels the probe loop and waits for it to exit.
func (c *Checker) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *Checker) loop(ctx context.Context) {
	defer close(c.done)

	c.probeAll(ctx)

	interval := c.cfg().Runtime.HealthCheckInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next := c.cfg().Runtime.HealthCheckInterval()
			if next != interval {
				interval = next
				ticker.Reset(interval)
			}
			c.probeAll(ctx)
		}
	}
}

// probeAll dials every backend currently in the pool concurrently and
// records each outcome against the pool entry, if it's still present.
func (c *Checker) probeAll(ctx context.Context) {
	snap := c.pool.Snapshot()
	rt := c.cfg().Runtime

	var wg sync.WaitGroup
	for _, e := range snap {
		wg.Add(1)
		go func(ep config.Endpoint) {
			defer wg.Done()
			c.probeOne(ctx, ep, rt)
		}(e.Endpoint)
	}
	wg.Wait()
}

func (c *Checker) probeOne(ctx context.Context, ep config.Endpoint, rt config.Runtime) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	conn, dialErr := c.dialer.DialTimeout("tcp", ep.String(), rt.HealthCheckTimeout())
	now := time.Now()

	idx, ok := c.pool.EntryByEndpoint(ep)
	if !ok {
		if conn != nil {
			conn.Close()
		}
		return
	}

	if dialErr == nil {
		conn.Close()
		c.pool.MarkSuccess(idx, now, uint32(rt.HealthCheckSuccessThreshold))
		c.prot.RecordOutcome(now, true, len(c.pool.Eligible(now)))
		return
	}

	kind := balerr.ClassifyDialErr(dialErr)
	protOn := c.prot.On()
	c.pool.MarkFailure(idx, now, kind, uint32(rt.HealthCheckFailThreshold), rt.BackendCooldown(), protOn)
	c.prot.RecordOutcome(now, false, len(c.pool.Eligible(now)))
}
