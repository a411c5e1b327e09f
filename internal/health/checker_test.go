package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/oriys/bal/internal/config"
	"github.com/oriys/bal/internal/pool"
	"github.com/oriys/bal/internal/protection"
)

func testController() *protection.Controller {
	return protection.New(10*time.Second, 5, 3)
}

type fakeDialer struct {
	mu  sync.Mutex
	up  map[string]bool
}

func (f *fakeDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.up[address] {
		return &fakeConn{}, nil
	}
	return nil, errors.New("dial: connection refused")
}

func (f *fakeDialer) setUp(address string, up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up[address] = up
}

type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }

func testSnapshot(backends ...config.Endpoint) func() config.Snapshot {
	s := config.DefaultSnapshot()
	s.Backends = backends
	s.Runtime.HealthCheckIntervalMS = 10
	s.Runtime.HealthCheckTimeoutMS = 10
	s.Runtime.HealthCheckFailThreshold = 2
	s.Runtime.HealthCheckSuccessThreshold = 2
	return func() config.Snapshot { return s }
}

func TestCheckerMarksFailureAfterThreshold(t *testing.T) {
	ep := config.Endpoint{Host: "127.0.0.1", Port: 9001}
	p := pool.New([]config.Endpoint{ep})
	fd := &fakeDialer{up: map[string]bool{}}

	c := NewChecker(p, testSnapshot(ep), testController())
	c.dialer = fd

	ctx := context.Background()
	c.probeAll(ctx)
	c.probeAll(ctx)

	snap := p.Snapshot()
	if snap[0].Available {
		t.Fatalf("backend should be unavailable after 2 consecutive failures")
	}
	if snap[0].ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", snap[0].ConsecutiveFailures)
	}
}

func TestCheckerRecoversAfterSuccessThreshold(t *testing.T) {
	ep := config.Endpoint{Host: "127.0.0.1", Port: 9002}
	p := pool.New([]config.Endpoint{ep})
	fd := &fakeDialer{up: map[string]bool{ep.String(): false}}

	c := NewChecker(p, testSnapshot(ep), testController())
	c.dialer = fd

	ctx := context.Background()
	c.probeAll(ctx)
	c.probeAll(ctx)
	if p.Snapshot()[0].Available {
		t.Fatalf("expected unavailable before recovery")
	}

	fd.setUp(ep.String(), true)
	c.probeAll(ctx)
	c.probeAll(ctx)

	snap := p.Snapshot()
	if !snap[0].Available {
		t.Fatalf("backend should be available after 2 consecutive successes")
	}
}

func TestCheckerIgnoresRemovedBackend(t *testing.T) {
	ep := config.Endpoint{Host: "127.0.0.1", Port: 9003}
	p := pool.New([]config.Endpoint{ep})
	fd := &fakeDialer{up: map[string]bool{}}
	c := NewChecker(p, testSnapshot(ep), testController())
	c.dialer = fd

	p.Rebuild(nil)

	// Should not panic when the backend has already been removed from the
	// pool by a concurrent config reload.
	c.probeAll(context.Background())
}

func TestCheckerStartStop(t *testing.T) {
	ep := config.Endpoint{Host: "127.0.0.1", Port: 9004}
	p := pool.New([]config.Endpoint{ep})
	fd := &fakeDialer{up: map[string]bool{ep.String(): true}}
	c := NewChecker(p, testSnapshot(ep), testController())
	c.dialer = fd

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	snap := p.Snapshot()
	if snap[0].ConsecutiveSuccesses == 0 {
		t.Errorf("expected at least one successful probe to have run")
	}
}
