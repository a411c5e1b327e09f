// Package proxy implements the accept loop and per-connection failover and
// relay of §4.5. The accept-loop-in-a-goroutine shape is grounded on the
// teacher's grpc server (net.Listen + go server.Serve(lis)); the dial-retry
// backoff sequencing follows the docker manager's waitForAgent polling loop,
// generalized from a single fixed retry to the exponential
// failover_backoff_initial_ms..failover_backoff_max_ms schedule §4.5
// requires.
package proxy

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/oriys/bal/internal/balerr"
	"github.com/oriys/bal/internal/config"
	"github.com/oriys/bal/internal/lb"
	"github.com/oriys/bal/internal/logging"
	"github.com/oriys/bal/internal/pool"
	"github.com/oriys/bal/internal/protection"
)

// Dialer abstracts dialing a backend so tests can substitute a fake.
type Dialer interface {
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// relayBufSize is the per-direction shuttle buffer size for relay's manual
// Read/Write loop.
const relayBufSize = 32 * 1024

// Server runs the accept loop and dispatches per-connection tasks.
type Server struct {
	pool   *pool.Pool
	sel    lb.Selector
	cfg    func() config.Snapshot
	prot   *protection.Controller
	dialer Dialer
	logger *slog.Logger

	active atomic.Int64

	listener net.Listener
}

// New builds a Server. cfg is called fresh for every accepted connection, so
// a config reload takes effect for the next connection without restarting
// the listener.
func New(p *pool.Pool, sel lb.Selector, cfg func() config.Snapshot, prot *protection.Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pool: p, sel: sel, cfg: cfg, prot: prot, dialer: netDialer{}, logger: logger}
}

// ActiveConnections returns the number of connections currently being
// relayed.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// Listen binds the listener per the current snapshot's bind address and
// port. It must be called before Serve. tcp_backlog is not applied: the
// listen backlog is whatever the Go runtime passes to listen(2).
func (s *Server) Listen() error {
	snap := s.cfg()
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", snap.Listen.Addr())
	if err != nil {
		return balerr.ErrBindFailed
	}
	s.listener = ln
	return nil
}

// Serve runs the accept loop until ctx is canceled or the listener is
// closed. It never returns a non-nil error for a clean shutdown triggered by
// ctx cancellation.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		snap := s.cfg()
		if snap.Runtime.MaxConcurrentConnections > 0 && s.active.Load() >= int64(snap.Runtime.MaxConcurrentConnections) {
			// overload_policy: reject (the only supported policy, §3).
			conn.Close()
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Add(-1)
			s.handleConn(ctx, conn, snap)
		}()
	}
}

// Close closes the listener, causing Serve's Accept call to unblock with an
// error; callers should prefer canceling the context passed to Serve.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// handleConn runs the per-connection algorithm of §4.5: pick candidates in
// load-balancer order, try each with a connect deadline and exponential
// backoff between attempts, then relay once connected.
func (s *Server) handleConn(ctx context.Context, inbound net.Conn, snap config.Snapshot) {
	defer inbound.Close()

	connID := uuid.NewString()
	log := s.logger.With("conn_id", connID)
	remote := inbound.RemoteAddr().String()
	start := time.Now()

	now := time.Now()
	eligible := s.pool.Eligible(now)
	order := s.sel.Order(eligible)

	if len(order) == 0 {
		s.prot.Observe(now, 0)
		log.Warn("no eligible backend", "remote", remote)
		logging.Default().Log(&logging.ConnectionLog{
			RemoteAddr: remote,
			DurationMs: time.Since(start).Milliseconds(),
			Success:    false,
			Error:      balerr.ErrNoBackendAvailable.Error(),
		})
		return
	}

	backend, idx, failovers, ok := s.dialCandidates(ctx, order, snap)
	if !ok {
		log.Warn("all candidates failed", "remote", remote, "candidates", len(order))
		logging.Default().Log(&logging.ConnectionLog{
			RemoteAddr: remote,
			DurationMs: time.Since(start).Milliseconds(),
			Success:    false,
			Failovers:  failovers,
			Error:      balerr.ErrConnectFailed.Error(),
		})
		return
	}
	defer backend.Close()

	s.pool.MarkSuccess(idx, time.Now(), uint32(snap.Runtime.HealthCheckSuccessThreshold))
	s.prot.RecordOutcome(time.Now(), true, len(s.pool.Eligible(time.Now())))

	backendAddr := s.pool.EndpointAt(idx).String()
	bytesIn, bytesOut := relay(inbound, backend, snap.Runtime.ConnectionIdleTimeout())

	logging.Default().Log(&logging.ConnectionLog{
		RemoteAddr: remote,
		Backend:    backendAddr,
		DurationMs: time.Since(start).Milliseconds(),
		Success:    true,
		Failovers:  failovers,
		BytesIn:    bytesIn,
		BytesOut:   bytesOut,
	})
}

// dialCandidates tries each candidate index in order, applying the
// exponential failover backoff between attempts, amplified while
// protection is on. The backoff sequence itself comes from
// backoff.ExponentialBackOff (Multiplier 2, no jitter, so the sequence is
// deterministic and bounded exactly by [initial, max] as §4.5 requires);
// the protection-mode doubling is layered on top of whatever the
// generator returns. Returns the connected backend, the pool index it came
// from, and the number of failed attempts that preceded it.
func (s *Server) dialCandidates(ctx context.Context, order []int, snap config.Snapshot) (net.Conn, int, int, bool) {
	maxBackoff := snap.Runtime.FailoverBackoffMax()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = snap.Runtime.FailoverBackoffInitial()
	b.MaxInterval = maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	for attempt, idx := range order {
		select {
		case <-ctx.Done():
			return nil, 0, attempt, false
		default:
		}

		ep := s.pool.EndpointAt(idx)
		conn, err := s.dialer.DialTimeout("tcp", ep.String(), snap.Runtime.BackendConnectTimeout())
		now := time.Now()

		if err == nil {
			return conn, idx, attempt, true
		}

		kind := balerr.ClassifyDialErr(err)
		protOn := s.prot.On()
		s.pool.MarkFailure(idx, now, kind, uint32(snap.Runtime.HealthCheckFailThreshold), snap.Runtime.BackendCooldown(), protOn)
		s.prot.RecordOutcome(now, false, len(s.pool.Eligible(now)))

		if attempt == len(order)-1 {
			return nil, 0, attempt + 1, false
		}

		wait := b.NextBackOff()
		if protOn {
			wait *= 2
			if wait > maxBackoff*2 {
				wait = maxBackoff * 2
			}
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, attempt + 1, false
			case <-time.After(wait):
			}
		}
	}
	return nil, 0, len(order), false
}

// relay shuttles bytes in both directions until both sides have seen EOF or
// an error, half-closing the write side of the peer as each direction
// drains, then fully closing both once both directions are done. Idle
// timeout is tracked against one shared last-activity instant rather than
// per-direction: idle means no bytes in either direction, so a quiet
// request direction must not cut off a connection still streaming a reply,
// and vice versa. Each direction polls its own read with a short deadline
// and only treats a timeout as genuine idleness once the shared instant is
// stale; otherwise it loops and keeps waiting. Returns the bytes read from
// a (in) and from b (out), for the connection audit log.
func relay(a, b net.Conn, idleTimeout time.Duration) (bytesIn, bytesOut int64) {
	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())

	pollInterval := idleTimeout
	if pollInterval <= 0 || pollInterval > time.Second {
		pollInterval = time.Second
	}

	done := make(chan struct{}, 2)
	var in, out atomic.Int64

	pipe := func(dst, src net.Conn, counter *atomic.Int64) {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, relayBufSize)
		for {
			if idleTimeout > 0 {
				src.SetReadDeadline(time.Now().Add(pollInterval))
			}
			n, err := src.Read(buf)
			if n > 0 {
				counter.Add(int64(n))
				lastActivity.Store(time.Now().UnixNano())
				if _, werr := dst.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if idleTimeout > 0 {
					if ne, ok := err.(net.Error); ok && ne.Timeout() {
						if time.Since(time.Unix(0, lastActivity.Load())) < idleTimeout {
							continue
						}
					}
				}
				if cw, ok := dst.(interface{ CloseWrite() error }); ok {
					cw.CloseWrite()
				}
				return
			}
		}
	}

	go pipe(b, a, &in)
	go pipe(a, b, &out)

	<-done
	<-done
	a.Close()
	b.Close()

	return in.Load(), out.Load()
}

var _ io.Closer = (*Server)(nil)
