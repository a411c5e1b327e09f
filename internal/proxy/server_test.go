package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/oriys/bal/internal/config"
	"github.com/oriys/bal/internal/lb"
	"github.com/oriys/bal/internal/pool"
	"github.com/oriys/bal/internal/protection"
)

// echoListener starts a tiny TCP echo server on loopback and returns its
// address and a stop function.
func echoListener(t *testing.T) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func hostPort(t *testing.T, addr string) config.Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return config.Endpoint{Host: host, Port: port}
}

func testSnapshot(backends ...config.Endpoint) config.Snapshot {
	s := config.DefaultSnapshot()
	s.Backends = backends
	s.Runtime.BackendConnectTimeoutMS = 200
	s.Runtime.FailoverBackoffInitialMS = 1
	s.Runtime.FailoverBackoffMaxMS = 5
	s.Runtime.ConnectionIdleTimeoutMS = 0
	return s
}

func TestServerRelaysToHealthyBackend(t *testing.T) {
	addr, stop := echoListener(t)
	defer stop()
	ep := hostPort(t, addr)

	p := pool.New([]config.Endpoint{ep})
	snap := testSnapshot(ep)
	prot := protection.New(10*time.Second, 100, 1)
	srv := New(p, lb.NewRoundRobin(), func() config.Snapshot { return snap }, prot, nil)

	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	msg := "hello\n"
	if _, err := conn.Write([]byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != msg {
		t.Errorf("echoed %q, want %q", line, msg)
	}
}

func TestServerFailsOverToSecondBackend(t *testing.T) {
	addr, stop := echoListener(t)
	defer stop()
	up := hostPort(t, addr)
	down := config.Endpoint{Host: "127.0.0.1", Port: 1}

	p := pool.New([]config.Endpoint{down, up})
	snap := testSnapshot(down, up)
	prot := protection.New(10*time.Second, 100, 1)
	srv := New(p, lb.NewRoundRobin(), func() config.Snapshot { return snap }, prot, nil)
	srv.dialer = failingFirstDialer{downAddr: down.String()}

	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	msg := "failover\n"
	conn.Write([]byte(msg))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read after failover: %v", err)
	}
	if line != msg {
		t.Errorf("echoed %q, want %q", line, msg)
	}

	snap2 := p.Snapshot()
	for _, e := range snap2 {
		if e.Endpoint == down && e.ConsecutiveFailures != 1 {
			t.Errorf("down backend ConsecutiveFailures = %d, want 1", e.ConsecutiveFailures)
		}
	}
}

// failingFirstDialer fails dials to one specific address and otherwise
// dials for real, used to exercise connect-time failover deterministically.
type failingFirstDialer struct {
	downAddr string
}

func (f failingFirstDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	if address == f.downAddr {
		return nil, errors.New("dial tcp: connection refused")
	}
	return net.DialTimeout(network, address, timeout)
}
