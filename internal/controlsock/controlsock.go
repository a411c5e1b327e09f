// Package controlsock implements the NDJSON control protocol over a Unix
// domain socket at ~/.bal/bal.sock — the transport between a `bal` CLI
// invocation and the long-running daemon process it talks to. One JSON
// object per line in each direction, the same encoding discipline as the
// operational log stream (§6), so both sides of the wire can be tailed and
// read by eye during development.
package controlsock

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Request is one control-socket command.
type Request struct {
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
	GraceMS int    `json:"grace_ms,omitempty"`
}

// Response carries either a result payload or an error message, never both.
type Response struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Path returns ~/.bal/bal.sock, creating ~/.bal if necessary.
func Path() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".bal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, "bal.sock"), nil
}

// Handler answers one Request with a Response. Supervisor-backed servers
// implement this by dispatching on Command.
type Handler func(ctx context.Context, req Request) Response

// Server listens on the control socket and dispatches each connection's
// requests to handler, one NDJSON line in, one NDJSON line out.
type Server struct {
	ln      net.Listener
	handler Handler
}

// Listen binds the control socket, removing any stale socket file left
// behind by a previous, uncleanly terminated daemon.
func Listen(handler Handler) (*Server, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket %s: %w", path, err)
	}
	return &Server{ln: ln, handler: handler}, nil
}

// Serve accepts connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(bufio.NewReader(conn))
	enc := json.NewEncoder(conn)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handler(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

// Close shuts down the listener, removing the socket file.
func (s *Server) Close() error {
	path, _ := Path()
	err := s.ln.Close()
	if path != "" {
		os.Remove(path)
	}
	return err
}

// Call dials the control socket, sends a single request, and returns its
// response. Used by CLI subcommands that talk to an already-running
// daemon.
func Call(req Request, timeout time.Duration) (Response, error) {
	path, err := Path()
	if err != nil {
		return Response{}, err
	}

	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return Response{}, fmt.Errorf("connect to daemon control socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
