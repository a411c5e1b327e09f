package controlsock

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestServeAndCallRoundTrip(t *testing.T) {
	srv, err := Listen(func(ctx context.Context, req Request) Response {
		if req.Command != "status" {
			return Response{OK: false, Error: "unknown command"}
		}
		payload, _ := json.Marshal(map[string]any{"running": true})
		return Response{OK: true, Payload: payload}
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	resp, err := Call(Request{Command: "status"}, time.Second)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected OK response, got error %q", resp.Error)
	}

	var payload struct{ Running bool }
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !payload.Running {
		t.Errorf("expected running = true")
	}
}

func TestCallUnknownCommand(t *testing.T) {
	srv, err := Listen(func(ctx context.Context, req Request) Response {
		return Response{OK: false, Error: "unknown command"}
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	resp, err := Call(Request{Command: "bogus"}, time.Second)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.OK {
		t.Fatalf("expected error response for unknown command")
	}
}
