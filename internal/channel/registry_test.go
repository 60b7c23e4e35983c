package channel

import (
	"context"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func testRegistry(t *testing.T, gw *gateway) *Registry {
	t.Helper()
	return NewRegistry(Config{
		GatewayURL:        gw.url(),
		StateDir:          t.TempDir(),
		ReconnectInterval: time.Millisecond,
		MaxRetries:        2,
	})
}

func TestRegistryRequiresGatewayURL(t *testing.T) {
	r := NewRegistry(Config{StateDir: t.TempDir()})
	if _, err := r.Connect(context.Background(), "main"); err == nil {
		t.Error("connect without gateway url must fail")
	}
}

func TestRegistryReusesLiveSession(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		drain(ctx, c)
	})
	r := testRegistry(t, gw)
	defer r.Shutdown(context.Background())

	s1, err := r.Connect(context.Background(), "main")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s2, err := r.Connect(context.Background(), "main")
	if err != nil {
		t.Fatalf("Connect again: %v", err)
	}
	if s1 != s2 {
		t.Error("second connect must reuse the live session")
	}
	if got, ok := r.Get("main"); !ok || got != s1 {
		t.Error("Get must return the started session")
	}
}

func TestRegistryStatus(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		drain(ctx, c)
	})
	r := testRegistry(t, gw)
	defer r.Shutdown(context.Background())

	if got := r.Status("main"); got != "uninitialized" {
		t.Errorf("status before connect = %q", got)
	}
	s, err := r.Connect(context.Background(), "main")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, s, StateOpen)
	if got := r.Status("main"); got != "open" {
		t.Errorf("status = %q", got)
	}
}

func TestRegistryLogoutNeverConnected(t *testing.T) {
	r := NewRegistry(Config{GatewayURL: "ws://127.0.0.1:0", StateDir: t.TempDir()})
	if err := r.creds.Save("main", "stale"); err != nil {
		t.Fatal(err)
	}
	if !r.HasCredentials("main") {
		t.Fatal("seeded blob not visible")
	}
	if err := r.Logout(context.Background(), "main"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if r.HasCredentials("main") {
		t.Error("logout must wipe the stored blob even without a session")
	}
}

func TestRegistryShutdownPreservesCredentials(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		_ = wsjson.Write(ctx, c, event{Type: eventCreds, Payload: "blob"})
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		drain(ctx, c)
	})
	r := testRegistry(t, gw)

	s, err := r.Connect(context.Background(), "main")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, s, StateOpen)

	r.Shutdown(context.Background())
	if !r.HasCredentials("main") {
		t.Error("shutdown must keep credentials for the next run")
	}
	if _, ok := r.Get("main"); ok {
		t.Error("shutdown must clear the session map")
	}
}
