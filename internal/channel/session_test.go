package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// gateway is a scripted in-process stand-in for the messaging gateway.
// Each accepted connection reads the hello frame and hands control to the
// per-dial script.
type gateway struct {
	srv   *httptest.Server
	dials atomic.Int32
}

func newGateway(t *testing.T, script func(dial int, ctx context.Context, c *websocket.Conn, hello frame)) *gateway {
	t.Helper()
	gw := &gateway{}
	gw.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		var hello frame
		if err := wsjson.Read(ctx, c, &hello); err != nil {
			return
		}
		script(int(gw.dials.Add(1)), ctx, c, hello)
	}))
	t.Cleanup(gw.srv.Close)
	return gw
}

func (gw *gateway) url() string {
	return "ws" + strings.TrimPrefix(gw.srv.URL, "http")
}

// drain reads and discards client frames until the connection drops,
// keeping the scripted side alive for the duration of a test.
func drain(ctx context.Context, c *websocket.Conn) {
	for {
		var fr frame
		if err := wsjson.Read(ctx, c, &fr); err != nil {
			return
		}
	}
}

func testSession(t *testing.T, gw *gateway, maxRetries int) (*Session, *CredentialStore) {
	t.Helper()
	cs := NewCredentialStore(t.TempDir())
	s := newSession("main", gw.url(), cs, time.Millisecond, maxRetries)
	s.sleep = func(time.Duration) {}
	return s, cs
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", s.State(), want)
}

func TestSessionLinksAndOpens(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		if hello.Credentials != "" {
			t.Errorf("unlinked hello carried credentials %q", hello.Credentials)
		}
		_ = wsjson.Write(ctx, c, event{Type: eventQR, Payload: "pairing-payload"})
		_ = wsjson.Write(ctx, c, event{Type: eventCreds, Payload: `{"keys":"fresh"}`})
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		drain(ctx, c)
	})

	s, cs := testSession(t, gw, 3)
	s.Start(context.Background())
	waitState(t, s, StateOpen)

	if blob, _ := cs.Load("main"); blob != `{"keys":"fresh"}` {
		t.Errorf("stored blob = %q", blob)
	}
	if !s.Ready() {
		t.Error("Ready() false while open")
	}

	s.Shutdown(context.Background())
	waitState(t, s, StateClosed)
	if !cs.HasCredentials("main") {
		t.Error("shutdown must preserve credentials")
	}
}

func TestSessionAnnouncesStoredCredentials(t *testing.T) {
	got := make(chan string, 1)
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		got <- hello.Credentials
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		drain(ctx, c)
	})

	s, cs := testSession(t, gw, 3)
	if err := cs.Save("main", "stored-blob"); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	waitState(t, s, StateOpen)
	defer s.Shutdown(context.Background())

	if blob := <-got; blob != "stored-blob" {
		t.Errorf("hello credentials = %q", blob)
	}
}

func TestSessionSendAndExists(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		for {
			var fr frame
			if err := wsjson.Read(ctx, c, &fr); err != nil {
				return
			}
			switch fr.Type {
			case frameSend:
				status := "delivered"
				if fr.To == "559900000000@s.whatsapp.net" {
					status = ackNotFound
				}
				_ = wsjson.Write(ctx, c, event{Type: eventAck, ID: fr.ID, Status: status})
			case frameExists:
				_ = wsjson.Write(ctx, c, event{
					Type: eventExists, ID: fr.ID,
					Found: true, Address: "5511987654321@s.whatsapp.net",
				})
			}
		}
	})

	s, _ := testSession(t, gw, 3)
	s.Start(context.Background())
	waitState(t, s, StateOpen)
	defer s.Shutdown(context.Background())

	ctx := context.Background()
	if err := s.Send(ctx, "5511987654321@s.whatsapp.net", "olá"); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := s.Send(ctx, "559900000000@s.whatsapp.net", "olá"); !errors.Is(err, ErrAddressNotFound) {
		t.Errorf("Send to unknown = %v, want ErrAddressNotFound", err)
	}

	found, canonical, err := s.Exists(ctx, "551187654321@s.whatsapp.net")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !found || canonical != "5511987654321@s.whatsapp.net" {
		t.Errorf("Exists = %v %q", found, canonical)
	}
}

func TestSendBeforeOpen(t *testing.T) {
	cs := NewCredentialStore(t.TempDir())
	s := newSession("main", "ws://127.0.0.1:0", cs, time.Millisecond, 1)
	if err := s.Send(context.Background(), "x@s.whatsapp.net", "olá"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Send = %v, want ErrSessionNotReady", err)
	}
}

func TestSessionLoggedOutWipesCredentials(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		_ = wsjson.Write(ctx, c, event{Type: eventClose, Code: CloseLoggedOut})
	})

	s, cs := testSession(t, gw, 3)
	if err := cs.Save("main", "stale"); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	waitState(t, s, StateClosed)

	if cs.HasCredentials("main") {
		t.Error("logged-out session must wipe credentials")
	}
	if gw.dials.Load() != 1 {
		t.Errorf("dials = %d, logged-out must not reconnect", gw.dials.Load())
	}
}

func TestSessionReconnectsWithoutDelayOnRestart(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		if dial == 1 {
			_ = wsjson.Write(ctx, c, event{Type: eventClose, Code: CloseRestartRequired})
			return
		}
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		drain(ctx, c)
	})

	s, _ := testSession(t, gw, 3)
	var slept atomic.Int32
	s.sleep = func(time.Duration) { slept.Add(1) }
	s.Start(context.Background())
	waitState(t, s, StateOpen)
	defer s.Shutdown(context.Background())

	if gw.dials.Load() != 2 {
		t.Errorf("dials = %d, want 2", gw.dials.Load())
	}
	if slept.Load() != 0 {
		t.Errorf("slept %d times, restart must reconnect immediately", slept.Load())
	}
}

func TestSessionExhaustsRetriesAndWipes(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		_ = wsjson.Write(ctx, c, event{Type: eventClose, Code: 500})
	})

	s, cs := testSession(t, gw, 2)
	if err := cs.Save("main", "stale"); err != nil {
		t.Fatal(err)
	}
	var slept atomic.Int32
	s.sleep = func(time.Duration) { slept.Add(1) }
	s.Start(context.Background())
	waitState(t, s, StateClosed)

	if got := gw.dials.Load(); got != 3 {
		t.Errorf("dials = %d, want initial attempt plus 2 retries", got)
	}
	if slept.Load() != 2 {
		t.Errorf("slept %d times, want 2", slept.Load())
	}
	if cs.HasCredentials("main") {
		t.Error("exhausted session must wipe credentials")
	}
}

func TestSessionOpenResetsRetryBudget(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		switch dial {
		case 1, 2:
			_ = wsjson.Write(ctx, c, event{Type: eventClose, Code: 500})
		case 3:
			_ = wsjson.Write(ctx, c, event{Type: eventOpen})
			_ = wsjson.Write(ctx, c, event{Type: eventClose, Code: 500})
		default:
			_ = wsjson.Write(ctx, c, event{Type: eventOpen})
			drain(ctx, c)
		}
	})

	// Two failures, a successful open that resets the budget, one more
	// failure, then a stable connection. maxRetries 2 would have been
	// exhausted without the reset.
	s, _ := testSession(t, gw, 2)
	s.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if gw.dials.Load() >= 4 && s.State() == StateOpen {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	defer s.Shutdown(context.Background())

	if gw.dials.Load() < 4 || s.State() != StateOpen {
		t.Fatalf("dials = %d state = %v, want stable open on dial 4", gw.dials.Load(), s.State())
	}
}

func TestSessionLogoutWipes(t *testing.T) {
	gw := newGateway(t, func(dial int, ctx context.Context, c *websocket.Conn, hello frame) {
		_ = wsjson.Write(ctx, c, event{Type: eventOpen})
		drain(ctx, c)
	})

	s, cs := testSession(t, gw, 3)
	if err := cs.Save("main", "blob"); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	waitState(t, s, StateOpen)

	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	waitState(t, s, StateClosed)
	if cs.HasCredentials("main") {
		t.Error("logout must wipe credentials")
	}
	if err := s.Send(context.Background(), "x@s.whatsapp.net", "olá"); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Send after logout = %v, want ErrSessionNotReady", err)
	}
}
