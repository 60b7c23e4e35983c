// Package channel owns the long-lived connection to the outbound
// messaging gateway: linking, reconnect with bounded backoff, teardown,
// and the send/probe operations the dispatcher consumes. Sessions are
// reached only through the Registry; there is no ambient session state.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	// ErrSessionNotReady is returned by Send when the session is not Open.
	ErrSessionNotReady = errors.New("session not ready")
	// ErrAddressNotFound is returned when the gateway reports the
	// destination does not exist on the channel. Terminal per send.
	ErrAddressNotFound = errors.New("address not found on channel")
)

type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateAwaitingLink
	StateOpen
	StateReconnecting
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateAwaitingLink:
		return "awaiting_link"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const sendTimeout = 30 * time.Second

// Session is the connection state for one gateway identity. The run loop
// is the only goroutine that dials; explicit teardown flips the closing
// flag and the loop exits instead of reconnecting.
type Session struct {
	id                string
	gatewayURL        string
	creds             *CredentialStore
	reconnectInterval time.Duration
	maxRetries        int
	sleep             func(time.Duration)

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	pending map[string]chan event
	retries int
	closing bool

	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(id, gatewayURL string, creds *CredentialStore, reconnectInterval time.Duration, maxRetries int) *Session {
	return &Session{
		id:                id,
		gatewayURL:        gatewayURL,
		creds:             creds,
		reconnectInterval: reconnectInterval,
		maxRetries:        maxRetries,
		sleep:             time.Sleep,
		state:             StateUninitialized,
		pending:           make(map[string]chan event),
		done:              make(chan struct{}),
	}
}

// Start launches the connect/reconnect loop. It returns immediately.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		code, err := s.connectOnce(ctx)

		s.mu.Lock()
		closing := s.closing
		s.mu.Unlock()
		if closing || ctx.Err() != nil {
			s.setState(StateClosed)
			return
		}

		if code == CloseLoggedOut {
			log.Printf("channel: session %s logged out, wiping credentials", s.id)
			s.wipe()
			s.setState(StateClosed)
			return
		}

		s.mu.Lock()
		s.retries++
		retries := s.retries
		s.mu.Unlock()
		if retries > s.maxRetries {
			log.Printf("channel: session %s exhausted %d reconnect attempts, wiping credentials", s.id, s.maxRetries)
			s.wipe()
			s.setState(StateClosed)
			return
		}

		if err != nil {
			log.Printf("channel: session %s disconnected (code %d): %v", s.id, code, err)
		}
		s.setState(StateReconnecting)
		if code != CloseRestartRequired {
			s.sleep(s.reconnectInterval)
		}
	}
}

// connectOnce dials the gateway, announces credentials and services
// events until the connection drops. It returns the disconnect cause
// code when one was reported.
func (s *Session) connectOnce(ctx context.Context) (int, error) {
	s.setState(StateConnecting)

	blob, err := s.creds.Load(s.id)
	if err != nil {
		return 0, err
	}

	conn, _, err := websocket.Dial(ctx, s.gatewayURL, nil)
	if err != nil {
		return 0, fmt.Errorf("dial gateway: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer s.dropConn(conn)

	if err := s.write(ctx, frame{Type: frameHello, Credentials: blob}); err != nil {
		return 0, fmt.Errorf("hello: %w", err)
	}
	if blob == "" {
		s.setState(StateAwaitingLink)
	}

	for {
		var ev event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return int(websocket.CloseStatus(err)), err
		}

		switch ev.Type {
		case eventQR:
			s.setState(StateAwaitingLink)
			s.renderQR(ev.Payload)
		case eventOpen:
			s.mu.Lock()
			s.retries = 0
			s.mu.Unlock()
			s.setState(StateOpen)
			// Passive liveness signal, emitted once; no polling.
			_ = s.write(ctx, frame{Type: framePresence, Presence: "unavailable"})
		case eventCreds:
			if err := s.creds.Save(s.id, ev.Payload); err != nil {
				log.Printf("channel: session %s save credentials: %v", s.id, err)
			}
		case eventAck, eventExists:
			s.deliver(ev)
		case eventClose:
			conn.Close(websocket.StatusNormalClosure, "gateway close")
			return ev.Code, nil
		}
	}
}

// Send delivers text to a resolved channel address through the open
// session. Fails with ErrSessionNotReady unless the session is Open and
// with ErrAddressNotFound on a negative delivery ack.
func (s *Session) Send(ctx context.Context, address, text string) error {
	ev, err := s.request(ctx, frame{Type: frameSend, ID: uuid.NewString(), To: address, Text: text})
	if err != nil {
		return err
	}
	if ev.Status == ackNotFound {
		return fmt.Errorf("%w: %s", ErrAddressNotFound, address)
	}
	return nil
}

// Exists probes whether an address exists on the channel, returning the
// canonical address the gateway knows it by.
func (s *Session) Exists(ctx context.Context, address string) (bool, string, error) {
	ev, err := s.request(ctx, frame{Type: frameExists, ID: uuid.NewString(), Address: address})
	if err != nil {
		return false, "", err
	}
	canonical := ev.Address
	if canonical == "" {
		canonical = address
	}
	return ev.Found, canonical, nil
}

func (s *Session) request(ctx context.Context, fr frame) (event, error) {
	s.mu.Lock()
	if s.state != StateOpen || s.conn == nil {
		s.mu.Unlock()
		return event{}, ErrSessionNotReady
	}
	ch := make(chan event, 1)
	s.pending[fr.ID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, fr.ID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := s.write(ctx, fr); err != nil {
		return event{}, fmt.Errorf("%w: %v", ErrSessionNotReady, err)
	}

	select {
	case ev, ok := <-ch:
		if !ok {
			return event{}, ErrSessionNotReady
		}
		return ev, nil
	case <-ctx.Done():
		return event{}, ctx.Err()
	}
}

// Logout tears the session down and wipes credential material, forcing a
// fresh link on the next connect. Valid from any state.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conn := s.conn
	s.mu.Unlock()
	s.setState(StateClosing)

	if conn != nil {
		_ = s.write(ctx, frame{Type: frameLogout})
		conn.Close(websocket.StatusNormalClosure, "logout")
	}
	s.stop()
	s.wipe()
	s.setState(StateClosed)
	return nil
}

// Shutdown closes the connection without touching stored credentials.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closing = true
	conn := s.conn
	s.mu.Unlock()
	s.setState(StateClosing)

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	s.stop()
	s.setState(StateClosed)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the session can accept sends.
func (s *Session) Ready() bool { return s.State() == StateOpen }

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = state
	s.mu.Unlock()
	log.Printf("channel: session %s %s -> %s", s.id, prev, state)
}

func (s *Session) write(ctx context.Context, fr frame) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrSessionNotReady
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsjson.Write(ctx, conn, fr)
}

func (s *Session) deliver(ev event) {
	s.mu.Lock()
	ch, ok := s.pending[ev.ID]
	if ok {
		delete(s.pending, ev.ID)
	}
	s.mu.Unlock()
	if ok {
		ch <- ev
	}
}

// dropConn clears the connection and fails any in-flight requests.
func (s *Session) dropConn(conn *websocket.Conn) {
	conn.Close(websocket.StatusGoingAway, "connection lost")
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

func (s *Session) stop() {
	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Session) wipe() {
	if err := s.creds.Delete(s.id); err != nil {
		log.Printf("channel: session %s wipe credentials: %v", s.id, err)
	}
}

func (s *Session) renderQR(payload string) {
	if payload == "" {
		return
	}
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		log.Printf("channel: session %s render pairing code: %v", s.id, err)
		return
	}
	log.Printf("channel: session %s awaiting link, scan to pair:\n%s", s.id, qr.ToSmallString(false))
}
