package channel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Config struct {
	GatewayURL        string
	StateDir          string
	ReconnectInterval time.Duration
	MaxRetries        int
}

// Registry owns every session, keyed by identity. Connection handles are
// private to their session; callers get only connect, send and teardown.
type Registry struct {
	cfg   Config
	creds *CredentialStore

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		creds:    NewCredentialStore(cfg.StateDir),
		sessions: make(map[string]*Session),
	}
}

// Connect returns the live session for id, starting one when none exists
// or the previous one has closed. Only one connect attempt per identity
// is ever in flight; the session serializes its own dialing.
func (r *Registry) Connect(ctx context.Context, id string) (*Session, error) {
	if r.cfg.GatewayURL == "" {
		return nil, fmt.Errorf("channel gateway url not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.State() != StateClosed {
		return s, nil
	}
	s := newSession(id, r.cfg.GatewayURL, r.creds, r.cfg.ReconnectInterval, r.cfg.MaxRetries)
	r.sessions[id] = s
	s.Start(ctx)
	return s, nil
}

// Get returns the session for id if one was started.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// HasCredentials reports whether id has linked before.
func (r *Registry) HasCredentials(id string) bool {
	return r.creds.HasCredentials(id)
}

// Status returns the lifecycle state label for id.
func (r *Registry) Status(id string) string {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return StateUninitialized.String()
	}
	return s.State().String()
}

// Logout tears down the session for id and wipes its credentials.
func (r *Registry) Logout(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		// Never connected this process; still wipe any stored blob.
		return r.creds.Delete(id)
	}
	return s.Logout(ctx)
}

// Shutdown closes every session, preserving credentials for the next run.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Shutdown(ctx)
	}
}
