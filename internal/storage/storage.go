// Package storage defines the durable state shared across pipeline runs:
// the processed-task ledger, the sync watermark, and the client registry
// rows. A run reads this state once at start and writes once at end.
package storage

import (
	"context"
	"sync"

	"github.com/PedroDircksen/Lighthouse/internal/core"
)

type Store interface {
	// ProcessedIDs loads the full dedup ledger.
	ProcessedIDs(ctx context.Context) (map[string]struct{}, error)
	// MarkProcessed appends task ids to the ledger. Ids already present
	// are ignored, so the call is idempotent.
	MarkProcessed(ctx context.Context, ids []string) error
	// Watermark returns the latest observed update time in unix millis,
	// zero when no run has persisted one yet.
	Watermark(ctx context.Context) (int64, error)
	// SetWatermark persists mark. The stored value never decreases.
	SetWatermark(ctx context.Context, mark int64) error
	ClientByPhone(ctx context.Context, phone string) (core.Client, bool, error)
	InsertClient(ctx context.Context, c core.Client) error
}

// InMemory is a minimal in-memory store for tests.
type InMemory struct {
	mu        sync.Mutex
	processed map[string]struct{}
	watermark int64
	clients   map[string]core.Client
}

func NewInMemory() *InMemory {
	return &InMemory{
		processed: make(map[string]struct{}),
		clients:   make(map[string]core.Client),
	}
}

func (m *InMemory) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.processed))
	for id := range m.processed {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *InMemory) MarkProcessed(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.processed[id] = struct{}{}
	}
	return nil
}

func (m *InMemory) Watermark(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark, nil
}

func (m *InMemory) SetWatermark(ctx context.Context, mark int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mark > m.watermark {
		m.watermark = mark
	}
	return nil
}

func (m *InMemory) ClientByPhone(ctx context.Context, phone string) (core.Client, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[phone]
	return c, ok, nil
}

func (m *InMemory) InsertClient(ctx context.Context, c core.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.Phone]; ok {
		return nil
	}
	m.clients[c.Phone] = c
	return nil
}
