package httpapi

import (
	"context"

	"github.com/PedroDircksen/Lighthouse/internal/dispatch"
)

// Texter is the dispatcher surface the manual-send endpoints call into.
type Texter interface {
	SendText(ctx context.Context, phone, text string) error
	Bulk(ctx context.Context, phones []string, text string) []dispatch.Result
}

// SheetSource provides spreadsheet rows for the sheet-send endpoint.
type SheetSource interface {
	FetchAll(ctx context.Context, rng string) ([]map[string]string, error)
}

// SessionStatus exposes the lifecycle state of the channel session.
type SessionStatus interface {
	Status(id string) string
}

type Service struct {
	dispatcher Texter
	sheets     SheetSource
	sessions   SessionStatus
	sessionID  string
}

func NewService(dispatcher Texter, sessions SessionStatus, sessionID string) *Service {
	return &Service{dispatcher: dispatcher, sessions: sessions, sessionID: sessionID}
}

// WithSheets enables the sheet-send endpoint.
func (s *Service) WithSheets(src SheetSource) *Service {
	s.sheets = src
	return s
}
