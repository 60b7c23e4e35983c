package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PedroDircksen/Lighthouse/internal/core"
	"github.com/PedroDircksen/Lighthouse/internal/storage"
)

//go:embed schema.sql
var schema string

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := applySchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := applySchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id FROM processed_tasks`)
	if err != nil {
		return nil, fmt.Errorf("query processed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *Store) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return retryOnLocked(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO processed_tasks (task_id, processed_at) VALUES (?, ?)`,
				id, now,
			); err != nil {
				return fmt.Errorf("insert processed %s: %w", id, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

func (s *Store) Watermark(ctx context.Context) (int64, error) {
	var mark int64
	err := s.db.QueryRowContext(ctx, `SELECT max_updated FROM watermark WHERE id = 1`).Scan(&mark)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query watermark: %w", err)
	}
	return mark, nil
}

func (s *Store) SetWatermark(ctx context.Context, mark int64) error {
	return retryOnLocked(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO watermark (id, max_updated) VALUES (1, ?)
			 ON CONFLICT(id) DO UPDATE SET max_updated = MAX(max_updated, excluded.max_updated)`,
			mark,
		)
		if err != nil {
			return fmt.Errorf("set watermark: %w", err)
		}
		return nil
	})
}

func (s *Store) ClientByPhone(ctx context.Context, phone string) (core.Client, bool, error) {
	var (
		c         core.Client
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, token, epic_id, created_at FROM clients WHERE phone = ?`, phone,
	).Scan(&c.ID, &c.Phone, &c.Token, &c.EpicID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Client{}, false, nil
	}
	if err != nil {
		return core.Client{}, false, fmt.Errorf("query client: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return c, true, nil
}

func (s *Store) InsertClient(ctx context.Context, c core.Client) error {
	return retryOnLocked(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO clients (id, phone, token, epic_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Phone, c.Token, c.EpicID, c.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		return nil
	})
}
