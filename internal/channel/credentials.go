package channel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore persists one opaque credential blob per session
// identity. The pipeline never looks inside a blob; it is written on
// every credential-update event and deleted on logout or when reconnect
// attempts are exhausted.
type CredentialStore struct {
	dir string
}

func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{dir: dir}
}

func (cs *CredentialStore) path(id string) string {
	return filepath.Join(cs.dir, id+".creds")
}

// Load returns the stored blob, or "" when the identity has never linked.
func (cs *CredentialStore) Load(id string) (string, error) {
	data, err := os.ReadFile(cs.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	return string(data), nil
}

func (cs *CredentialStore) Save(id, blob string) error {
	if err := os.MkdirAll(cs.dir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(cs.path(id), []byte(blob), 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func (cs *CredentialStore) Delete(id string) error {
	if err := os.Remove(cs.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// HasCredentials reports whether a blob exists for id.
func (cs *CredentialStore) HasCredentials(id string) bool {
	_, err := os.Stat(cs.path(id))
	return err == nil
}
