// Package cache persists login state between runs: the current account key,
// the encrypted refresh session blob, and the in-process per-tenant token
// memory.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// AccountStore is the durable record of which account is signed in, keyed by
// a logical account name (e.g. "azure"). An empty home account id on Save is
// the explicit sign-out signal and is persisted before Save returns.
type AccountStore interface {
	// Load returns the stored home account id for accountName. A missing or
	// corrupted entry is reported as absent ("", nil), never as an error.
	Load(accountName string) (homeAccountID string, err error)

	// Save stores the home account id for accountName; empty clears it.
	Save(accountName, homeAccountID string) error
}

// accountEntry is the on-disk shape of a FileStore entry.
type accountEntry struct {
	HomeAccountID string `json:"home_account_id"`
}

// FileStore keeps account entries as JSON files under a config directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a file-backed account store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("account store directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create account store directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) path(accountName string) string {
	return filepath.Join(s.dir, accountName+".account.json")
}

// Load returns the stored home account id, treating missing or corrupted
// files as absent.
func (s *FileStore) Load(accountName string) (string, error) {
	data, err := os.ReadFile(s.path(accountName))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("account cache unreadable, treating as absent", "account", accountName, "error", err)
		}
		return "", nil
	}

	var entry accountEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("account cache corrupted, treating as absent", "account", accountName, "error", err)
		return "", nil
	}
	return entry.HomeAccountID, nil
}

// Save persists the home account id; an empty id removes the entry.
func (s *FileStore) Save(accountName, homeAccountID string) error {
	path := s.path(accountName)

	if homeAccountID == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear account cache: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(accountEntry{HomeAccountID: homeAccountID})
	if err != nil {
		return fmt.Errorf("failed to marshal account entry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write account cache: %w", err)
	}
	return nil
}

// KeyringStore keeps account entries in the OS keyring.
type KeyringStore struct {
	service string
	logger  *slog.Logger
}

// NewKeyringStore creates a keyring-backed account store under the given
// service name.
func NewKeyringStore(service string, logger *slog.Logger) *KeyringStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyringStore{service: service, logger: logger}
}

// Load returns the stored home account id, treating lookup failures as
// absent (the keyring may be locked or unavailable on headless systems).
func (s *KeyringStore) Load(accountName string) (string, error) {
	id, err := keyring.Get(s.service, accountName)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			s.logger.Warn("keyring lookup failed, treating as absent", "account", accountName, "error", err)
		}
		return "", nil
	}
	return id, nil
}

// Save persists the home account id; an empty id removes the entry.
func (s *KeyringStore) Save(accountName, homeAccountID string) error {
	if homeAccountID == "" {
		if err := keyring.Delete(s.service, accountName); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring entry: %w", err)
		}
		return nil
	}

	if err := keyring.Set(s.service, accountName, homeAccountID); err != nil {
		return fmt.Errorf("failed to write keyring entry: %w", err)
	}
	return nil
}
