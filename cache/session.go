package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meridianctl/login/identity"
)

// Session is the durable refresh context for one signed-in account. It lets
// a new process resume silent acquisition without re-prompting.
type Session struct {
	Account      *identity.Account `json:"account"`
	RefreshToken string            `json:"refresh_token"`
	TenantID     string            `json:"tenant_id,omitempty"`
}

// SessionStore persists Session blobs per logical account name, encrypted at
// rest. Corrupt or undecryptable blobs are reported as absent, which sends
// the caller back through interactive login instead of failing.
type SessionStore struct {
	dir       string
	encryptor *Encryptor
	logger    *slog.Logger
}

// NewSessionStore creates a session store rooted at dir. A nil encryptor
// stores the blob unencrypted (used in tests).
func NewSessionStore(dir string, encryptor *Encryptor, logger *slog.Logger) (*SessionStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session store directory is required")
	}
	if encryptor == nil {
		var err error
		if encryptor, err = NewEncryptor(nil); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}
	return &SessionStore{dir: dir, encryptor: encryptor, logger: logger}, nil
}

func (s *SessionStore) path(accountName string) string {
	return filepath.Join(s.dir, accountName+".session")
}

// Load returns the stored session, or nil when absent or unreadable.
func (s *SessionStore) Load(accountName string) (*Session, error) {
	data, err := os.ReadFile(s.path(accountName))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("session blob unreadable, treating as absent", "account", accountName, "error", err)
		}
		return nil, nil
	}

	plaintext, err := s.encryptor.Decrypt(string(data))
	if err != nil {
		s.logger.Warn("session blob undecryptable, treating as absent", "account", accountName, "error", err)
		return nil, nil
	}

	var session Session
	if err := json.Unmarshal([]byte(plaintext), &session); err != nil {
		s.logger.Warn("session blob corrupted, treating as absent", "account", accountName, "error", err)
		return nil, nil
	}
	if session.Account == nil || session.Account.HomeAccountID == "" {
		return nil, nil
	}
	return &session, nil
}

// Save persists the session; a nil session removes the blob.
func (s *SessionStore) Save(accountName string, session *Session) error {
	path := s.path(accountName)

	if session == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear session blob: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ciphertext, err := s.encryptor.Encrypt(string(data))
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}
	if err := os.WriteFile(path, []byte(ciphertext), 0o600); err != nil {
		return fmt.Errorf("failed to write session blob: %w", err)
	}
	return nil
}
