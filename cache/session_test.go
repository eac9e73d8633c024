package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meridianctl/login/identity"
)

func testEncryptor(t *testing.T) *Encryptor {
	t.Helper()

	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	key, err := DeriveKey("test-passphrase", salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	return enc
}

func testSession() *Session {
	return &Session{
		Account: &identity.Account{
			HomeAccountID: "oid-1.tid-1",
			TenantID:      "tid-1",
			Username:      "user@example.com",
		},
		RefreshToken: "refresh-secret",
		TenantID:     "tid-1",
	}
}

func TestSessionStore_RoundTripEncrypted(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSessionStore(dir, testEncryptor(t), nil)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	if err := store.Save("azure", testSession()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load("azure")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() = nil, want session")
	}
	if loaded.Account.HomeAccountID != "oid-1.tid-1" {
		t.Errorf("home account id = %q, want %q", loaded.Account.HomeAccountID, "oid-1.tid-1")
	}
	if loaded.RefreshToken != "refresh-secret" {
		t.Errorf("refresh token did not round-trip")
	}

	// The on-disk blob must not contain the refresh token in the clear.
	raw, err := os.ReadFile(filepath.Join(dir, "azure.session"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Contains(string(raw), "refresh-secret") {
		t.Error("session blob stores refresh material in plaintext")
	}
}

func TestSessionStore_AbsentIsNil(t *testing.T) {
	store, err := NewSessionStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	session, err := store.Load("azure")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if session != nil {
		t.Errorf("Load() = %+v, want nil", session)
	}
}

func TestSessionStore_CorruptBlobIsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSessionStore(dir, testEncryptor(t), nil)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "azure.session"), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	session, err := store.Load("azure")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for corrupt blob", err)
	}
	if session != nil {
		t.Errorf("Load() = %+v, want nil for corrupt blob", session)
	}
}

func TestSessionStore_TamperedBlobIsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSessionStore(dir, testEncryptor(t), nil)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	if err := store.Save("azure", testSession()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(dir, "azure.session")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	// Flip a character; GCM authentication must reject the blob.
	tampered := []byte(strings.Map(func(r rune) rune {
		if r == 'A' {
			return 'B'
		}
		return 'A'
	}, string(raw[:1])) + string(raw[1:]))
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	session, err := store.Load("azure")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for tampered blob", err)
	}
	if session != nil {
		t.Errorf("Load() = %+v, want nil for tampered blob", session)
	}
}

func TestSessionStore_SaveNilClears(t *testing.T) {
	store, err := NewSessionStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	if err := store.Save("azure", testSession()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save("azure", nil); err != nil {
		t.Fatalf("Save(nil) error = %v", err)
	}

	session, err := store.Load("azure")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if session != nil {
		t.Errorf("Load() after clear = %+v, want nil", session)
	}
}

func TestDeriveKey(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	key1, err := DeriveKey("passphrase", salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	key2, err := DeriveKey("passphrase", salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if string(key1) != string(key2) {
		t.Error("DeriveKey() is not deterministic for the same salt")
	}

	otherSalt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	key3, err := DeriveKey("passphrase", otherSalt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if string(key1) == string(key3) {
		t.Error("DeriveKey() ignored the salt")
	}

	if _, err := DeriveKey("", salt); err == nil {
		t.Error("DeriveKey(empty passphrase) error = nil, want failure")
	}
	if _, err := DeriveKey("passphrase", []byte("short")); err == nil {
		t.Error("DeriveKey(short salt) error = nil, want failure")
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatalf("NewEncryptor(nil) error = %v", err)
	}
	if enc.IsEnabled() {
		t.Error("IsEnabled() = true for nil key")
	}

	out, err := enc.Encrypt("plain")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if out != "plain" {
		t.Errorf("disabled Encrypt() = %q, want passthrough", out)
	}
}

func TestNewEncryptor_RejectsBadKeyLength(t *testing.T) {
	if _, err := NewEncryptor([]byte("short")); err == nil {
		t.Error("NewEncryptor(short key) error = nil, want failure")
	}
}
