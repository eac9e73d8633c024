package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGenerate_TransformLaw(t *testing.T) {
	ch, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	sum := sha256.Sum256([]byte(ch.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if ch.Value != want {
		t.Errorf("challenge = %q, want SHA-256/base64url of verifier %q", ch.Value, want)
	}
	if ch.Method != MethodS256 {
		t.Errorf("method = %q, want %q", ch.Method, MethodS256)
	}
}

func TestGenerate_VerifierLength(t *testing.T) {
	ch, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// RFC 7636 requires 43-128 characters; 32 random bytes encode to exactly 43.
	if len(ch.Verifier) < 43 || len(ch.Verifier) > 128 {
		t.Errorf("verifier length = %d, want 43..128", len(ch.Verifier))
	}

	if _, err := base64.RawURLEncoding.DecodeString(ch.Verifier); err != nil {
		t.Errorf("verifier is not unpadded base64url: %v", err)
	}
	if _, err := base64.RawURLEncoding.DecodeString(ch.Value); err != nil {
		t.Errorf("challenge is not unpadded base64url: %v", err)
	}
}

func TestGenerate_NeverRepeats(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ch, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if seen[ch.Verifier] {
			t.Fatalf("verifier repeated after %d generations", i)
		}
		seen[ch.Verifier] = true
	}
}

func TestVerifyTransform(t *testing.T) {
	ch, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	tests := []struct {
		name      string
		verifier  string
		challenge string
		want      bool
	}{
		{"matching pair", ch.Verifier, ch.Value, true},
		{"wrong verifier", ch.Verifier + "x", ch.Value, false},
		{"wrong challenge", ch.Verifier, "bogus", false},
		{"empty pair", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyTransform(tt.verifier, tt.challenge); got != tt.want {
				t.Errorf("VerifyTransform() = %v, want %v", got, tt.want)
			}
		})
	}
}
