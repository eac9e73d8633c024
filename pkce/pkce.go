// Package pkce generates Proof Key for Code Exchange (RFC 7636) verifier and
// challenge pairs for the S256 method.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// MethodS256 is the only challenge method this package produces. The "plain"
// method is deliberately unsupported (OAuth 2.1 requirement).
const MethodS256 = "S256"

// verifierBytes is the amount of CSPRNG entropy behind each verifier. 32 bytes
// base64url-encode to 43 characters, the RFC 7636 minimum verifier length.
const verifierBytes = 32

// Challenge is a verifier/challenge pair bound to a single authorization
// attempt. Pairs must never be reused across attempts.
type Challenge struct {
	// Verifier is the base64url-encoded (unpadded) random secret sent to the
	// token endpoint.
	Verifier string

	// Value is base64url(SHA-256(Verifier)), sent to the authorization endpoint.
	Value string

	// Method is always MethodS256.
	Method string
}

// Generate creates a fresh verifier/challenge pair. The only failure mode is
// RNG exhaustion, which callers should treat as unrecoverable.
func Generate() (Challenge, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return Challenge{}, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))

	return Challenge{
		Verifier: verifier,
		Value:    base64.RawURLEncoding.EncodeToString(sum[:]),
		Method:   MethodS256,
	}, nil
}

// VerifyTransform reports whether challenge is the S256 transform of
// verifier, the check an authorization server applies at code exchange.
func VerifyTransform(verifier, challenge string) bool {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]) == challenge
}
