package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the typed view of the ID-token payload this package cares about.
// Tokens are decoded without signature verification: the token was received
// over TLS directly from the token endpoint, and validating provider
// signatures is out of scope for a public client.
type Claims struct {
	jwt.RegisteredClaims

	// TenantID is the directory tenant the token was issued for.
	TenantID string `json:"tid,omitempty"`

	// ObjectID is the provider-assigned object id of the signed-in principal.
	ObjectID string `json:"oid,omitempty"`

	// PreferredUsername is the OIDC display login name.
	PreferredUsername string `json:"preferred_username,omitempty"`

	// UPN is the user principal name, present on work accounts.
	UPN string `json:"upn,omitempty"`

	// UniqueName is the legacy v1 display name, kept for old authorities.
	UniqueName string `json:"unique_name,omitempty"`

	// Email is the email claim, when the email scope was granted.
	Email string `json:"email,omitempty"`

	// Name is the human-readable display name.
	Name string `json:"name,omitempty"`
}

var claimsParser = jwt.NewParser()

// ParseClaims decodes the payload of a compact JWT into Claims without
// verifying the signature.
func ParseClaims(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := claimsParser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}
	return claims, nil
}

// Username resolves the display login name through the documented fallback
// chain: upn, then unique_name, then preferred_username, then email. An empty
// string means the provider supplied none of them.
func (c *Claims) Username() string {
	for _, candidate := range []string{c.UPN, c.UniqueName, c.PreferredUsername, c.Email} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// HomeAccountID derives the stable cache key for the signed-in account,
// composed of the object id and tenant id. Empty when either part is missing.
func (c *Claims) HomeAccountID() string {
	if c.ObjectID == "" || c.TenantID == "" {
		return ""
	}
	return c.ObjectID + "." + c.TenantID
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the iat claim, or the zero time when absent.
func (c *Claims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}
