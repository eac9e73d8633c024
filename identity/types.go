// Package identity implements the token broker for a public OAuth2 client:
// authority discovery, authorization-code exchange, and cache-backed silent
// acquisition against a tenant-scoped identity provider.
package identity

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/meridianctl/login/pkce"
)

// TokenRecord is an immutable bearer credential. Records are superseded by
// newer records for the same tenant, never mutated.
type TokenRecord struct {
	// AccessToken is the bearer token string.
	AccessToken string `json:"access_token"`

	// RefreshToken is the refresh material for silent acquisition. It is
	// persisted only inside the encrypted session blob.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresOn is derived from the token's own exp claim when the access
	// token parses as a JWT, falling back to the endpoint's expires_in.
	ExpiresOn time.Time `json:"expires_on"`

	// TenantID is the tenant the record is scoped to.
	TenantID string `json:"tenant_id,omitempty"`

	// ClientID is the public client the record was minted for.
	ClientID string `json:"client_id,omitempty"`

	// Scopes are the scopes the record was requested with.
	Scopes []string `json:"scopes,omitempty"`
}

// expiryGracePeriod keeps a record from being considered valid right up to
// the wire-clock boundary, so a token does not expire mid-operation.
const expiryGracePeriod = 2 * time.Minute

// Valid reports whether the record is usable at the given instant.
func (r *TokenRecord) Valid(now time.Time) bool {
	if r == nil || r.AccessToken == "" {
		return false
	}
	if r.ExpiresOn.IsZero() {
		return false
	}
	return now.Add(expiryGracePeriod).Before(r.ExpiresOn)
}

// Token converts the record into an oauth2.Token for downstream SDKs.
func (r *TokenRecord) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: r.AccessToken,
		TokenType:   "Bearer",
		Expiry:      r.ExpiresOn,
	}
}

// Account is an authenticated identity. HomeAccountID is the stable cache key.
type Account struct {
	// HomeAccountID is the provider-assigned stable identifier.
	HomeAccountID string `json:"home_account_id"`

	// TenantID is the home tenant of the account.
	TenantID string `json:"tenant_id"`

	// Username is the display login name (UPN fallback chain, see Claims).
	Username string `json:"username"`

	// Claims carries the raw typed ID-token claims.
	Claims *Claims `json:"claims,omitempty"`
}

// AuthorizationRequest captures one in-flight interactive login attempt. The
// PKCE pair and state are generated together and never reused.
type AuthorizationRequest struct {
	Challenge   pkce.Challenge
	State       string
	RedirectURI string
	Scopes      []string
	Authority   string
}

// Result is the outcome of an interactive code exchange.
type Result struct {
	Record  *TokenRecord
	Account *Account
}

// Broker mints tokens from the identity provider. Client is the production
// implementation; mock.Broker serves tests.
type Broker interface {
	// Authority returns the discovery authority the broker is bound to.
	Authority() string

	// TenantID returns the tenant the broker is bound to.
	TenantID() string

	// BeginAuthorization creates a fresh authorization request with a new
	// PKCE pair and state for the given redirect URI.
	BeginAuthorization(redirectURI string, scopes []string) (*AuthorizationRequest, error)

	// AuthorizationURL renders the browser URL for the request, including
	// scopes, PKCE challenge, redirect URI, and the account-chooser prompt.
	AuthorizationURL(req *AuthorizationRequest) string

	// ExchangeCode exchanges an authorization code for tokens and an account
	// handle, remembering the refresh session for later silent acquisition.
	ExchangeCode(ctx context.Context, req *AuthorizationRequest, code string) (*Result, error)

	// AcquireSilent attempts a cache-backed refresh without user interaction.
	// tenantID overrides the broker's authority when non-empty. Returns
	// ErrSilentUnavailable when no session is cached for the account, and
	// ErrMFARequired when the provider demands interaction.
	AcquireSilent(ctx context.Context, account *Account, scopes []string, tenantID string) (*TokenRecord, error)

	// ForTenant rebuilds the broker bound to the tenant-specific authority,
	// carrying cached refresh sessions forward.
	ForTenant(ctx context.Context, tenantID string) (Broker, error)

	// RestoreSession seeds the silent-acquisition cache from a persisted
	// session, typically on process start.
	RestoreSession(account *Account, refreshToken string)

	// ClearSessions drops all cached refresh sessions (sign-out).
	ClearSessions()
}
