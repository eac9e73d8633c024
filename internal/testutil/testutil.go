// Package testutil provides testing utilities and fixtures for the login
// library: a fake identity authority with OIDC discovery and a token
// endpoint, and signed test tokens.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Fixed identity of the fake authority's only user.
const (
	TestObjectID = "00000000-test-object-id"
	TestUPN      = "user@fake.example.com"
	TestName     = "Fake User"
)

// testSigningKey signs test tokens. Signatures are never verified by the
// code under test; the key only makes the tokens well-formed JWTs.
var testSigningKey = []byte("testutil-hs256-signing-key-000001")

// FakeAuthority is an httptest-backed identity provider serving OIDC
// discovery for any tenant path plus a token endpoint.
type FakeAuthority struct {
	srv *httptest.Server

	mu          sync.Mutex
	grantCounts map[string]int

	// TokenHandler overrides the token-endpoint behavior when set. The
	// default handler answers authorization_code and refresh_token grants
	// with fresh signed tokens.
	TokenHandler http.HandlerFunc

	// AccessTokenTTL controls the exp claim of minted access tokens.
	// Default: one hour.
	AccessTokenTTL time.Duration
}

// NewFakeAuthority starts a fake authority. It is shut down with the test.
func NewFakeAuthority(t *testing.T) *FakeAuthority {
	t.Helper()

	f := &FakeAuthority{
		grantCounts:    make(map[string]int),
		AccessTokenTTL: time.Hour,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.route))
	t.Cleanup(f.srv.Close)
	return f
}

// URL returns the authority host base (scheme://host:port).
func (f *FakeAuthority) URL() string { return f.srv.URL }

// Client returns an HTTP client wired to the fake server.
func (f *FakeAuthority) Client() *http.Client { return f.srv.Client() }

// Authority returns the tenant-scoped authority URL for a tenant.
func (f *FakeAuthority) Authority(tenantID string) string {
	return f.srv.URL + "/" + tenantID + "/v2.0"
}

// GrantCount returns how many token-endpoint calls used the given grant type.
func (f *FakeAuthority) GrantCount(grantType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grantCounts[grantType]
}

// SetTokenHandler swaps the token-endpoint behavior.
func (f *FakeAuthority) SetTokenHandler(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TokenHandler = h
}

func (f *FakeAuthority) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/.well-known/openid-configuration"):
		f.serveDiscovery(w, r)
	case strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token"):
		f.serveToken(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeAuthority) serveDiscovery(w http.ResponseWriter, r *http.Request) {
	tenant := pathTenant(r.URL.Path)
	issuer := f.Authority(tenant)

	doc := map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                f.srv.URL + "/" + tenant + "/oauth2/v2.0/authorize",
		"token_endpoint":                        f.srv.URL + "/" + tenant + "/oauth2/v2.0/token",
		"jwks_uri":                              f.srv.URL + "/" + tenant + "/discovery/v2.0/keys",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"pairwise"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (f *FakeAuthority) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		RespondOAuthError(w, "invalid_request", "malformed form body")
		return
	}

	f.mu.Lock()
	f.grantCounts[r.Form.Get("grant_type")]++
	handler := f.TokenHandler
	f.mu.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}

	tenant := pathTenant(r.URL.Path)
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		if r.Form.Get("code") == "" || r.Form.Get("code_verifier") == "" {
			RespondOAuthError(w, "invalid_grant", "missing code or code_verifier")
			return
		}
	case "refresh_token":
		if r.Form.Get("refresh_token") == "" {
			RespondOAuthError(w, "invalid_grant", "missing refresh_token")
			return
		}
	default:
		RespondOAuthError(w, "unsupported_grant_type", r.Form.Get("grant_type"))
		return
	}

	f.RespondTokens(w, tenant)
}

// RespondTokens writes a successful token response for the fake user in the
// given tenant.
func (f *FakeAuthority) RespondTokens(w http.ResponseWriter, tenantID string) {
	resp := map[string]any{
		"access_token":  SignAccessToken(tenantID, f.AccessTokenTTL),
		"token_type":    "Bearer",
		"expires_in":    int(f.AccessTokenTTL / time.Second),
		"refresh_token": "fake-refresh-" + tenantID,
		"id_token":      SignIDToken(tenantID),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// RespondOAuthError writes an OAuth error body with HTTP 400.
func RespondOAuthError(w http.ResponseWriter, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// RespondInteractionRequired writes the provider response for a grant blocked
// by conditional-access/MFA policy.
func RespondInteractionRequired(w http.ResponseWriter) {
	RespondOAuthError(w, "interaction_required",
		"AADSTS50076: Due to a configuration change made by your administrator, "+
			"you must use multi-factor authentication to access the resource.")
}

// SignAccessToken mints a signed JWT access token for the fake user with the
// given lifetime.
func SignAccessToken(tenantID string, ttl time.Duration) string {
	now := time.Now()
	return signToken(jwt.MapClaims{
		"sub": TestObjectID,
		"oid": TestObjectID,
		"tid": tenantID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
}

// SignIDToken mints a signed JWT ID token for the fake user.
func SignIDToken(tenantID string) string {
	now := time.Now()
	return signToken(jwt.MapClaims{
		"sub":  TestObjectID,
		"oid":  TestObjectID,
		"tid":  tenantID,
		"upn":  TestUPN,
		"name": TestName,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	})
}

// SignClaims mints a signed JWT from arbitrary claims.
func SignClaims(claims jwt.MapClaims) string {
	return signToken(claims)
}

func signToken(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSigningKey)
	if err != nil {
		panic(fmt.Sprintf("testutil: failed to sign token: %v", err))
	}
	return signed
}

func pathTenant(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "common"
	}
	return parts[0]
}
