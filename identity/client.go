package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/meridianctl/login/pkce"
)

const (
	// DefaultAuthorityHost is the multi-tenant identity-provider host.
	DefaultAuthorityHost = "https://login.microsoftonline.com"

	// DefaultTenantID is the authority tenant used when none is specified.
	// "organizations" lets the provider route work accounts to their home
	// tenant during the interactive flow.
	DefaultTenantID = "organizations"
)

// defaultLimiter bounds outbound token-endpoint calls so a misbehaving retry
// loop cannot hammer the provider: small burst, one call per second sustained.
func defaultLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 5)
}

// Options configures a Client.
type Options struct {
	// ClientID is the public-client application id. Required.
	ClientID string

	// AuthorityHost overrides the identity-provider host.
	// Default: DefaultAuthorityHost.
	AuthorityHost string

	// TenantID scopes the authority to a tenant. Default: DefaultTenantID.
	TenantID string

	// HTTPClient is a custom HTTP client for provider requests
	// If not provided, uses the default HTTP client
	HTTPClient *http.Client

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Limiter throttles token-endpoint calls. Default: defaultLimiter().
	Limiter *rate.Limiter
}

// sessionStore maps home account ids to refresh material. It is shared by
// all tenant-rebound clones of a client so a refresh rotated under one
// authority stays visible to the others.
type sessionStore struct {
	mu      sync.RWMutex
	refresh map[string]string
}

func newSessionStore() *sessionStore {
	return &sessionStore{refresh: make(map[string]string)}
}

func (s *sessionStore) get(homeAccountID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.refresh[homeAccountID]
	return token, ok
}

func (s *sessionStore) put(homeAccountID, refreshToken string) {
	if homeAccountID == "" || refreshToken == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[homeAccountID] = refreshToken
}

func (s *sessionStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// Client is the production Broker: it discovers the tenant-scoped authority
// via OIDC and drives code exchange and silent refresh over oauth2.
type Client struct {
	clientID      string
	authorityHost string
	tenantID      string
	authority     string

	oauthCfg   oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	sessions   *sessionStore
}

// AuthorityURL composes the tenant-scoped authority for a host and tenant.
func AuthorityURL(host, tenantID string) string {
	return strings.TrimRight(host, "/") + "/" + tenantID + "/v2.0"
}

// New discovers the authority endpoints and returns a bound client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if opts.AuthorityHost == "" {
		opts.AuthorityHost = DefaultAuthorityHost
	}
	if opts.TenantID == "" {
		opts.TenantID = DefaultTenantID
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limiter == nil {
		opts.Limiter = defaultLimiter()
	}

	c := &Client{
		clientID:      opts.ClientID,
		authorityHost: opts.AuthorityHost,
		tenantID:      opts.TenantID,
		authority:     AuthorityURL(opts.AuthorityHost, opts.TenantID),
		httpClient:    opts.HTTPClient,
		limiter:       opts.Limiter,
		logger:        opts.Logger,
		sessions:      newSessionStore(),
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), c.authority)
	if err != nil {
		return nil, fmt.Errorf("failed to discover authority %s: %w", c.authority, err)
	}

	c.oauthCfg = oauth2.Config{
		ClientID: c.clientID,
		Endpoint: provider.Endpoint(),
	}

	return c, nil
}

// Authority returns the discovery authority the client is bound to.
func (c *Client) Authority() string { return c.authority }

// TenantID returns the tenant the client is bound to.
func (c *Client) TenantID() string { return c.tenantID }

// BeginAuthorization creates a fresh authorization request. The PKCE pair and
// state are generated together per attempt and never reused.
func (c *Client) BeginAuthorization(redirectURI string, scopes []string) (*AuthorizationRequest, error) {
	challenge, err := pkce.Generate()
	if err != nil {
		return nil, err
	}

	return &AuthorizationRequest{
		Challenge:   challenge,
		State:       uuid.NewString(),
		RedirectURI: redirectURI,
		Scopes:      scopes,
		Authority:   c.authority,
	}, nil
}

// AuthorizationURL renders the browser URL for the request. The prompt
// directive forces the account chooser so the provider never silently reuses
// an OS-level session this client is not aware of.
func (c *Client) AuthorizationURL(req *AuthorizationRequest) string {
	cfg := c.oauthCfg
	cfg.RedirectURL = req.RedirectURI
	cfg.Scopes = req.Scopes

	return cfg.AuthCodeURL(req.State,
		oauth2.SetAuthURLParam("code_challenge", req.Challenge.Value),
		oauth2.SetAuthURLParam("code_challenge_method", req.Challenge.Method),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// ExchangeCode exchanges an authorization code for tokens and an account
// handle, and remembers the refresh session for silent acquisition.
func (c *Client) ExchangeCode(ctx context.Context, req *AuthorizationRequest, code string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cfg := c.oauthCfg
	cfg.RedirectURL = req.RedirectURI
	cfg.Scopes = req.Scopes

	token, err := cfg.Exchange(c.requestContext(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", req.Challenge.Verifier),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	account, err := accountFromToken(token)
	if err != nil {
		return nil, err
	}

	record := c.buildRecord(token, req.Scopes, account.TenantID)
	c.sessions.put(account.HomeAccountID, token.RefreshToken)

	c.logger.Debug("authorization code exchanged",
		"tenant", account.TenantID,
		"username", account.Username,
	)

	return &Result{Record: record, Account: account}, nil
}

// AcquireSilent attempts a cache-backed refresh without user interaction.
func (c *Client) AcquireSilent(ctx context.Context, account *Account, scopes []string, tenantID string) (*TokenRecord, error) {
	if account == nil || account.HomeAccountID == "" {
		return nil, ErrSilentUnavailable
	}

	// A tenant override rebinds the exchange to that tenant's authority.
	if tenantID != "" && tenantID != c.tenantID {
		tenantClient, err := c.ForTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return tenantClient.AcquireSilent(ctx, account, scopes, "")
	}

	refreshToken, ok := c.sessions.get(account.HomeAccountID)
	if !ok {
		return nil, ErrSilentUnavailable
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cfg := c.oauthCfg
	cfg.Scopes = scopes

	src := cfg.TokenSource(c.requestContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}

	// Providers rotate refresh tokens; remember the newest one.
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		c.sessions.put(account.HomeAccountID, token.RefreshToken)
	}

	c.logger.Debug("token acquired silently", "tenant", c.tenantID)

	return c.buildRecord(token, scopes, c.recordTenant(token)), nil
}

// ForTenant rebuilds the client bound to the tenant-specific authority with a
// fresh endpoint discovery, carrying cached refresh sessions forward.
func (c *Client) ForTenant(ctx context.Context, tenantID string) (Broker, error) {
	if tenantID == "" || tenantID == c.tenantID {
		return c, nil
	}

	clone, err := New(ctx, Options{
		ClientID:      c.clientID,
		AuthorityHost: c.authorityHost,
		TenantID:      tenantID,
		HTTPClient:    c.httpClient,
		Logger:        c.logger,
		Limiter:       c.limiter,
	})
	if err != nil {
		return nil, err
	}
	clone.sessions = c.sessions
	return clone, nil
}

// RestoreSession seeds the silent-acquisition cache from a persisted session.
func (c *Client) RestoreSession(account *Account, refreshToken string) {
	if account == nil {
		return
	}
	c.sessions.put(account.HomeAccountID, refreshToken)
}

// ClearSessions drops all cached refresh sessions.
func (c *Client) ClearSessions() {
	c.sessions.clear()
}

// requestContext routes oauth2's internal HTTP calls through our client.
func (c *Client) requestContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// buildRecord derives a TokenRecord from a token response. Expiry comes from
// the access token's own exp claim when it parses as a JWT; the endpoint's
// expires_in is only a fallback, never caller input.
func (c *Client) buildRecord(token *oauth2.Token, scopes []string, tenantID string) *TokenRecord {
	expiresOn := token.Expiry
	if claims, err := ParseClaims(token.AccessToken); err == nil && !claims.Expiry().IsZero() {
		expiresOn = claims.Expiry()
	}

	if tenantID == "" {
		tenantID = c.tenantID
	}

	return &TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresOn:    expiresOn,
		TenantID:     tenantID,
		ClientID:     c.clientID,
		Scopes:       scopes,
	}
}

// recordTenant resolves the owning tenant of a token response from its ID
// token when present.
func (c *Client) recordTenant(token *oauth2.Token) string {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return c.tenantID
	}
	claims, err := ParseClaims(raw)
	if err != nil || claims.TenantID == "" {
		return c.tenantID
	}
	return claims.TenantID
}

// accountFromToken builds the Account handle from the ID token of an
// interactive exchange.
func accountFromToken(token *oauth2.Token) (*Account, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("%w: token response is missing an id_token", ErrExchangeFailed)
	}

	claims, err := ParseClaims(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	return &Account{
		HomeAccountID: claims.HomeAccountID(),
		TenantID:      claims.TenantID,
		Username:      claims.Username(),
		Claims:        claims,
	}, nil
}
