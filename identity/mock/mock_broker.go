// Package mock provides a mock implementation of the identity.Broker
// interface for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridianctl/login/identity"
	"github.com/meridianctl/login/pkce"
)

// Broker is a mock implementation of identity.Broker for testing.
type Broker struct {
	// AuthorityFunc is called when Authority() is invoked
	AuthorityFunc func() string

	// TenantIDFunc is called when TenantID() is invoked
	TenantIDFunc func() string

	// BeginAuthorizationFunc is called when BeginAuthorization() is invoked
	BeginAuthorizationFunc func(redirectURI string, scopes []string) (*identity.AuthorizationRequest, error)

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(req *identity.AuthorizationRequest) string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, req *identity.AuthorizationRequest, code string) (*identity.Result, error)

	// AcquireSilentFunc is called when AcquireSilent() is invoked
	AcquireSilentFunc func(ctx context.Context, account *identity.Account, scopes []string, tenantID string) (*identity.TokenRecord, error)

	// ForTenantFunc is called when ForTenant() is invoked
	ForTenantFunc func(ctx context.Context, tenantID string) (identity.Broker, error)

	// RestoreSessionFunc is called when RestoreSession() is invoked
	RestoreSessionFunc func(account *identity.Account, refreshToken string)

	// ClearSessionsFunc is called when ClearSessions() is invoked
	ClearSessionsFunc func()

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.Mutex
}

// NewBroker creates a mock broker with default implementations: a successful
// interactive exchange for a fixed test account, and silent acquisition that
// reports no cached session.
func NewBroker() *Broker {
	return &Broker{
		CallCounts: make(map[string]int),
		AuthorityFunc: func() string {
			return "https://login.mock.example.com/organizations/v2.0"
		},
		TenantIDFunc: func() string {
			return "organizations"
		},
		BeginAuthorizationFunc: func(redirectURI string, scopes []string) (*identity.AuthorizationRequest, error) {
			challenge, err := pkce.Generate()
			if err != nil {
				return nil, err
			}
			return &identity.AuthorizationRequest{
				Challenge:   challenge,
				State:       "mock-state",
				RedirectURI: redirectURI,
				Scopes:      scopes,
			}, nil
		},
		AuthorizationURLFunc: func(req *identity.AuthorizationRequest) string {
			return fmt.Sprintf("https://login.mock.example.com/authorize?state=%s&code_challenge=%s", req.State, req.Challenge.Value)
		},
		ExchangeCodeFunc: func(ctx context.Context, req *identity.AuthorizationRequest, code string) (*identity.Result, error) {
			return &identity.Result{
				Record:  TestRecord("mock-tenant"),
				Account: TestAccount(),
			}, nil
		},
		AcquireSilentFunc: func(ctx context.Context, account *identity.Account, scopes []string, tenantID string) (*identity.TokenRecord, error) {
			return nil, identity.ErrSilentUnavailable
		},
		RestoreSessionFunc: func(account *identity.Account, refreshToken string) {},
		ClearSessionsFunc:  func() {},
	}
}

// TestAccount returns a fixed account handle for tests.
func TestAccount() *identity.Account {
	return &identity.Account{
		HomeAccountID: "mock-object-id.mock-tenant",
		TenantID:      "mock-tenant",
		Username:      "user@mock.example.com",
	}
}

// TestRecord returns a token record valid for one hour, scoped to tenantID.
func TestRecord(tenantID string) *identity.TokenRecord {
	return &identity.TokenRecord{
		AccessToken:  "mock-access-token-" + tenantID,
		RefreshToken: "mock-refresh-token",
		ExpiresOn:    time.Now().Add(time.Hour),
		TenantID:     tenantID,
		ClientID:     "mock-client-id",
	}
}

func (m *Broker) count(method string) {
	m.mu.Lock()
	m.CallCounts[method]++
	m.mu.Unlock()
}

// Calls returns how many times the named method was invoked.
func (m *Broker) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[method]
}

// Authority returns the mock authority.
func (m *Broker) Authority() string {
	m.count("Authority")
	if m.AuthorityFunc == nil {
		return ""
	}
	return m.AuthorityFunc()
}

// TenantID returns the mock tenant.
func (m *Broker) TenantID() string {
	m.count("TenantID")
	if m.TenantIDFunc == nil {
		return ""
	}
	return m.TenantIDFunc()
}

// BeginAuthorization creates a mock authorization request.
func (m *Broker) BeginAuthorization(redirectURI string, scopes []string) (*identity.AuthorizationRequest, error) {
	m.count("BeginAuthorization")
	if m.BeginAuthorizationFunc == nil {
		return nil, fmt.Errorf("BeginAuthorizationFunc not configured")
	}
	return m.BeginAuthorizationFunc(redirectURI, scopes)
}

// AuthorizationURL renders the mock authorization URL.
func (m *Broker) AuthorizationURL(req *identity.AuthorizationRequest) string {
	m.count("AuthorizationURL")
	if m.AuthorizationURLFunc == nil {
		return ""
	}
	return m.AuthorizationURLFunc(req)
}

// ExchangeCode exchanges a code through the configured function.
func (m *Broker) ExchangeCode(ctx context.Context, req *identity.AuthorizationRequest, code string) (*identity.Result, error) {
	m.count("ExchangeCode")
	if m.ExchangeCodeFunc == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return m.ExchangeCodeFunc(ctx, req, code)
}

// AcquireSilent attempts a silent acquisition through the configured function.
func (m *Broker) AcquireSilent(ctx context.Context, account *identity.Account, scopes []string, tenantID string) (*identity.TokenRecord, error) {
	m.count("AcquireSilent")
	if m.AcquireSilentFunc == nil {
		return nil, identity.ErrSilentUnavailable
	}
	return m.AcquireSilentFunc(ctx, account, scopes, tenantID)
}

// ForTenant returns a tenant-bound broker. When ForTenantFunc is not
// configured the mock returns itself, which suits single-broker tests.
func (m *Broker) ForTenant(ctx context.Context, tenantID string) (identity.Broker, error) {
	m.count("ForTenant")
	if m.ForTenantFunc == nil {
		return m, nil
	}
	return m.ForTenantFunc(ctx, tenantID)
}

// RestoreSession seeds the mock session cache.
func (m *Broker) RestoreSession(account *identity.Account, refreshToken string) {
	m.count("RestoreSession")
	if m.RestoreSessionFunc != nil {
		m.RestoreSessionFunc(account, refreshToken)
	}
}

// ClearSessions drops the mock session cache.
func (m *Broker) ClearSessions() {
	m.count("ClearSessions")
	if m.ClearSessionsFunc != nil {
		m.ClearSessionsFunc()
	}
}
