package cache

import (
	"sync"

	"golang.org/x/oauth2"

	"github.com/meridianctl/login/identity"
)

// TenantMemory is the process-wide map from tenant id to the bearer material
// used to mint credentials for downstream SDKs. Handles are created lazily
// and live for the process lifetime; there is exactly one handle per tenant.
type TenantMemory struct {
	mu      sync.Mutex
	tenants map[string]*TenantTokens
}

// NewTenantMemory creates an empty tenant token memory.
func NewTenantMemory() *TenantMemory {
	return &TenantMemory{tenants: make(map[string]*TenantTokens)}
}

// Handle returns the cache handle for a tenant, creating it on first use.
// The same pointer is returned for every subsequent call with the tenant id.
func (m *TenantMemory) Handle(tenantID string) *TenantTokens {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, ok := m.tenants[tenantID]
	if !ok {
		handle = &TenantTokens{tenantID: tenantID}
		m.tenants[tenantID] = handle
	}
	return handle
}

// Tenants returns the tenant ids with a live handle.
func (m *TenantMemory) Tenants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops the records held by every handle. The handles themselves stay
// valid; holders observe an empty cache.
func (m *TenantMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, handle := range m.tenants {
		handle.Set(nil)
	}
}

// TenantTokens is the per-tenant cache handle. Records are replaced whole,
// never mutated.
type TenantTokens struct {
	tenantID string

	mu     sync.RWMutex
	record *identity.TokenRecord
}

// TenantID returns the owning tenant.
func (t *TenantTokens) TenantID() string { return t.tenantID }

// Set replaces the current record. Only the login orchestrator writes here,
// under its own mutation gate.
func (t *TenantTokens) Set(record *identity.TokenRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record = record
}

// Current returns the newest record for the tenant, or nil.
func (t *TenantTokens) Current() *identity.TokenRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.record
}

// TokenSource mints a static oauth2.TokenSource from the current record for
// handing to downstream SDKs. Returns nil when no record is cached.
func (t *TenantTokens) TokenSource() oauth2.TokenSource {
	record := t.Current()
	if record == nil {
		return nil
	}
	return oauth2.StaticTokenSource(record.Token())
}
