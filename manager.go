// Package login signs a user into a tenant-scoped identity provider through
// the system browser and manages the resulting tokens: per-tenant caching,
// silent refresh, tenant switching, and subscription selection.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/meridianctl/login/cache"
	"github.com/meridianctl/login/identity"
	"github.com/meridianctl/login/instrumentation"
	"github.com/meridianctl/login/listener"
	"github.com/meridianctl/login/resource"
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// defaultConfigDirName is the directory under the user config root that holds
// the account cache, session blob, and subscription selection.
const defaultConfigDirName = "meridianctl"

// ResourceClient is the management-plane surface the manager consumes for
// tenant and subscription enumeration. resource.Client is the production
// implementation.
type ResourceClient interface {
	ListTenants(ctx context.Context, bearer string) ([]resource.Tenant, error)
	ListSubscriptions(ctx context.Context, bearer string) ([]resource.Subscription, error)
}

// Config holds manager configuration.
type Config struct {
	// ClientID is the public-client application id. Required unless a broker
	// is injected with WithBroker.
	ClientID string

	// TenantID scopes the initial authority. Default: identity.DefaultTenantID.
	TenantID string

	// AuthorityHost overrides the identity-provider host.
	AuthorityHost string

	// Scopes are requested on every acquisition. Default: DefaultScopes.
	Scopes []string

	// AccountName namespaces the persisted account and session. Default
	// "default"; callers with profiles pass the profile name.
	AccountName string

	// ConfigDir holds the persisted account, session, and selection files.
	// Default: <user config dir>/meridianctl.
	ConfigDir string

	// PreferredPort is the loopback redirect port. 0 lets the OS choose.
	PreferredPort int

	// Audience selects the personalization on the browser response pages.
	Audience listener.Audience

	// EncryptionKey protects the session blob at rest when set. Must be 32
	// bytes. Leave nil to store the blob unencrypted.
	EncryptionKey []byte

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// Option injects a collaborator into the manager.
type Option func(*Manager)

// WithBroker replaces the identity broker. Used by tests and by callers that
// pre-build a tenant-bound identity.Client.
func WithBroker(b identity.Broker) Option {
	return func(m *Manager) { m.broker = b }
}

// WithAccountStore replaces the persisted account store.
func WithAccountStore(s cache.AccountStore) Option {
	return func(m *Manager) { m.accounts = s }
}

// WithSessionStore replaces the persisted session store.
func WithSessionStore(s *cache.SessionStore) Option {
	return func(m *Manager) { m.sessions = s }
}

// WithResourceClient replaces the management-plane client.
func WithResourceClient(c ResourceClient) Option {
	return func(m *Manager) { m.resources = c }
}

// WithListener replaces the redirect-listener constructor.
func WithListener(listen func(listener.Config) (*listener.Listener, error)) Option {
	return func(m *Manager) { m.listen = listen }
}

// WithBrowserOpener replaces the function that opens the authorization URL.
func WithBrowserOpener(open func(url string) error) Option {
	return func(m *Manager) { m.openURL = open }
}

// WithChooser installs the delegate consulted when several subscriptions are
// available and SelectedSubscription is allowed to prompt.
func WithChooser(choose func(ctx context.Context, subs []Subscription) (*Subscription, error)) Option {
	return func(m *Manager) { m.chooser = choose }
}

// WithInstrumentation attaches OpenTelemetry instrumentation.
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(m *Manager) { m.inst = inst }
}

// Manager orchestrates interactive login, token caching, and subscription
// selection. All operations serialize through one mutex, so concurrent token
// requests trigger at most one interactive flow.
type Manager struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger
	inst   *instrumentation.Instrumentation

	listen  func(listener.Config) (*listener.Listener, error)
	openURL func(url string) error
	chooser func(ctx context.Context, subs []Subscription) (*Subscription, error)

	broker        identity.Broker
	tenantBrokers map[string]identity.Broker

	accounts  cache.AccountStore
	sessions  *cache.SessionStore
	memory    *cache.TenantMemory
	resources ResourceClient

	account    *identity.Account
	homeTenant string
	state      State

	// pendingRefresh holds a restored refresh token until the broker exists.
	pendingRefresh string
	restored       bool

	observers     []Observer
	lastSubs      []Subscription
	selected      *Subscription
	selectionPath string
}

var (
	_ TokenProvider        = (*Manager)(nil)
	_ SubscriptionProvider = (*Manager)(nil)
)

// NewManager creates a manager. The identity broker is built lazily on first
// use so construction needs no network access.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.TenantID == "" {
		cfg.TenantID = identity.DefaultTenantID
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.AccountName == "" {
		cfg.AccountName = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		cfg.ConfigDir = filepath.Join(base, defaultConfigDirName)
	}

	m := &Manager{
		cfg:           cfg,
		logger:        cfg.Logger,
		listen:        listener.Listen,
		openURL:       browser.OpenURL,
		tenantBrokers: make(map[string]identity.Broker),
		memory:        cache.NewTenantMemory(),
		state:         StateSignedOut,
		selectionPath: filepath.Join(cfg.ConfigDir, "selection.json"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.ClientID == "" && m.broker == nil {
		return nil, fmt.Errorf("client ID is required")
	}

	if m.accounts == nil {
		store, err := cache.NewFileStore(cfg.ConfigDir, m.logger)
		if err != nil {
			return nil, err
		}
		m.accounts = store
	}
	if m.sessions == nil {
		encryptor, err := cache.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		store, err := cache.NewSessionStore(cfg.ConfigDir, encryptor, m.logger)
		if err != nil {
			return nil, err
		}
		m.sessions = store
	}
	if m.resources == nil {
		m.resources = resource.NewClient(resource.Options{Logger: m.logger})
	}
	if m.inst == nil {
		inst, err := instrumentation.New(instrumentation.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
		m.inst = inst
	}

	return m, nil
}

// Login signs the user in interactively through the system browser and
// returns the token for the home tenant of the chosen account.
func (m *Manager) Login(ctx context.Context) (*identity.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()
	return m.loginLocked(ctx, "")
}

// GetToken returns a valid token for the tenant, trying the in-memory cache,
// then silent refresh, then an interactive re-login. An empty tenantID means
// the signed-in account's home tenant. Concurrent callers serialize here, so
// at most one interactive flow runs and the rest observe its result.
func (m *Manager) GetToken(ctx context.Context, tenantID string) (*identity.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()
	return m.getTokenLocked(ctx, tenantID)
}

// SwitchTenant re-authenticates scoped to the tenant, dropping any broker
// state previously bound to it. Subsequent GetToken calls with an empty
// tenant target the new tenant.
func (m *Manager) SwitchTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()
	delete(m.tenantBrokers, tenantID)

	if _, err := m.loginLocked(ctx, tenantID); err != nil {
		return err
	}
	m.inst.Metrics().RecordTenantSwitch(ctx, tenantID)
	return nil
}

// SignOut clears the persisted account and session and drops all cached
// tokens. It is idempotent and leaves the subscription selection untouched.
// Observers are notified before SignOut returns.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()

	if err := m.accounts.Save(m.cfg.AccountName, ""); err != nil {
		return fmt.Errorf("failed to clear account cache: %w", err)
	}
	if err := m.sessions.Save(m.cfg.AccountName, nil); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.inst.Metrics().RecordCacheOperation(ctx, "account", "clear", "ok")

	// All tenant clones share one session store, one clear suffices.
	if m.broker != nil {
		m.broker.ClearSessions()
	}
	m.memory.Clear()

	m.account = nil
	m.homeTenant = ""
	m.pendingRefresh = ""
	m.tenantBrokers = make(map[string]identity.Broker)
	m.setStateLocked(StateSignedOut)

	return nil
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()

	tenant := m.homeTenant
	if tenant == "" {
		tenant = m.cfg.TenantID
	}
	return Status{State: m.state, Account: m.account, TenantID: tenant}
}

// Subscribe registers an observer for state transitions.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Claims returns the typed ID-token claims of the signed-in account.
func (m *Manager) Claims() (*identity.Claims, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()
	if m.account == nil {
		return nil, NewError(CodeNoAccount, "manager", "no account is signed in", nil)
	}
	return m.account.Claims, nil
}

// TokenSource returns an oauth2.TokenSource for the tenant, acquiring a
// token first so the source starts valid.
func (m *Manager) TokenSource(ctx context.Context, tenantID string) (oauth2.TokenSource, error) {
	record, err := m.GetToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return m.memory.Handle(record.TenantID).TokenSource(), nil
}

// restoreLocked loads the persisted account and session once per process.
// The refresh token is handed to the broker lazily, when it first exists.
func (m *Manager) restoreLocked() {
	if m.restored {
		return
	}
	m.restored = true

	homeAccountID, err := m.accounts.Load(m.cfg.AccountName)
	if err != nil || homeAccountID == "" {
		return
	}

	session, err := m.sessions.Load(m.cfg.AccountName)
	if err != nil || session == nil || session.Account == nil {
		return
	}
	if session.Account.HomeAccountID != homeAccountID {
		// The account cache and session disagree; trust neither.
		m.logger.Warn("persisted account and session mismatch, ignoring both")
		return
	}

	m.account = session.Account
	m.homeTenant = session.TenantID
	if m.homeTenant == "" {
		m.homeTenant = session.Account.TenantID
	}
	m.pendingRefresh = session.RefreshToken
	m.state = StateSignedIn

	if m.broker != nil && m.pendingRefresh != "" {
		m.broker.RestoreSession(m.account, m.pendingRefresh)
		m.pendingRefresh = ""
	}
}

// brokerLocked builds the default-tenant broker on first use.
func (m *Manager) brokerLocked(ctx context.Context) (identity.Broker, error) {
	if m.broker == nil {
		broker, err := identity.New(ctx, identity.Options{
			ClientID:      m.cfg.ClientID,
			AuthorityHost: m.cfg.AuthorityHost,
			TenantID:      m.cfg.TenantID,
			Logger:        m.logger,
		})
		if err != nil {
			return nil, err
		}
		m.broker = broker
	}
	if m.pendingRefresh != "" && m.account != nil {
		m.broker.RestoreSession(m.account, m.pendingRefresh)
		m.pendingRefresh = ""
	}
	return m.broker, nil
}

// brokerForLocked resolves a broker bound to the tenant, caching clones.
func (m *Manager) brokerForLocked(ctx context.Context, tenantID string) (identity.Broker, error) {
	broker, err := m.brokerLocked(ctx)
	if err != nil {
		return nil, err
	}
	if tenantID == "" || tenantID == broker.TenantID() {
		return broker, nil
	}
	if cached, ok := m.tenantBrokers[tenantID]; ok {
		return cached, nil
	}

	clone, err := broker.ForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	m.tenantBrokers[tenantID] = clone
	return clone, nil
}

func (m *Manager) getTokenLocked(ctx context.Context, tenantID string) (*identity.TokenRecord, error) {
	key := tenantID
	if key == "" {
		key = m.homeTenant
	}
	if key != "" {
		if record := m.memory.Handle(key).Current(); record.Valid(time.Now()) {
			return record, nil
		}
	}

	if m.account != nil {
		record, err := m.acquireSilentLocked(ctx, key)
		switch {
		case err == nil:
			return record, nil
		case isContextErr(err):
			return nil, err
		case errors.Is(err, identity.ErrMFARequired):
			// Conditional-access policy can only be satisfied by a flow the
			// user consciously initiates; surface it instead of re-prompting.
			return nil, classify("identity", err)
		}
		// Lazy re-login: a missing session or a failed refresh falls back to
		// the interactive flow rather than surfacing a bare expiry error.
	}

	return m.loginLocked(ctx, key)
}

// acquireSilentLocked refreshes a token for the tenant without interaction.
// The broker clone bound to the tenant is cached, so repeated refreshes do
// not rediscover the tenant authority. The rotated refresh token, if any,
// is persisted back into the session.
func (m *Manager) acquireSilentLocked(ctx context.Context, tenantID string) (*identity.TokenRecord, error) {
	broker, err := m.brokerForLocked(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	record, err := broker.AcquireSilent(ctx, m.account, m.cfg.Scopes, tenantID)
	durationMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		m.inst.Metrics().RecordSilentAcquisition(ctx, tenantID, silentOutcome(err), durationMs)
		return nil, err
	}
	m.inst.Metrics().RecordSilentAcquisition(ctx, tenantID, "ok", durationMs)

	m.memory.Handle(record.TenantID).Set(record)
	if record.RefreshToken != "" {
		m.persistSessionLocked(record)
	}
	return record, nil
}

// loginLocked runs one interactive flow scoped to the tenant (empty means the
// configured default). On failure nothing is persisted and the previous state
// is restored.
func (m *Manager) loginLocked(ctx context.Context, tenantID string) (*identity.TokenRecord, error) {
	start := time.Now()
	previous := m.state
	m.setStateLocked(StateAuthenticating)

	fail := func(err error) (*identity.TokenRecord, error) {
		m.setStateLocked(previous)
		m.inst.Metrics().RecordInteractiveLogin(ctx, failureResult(err), float64(time.Since(start).Milliseconds()))
		if isContextErr(err) {
			return nil, err
		}
		return nil, classify("login", err)
	}

	broker, err := m.brokerForLocked(ctx, tenantID)
	if err != nil {
		return fail(err)
	}

	l, err := m.listen(listener.Config{
		PreferredPort: m.cfg.PreferredPort,
		Audience:      m.cfg.Audience,
		Logger:        m.logger,
	})
	if err != nil {
		return fail(err)
	}
	defer l.Close()

	req, err := broker.BeginAuthorization(l.RedirectURI(), m.cfg.Scopes)
	if err != nil {
		return fail(err)
	}

	authURL := broker.AuthorizationURL(req)
	if err := m.openURL(authURL); err != nil {
		// The flow can still finish if the user opens the URL by hand, for
		// example over SSH where no browser is reachable.
		m.inst.Metrics().RecordBrowserOpenFailure(ctx)
		m.logger.Warn("could not open the browser, visit the URL to continue signing in",
			"url", authURL, "error", err)
	}

	code, err := l.Wait(ctx)
	if err != nil {
		m.inst.Metrics().RecordCallback(ctx, false)
		if errors.Is(err, listener.ErrAuthorizationTimeout) {
			m.inst.Metrics().RecordAuthorizationTimeout(ctx)
		}
		return fail(err)
	}
	m.inst.Metrics().RecordCallback(ctx, true)

	result, err := broker.ExchangeCode(ctx, req, code)
	if err != nil {
		return fail(err)
	}

	m.account = result.Account
	m.homeTenant = result.Record.TenantID
	m.memory.Handle(result.Record.TenantID).Set(result.Record)

	if err := m.accounts.Save(m.cfg.AccountName, result.Account.HomeAccountID); err != nil {
		// The in-memory session is intact; only restore across restarts is lost.
		m.logger.Warn("failed to persist account", "error", err)
		m.inst.Metrics().RecordCacheOperation(ctx, "account", "save", "error")
	} else {
		m.inst.Metrics().RecordCacheOperation(ctx, "account", "save", "ok")
	}
	m.persistSessionLocked(result.Record)

	m.setStateLocked(StateSignedIn)
	m.inst.Metrics().RecordInteractiveLogin(ctx, "ok", float64(time.Since(start).Milliseconds()))
	m.logger.Info("signed in", "username", result.Account.Username, "tenant", result.Record.TenantID)

	return result.Record, nil
}

func (m *Manager) persistSessionLocked(record *identity.TokenRecord) {
	if m.account == nil || record.RefreshToken == "" {
		return
	}
	err := m.sessions.Save(m.cfg.AccountName, &cache.Session{
		Account:      m.account,
		RefreshToken: record.RefreshToken,
		TenantID:     m.homeTenant,
	})
	if err != nil {
		m.logger.Warn("failed to persist session", "error", err)
	}
}

func (m *Manager) setStateLocked(state State) {
	if state == m.state {
		return
	}
	m.state = state
	event := StatusEvent{State: state, Account: m.account}
	for _, o := range m.observers {
		o(event)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// silentOutcome labels a silent-acquisition failure for metrics.
func silentOutcome(err error) string {
	switch {
	case errors.Is(err, identity.ErrSilentUnavailable):
		return "unavailable"
	case errors.Is(err, identity.ErrMFARequired):
		return "mfa_required"
	default:
		return "error"
	}
}

// failureResult labels an interactive-login failure for metrics.
func failureResult(err error) string {
	switch {
	case errors.Is(err, listener.ErrAuthorizationTimeout):
		return CodeAuthorizationTimeout
	case errors.Is(err, listener.ErrAuthorizationDenied):
		return CodeAuthorizationDenied
	case errors.Is(err, listener.ErrPortConflict):
		return CodePortConflict
	case errors.Is(err, identity.ErrMFARequired):
		return CodeMFARequired
	default:
		return CodeTokenExchangeFailed
	}
}
