package login

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/meridianctl/login/identity"
	"github.com/meridianctl/login/identity/mock"
	"github.com/meridianctl/login/resource"
)

// recordingHandler collects log records so tests can count notices.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(message string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Message == message {
			n++
		}
	}
	return n
}

// fakeResources serves canned tenants and per-bearer subscriptions.
type fakeResources struct {
	tenants       []resource.Tenant
	subsByBearer  map[string][]resource.Subscription
	tenantErr     error
	listTenantsN  int
	listSubsCalls []string
}

func (f *fakeResources) ListTenants(ctx context.Context, bearer string) ([]resource.Tenant, error) {
	f.listTenantsN++
	if f.tenantErr != nil {
		return nil, f.tenantErr
	}
	return f.tenants, nil
}

func (f *fakeResources) ListSubscriptions(ctx context.Context, bearer string) ([]resource.Subscription, error) {
	f.listSubsCalls = append(f.listSubsCalls, bearer)
	return f.subsByBearer[bearer], nil
}

// multiTenantSetup signs a manager into the mock home tenant and wires three
// tenants behind it: the home tenant, one demanding multi-factor interaction,
// and one reachable silently.
func multiTenantSetup(t *testing.T) (*Manager, *mock.Broker, *fakeResources) {
	t.Helper()

	broker := mock.NewBroker()
	broker.AcquireSilentFunc = func(ctx context.Context, account *identity.Account, scopes []string, tenantID string) (*identity.TokenRecord, error) {
		if tenantID == "tenant-guarded" {
			return nil, identity.ErrMFARequired
		}
		return mock.TestRecord(tenantID), nil
	}

	resources := &fakeResources{
		tenants: []resource.Tenant{
			{TenantID: "mock-tenant", DisplayName: "Home"},
			{TenantID: "tenant-guarded", DisplayName: "Guarded"},
			{TenantID: "tenant-open", DisplayName: "Open"},
		},
		subsByBearer: map[string][]resource.Subscription{
			"mock-access-token-mock-tenant": {
				{SubscriptionID: "sub-1", DisplayName: "Production", TenantID: "mock-tenant"},
			},
			"mock-access-token-tenant-open": {
				{SubscriptionID: "sub-2", DisplayName: "Staging", TenantID: "tenant-open"},
				{SubscriptionID: "sub-3", DisplayName: "Dev"},
			},
		},
	}

	m := newTestManager(t, broker, WithResourceClient(resources))
	if _, err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return m, broker, resources
}

func TestListSubscriptions_SkipsGuardedTenant(t *testing.T) {
	m, _, _ := multiTenantSetup(t)

	subs, err := m.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("ListSubscriptions() error = %v", err)
	}

	// The guarded tenant is skipped; the rest arrive in provider order.
	wantIDs := []string{"sub-1", "sub-2", "sub-3"}
	if len(subs) != len(wantIDs) {
		t.Fatalf("len(subs) = %d, want %d: %+v", len(subs), len(wantIDs), subs)
	}
	for i, want := range wantIDs {
		if subs[i].ID != want {
			t.Errorf("subs[%d].ID = %q, want %q", i, subs[i].ID, want)
		}
	}

	// A subscription without its own tenant id inherits the tenant it was
	// listed under.
	if subs[2].TenantID != "tenant-open" {
		t.Errorf("subs[2].TenantID = %q, want %q", subs[2].TenantID, "tenant-open")
	}
}

func TestListSubscriptions_GuardedTenantNoticeLoggedOnce(t *testing.T) {
	broker := mock.NewBroker()
	broker.AcquireSilentFunc = func(ctx context.Context, account *identity.Account, scopes []string, tenantID string) (*identity.TokenRecord, error) {
		if tenantID == "tenant-guarded" {
			return nil, identity.ErrMFARequired
		}
		return mock.TestRecord(tenantID), nil
	}
	resources := &fakeResources{
		tenants: []resource.Tenant{
			{TenantID: "mock-tenant", DisplayName: "Home"},
			{TenantID: "tenant-guarded", DisplayName: "Guarded"},
			{TenantID: "tenant-open", DisplayName: "Open"},
		},
	}

	handler := &recordingHandler{}
	m, err := NewManager(Config{
		ConfigDir: t.TempDir(),
		Logger:    slog.New(handler),
	}, WithBroker(broker), autoApprove(broker), WithResourceClient(resources))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := m.ListSubscriptions(context.Background()); err != nil {
		t.Fatalf("ListSubscriptions() error = %v", err)
	}

	const notice = "skipping tenant, multi-factor sign-in required"
	if got := handler.count(notice); got != 1 {
		t.Errorf("guarded-tenant notices = %d, want exactly 1", got)
	}
}

func TestListSubscriptions_HomeTenantReusesBaseToken(t *testing.T) {
	m, broker, _ := multiTenantSetup(t)

	if _, err := m.ListSubscriptions(context.Background()); err != nil {
		t.Fatalf("ListSubscriptions() error = %v", err)
	}

	// Silent acquisition runs only for the two non-home tenants.
	if got := broker.Calls("AcquireSilent"); got != 2 {
		t.Errorf("AcquireSilent calls = %d, want 2", got)
	}
}

func TestListSubscriptions_TenantBrokersCachedAcrossRuns(t *testing.T) {
	m, broker, _ := multiTenantSetup(t)

	for i := 0; i < 2; i++ {
		if _, err := m.ListSubscriptions(context.Background()); err != nil {
			t.Fatalf("ListSubscriptions() run %d error = %v", i+1, err)
		}
	}

	// One discovery per distinct tenant; the second enumeration reuses the
	// cached tenant brokers.
	if got := broker.Calls("ForTenant"); got != 2 {
		t.Errorf("ForTenant calls = %d, want one per non-home tenant", got)
	}
}

func TestSetSubscription(t *testing.T) {
	m, _, _ := multiTenantSetup(t)

	if _, err := m.ListSubscriptions(context.Background()); err != nil {
		t.Fatalf("ListSubscriptions() error = %v", err)
	}

	if err := m.SetSubscription("sub-2"); err != nil {
		t.Fatalf("SetSubscription() error = %v", err)
	}

	selected, err := m.SelectedSubscription(context.Background(), false)
	if err != nil {
		t.Fatalf("SelectedSubscription() error = %v", err)
	}
	if selected == nil || selected.ID != "sub-2" || selected.TenantID != "tenant-open" {
		t.Errorf("selected = %+v, want sub-2 in tenant-open", selected)
	}

	// The selection file uses the stable wire keys.
	data, err := os.ReadFile(filepath.Join(m.cfg.ConfigDir, "selection.json"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, key := range []string{`"subscriptionId"`, `"subscriptionName"`, `"tenantId"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("selection file missing key %s: %s", key, data)
		}
	}
}

func TestSetSubscription_DoesNotRescopeTokens(t *testing.T) {
	m, broker, _ := multiTenantSetup(t)

	if _, err := m.ListSubscriptions(context.Background()); err != nil {
		t.Fatalf("ListSubscriptions() error = %v", err)
	}
	if err := m.SetSubscription("sub-2"); err != nil {
		t.Fatalf("SetSubscription() error = %v", err)
	}

	// Selecting a subscription in another tenant leaves the signed-in
	// tenant alone; its tokens are requested with an explicit tenant id.
	if got := m.Status().TenantID; got != "mock-tenant" {
		t.Errorf("status tenant = %q, want %q", got, "mock-tenant")
	}
	record, err := m.GetToken(context.Background(), "")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if record.TenantID != "mock-tenant" {
		t.Errorf("record tenant = %q, want %q", record.TenantID, "mock-tenant")
	}
	if got := broker.Calls("ExchangeCode"); got != 1 {
		t.Errorf("ExchangeCode calls = %d, want 1", got)
	}
}

func TestSetSubscription_NotFound(t *testing.T) {
	m, _, _ := multiTenantSetup(t)

	if _, err := m.ListSubscriptions(context.Background()); err != nil {
		t.Fatalf("ListSubscriptions() error = %v", err)
	}

	err := m.SetSubscription("sub-unknown")
	if !IsCode(err, CodeSubscriptionNotFound) {
		t.Errorf("SetSubscription() error = %v, want code %s", err, CodeSubscriptionNotFound)
	}
}

func TestSelectedSubscription_AutoSelectsSingle(t *testing.T) {
	broker := mock.NewBroker()
	resources := &fakeResources{
		tenants: []resource.Tenant{{TenantID: "mock-tenant"}},
		subsByBearer: map[string][]resource.Subscription{
			"mock-access-token-mock-tenant": {
				{SubscriptionID: "sub-only", DisplayName: "Only", TenantID: "mock-tenant"},
			},
		},
	}
	m := newTestManager(t, broker, WithResourceClient(resources))
	if _, err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	selected, err := m.SelectedSubscription(context.Background(), false)
	if err != nil {
		t.Fatalf("SelectedSubscription() error = %v", err)
	}
	if selected == nil || selected.ID != "sub-only" {
		t.Fatalf("selected = %+v, want the single candidate", selected)
	}

	// The auto-selection is persisted; the next resolution reads the file
	// without enumerating again.
	before := resources.listTenantsN
	if _, err := m.SelectedSubscription(context.Background(), false); err != nil {
		t.Fatalf("second SelectedSubscription() error = %v", err)
	}
	if resources.listTenantsN != before {
		t.Error("second resolution re-enumerated instead of reading the persisted selection")
	}
}

func TestSelectedSubscription_PromptsChooser(t *testing.T) {
	m, _, _ := multiTenantSetup(t)
	chosen := false
	WithChooser(func(ctx context.Context, subs []Subscription) (*Subscription, error) {
		chosen = true
		for i := range subs {
			if subs[i].ID == "sub-3" {
				return &subs[i], nil
			}
		}
		return nil, nil
	})(m)

	selected, err := m.SelectedSubscription(context.Background(), true)
	if err != nil {
		t.Fatalf("SelectedSubscription() error = %v", err)
	}
	if !chosen {
		t.Fatal("chooser was not consulted")
	}
	if selected == nil || selected.ID != "sub-3" {
		t.Errorf("selected = %+v, want sub-3", selected)
	}
}

func TestSelectedSubscription_AbsentWithoutPrompt(t *testing.T) {
	m, _, _ := multiTenantSetup(t)

	selected, err := m.SelectedSubscription(context.Background(), false)
	if err != nil {
		t.Fatalf("SelectedSubscription() error = %v", err)
	}
	if selected != nil {
		t.Errorf("selected = %+v, want nil with several candidates and no prompting", selected)
	}
}

func TestSignOut_KeepsSelection(t *testing.T) {
	m, _, _ := multiTenantSetup(t)

	if _, err := m.ListSubscriptions(context.Background()); err != nil {
		t.Fatalf("ListSubscriptions() error = %v", err)
	}
	if err := m.SetSubscription("sub-1"); err != nil {
		t.Fatalf("SetSubscription() error = %v", err)
	}
	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	selected, err := m.SelectedSubscription(context.Background(), false)
	if err != nil {
		t.Fatalf("SelectedSubscription() error = %v", err)
	}
	if selected == nil || selected.ID != "sub-1" {
		t.Errorf("selected after sign-out = %+v, want sub-1 to survive", selected)
	}
}
