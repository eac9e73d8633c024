package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/meridianctl/login/identity"
)

// ListSubscriptions enumerates subscriptions across every tenant the account
// can reach, in the order the provider returns the tenants. Tenants whose
// token acquisition requires multi-factor interaction are skipped with one
// logged notice each; other per-tenant failures are skipped the same way.
// Partial results are returned rather than failing the whole enumeration.
func (m *Manager) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()
	return m.listSubscriptionsLocked(ctx)
}

func (m *Manager) listSubscriptionsLocked(ctx context.Context) ([]Subscription, error) {
	base, err := m.getTokenLocked(ctx, "")
	if err != nil {
		return nil, err
	}

	tenants, err := m.resources.ListTenants(ctx, base.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tenants: %w", err)
	}

	var subs []Subscription
	skipped := 0
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		record, err := m.tenantTokenLocked(ctx, base, tenant.TenantID)
		if err != nil {
			skipped++
			if errors.Is(err, identity.ErrMFARequired) {
				m.logger.Info("skipping tenant, multi-factor sign-in required",
					"tenant", tenant.TenantID, "name", tenant.DisplayName)
			} else {
				m.logger.Warn("skipping tenant, token acquisition failed",
					"tenant", tenant.TenantID, "error", err)
			}
			continue
		}

		tenantSubs, err := m.resources.ListSubscriptions(ctx, record.AccessToken)
		if err != nil {
			skipped++
			m.logger.Warn("skipping tenant, subscription listing failed",
				"tenant", tenant.TenantID, "error", err)
			continue
		}

		for _, s := range tenantSubs {
			tenantID := s.TenantID
			if tenantID == "" {
				tenantID = tenant.TenantID
			}
			subs = append(subs, Subscription{
				ID:       s.SubscriptionID,
				Name:     s.DisplayName,
				TenantID: tenantID,
			})
		}
	}

	m.lastSubs = subs
	m.inst.Metrics().RecordSubscriptionListing(ctx, len(tenants), skipped)
	return subs, nil
}

// tenantTokenLocked resolves a token for one tenant during enumeration.
// Silent only; enumeration never opens a browser.
func (m *Manager) tenantTokenLocked(ctx context.Context, base *identity.TokenRecord, tenantID string) (*identity.TokenRecord, error) {
	if tenantID == "" || tenantID == base.TenantID {
		return base, nil
	}
	if record := m.memory.Handle(tenantID).Current(); record.Valid(time.Now()) {
		return record, nil
	}
	return m.acquireSilentLocked(ctx, tenantID)
}

// SetSubscription persists the active subscription. The id must appear in
// the most recent enumeration. Selecting a subscription in another tenant
// does not re-scope authentication; callers pass the selection's TenantID to
// GetToken, and only SwitchTenant changes the default tenant.
func (m *Manager) SetSubscription(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.lastSubs {
		if m.lastSubs[i].ID == id {
			if err := m.writeSelectionLocked(&m.lastSubs[i]); err != nil {
				return err
			}
			m.selected = &m.lastSubs[i]
			return nil
		}
	}
	return NewError(CodeSubscriptionNotFound, "manager",
		fmt.Sprintf("subscription %q was not found in the last enumeration", id), nil)
}

// SelectedSubscription resolves the active subscription. A persisted
// selection wins; with exactly one candidate it is selected automatically;
// with several, the chooser is consulted when promptIfMissing is set.
// (nil, nil) means no selection could be made.
func (m *Manager) SelectedSubscription(ctx context.Context, promptIfMissing bool) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restoreLocked()

	if m.selected != nil {
		return m.selected, nil
	}
	if selected := m.readSelectionLocked(); selected != nil {
		m.selected = selected
		return selected, nil
	}

	subs := m.lastSubs
	if len(subs) == 0 {
		var err error
		subs, err = m.listSubscriptionsLocked(ctx)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case len(subs) == 0:
		return nil, nil
	case len(subs) == 1:
		if err := m.writeSelectionLocked(&subs[0]); err != nil {
			return nil, err
		}
		m.selected = &subs[0]
		return &subs[0], nil
	case promptIfMissing && m.chooser != nil:
		choice, err := m.chooser(ctx, subs)
		if err != nil {
			return nil, err
		}
		if choice == nil {
			return nil, nil
		}
		if err := m.writeSelectionLocked(choice); err != nil {
			return nil, err
		}
		m.selected = choice
		return choice, nil
	default:
		return nil, nil
	}
}

func (m *Manager) readSelectionLocked() *Subscription {
	data, err := os.ReadFile(m.selectionPath)
	if err != nil {
		return nil
	}
	var selected Subscription
	if err := json.Unmarshal(data, &selected); err != nil || selected.ID == "" {
		m.logger.Warn("subscription selection file unreadable, ignoring", "error", err)
		return nil
	}
	return &selected
}

func (m *Manager) writeSelectionLocked(s *Subscription) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal subscription selection: %w", err)
	}
	if err := os.MkdirAll(m.cfg.ConfigDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.selectionPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write subscription selection: %w", err)
	}
	return nil
}
