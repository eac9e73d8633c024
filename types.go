package login

import (
	"context"

	"github.com/meridianctl/login/identity"
)

// State is the manager's position in the sign-in lifecycle.
type State string

const (
	// StateSignedOut means no account is present; every token request needs
	// an interactive login first.
	StateSignedOut State = "signed_out"

	// StateAuthenticating means an interactive flow is in progress.
	StateAuthenticating State = "authenticating"

	// StateSignedIn means an account is present and tokens can be acquired.
	StateSignedIn State = "signed_in"
)

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State State

	// Account is the signed-in account, nil when signed out.
	Account *identity.Account

	// TenantID is the tenant the manager is currently scoped to.
	TenantID string
}

// StatusEvent notifies observers of a state transition.
type StatusEvent struct {
	State   State
	Account *identity.Account
}

// Observer receives status events. Observers are invoked synchronously on
// the goroutine performing the transition and must not call back into the
// manager.
type Observer func(StatusEvent)

// Subscription is one billing scope reachable by the signed-in account.
type Subscription struct {
	// ID is the provider-assigned subscription identifier.
	ID string `json:"subscriptionId"`

	// Name is the display name.
	Name string `json:"subscriptionName"`

	// TenantID is the tenant the subscription lives in.
	TenantID string `json:"tenantId"`
}

// TokenProvider is the narrow capability consumed by code that only needs
// bearer tokens and claims.
type TokenProvider interface {
	// GetToken returns a valid token for the tenant, refreshing or
	// re-authenticating as needed. An empty tenantID means the signed-in
	// account's home tenant.
	GetToken(ctx context.Context, tenantID string) (*identity.TokenRecord, error)

	// Claims returns the typed ID-token claims of the signed-in account.
	Claims() (*identity.Claims, error)
}

// SubscriptionProvider is the narrow capability consumed by code that works
// with subscription selection.
type SubscriptionProvider interface {
	// ListSubscriptions enumerates subscriptions across every reachable
	// tenant, in provider order.
	ListSubscriptions(ctx context.Context) ([]Subscription, error)

	// SetSubscription persists the active subscription choice.
	SetSubscription(id string) error

	// SelectedSubscription resolves the active subscription, optionally
	// prompting through the configured chooser when several are available.
	SelectedSubscription(ctx context.Context, promptIfMissing bool) (*Subscription, error)
}
