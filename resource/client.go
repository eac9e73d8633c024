// Package resource talks to the management plane to enumerate the tenants
// and subscriptions a signed-in account can reach. It is a pure collaborator:
// callers supply the bearer token, the package never touches the token cache.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultEndpoint is the public management-plane endpoint.
	DefaultEndpoint = "https://management.azure.com"

	apiVersion = "2022-12-01"
)

// Tenant is one directory the account is a member of.
type Tenant struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	DisplayName string `json:"displayName"`
	Domain      string `json:"defaultDomain"`
}

// Subscription is one billing scope visible to the account.
type Subscription struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscriptionId"`
	DisplayName    string `json:"displayName"`
	TenantID       string `json:"tenantId"`
	State          string `json:"state"`
}

type tenantPage struct {
	Value    []Tenant `json:"value"`
	NextLink string   `json:"nextLink"`
}

type subscriptionPage struct {
	Value    []Subscription `json:"value"`
	NextLink string         `json:"nextLink"`
}

// Options configures a management-plane client.
type Options struct {
	// Endpoint overrides the management-plane base URL. Defaults to
	// DefaultEndpoint. Used by tests to point at a fake server.
	Endpoint string

	// RetryCount bounds transparent retries on transient failures.
	// Defaults to 3.
	RetryCount int

	// Logger receives request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client lists tenants and subscriptions from the management plane.
type Client struct {
	rest   *resty.Client
	logger *slog.Logger
}

// NewClient creates a management-plane client.
func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.RetryCount == 0 {
		opts.RetryCount = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	rest := resty.New().
		SetBaseURL(opts.Endpoint).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &Client{rest: rest, logger: opts.Logger}
}

// ListTenants returns every tenant the bearer can see, in provider order.
func (c *Client) ListTenants(ctx context.Context, bearer string) ([]Tenant, error) {
	var tenants []Tenant
	url := "/tenants?api-version=" + apiVersion
	for url != "" {
		var page tenantPage
		if err := c.get(ctx, bearer, url, &page); err != nil {
			return nil, fmt.Errorf("listing tenants: %w", err)
		}
		tenants = append(tenants, page.Value...)
		url = page.NextLink
	}
	c.logger.Debug("listed tenants", "count", len(tenants))
	return tenants, nil
}

// ListSubscriptions returns every subscription the bearer can see, in
// provider order. The bearer scopes the result to one tenant.
func (c *Client) ListSubscriptions(ctx context.Context, bearer string) ([]Subscription, error) {
	var subscriptions []Subscription
	url := "/subscriptions?api-version=" + apiVersion
	for url != "" {
		var page subscriptionPage
		if err := c.get(ctx, bearer, url, &page); err != nil {
			return nil, fmt.Errorf("listing subscriptions: %w", err)
		}
		subscriptions = append(subscriptions, page.Value...)
		url = page.NextLink
	}
	c.logger.Debug("listed subscriptions", "count", len(subscriptions))
	return subscriptions, nil
}

func (c *Client) get(ctx context.Context, bearer, url string, result any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(bearer).
		SetResult(result).
		Get(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		// Bodies may echo request detail; surface only the status.
		return fmt.Errorf("management endpoint returned %s", resp.Status())
	}
	return nil
}
