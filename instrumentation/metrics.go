package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the login library
type Metrics struct {
	// Interactive flow metrics
	InteractiveLogins     metric.Int64Counter
	InteractiveDuration   metric.Float64Histogram
	CallbacksReceived     metric.Int64Counter
	BrowserOpenFailures   metric.Int64Counter
	AuthorizationTimeouts metric.Int64Counter

	// Silent acquisition metrics
	SilentAcquisitions metric.Int64Counter
	SilentDuration     metric.Float64Histogram

	// Tenant and subscription metrics
	TenantSwitches       metric.Int64Counter
	SubscriptionListings metric.Int64Counter
	TenantsSkipped       metric.Int64Counter

	// Cache metrics
	CacheOperations metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	managerMeter := inst.Meter("manager")
	identityMeter := inst.Meter("identity")
	cacheMeter := inst.Meter("cache")

	var err error
	m.InteractiveLogins, err = managerMeter.Int64Counter(
		"login.interactive.total",
		metric.WithDescription("Number of interactive login attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create interactive.total counter: %w", err)
	}

	m.InteractiveDuration, err = managerMeter.Float64Histogram(
		"login.interactive.duration",
		metric.WithDescription("Interactive login duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create interactive.duration histogram: %w", err)
	}

	m.CallbacksReceived, err = managerMeter.Int64Counter(
		"login.callback.received",
		metric.WithDescription("Number of authorization callbacks received"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.received counter: %w", err)
	}

	m.BrowserOpenFailures, err = managerMeter.Int64Counter(
		"login.browser.open_failures",
		metric.WithDescription("Number of failed attempts to open the system browser"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser.open_failures counter: %w", err)
	}

	m.AuthorizationTimeouts, err = managerMeter.Int64Counter(
		"login.authorization.timeouts",
		metric.WithDescription("Number of authorization flows that timed out"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.timeouts counter: %w", err)
	}

	m.SilentAcquisitions, err = identityMeter.Int64Counter(
		"login.silent.total",
		metric.WithDescription("Number of silent token acquisition attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create silent.total counter: %w", err)
	}

	m.SilentDuration, err = identityMeter.Float64Histogram(
		"login.silent.duration",
		metric.WithDescription("Silent acquisition duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create silent.duration histogram: %w", err)
	}

	m.TenantSwitches, err = managerMeter.Int64Counter(
		"login.tenant.switches",
		metric.WithDescription("Number of tenant switches"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant.switches counter: %w", err)
	}

	m.SubscriptionListings, err = managerMeter.Int64Counter(
		"login.subscriptions.listings",
		metric.WithDescription("Number of subscription enumerations"),
		metric.WithUnit("{listing}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions.listings counter: %w", err)
	}

	m.TenantsSkipped, err = managerMeter.Int64Counter(
		"login.subscriptions.tenants_skipped",
		metric.WithDescription("Number of tenants skipped during enumeration"),
		metric.WithUnit("{tenant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions.tenants_skipped counter: %w", err)
	}

	m.CacheOperations, err = cacheMeter.Int64Counter(
		"login.cache.operations",
		metric.WithDescription("Number of account/session cache operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache.operations counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordInteractiveLogin records one interactive login attempt and its duration
func (m *Metrics) RecordInteractiveLogin(ctx context.Context, result string, durationMs float64) {
	m.InteractiveLogins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
	m.InteractiveDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordCallback records one authorization callback
func (m *Metrics) RecordCallback(ctx context.Context, success bool) {
	m.CallbacksReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordBrowserOpenFailure records a failed browser launch
func (m *Metrics) RecordBrowserOpenFailure(ctx context.Context) {
	m.BrowserOpenFailures.Add(ctx, 1)
}

// RecordAuthorizationTimeout records a timed-out authorization flow
func (m *Metrics) RecordAuthorizationTimeout(ctx context.Context) {
	m.AuthorizationTimeouts.Add(ctx, 1)
}

// RecordSilentAcquisition records one silent acquisition attempt
// outcome is one of "ok", "unavailable", "mfa_required", "error"
func (m *Metrics) RecordSilentAcquisition(ctx context.Context, tenantID, outcome string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("tenant", tenantID),
		attribute.String("outcome", outcome),
	}
	m.SilentAcquisitions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.SilentDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordTenantSwitch records a tenant switch
func (m *Metrics) RecordTenantSwitch(ctx context.Context, tenantID string) {
	m.TenantSwitches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenantID),
	))
}

// RecordSubscriptionListing records one enumeration pass
func (m *Metrics) RecordSubscriptionListing(ctx context.Context, tenants, skipped int) {
	m.SubscriptionListings.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("tenants", tenants),
	))
	if skipped > 0 {
		m.TenantsSkipped.Add(ctx, int64(skipped))
	}
}

// RecordCacheOperation records an account or session cache operation
func (m *Metrics) RecordCacheOperation(ctx context.Context, store, operation, result string) {
	m.CacheOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}
