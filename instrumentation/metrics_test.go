package instrumentation

import (
	"context"
	"testing"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()

	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return inst.Metrics()
}

func TestMetricsInstrumentsCreated(t *testing.T) {
	m := newTestMetrics(t)

	if m.InteractiveLogins == nil {
		t.Error("InteractiveLogins is nil")
	}
	if m.InteractiveDuration == nil {
		t.Error("InteractiveDuration is nil")
	}
	if m.SilentAcquisitions == nil {
		t.Error("SilentAcquisitions is nil")
	}
	if m.SubscriptionListings == nil {
		t.Error("SubscriptionListings is nil")
	}
	if m.CacheOperations == nil {
		t.Error("CacheOperations is nil")
	}
}

func TestRecordingHelpersDoNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInteractiveLogin(ctx, "ok", 1234.5)
	m.RecordInteractiveLogin(ctx, "authorization_timeout", 300000)
	m.RecordCallback(ctx, true)
	m.RecordCallback(ctx, false)
	m.RecordBrowserOpenFailure(ctx)
	m.RecordAuthorizationTimeout(ctx)
	m.RecordSilentAcquisition(ctx, "tenant-1", "ok", 87.2)
	m.RecordSilentAcquisition(ctx, "tenant-2", "mfa_required", 52.0)
	m.RecordTenantSwitch(ctx, "tenant-1")
	m.RecordSubscriptionListing(ctx, 3, 1)
	m.RecordSubscriptionListing(ctx, 1, 0)
	m.RecordCacheOperation(ctx, "account", "save", "ok")
}
