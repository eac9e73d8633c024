package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSpanHelpersNilSafe(t *testing.T) {
	// All helpers must tolerate a nil span.
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "boom")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddFlowAttributes(nil, "interactive", "tenant-1", "openid")
	AddPKCEAttributes(nil, "S256")
	AddCacheAttributes(nil, "account", "save")
	AddResourceAttributes(nil, "list_subscriptions", 200)
}

func TestSpanHelpersWithNoopSpan(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, span := inst.Tracer("manager").Start(context.Background(), "test")

	RecordError(span, errors.New("boom"))
	SetSpanSuccess(span)
	AddFlowAttributes(span, "silent", "tenant-1", "openid profile")
	AddPKCEAttributes(span, "S256")
	span.End()
}
