package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never log actual sensitive values (access tokens, refresh
// tokens, authorization codes, PKCE verifiers, etc.) in traces or metrics.
// Only log metadata such as tenant ids, outcome codes, and durations. Traces
// are persisted, replicated, and readable by wider audiences than the process
// that produced them.
const (
	// Login flow attributes - SAFE to use for metadata only
	AttrClientID    = "login.client_id"    // Public client identifier (non-secret)
	AttrTenantID    = "login.tenant_id"    // Tenant the flow is scoped to
	AttrUsername    = "login.username"     // Display login name
	AttrScope       = "login.scope"        // Requested scopes
	AttrPKCEMethod  = "login.pkce.method"  // PKCE method (S256)
	AttrAuthority   = "login.authority"    // Discovery authority URL
	AttrFlow        = "login.flow"         // "interactive" or "silent"
	AttrOutcome     = "login.outcome"      // Classified outcome code
	AttrRedirectURI = "login.redirect_uri" // Loopback redirect URI
	AttrPort        = "login.port"         // Loopback port

	// RESERVED - DO NOT USE: never set these to actual credential values.
	// Use boolean flags like "code_present" or "refresh_rotated" instead.
	AttrAuthorizationCode = "login.authorization_code" // RESERVED
	AttrAccessToken       = "login.access_token"       //nolint:gosec // RESERVED
	AttrRefreshToken      = "login.refresh_token"      //nolint:gosec // RESERVED

	// Cache attributes
	AttrCacheStore     = "cache.store"
	AttrCacheOperation = "cache.operation"
	AttrCacheResult    = "cache.result"

	// Management-plane attributes
	AttrResourceOperation = "resource.operation"
	AttrResourceStatus    = "resource.status"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
// This is a convenience wrapper that safely handles nil spans
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
// This is a convenience wrapper that safely handles nil spans
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds common login flow attributes to a span (nil-safe)
func AddFlowAttributes(span trace.Span, flow, tenantID, scope string) {
	if flow != "" {
		SetSpanAttributes(span, attribute.String(AttrFlow, flow))
	}
	if tenantID != "" {
		SetSpanAttributes(span, attribute.String(AttrTenantID, tenantID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddPKCEAttributes adds PKCE-related attributes to a span (nil-safe)
func AddPKCEAttributes(span trace.Span, method string) {
	if method != "" {
		SetSpanAttributes(span, attribute.String(AttrPKCEMethod, method))
	}
}

// AddCacheAttributes adds cache operation attributes to a span (nil-safe)
func AddCacheAttributes(span trace.Span, store, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrCacheStore, store),
		attribute.String(AttrCacheOperation, operation),
	)
}

// AddResourceAttributes adds management-plane attributes to a span (nil-safe)
func AddResourceAttributes(span trace.Span, operation string, status int) {
	SetSpanAttributes(span,
		attribute.String(AttrResourceOperation, operation),
		attribute.Int(AttrResourceStatus, status),
	)
}
