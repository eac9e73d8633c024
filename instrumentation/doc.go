// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the login library.
//
// This package enables observability across the login layers through:
// - Metrics: Counters and histograms for login, refresh, and enumeration flows
// - Traces: Spans for interactive and silent acquisition across components
//
// # Quick Start
//
// Enable basic instrumentation:
//
//	import "github.com/meridianctl/login/instrumentation"
//
//	// Initialize instrumentation
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "meridianctl",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	// Pass to the manager configuration
//	manager, err := login.NewManager(ctx, cfg, login.WithInstrumentation(inst))
//
// # Available Metrics
//
// Interactive flows:
//   - login.interactive.total{result} - Interactive login attempts
//   - login.interactive.duration{result} - Attempt duration in milliseconds
//   - login.callback.received{success} - Authorization callbacks received
//   - login.browser.open_failures - Failed browser launches
//   - login.authorization.timeouts - Flows abandoned at the timeout
//
// Silent acquisition:
//   - login.silent.total{tenant, outcome} - Silent acquisition attempts
//   - login.silent.duration{outcome} - Acquisition duration in milliseconds
//
// Tenants and subscriptions:
//   - login.tenant.switches{tenant} - Tenant switches
//   - login.subscriptions.listings{tenants} - Enumeration passes
//   - login.subscriptions.tenants_skipped - Tenants skipped during enumeration
//
// Cache:
//   - login.cache.operations{store, operation, result} - Account/session cache operations
//
// # Performance
//
// When instrumentation is not configured or disabled:
//   - Zero overhead (uses no-op providers)
//   - No allocations or latency impact
//
// # Thread Safety
//
// All instrumentation operations are thread-safe and can be called concurrently from multiple goroutines.
//
// # Security Considerations
//
// IMPORTANT: This package is designed to collect observability data, not sensitive credentials.
//
// When instrumenting login flows, you MUST:
//   - NEVER log actual token values (access tokens, refresh tokens, authorization codes)
//   - NEVER log PKCE verifiers
//   - ONLY log metadata (tenant ids, outcome codes, durations)
//
// Data collected in traces and metrics may be:
//   - Persisted for extended periods in observability backends
//   - Accessible to operations teams and potentially wider audiences
//   - Subject to compliance requirements (GDPR, PCI-DSS, SOC 2, etc.)
//   - Replicated across monitoring infrastructure
package instrumentation
