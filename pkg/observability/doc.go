// Package observability provides OpenTelemetry tracing and metrics for this
// system's services, plus structured logging via log/slog.
//
// # Tracing and metrics
//
// Initialize once at process startup:
//
//	provider, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "attestixd",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//	})
//	defer provider.Shutdown(ctx)
//
// Track an operation end to end:
//
//	ctx, done := provider.TrackOperation(ctx, "identity.create", observability.AgentOperation(agentID, "create")...)
//	defer done(err)
//
// Record a signed-object verification outcome:
//
//	provider.RecordVerification(ctx, "credential", valid)
package observability
