// Package instrumentation provides OpenTelemetry wiring for the
// authorization server: named tracers and meters per layer, pre-registered
// metric instruments for the OAuth flow and storage operations, and no-op
// providers when instrumentation is disabled so the hot path carries zero
// observability overhead.
package instrumentation
