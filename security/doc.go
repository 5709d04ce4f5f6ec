// Package security bundles the cross-cutting protections of the
// authorization server: response security headers, clock-skew tolerant
// expiry checks, per-client-IP rate limiting, structured audit logging
// with PII hashing, client IP extraction behind proxies, request ID
// propagation, and AES-256-GCM encryption at rest for stored records
// that carry user-chosen claim values.
package security
