// Package storage defines the persistence interfaces for the authorization
// server: registered clients, resource-owner accounts, single-use
// authorization codes, and issued access tokens.
//
// Implementations must honor the atomicity contract of
// FlowStore.AtomicRedeemAuthorizationCode: of any number of concurrent
// redemption attempts for the same code, exactly one may succeed. The
// in-memory backend (storage/memory) does this under a write lock; the
// Valkey backend (storage/valkey) uses a Lua script.
package storage
