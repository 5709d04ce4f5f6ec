// Package server implements the OAuth 2.0 authorization server core: the
// Authorization Code flow with OpenID Connect ID tokens. It validates
// authorization requests, records consent decisions, mints and atomically
// redeems single-use authorization codes, authenticates clients, and issues
// access tokens and signed ID tokens.
//
// The package is transport-agnostic. The root package adapts it to HTTP;
// this one works in terms of typed requests, decisions, and responses.
package server
