package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets strict security headers for OAuth protocol
// responses (token endpoint, JSON errors). No resource loading of any kind
// is allowed and responses must never be cached.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	// X-Frame-Options: Prevent clickjacking attacks
	w.Header().Set("X-Frame-Options", "DENY")

	// X-Content-Type-Options: Prevent MIME type sniffing
	w.Header().Set("X-Content-Type-Options", "nosniff")

	// Content-Security-Policy: no inline scripts, no external resources
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	// Referrer-Policy: Don't leak referrer information
	w.Header().Set("Referrer-Policy", "no-referrer")

	setHSTS(w, serverURL)

	// Cache-Control: Prevent caching of sensitive OAuth responses
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}

// SetPageSecurityHeaders sets security headers for the server-rendered HTML
// pages (login prompt, consent form, error page). The consent form uses
// inline styles, so the CSP allows 'unsafe-inline' for styles only; scripts
// stay blocked.
func SetPageSecurityHeaders(w http.ResponseWriter, serverURL string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; style-src 'unsafe-inline'; form-action 'self'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	setHSTS(w, serverURL)
	w.Header().Set("Cache-Control", "no-store")
}

// setHSTS enforces HTTPS for a year when the server itself is served over it.
func setHSTS(w http.ResponseWriter, serverURL string) {
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}
