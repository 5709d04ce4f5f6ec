package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SetSecurityHeaders(rr, "https://auth.example.com")

	tests := []struct {
		header string
		want   string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store, no-cache, must-revalidate, private"},
		{"Pragma", "no-cache"},
	}
	for _, tt := range tests {
		if got := rr.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}

	if got := rr.Header().Get("Strict-Transport-Security"); !strings.Contains(got, "max-age=31536000") {
		t.Errorf("HSTS header = %q, want max-age=31536000", got)
	}
}

func TestSetSecurityHeaders_NoHSTSOverHTTP(t *testing.T) {
	rr := httptest.NewRecorder()
	SetSecurityHeaders(rr, "http://localhost:8000")

	if got := rr.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set for http server: %q", got)
	}
}

func TestSetPageSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SetPageSecurityHeaders(rr, "https://auth.example.com")

	csp := rr.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "style-src 'unsafe-inline'") {
		t.Errorf("page CSP missing inline style allowance: %q", csp)
	}
	if strings.Contains(csp, "script-src") {
		t.Errorf("page CSP should not open script-src: %q", csp)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}
