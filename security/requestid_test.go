package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()

	if a == b {
		t.Error("two generated request IDs are identical")
	}
	if !requestIDPattern.MatchString(a) {
		t.Errorf("generated ID %q does not match its own validation pattern", a)
	}
}

func TestEnsureRequestID_PassesValidInbound(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(RequestIDHeader, "upstream-id-42")
	rr := httptest.NewRecorder()

	r = EnsureRequestID(rr, r)

	if got := GetRequestID(r.Context()); got != "upstream-id-42" {
		t.Errorf("context request ID = %q, want upstream-id-42", got)
	}
	if got := rr.Header().Get(RequestIDHeader); got != "upstream-id-42" {
		t.Errorf("echoed request ID = %q, want upstream-id-42", got)
	}
}

func TestEnsureRequestID_RejectsInjection(t *testing.T) {
	tests := []string{
		"bad\r\nSet-Cookie: x=1",
		strings.Repeat("a", 200),
		"",
		"spaces not allowed",
	}

	for _, inbound := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if inbound != "" {
			r.Header.Set(RequestIDHeader, inbound)
		}
		rr := httptest.NewRecorder()

		r = EnsureRequestID(rr, r)

		got := GetRequestID(r.Context())
		if got == inbound {
			t.Errorf("invalid inbound ID %q was accepted", inbound)
		}
		if !requestIDPattern.MatchString(got) {
			t.Errorf("replacement ID %q is not valid", got)
		}
	}
}
