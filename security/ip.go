package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address from an HTTP request.
//
// When trustProxy is false, only RemoteAddr is used. Forwarding headers are
// attacker-controlled unless a trusted proxy sets them, so the default must
// ignore them or rate limiting and audit trails can be spoofed.
//
// When trustProxy is true, X-Forwarded-For is consulted first (skipping the
// rightmost trustedProxyCount hops, which belong to our own proxies), then
// X-Real-IP, then RemoteAddr.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := extractIPFromXFF(xff, trustedProxyCount); ip != "" {
				return ip
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := strings.TrimSpace(xri); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	return extractIPFromRemoteAddr(r.RemoteAddr)
}

// extractIPFromXFF picks the client IP out of an X-Forwarded-For chain.
// The chain reads client, proxy1, proxy2, ...; the client entry is the one
// trustedProxyCount positions from the right.
func extractIPFromXFF(xff string, trustedProxyCount int) string {
	parts := strings.Split(xff, ",")
	ips := make([]string, 0, len(parts))
	for _, p := range parts {
		ip := strings.TrimSpace(p)
		if net.ParseIP(ip) != nil {
			ips = append(ips, ip)
		}
	}
	if len(ips) == 0 {
		return ""
	}

	idx := len(ips) - 1 - trustedProxyCount
	if idx < 0 {
		idx = 0
	}
	return ips[idx]
}

// extractIPFromRemoteAddr strips the port from a host:port RemoteAddr.
func extractIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
