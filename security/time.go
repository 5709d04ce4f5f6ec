package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the default grace period applied to
	// expiry checks for authorization codes and access tokens. It prevents
	// false expirations caused by clock drift between the hosts that issue
	// and redeem credentials; 5 seconds covers typical NTP drift while
	// keeping the effective lifetime extension negligible.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired checks expiry at the given instant with the default grace period.
func IsExpired(now, expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(now, expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks expiry at the given instant with a custom
// grace period. A zero expiresAt means no expiration.
func IsExpiredWithGracePeriod(now, expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(gracePeriod))
}
