package security

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "not expired",
			expiresAt: now.Add(time.Hour),
			want:      false,
		},
		{
			name:      "expired beyond grace",
			expiresAt: now.Add(-time.Minute),
			want:      true,
		},
		{
			name:      "within grace period",
			expiresAt: now.Add(-2 * time.Second),
			want:      false,
		},
		{
			name:      "exactly at expiry",
			expiresAt: now,
			want:      false,
		},
		{
			name:      "zero time never expires",
			expiresAt: time.Time{},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(now, tt.expiresAt); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpiredWithGracePeriod_ZeroGrace(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !IsExpiredWithGracePeriod(now, now.Add(-time.Nanosecond), 0) {
		t.Error("expected expiry with zero grace period")
	}
	if IsExpiredWithGracePeriod(now, now.Add(time.Second), 0) {
		t.Error("future expiry reported as expired")
	}
}
