package security

import (
	"fmt"
	"testing"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if !rl.Allow("10.0.0.1") {
		t.Fatal("second request within burst should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request beyond burst should be denied")
	}

	// A different identifier has its own bucket.
	if !rl.Allow("10.0.0.2") {
		t.Fatal("separate identifier should be allowed")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiterWithConfig(100, 100, 3, nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}

	if got := rl.Len(); got != 3 {
		t.Errorf("tracked identifiers = %d, want 3 after eviction", got)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiterWithConfig(100, 100, 0, nil)
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	rl.Cleanup(0)

	if got := rl.Len(); got != 0 {
		t.Errorf("tracked identifiers = %d, want 0 after cleanup", got)
	}
}
