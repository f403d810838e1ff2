package system

import (
	"testing"
	"time"
)

func TestNowIsUTCAndCurrent(t *testing.T) {
	t.Parallel()

	clock := New()
	now := clock.Now()

	if now.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", now.Location())
	}
	if d := time.Since(now); d < 0 || d > time.Minute {
		t.Fatalf("clock drift too large: %v", d)
	}
}
