package httpapi

import (
	"fmt"
	"testing"
	"time"
)

func TestLimiterEvictsIdleClients(t *testing.T) {
	l := NewLimiter(0.001, 1)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	for i := 0; i < 50; i++ {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	if l.Len() != 50 {
		t.Fatalf("expected 50 tracked clients, got %d", l.Len())
	}

	clock = clock.Add(DefaultLimiterIdleTTL / 2)
	l.Allow("10.0.0.1")
	clock = clock.Add(DefaultLimiterIdleTTL/2 + time.Second)
	l.Allow("10.0.0.200")
	if l.Len() != 2 {
		t.Fatalf("expected idle clients evicted, got %d", l.Len())
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("expected surviving bucket to stay drained")
	}
}
