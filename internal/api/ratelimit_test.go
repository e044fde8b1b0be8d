package api

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLimiterStoreCleanup(t *testing.T) {
	s := newLimiterStore(rate.Every(time.Hour), 1, time.Minute)

	if !s.Allow("a") {
		t.Fatalf("first request must pass")
	}
	if s.Allow("a") {
		t.Fatalf("second request must be limited")
	}
	if !s.Allow("b") {
		t.Fatalf("keys must be independent")
	}

	s.cleanup(time.Now().Add(2 * time.Minute))
	if n := s.size(); n != 0 {
		t.Fatalf("expected idle keys removed, have %d", n)
	}
	if !s.Allow("a") {
		t.Fatalf("forgotten key starts with a full bucket")
	}
}
