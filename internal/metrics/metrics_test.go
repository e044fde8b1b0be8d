package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("test")

	c.RecordEvent("DAOCreated", "stored")
	c.RecordEvent("DAOCreated", "stored")
	c.RecordError("receipt")
	c.SetCurrentBlock(42)
	c.ObserveTick(15 * time.Millisecond)
	c.AddSuppressed(3)

	if got := testutil.ToFloat64(c.eventsTotal.WithLabelValues("DAOCreated", "stored")); got != 2 {
		t.Fatalf("events_total=%v, want 2", got)
	}
	if got := testutil.ToFloat64(c.errorsTotal.WithLabelValues("receipt")); got != 1 {
		t.Fatalf("errors_total=%v, want 1", got)
	}
	if got := testutil.ToFloat64(c.currentBlock); got != 42 {
		t.Fatalf("current_block=%v, want 42", got)
	}
	if got := testutil.ToFloat64(c.suppressed); got != 3 {
		t.Fatalf("suppressed=%v, want 3", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordEvent("x", "y")
	c.RecordError("x")
	c.SetCurrentBlock(1)
	c.ObserveTick(time.Second)
	c.AddSuppressed(1)
	c.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	c.RecordRateLimited("/api/daos")
	if c.Handler() == nil {
		t.Fatalf("expected default handler")
	}
}
