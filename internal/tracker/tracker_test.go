package tracker

import (
	"fmt"
	"testing"
	"time"
)

func TestEstimateNeverUnderstatesAccessTime(t *testing.T) {
	tr := NewAccessTracker()

	base := time.Unix(1653000000, 0)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%d", i)
		at := base.Add(time.Duration(i) * time.Second)
		tr.AddTimestamp(key, at)

		got, ok := tr.EstimateTimestamp(key)
		if !ok {
			t.Fatalf("key %s: expected estimate", key)
		}
		if got.Before(at) {
			t.Fatalf("key %s: estimate %v earlier than recorded %v", key, got, at)
		}
	}
}

func TestEstimateRoundsSubSecondUp(t *testing.T) {
	tr := NewAccessTracker()
	at := time.Unix(1653000000, 999_000_000)
	tr.AddTimestamp("key", at)

	got, ok := tr.EstimateTimestamp("key")
	if !ok {
		t.Fatalf("expected estimate")
	}
	if got.Before(at) {
		t.Fatalf("estimate %v earlier than recorded %v", got, at)
	}
	if got.Sub(at) > time.Second {
		t.Fatalf("quantization error above one second: %v", got.Sub(at))
	}
}

func TestAddTimestampIsMonotone(t *testing.T) {
	tr := NewAccessTracker()
	later := time.Unix(1653000100, 0)
	earlier := time.Unix(1653000000, 0)

	tr.AddTimestamp("key", later)
	tr.AddTimestamp("key", earlier)

	got, ok := tr.EstimateTimestamp("key")
	if !ok {
		t.Fatalf("expected estimate")
	}
	if got.Before(later) {
		t.Fatalf("earlier write must not regress the estimate: got %v", got)
	}
}

func TestEstimateMissingKey(t *testing.T) {
	tr := NewAccessTracker()
	if _, ok := tr.EstimateTimestamp("never-seen"); ok {
		t.Fatalf("expected no estimate for unknown key")
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	tr := NewAccessTracker()
	tr.AddTimestamp("key", time.Unix(1653000000, 0))
	tr.Remove("key")

	if _, ok := tr.EstimateTimestamp("key"); ok {
		t.Fatalf("expected entry to be gone after remove")
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty tracker, got %d entries", tr.Len())
	}

	// Removing an absent key is a no-op.
	tr.Remove("key")
}

func TestLenCountsDistinctKeys(t *testing.T) {
	tr := NewAccessTracker()
	now := time.Now()
	tr.AddTimestamp("a", now)
	tr.AddTimestamp("b", now)
	tr.AddTimestamp("a", now.Add(time.Second))

	if tr.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", tr.Len())
	}
}
