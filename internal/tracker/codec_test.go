package tracker

import (
	"fmt"
	"testing"
	"time"
)

func TestCodecRoundTrip(t *testing.T) {
	in := NewAccessTracker()

	base := time.Unix(1653000000, 0)
	recorded := map[string]time.Time{}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("topic/partition_%d/segment.bin", i)
		at := base.Add(time.Duration(i) * time.Second)
		in.AddTimestamp(key, at)
		recorded[key] = at
	}

	out, err := FromBytes(in.ToBytes())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if out.Len() != in.Len() {
		t.Fatalf("entry count mismatch: %d vs %d", out.Len(), in.Len())
	}
	for key, at := range recorded {
		got, ok := out.EstimateTimestamp(key)
		if !ok {
			t.Fatalf("key %s lost in round trip", key)
		}
		if got.Before(at) {
			t.Fatalf("key %s: estimate %v earlier than recorded %v", key, got, at)
		}
		want, _ := in.EstimateTimestamp(key)
		if !got.Equal(want) {
			t.Fatalf("key %s: estimate changed in round trip: %v vs %v", key, got, want)
		}
	}
}

func TestCodecRoundTripEmpty(t *testing.T) {
	out, err := FromBytes(NewAccessTracker().ToBytes())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty tracker, got %d entries", out.Len())
	}
}

func TestCodecHandlesArbitraryKeyCharacters(t *testing.T) {
	in := NewAccessTracker()
	keys := []string{
		"kafka/топик-0/сегмент.bin",
		"a b/c  d/file name.log",
		"weird/~!@#$%^&()[]{}/key",
		"nested/dir_tmp/still-a-dir/file",
	}
	now := time.Now()
	for _, key := range keys {
		in.AddTimestamp(key, now)
	}

	out, err := FromBytes(in.ToBytes())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	for _, key := range keys {
		if _, ok := out.EstimateTimestamp(key); !ok {
			t.Fatalf("key %q lost in round trip", key)
		}
	}
}

func TestFromBytesEmptyInputIsFresh(t *testing.T) {
	out, err := FromBytes(nil)
	if err != nil {
		t.Fatalf("nil input should load fresh: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty tracker")
	}
}

func TestFromBytesRejectsCorruptInput(t *testing.T) {
	cases := map[string][]byte{
		"bad version":       {99, 0, 0, 0, 0},
		"short header":      {1, 0, 0},
		"truncated entry":   {1, 0, 0, 0, 1, 0, 0},
		"truncated key":     {1, 0, 0, 0, 1, 0, 0, 0, 5, 0, 10, 'a', 'b'},
		"trailing garbage":  append(NewAccessTracker().ToBytes(), 0xff),
		"count beyond data": {1, 0, 0, 0, 2, 0, 0, 0, 1, 0, 1, 'a'},
	}
	for name, data := range cases {
		if _, err := FromBytes(data); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}
