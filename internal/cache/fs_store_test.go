package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiercache/tiercache/internal/tracker"
)

func TestStorePutAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	key := "topic/partition_0/segment.bin"

	payload := bytes.Repeat([]byte("a"), 4096)
	entry, err := store.Put(context.Background(), key, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	if entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("put size mismatch: %d", entry.SizeBytes)
	}

	result, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("cached payload mismatch: %d bytes", len(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
}

func TestStorePutOverwritesFully(t *testing.T) {
	store, _ := newTestStore(t)
	key := "topic/segment.bin"

	first := bytes.Repeat([]byte("a"), 8192)
	if _, err := store.Put(context.Background(), key, bytes.NewReader(first)); err != nil {
		t.Fatalf("first put error: %v", err)
	}

	second := bytes.Repeat([]byte("b"), 100)
	if _, err := store.Put(context.Background(), key, bytes.NewReader(second)); err != nil {
		t.Fatalf("second put error: %v", err)
	}

	result, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if !bytes.Equal(body, second) {
		t.Fatalf("expected full overwrite, got %d bytes", len(body))
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing/segment.bin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreIsCached(t *testing.T) {
	store, idx := newTestStore(t)
	key := "topic/segment.bin"

	if got := store.IsCached(key); got != NotAvailable {
		t.Fatalf("expected not_available before put, got %s", got)
	}
	if _, err := store.Put(context.Background(), key, strings.NewReader("data")); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if got := store.IsCached(key); got != Available {
		t.Fatalf("expected available after put, got %s", got)
	}

	// IsCached is a pure observer and must not refresh the access time.
	before, ok := idx.EstimateTimestamp(key)
	if !ok {
		t.Fatalf("expected key to be tracked after put")
	}
	store.IsCached(key)
	after, _ := idx.EstimateTimestamp(key)
	if !after.Equal(before) {
		t.Fatalf("IsCached must not touch the access index: %v -> %v", before, after)
	}
}

func TestStoreInvalidateIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Invalidate(context.Background(), "never/put.bin"); err != nil {
		t.Fatalf("invalidate of missing key should succeed, got %v", err)
	}
}

func TestStoreInvalidateRemovesEntryAndIndex(t *testing.T) {
	store, idx := newTestStore(t)
	key := "topic/segment.bin"

	if _, err := store.Put(context.Background(), key, strings.NewReader("data")); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Invalidate(context.Background(), key); err != nil {
		t.Fatalf("invalidate error: %v", err)
	}
	if got := store.IsCached(key); got != NotAvailable {
		t.Fatalf("expected not_available after invalidate, got %s", got)
	}
	if _, ok := idx.EstimateTimestamp(key); ok {
		t.Fatalf("expected index entry to be removed")
	}
}

func TestStoreInvalidatePrunesEmptyDirs(t *testing.T) {
	store, _ := newTestStore(t)
	base := store.(*fileStore).baseDir
	key := "unique_prefix/test_topic/segment.bin"

	if _, err := store.Put(context.Background(), key, strings.NewReader("data")); err != nil {
		t.Fatalf("put error: %v", err)
	}
	sibling := "unique_prefix/other_topic/segment.bin"
	if _, err := store.Put(context.Background(), sibling, strings.NewReader("data")); err != nil {
		t.Fatalf("put sibling error: %v", err)
	}

	if err := store.Invalidate(context.Background(), key); err != nil {
		t.Fatalf("invalidate error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(base, "unique_prefix", "test_topic")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected empty dir to be pruned, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "unique_prefix", "other_topic")); err != nil {
		t.Fatalf("sibling dir must survive: %v", err)
	}

	if err := store.Invalidate(context.Background(), sibling); err != nil {
		t.Fatalf("invalidate sibling error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "unique_prefix")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected shared parent to be pruned, got %v", err)
	}
	if _, err := os.Stat(base); err != nil {
		t.Fatalf("cache root must never be removed: %v", err)
	}
}

func TestStoreRejectsOutOfBoundsKey(t *testing.T) {
	store, _ := newTestStore(t)
	base := store.(*fileStore).baseDir
	key := "../escape/file.bin"

	if _, err := store.Put(context.Background(), key, strings.NewReader("data")); !errors.Is(err, ErrOutOfBoundsKey) {
		t.Fatalf("put: expected ErrOutOfBoundsKey, got %v", err)
	}
	if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrOutOfBoundsKey) {
		t.Fatalf("get: expected ErrOutOfBoundsKey, got %v", err)
	}
	if err := store.Invalidate(context.Background(), key); !errors.Is(err, ErrOutOfBoundsKey) {
		t.Fatalf("invalidate: expected ErrOutOfBoundsKey, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(base), "escape")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no file may be created outside the cache root")
	}
}

func TestStoreRejectsReservedKey(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Put(context.Background(), "segment.bin_tmp", strings.NewReader("data")); !errors.Is(err, ErrReservedKey) {
		t.Fatalf("expected ErrReservedKey, got %v", err)
	}
}

func TestStorePutFailureLeavesNoTrace(t *testing.T) {
	store, idx := newTestStore(t)
	base := store.(*fileStore).baseDir
	key := "topic/segment.bin"

	broken := io.MultiReader(strings.NewReader("partial"), failingReader{})
	if _, err := store.Put(context.Background(), key, broken); err == nil {
		t.Fatalf("expected put to fail")
	}

	if got := store.IsCached(key); got != NotAvailable {
		t.Fatalf("failed put must not be visible, got %s", got)
	}
	if _, ok := idx.EstimateTimestamp(key); ok {
		t.Fatalf("failed put must not touch the access index")
	}

	entries, err := os.ReadDir(filepath.Join(base, "topic"))
	if err == nil && len(entries) > 0 {
		t.Fatalf("expected no leftover temp files, found %d", len(entries))
	}
}

func TestStoreTempFilesInvisible(t *testing.T) {
	store, _ := newTestStore(t)
	base := store.(*fileStore).baseDir

	pending := filepath.Join(base, "segment.bin.0123_tmp")
	if err := os.WriteFile(pending, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write pending file error: %v", err)
	}

	if got := store.IsCached("segment.bin.0123_tmp"); got != NotAvailable {
		t.Fatalf("temp files must not be addressable, got %s", got)
	}
	if _, err := store.Get(context.Background(), "segment.bin.0123_tmp"); !errors.Is(err, ErrReservedKey) {
		t.Fatalf("expected ErrReservedKey, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk exploded")
}

// newTestStore returns a Store backed by a temporary directory plus the
// access tracker it records into.
func newTestStore(t *testing.T) (Store, *tracker.AccessTracker) {
	t.Helper()
	idx := tracker.NewAccessTracker()
	store, err := NewStore(t.TempDir(), idx)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, idx
}

// touchAccess bumps a key's recorded access time, used by sweeper tests to
// order eviction candidates deterministically.
func touchAccess(idx *tracker.AccessTracker, key string, at time.Time) {
	idx.AddTimestamp(key, at)
}
