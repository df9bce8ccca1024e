// Package tracker keeps a compact in-memory estimate of per-key last-access
// time for the disk cache. Timestamps are quantized to whole seconds and
// rounded up at record time, so an estimate is never earlier than any access
// it absorbed; eviction ordering built on these estimates can therefore only
// err on the side of keeping an entry longer. The pair set serializes to a
// small versioned binary snapshot that survives restarts.
package tracker

import (
	"math"
	"sync"
	"time"
)

// AccessTracker 以 key → 量化秒数的映射记录访问时间。单条目的内存开销仅为
// map 槽位加 4 字节时间戳，可承载数十万 key；精确 LRU 被有意舍弃。
type AccessTracker struct {
	mu      sync.RWMutex
	entries map[string]uint32
}

// NewAccessTracker 构建空索引。
func NewAccessTracker() *AccessTracker {
	return &AccessTracker{entries: make(map[string]uint32)}
}

// AddTimestamp 记录 key 在 at 时刻被访问。同一 key 的重复记录只会单调向前，
// 较早的时间不会覆盖较晚的值。
func (t *AccessTracker) AddTimestamp(key string, at time.Time) {
	q := quantize(at)

	t.mu.Lock()
	if prev, ok := t.entries[key]; !ok || q >= prev {
		t.entries[key] = q
	}
	t.mu.Unlock()
}

// EstimateTimestamp 返回 key 的量化访问时间估计。估计值保证不早于任何一次
// 真实记录；key 从未被记录时返回 false。
func (t *AccessTracker) EstimateTimestamp(key string) (time.Time, bool) {
	t.mu.RLock()
	q, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(q), 0), true
}

// Remove 丢弃 key 的记录，供失效与淘汰清理调用。
func (t *AccessTracker) Remove(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Len 返回当前记录的 key 数量。
func (t *AccessTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// quantize 将时间向上取整到秒。向上取整保证估计值 ≥ 真实访问时间。
func quantize(at time.Time) uint32 {
	sec := at.Unix()
	if at.Nanosecond() > 0 {
		sec++
	}
	if sec < 0 {
		return 0
	}
	if sec > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sec)
}
