package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CacheDir>/<key>    # key 的斜杠分段即目录层级
//
// 每个条目仅由正文文件组成，文件的 Size 由文件系统提供，访问时间记录在
// AccessIndex 中。实现需通过临时文件 + rename 保证写入原子性。
type Store interface {
	// Put 将 body 完整写入缓存并覆盖同名条目。写入失败时清理临时文件，
	// 不会留下可见的半成品。成功后刷新 key 的访问时间。
	Put(ctx context.Context, key string, body io.Reader) (*Entry, error)

	// Get 返回一个可流式读取的缓存条目，并刷新 key 的访问时间。
	// 若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key string) (*ReadResult, error)

	// IsCached 仅做存在性检查，不打开文件也不刷新访问时间。
	IsCached(key string) Status

	// Invalidate 删除正文文件并自下而上清理空目录（不触碰缓存根目录）。
	// 条目不存在时视为成功。
	Invalidate(ctx context.Context, key string) error
}

// AccessIndex 是 Store 与 Sweeper 依赖的访问时间索引视图。
type AccessIndex interface {
	AddTimestamp(key string, at time.Time)
	EstimateTimestamp(key string) (time.Time, bool)
	Remove(key string)
}

// Status 表示条目的可用状态。
type Status int

const (
	NotAvailable Status = iota
	Available
)

func (s Status) String() string {
	if s == Available {
		return "available"
	}
	return "not_available"
}

// Entry 表示一次缓存写入/命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Key       string    `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于上层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")

	// ErrOutOfBoundsKey 表示 key 解析后落在缓存根目录之外。
	ErrOutOfBoundsKey = errors.New("key resolves outside cache dir")

	// ErrReservedKey 表示 key 与临时文件命名约定冲突。
	ErrReservedKey = errors.New("key uses reserved temp file suffix")
)
