package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewStore 以 baseDir 为根目录构建磁盘缓存，单个分片复用一份实例。
// index 记录每个 key 的访问时间，供后台清理挑选淘汰对象。
func NewStore(baseDir string, index AccessIndex) (Store, error) {
	if baseDir == "" {
		return nil, errors.New("cache dir required")
	}
	if index == nil {
		return nil, errors.New("access index required")
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &fileStore{
		baseDir: abs,
		index:   index,
		now:     time.Now,
		locks:   make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一 key 并发写入/删除；读路径不加锁，
// 由临时文件 + rename 协议保证可见性。
type fileStore struct {
	baseDir string
	index   AccessIndex
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Put(ctx context.Context, key string, body io.Reader) (*Entry, error) {
	filePath, err := resolveEntryPath(s.baseDir, key)
	if err != nil {
		return nil, err
	}

	unlock := s.lockEntry(key)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create entry dir: %w", err)
	}

	tempName := fmt.Sprintf("%s.%s%s", filePath, uuid.NewString(), TempSuffix)
	tempFile, err := os.OpenFile(tempName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp entry: %w", err)
	}

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, fmt.Errorf("write temp entry: %w", err)
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, fmt.Errorf("commit entry: %w", err)
	}

	modTime := s.now()
	s.index.AddTimestamp(key, modTime)

	return &Entry{
		Key:       key,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}, nil
}

func (s *fileStore) Get(ctx context.Context, key string) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := resolveEntryPath(s.baseDir, key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat entry: %w", err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open entry: %w", err)
	}

	s.index.AddTimestamp(key, s.now())

	return &ReadResult{
		Entry: Entry{
			Key:       key,
			FilePath:  filePath,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fileStore) IsCached(key string) Status {
	filePath, err := resolveEntryPath(s.baseDir, key)
	if err != nil {
		return NotAvailable
	}
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return NotAvailable
	}
	return Available
}

func (s *fileStore) Invalidate(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	filePath, err := resolveEntryPath(s.baseDir, key)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(key)
	defer unlock()

	if err := os.Remove(filePath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove entry: %w", err)
		}
	}
	s.index.Remove(key)

	pruneEmptyDirs(filepath.Dir(filePath), s.baseDir)
	return nil
}

// pruneEmptyDirs 自 start 逐级向上删除空目录，到 stop（缓存根）为止。
// 目录非空时 os.Remove 失败，即为终止条件。
func pruneEmptyDirs(start, stop string) {
	prefix := stop + string(filepath.Separator)
	for dir := start; dir != stop && strings.HasPrefix(dir, prefix); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
