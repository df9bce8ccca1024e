package tracker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LoadFile 从快照文件恢复索引。文件不存在时返回全新索引，这是首次启动的
// 正常路径；文件损坏则返回错误，由调用方决定是否降级为空索引。
func LoadFile(path string) (*AccessTracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewAccessTracker(), nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	t, err := FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return t, nil
}

// SaveFile 将当前索引原子写入快照文件，协议与缓存条目一致：先写临时文件，
// 成功后 rename 覆盖，失败时清理临时文件。
func (t *AccessTracker) SaveFile(path string) error {
	if path == "" {
		return errors.New("snapshot path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tempName := fmt.Sprintf("%s.%s_tmp", path, uuid.NewString())
	if err := os.WriteFile(tempName, t.ToBytes(), 0o644); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
