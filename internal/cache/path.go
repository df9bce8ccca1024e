package cache

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// TempSuffix 是写入中条目使用的保留后缀，带该后缀的 key 不允许被直接寻址。
const TempSuffix = "_tmp"

// resolveEntryPath 将相对 key 解析为 CacheDir 下的绝对路径。解析是纯词法的
// （折叠 "."/".."，不访问文件系统），结果必须是 baseDir 的真子孙：等于
// baseDir、逃出 baseDir、或与 baseDir 仅共享字符串前缀的兄弟目录一律拒绝。
// baseDir 必须已是清理过的绝对路径。
func resolveEntryPath(baseDir, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrOutOfBoundsKey)
	}
	if path.IsAbs(key) || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %s", ErrOutOfBoundsKey, key)
	}
	if strings.HasSuffix(key, TempSuffix) {
		return "", fmt.Errorf("%w: %s", ErrReservedKey, key)
	}

	// Join 会顺带 Clean，".." 在此处向上折叠而不是被吞掉。
	target := filepath.Join(baseDir, filepath.FromSlash(key))
	if target == baseDir {
		return "", fmt.Errorf("%w: %s", ErrOutOfBoundsKey, key)
	}
	if !strings.HasPrefix(target, baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s, which is outside of cache dir", ErrOutOfBoundsKey, key)
	}
	return target, nil
}
