package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// SweeperOptions 描述后台清理任务的全部依赖与预算参数。
type SweeperOptions struct {
	Store    Store
	Index    AccessIndex
	CacheDir string
	MaxBytes int64
	Interval time.Duration
	Logger   *logrus.Logger
}

// Sweeper 周期性扫描缓存目录，超出预算时按估算访问时间从旧到新删除条目，
// 直至用量回到预算之内。删除复用 Invalidate 路径，空目录清理与索引维护
// 因此与显式失效完全一致。
type Sweeper struct {
	store    Store
	index    AccessIndex
	cacheDir string
	maxBytes int64
	interval time.Duration
	logger   *logrus.Logger

	reclaimed atomic.Uint64
}

// NewSweeper 校验参数并构建 Sweeper；清理不在请求路径上，由 Run 驱动。
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Index == nil {
		return nil, errors.New("access index is required")
	}
	if opts.CacheDir == "" {
		return nil, errors.New("cache dir is required")
	}
	if opts.MaxBytes <= 0 {
		return nil, fmt.Errorf("invalid max cache size: %d", opts.MaxBytes)
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("invalid sweep interval: %s", opts.Interval)
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	abs, err := filepath.Abs(opts.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}

	return &Sweeper{
		store:    opts.Store,
		index:    opts.Index,
		cacheDir: abs,
		maxBytes: opts.MaxBytes,
		interval: opts.Interval,
		logger:   opts.Logger,
	}, nil
}

// TotalBytesReclaimed 返回服务启动以来清理掉的总字节数。
func (s *Sweeper) TotalBytesReclaimed() uint64 {
	return s.reclaimed.Load()
}

// Run 按固定间隔执行清理，直到 ctx 取消。单次失败只记录日志，不中断循环。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				s.logger.WithFields(logrus.Fields{
					"action": "cache_sweep",
				}).Warnf("sweep failed: %v", err)
			}
		}
	}
}

type sweepCandidate struct {
	key      string
	size     int64
	accessed time.Time
}

// SweepOnce 执行一轮扫描与淘汰。用量不超过预算（含相等）时不做任何删除。
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	candidates, usage, err := s.scan()
	if err != nil {
		return err
	}

	if usage <= s.maxBytes {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_sweep",
			"usage":  humanize.IBytes(uint64(usage)),
			"limit":  humanize.IBytes(uint64(s.maxBytes)),
		}).Debug("usage within budget")
		return nil
	}

	// 同一轮内排序必须稳定，避免多次部分删除互相震荡；
	// 未被索引记录的 key 视为最旧，最先淘汰。
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].accessed.Equal(candidates[j].accessed) {
			return candidates[i].accessed.Before(candidates[j].accessed)
		}
		return candidates[i].key < candidates[j].key
	})

	var freed uint64
	for _, cand := range candidates {
		if usage <= s.maxBytes {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.store.Invalidate(ctx, cand.key); err != nil {
			s.logger.WithFields(logrus.Fields{
				"action": "cache_evict",
				"key":    cand.key,
			}).Warnf("evict failed: %v", err)
			continue
		}
		usage -= cand.size
		freed += uint64(cand.size)
		s.reclaimed.Add(uint64(cand.size))
	}

	s.logger.WithFields(logrus.Fields{
		"action":    "cache_sweep",
		"usage":     humanize.IBytes(uint64(usage)),
		"limit":     humanize.IBytes(uint64(s.maxBytes)),
		"freed":     humanize.IBytes(freed),
		"reclaimed": humanize.IBytes(s.reclaimed.Load()),
	}).Info("sweep finished")
	return nil
}

// scan 遍历缓存目录，统计当前总用量并收集候选条目。保留后缀的临时文件
// 既不计入用量也不参与淘汰。
func (s *Sweeper) scan() ([]sweepCandidate, int64, error) {
	var (
		candidates []sweepCandidate
		usage      int64
	)

	err := filepath.WalkDir(s.cacheDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// 条目可能在遍历期间被并发删除。
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), TempSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		rel, err := filepath.Rel(s.cacheDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		accessed, ok := s.index.EstimateTimestamp(key)
		if !ok {
			accessed = time.Time{}
		}

		usage += info.Size()
		candidates = append(candidates, sweepCandidate{
			key:      key,
			size:     info.Size(),
			accessed: accessed,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("scan cache dir: %w", err)
	}

	return candidates, usage, nil
}
