package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tiercache/tiercache/internal/cache"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/logging"
	"github.com/tiercache/tiercache/internal/server"
	"github.com/tiercache/tiercache/internal/tracker"
	"github.com/tiercache/tiercache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_dir"] = cfg.Global.CacheDir
		fields["max_cache_size"] = cfg.Global.MaxCacheSize.Int64()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 访问时间快照 → 磁盘缓存 → 清理任务 → Fiber server”
	// 顺序，保证所有请求共享同一份索引与缓存实例。
	trk, err := tracker.LoadFile(cfg.Global.AccessLogPath)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"action": "tracker_load",
			"path":   cfg.Global.AccessLogPath,
		}).Warnf("快照损坏，使用空索引: %v", err)
		trk = tracker.NewAccessTracker()
	}

	store, err := cache.NewStore(cfg.Global.CacheDir, trk)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	sweeper, err := cache.NewSweeper(cache.SweeperOptions{
		Store:    store,
		Index:    trk,
		CacheDir: cfg.Global.CacheDir,
		MaxBytes: cfg.Global.MaxCacheSize.Int64(),
		Interval: cfg.Global.SweepInterval.DurationValue(),
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化清理任务失败: %v\n", err)
		return 1
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Store:      store,
		Sweeper:    sweeper,
		Tracker:    trk,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化 HTTP 服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_dir"] = cfg.Global.CacheDir
	fields["max_cache_size"] = cfg.Global.MaxCacheSize.Int64()
	fields["sweep_interval"] = cfg.Global.SweepInterval.DurationValue().String()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["tracked_keys"] = trk.Len()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, app, sweeper, trk, logger); err != nil {
		fmt.Fprintf(stdErr, "服务退出异常: %v\n", err)
		return 1
	}
	return 0
}

// serve 在一个 errgroup 中并行运行 HTTP 监听、后台清理与快照刷写，
// 任意一方失败或收到信号后整体收敛，退出前落一次最终快照。
func serve(ctx context.Context, cfg *config.Config, app *fiber.App, sweeper *cache.Sweeper, trk *tracker.AccessTracker, logger *logrus.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	g.Go(func() error {
		return flushLoop(ctx, trk, cfg.Global.AccessLogPath, cfg.Global.AccessFlushInterval.DurationValue(), logger)
	})

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   cfg.Global.ListenPort,
		}).Info("Fiber 服务启动")
		return app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort))
	})

	g.Go(func() error {
		<-ctx.Done()
		return app.Shutdown()
	})

	err := g.Wait()

	if saveErr := trk.SaveFile(cfg.Global.AccessLogPath); saveErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "tracker_flush",
			"path":   cfg.Global.AccessLogPath,
		}).Warnf("最终快照写入失败: %v", saveErr)
	}
	return err
}

// flushLoop 按固定间隔把访问时间索引落盘，重启后淘汰顺序得以延续。
func flushLoop(ctx context.Context, trk *tracker.AccessTracker, path string, interval time.Duration, logger *logrus.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := trk.SaveFile(path); err != nil {
				logger.WithFields(logrus.Fields{
					"action": "tracker_flush",
					"path":   path,
				}).Warnf("快照写入失败: %v", err)
			}
		}
	}
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tiercache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 TIER_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("TIER_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}
