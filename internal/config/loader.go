package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		byteSizeDecodeHook(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCacheDir, err := filepath.Abs(cfg.Global.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheDir = absCacheDir

	// 访问时间快照默认落在缓存根目录旁边，保证任何 key 或清理
	// 都不可能触碰到它。
	if cfg.Global.AccessLogPath == "" {
		cfg.Global.AccessLogPath = absCacheDir + ".accesstime"
	} else {
		absSnapshot, err := filepath.Abs(cfg.Global.AccessLogPath)
		if err != nil {
			return nil, fmt.Errorf("无法解析快照路径: %w", err)
		}
		cfg.Global.AccessLogPath = absSnapshot
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5500)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDir", "./cache")
	v.SetDefault("MaxCacheSize", "10GiB")
	v.SetDefault("SweepInterval", "30s")
	v.SetDefault("AccessLogPath", "")
	v.SetDefault("AccessFlushInterval", "5m")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5500
	}
	if g.SweepInterval.DurationValue() == 0 {
		g.SweepInterval = Duration(30 * time.Second)
	}
	if g.AccessFlushInterval.DurationValue() == 0 {
		g.AccessFlushInterval = Duration(5 * time.Minute)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(ByteSize(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return ByteSize(0), nil
			}
			if parsed, err := humanize.ParseBytes(v); err == nil {
				return ByteSize(parsed), nil
			}
			return nil, fmt.Errorf("无法解析容量字段: %s", v)
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		case ByteSize:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的容量类型: %T", v)
		}
	}
}
