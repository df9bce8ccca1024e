package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// ByteSize 兼容纯字节整数与 "2MiB"/"512 MB" 等人类可读写法。
type ByteSize int64

// UnmarshalText 使 Viper 可以识别 humanize 风格的容量字符串。
func (b *ByteSize) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*b = ByteSize(0)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*b = ByteSize(intVal)
		return nil
	}

	if parsed, err := humanize.ParseBytes(raw); err == nil {
		*b = ByteSize(parsed)
		return nil
	}

	return fmt.Errorf("invalid byte size value: %s", raw)
}

// Int64 返回字节数，便于与文件大小直接比较。
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述缓存服务的全部运行时行为，服务生命周期内保持不变。
type GlobalConfig struct {
	ListenPort          int      `mapstructure:"ListenPort"`
	LogLevel            string   `mapstructure:"LogLevel"`
	LogFilePath         string   `mapstructure:"LogFilePath"`
	LogMaxSize          int      `mapstructure:"LogMaxSize"`
	LogMaxBackups       int      `mapstructure:"LogMaxBackups"`
	LogCompress         bool     `mapstructure:"LogCompress"`
	CacheDir            string   `mapstructure:"CacheDir"`
	MaxCacheSize        ByteSize `mapstructure:"MaxCacheSize"`
	SweepInterval       Duration `mapstructure:"SweepInterval"`
	AccessLogPath       string   `mapstructure:"AccessLogPath"`
	AccessFlushInterval Duration `mapstructure:"AccessFlushInterval"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}
