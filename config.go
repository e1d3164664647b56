package bcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/bcache/resource"
	"github.com/tailscale/hujson"
)

// Config is the file form of the cache options. Files are JSON with
// comments and trailing commas allowed:
//
//	{
//	    // xv6 defaults
//	    "buffers": 30,
//	    "buckets": 13,
//	    "block_size": 1024,
//	    "log_level": "debug",
//	}
//
// Zero fields keep their defaults.
type Config struct {
	Buffers   int    `json:"buffers,omitempty"`
	Buckets   int    `json:"buckets,omitempty"`
	BlockSize int    `json:"block_size,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`
	// LogFormat is "text" (default) or "json".
	LogFormat          string `json:"log_format,omitempty"`
	MemoryLimitBytes   int64  `json:"memory_limit_bytes,omitempty"`
	IOLimitBytesPerSec int64  `json:"io_limit_bytes_per_sec,omitempty"`
}

// LoadConfig reads and parses the config file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses a JSON-with-comments config document. Unknown fields
// are rejected.
func ParseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidConfig, err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Options converts the config into options for New. A resource controller
// is created when either limit is set.
func (c Config) Options() ([]Option, error) {
	var opts []Option

	if c.Buffers != 0 {
		opts = append(opts, WithBuffers(c.Buffers))
	}
	if c.Buckets != 0 {
		opts = append(opts, WithBuckets(c.Buckets))
	}
	if c.BlockSize != 0 {
		opts = append(opts, WithBlockSize(c.BlockSize))
	}

	var newLogger func(slog.Level) *Logger
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		newLogger = NewTextLogger
	case "json":
		newLogger = NewJSONLogger
	default:
		return nil, fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}

	if c.LogLevel != "" || c.LogFormat != "" {
		level := slog.LevelInfo
		if c.LogLevel != "" {
			if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
				return nil, fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
			}
		}
		opts = append(opts, WithLogger(newLogger(level)))
	}

	if c.MemoryLimitBytes < 0 || c.IOLimitBytesPerSec < 0 {
		return nil, fmt.Errorf("%w: negative resource limit", ErrInvalidConfig)
	}
	if c.MemoryLimitBytes > 0 || c.IOLimitBytesPerSec > 0 {
		opts = append(opts, WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:   c.MemoryLimitBytes,
			IOLimitBytesPerSec: c.IOLimitBytesPerSec,
		})))
	}

	return opts, nil
}
