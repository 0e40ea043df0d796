package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/accelara/downlink/internal/downloader"
	"github.com/accelara/downlink/internal/progress"
	"github.com/accelara/downlink/internal/utils"
)

// EnvPrefix prefixes every environment variable, e.g. DOWNLINK_QUIET.
const EnvPrefix = "DOWNLINK"

// Config holds the settings of one invocation.
type Config struct {
	Output    string        `mapstructure:"output"`
	Dir       string        `mapstructure:"dir"`
	Quiet     bool          `mapstructure:"quiet"`
	ChunkSize string        `mapstructure:"chunk-size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Limit     string        `mapstructure:"limit"`
	Proxy     string        `mapstructure:"proxy"`
	SHA256    string        `mapstructure:"sha256"`
	Jobs      int           `mapstructure:"jobs"`
	Progress  string        `mapstructure:"progress"`
	LogLevel  string        `mapstructure:"log-level"`
	LogFormat string        `mapstructure:"log-format"`
}

// RegisterFlags defines every configurable flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "", "Output filename (for a single URL) or directory (when downloading multiple files)")
	fs.StringP("dir", "d", "", "Directory to save files into (alternative to -o)")
	fs.BoolP("quiet", "q", false, "Suppress progress output (still saves files)")
	fs.String("chunk-size", "8KB", "Read buffer size, e.g. 8192, 64KB")
	fs.Duration("timeout", 10*time.Second, "Timeout for connecting and receiving response headers")
	fs.String("limit", "", "Download rate limit per second, e.g. 500KB")
	fs.String("proxy", "", "HTTP/HTTPS proxy URL (default from environment)")
	fs.String("sha256", "", "Expected SHA256 of the file (single URL only)")
	fs.IntP("jobs", "j", 1, "Number of downloads to run in parallel")
	fs.String("progress", "bar", "Progress style: bar or json")
	fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")
}

// Load merges flags from fs with DOWNLINK_* environment variables. A flag set
// on the command line wins over the environment, which wins over defaults.
// TQDM_DISABLE is honored as an alias of DOWNLINK_QUIET.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.BindEnv("quiet", EnvPrefix+"_QUIET", "TQDM_DISABLE"); err != nil {
		return nil, fmt.Errorf("failed to bind quiet env: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	chunkSize, err := utils.ParseBytes(c.ChunkSize)
	if err != nil {
		return fmt.Errorf("invalid chunk-size: %w", err)
	}
	if chunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive")
	}
	if chunkSize > downloader.MaxChunkSize {
		return fmt.Errorf("chunk-size too large: %s exceeds %s", c.ChunkSize, humanize.IBytes(downloader.MaxChunkSize))
	}

	if c.Limit != "" {
		limit, err := utils.ParseBytes(c.Limit)
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit <= 0 {
			return fmt.Errorf("limit must be at least 1 byte per second")
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Jobs < 1 || c.Jobs > 32 {
		return fmt.Errorf("jobs must be between 1 and 32")
	}

	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy URL: %s", c.Proxy)
		}
	}

	if c.SHA256 != "" {
		if b, err := hex.DecodeString(c.SHA256); err != nil || len(b) != 32 {
			return fmt.Errorf("sha256 must be 64 hex characters")
		}
	}

	switch c.Progress {
	case progress.ModeBar, progress.ModeJSON:
	default:
		return fmt.Errorf("invalid progress: %s", c.Progress)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.LogLevel)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log-format: %s", c.LogFormat)
	}

	return nil
}

// GetChunkSize returns the chunk size in bytes
func (c *Config) GetChunkSize() int64 {
	n, _ := utils.ParseBytes(c.ChunkSize)
	if n <= 0 {
		return 8192
	}
	return n
}

// GetRateLimit returns the rate limit in bytes per second, 0 for unlimited
func (c *Config) GetRateLimit() int64 {
	n, _ := utils.ParseBytes(c.Limit)
	return n
}

// GetProgressMode returns the progress mode after applying quiet.
func (c *Config) GetProgressMode() string {
	if c.Quiet {
		return progress.ModeNone
	}
	return c.Progress
}
