// Package config loads icokit settings from defaults, an optional file and
// ICOKIT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"icokit/internal/ico"
	imgpkg "icokit/internal/image"
	"icokit/pkg/logger"
)

const EnvPrefix = "ICOKIT"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Encode    EncodeConfig    `mapstructure:"encode"`
	Decode    DecodeConfig    `mapstructure:"decode"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EncodeConfig struct {
	// Size is "all" or one of the standard icon sizes.
	Size           string `mapstructure:"size"`
	Stack          bool   `mapstructure:"stack"`
	Resample       string `mapstructure:"resample"`
	PNGCompression string `mapstructure:"png_compression"`
	// Workers bounds concurrent per-size encodes; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
}

type DecodeConfig struct {
	// Format is the output format for decoded icons: png, webp or avif.
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	MaxConns      int           `mapstructure:"max_conns"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	BrowserMaxAge time.Duration `mapstructure:"browser_max_age"`
	UseETag       bool          `mapstructure:"use_etag"`
}

// RateLimitConfig rates are requests per second. Zero rates disable limiting.
type RateLimitConfig struct {
	GlobalRate  int `mapstructure:"global_rate"`
	GlobalBurst int `mapstructure:"global_burst"`
	IPRate      int `mapstructure:"ip_rate"`
	IPBurst     int `mapstructure:"ip_burst"`
}

// FetchConfig governs loading source images from http(s) URLs.
type FetchConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	AllowPrivate bool          `mapstructure:"allow_private"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Encode: EncodeConfig{
			Size:           "256",
			Stack:          true,
			Resample:       "catmullrom",
			PNGCompression: "default",
		},
		Decode: DecodeConfig{Format: "png"},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxBodyBytes:  4 << 20,
			MaxConns:      64,
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  30 * time.Second,
			BrowserMaxAge: 24 * time.Hour,
			UseETag:       true,
		},
		RateLimit: RateLimitConfig{
			GlobalRate:  200,
			GlobalBurst: 400,
			IPRate:      10,
			IPBurst:     20,
		},
		Fetch: FetchConfig{
			Enabled:  true,
			Timeout:  12 * time.Second,
			MaxBytes: 4 << 20,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("encode.size", d.Encode.Size)
	v.SetDefault("encode.stack", d.Encode.Stack)
	v.SetDefault("encode.resample", d.Encode.Resample)
	v.SetDefault("encode.png_compression", d.Encode.PNGCompression)
	v.SetDefault("encode.workers", d.Encode.Workers)

	v.SetDefault("decode.format", d.Decode.Format)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.max_conns", d.Server.MaxConns)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.browser_max_age", d.Server.BrowserMaxAge)
	v.SetDefault("server.use_etag", d.Server.UseETag)

	v.SetDefault("ratelimit.global_rate", d.RateLimit.GlobalRate)
	v.SetDefault("ratelimit.global_burst", d.RateLimit.GlobalBurst)
	v.SetDefault("ratelimit.ip_rate", d.RateLimit.IPRate)
	v.SetDefault("ratelimit.ip_burst", d.RateLimit.IPBurst)

	v.SetDefault("fetch.enabled", d.Fetch.Enabled)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.max_bytes", d.Fetch.MaxBytes)
	v.SetDefault("fetch.allow_private", d.Fetch.AllowPrivate)
}

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, if non-empty, into v and returns the validated result.
// The file format follows the extension (yaml, json, toml).
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Encode.Resample = strings.ToLower(strings.TrimSpace(cfg.Encode.Resample))
	cfg.Encode.PNGCompression = strings.ToLower(strings.TrimSpace(cfg.Encode.PNGCompression))
	cfg.Decode.Format = strings.ToLower(strings.TrimSpace(cfg.Decode.Format))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be console or json, got %q", c.Log.Format))
	}

	// A well-formed but non-standard size is accepted; encoding falls back
	// to ico.DefaultSize.
	if _, err := ico.ParseSizeRequest(c.Encode.Size); err != nil {
		errs = append(errs, fmt.Errorf("encode.size: %w", err))
	}
	if _, err := imgpkg.ParseResample(c.Encode.Resample); err != nil {
		errs = append(errs, fmt.Errorf("encode.resample: %w", err))
	}
	if _, err := imgpkg.ParseCompression(c.Encode.PNGCompression); err != nil {
		errs = append(errs, fmt.Errorf("encode.png_compression: %w", err))
	}
	if c.Encode.Workers < 0 {
		errs = append(errs, errors.New("encode.workers: must be >= 0"))
	}

	switch c.Decode.Format {
	case "png", "webp", "avif":
	default:
		errs = append(errs, fmt.Errorf("decode.format: must be png, webp or avif, got %q", c.Decode.Format))
	}

	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes: must be positive"))
	}
	if c.Server.MaxConns < 0 {
		errs = append(errs, errors.New("server.max_conns: must be >= 0"))
	}

	if c.RateLimit.GlobalRate < 0 || c.RateLimit.IPRate < 0 {
		errs = append(errs, errors.New("ratelimit: rates must be >= 0"))
	}

	if c.Fetch.MaxBytes <= 0 {
		errs = append(errs, errors.New("fetch.max_bytes: must be positive"))
	}

	return errors.Join(errs...)
}

// SizeRequest returns the parsed encode.size. Call after Validate.
func (c *Config) SizeRequest() ico.SizeRequest {
	req, err := ico.ParseSizeRequest(c.Encode.Size)
	if err != nil {
		return ico.DefaultSize
	}
	return req
}
