package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icokit/internal/ico"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "256", cfg.Encode.Size)
	assert.True(t, cfg.Encode.Stack)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(4<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, ico.SizeRequest(256), cfg.SizeRequest())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icokit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
encode:
  size: all
  stack: false
server:
  read_timeout: 3s
decode:
  format: webp
`), 0o644))

	t.Setenv("ICOKIT_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("ICOKIT_DECODE_FORMAT", "AVIF")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ico.SizeAll, cfg.SizeRequest())
	assert.False(t, cfg.Encode.Stack)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "avif", cfg.Decode.Format, "env overrides file and is normalized")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"non-square size", func(c *Config) { c.Encode.Size = "16x32" }, "encode.size"},
		{"garbage size", func(c *Config) { c.Encode.Size = "huge" }, "encode.size"},
		{"bad resample", func(c *Config) { c.Encode.Resample = "lanczos9" }, "encode.resample"},
		{"bad compression", func(c *Config) { c.Encode.PNGCompression = "max" }, "encode.png_compression"},
		{"bad decode format", func(c *Config) { c.Decode.Format = "gif" }, "decode.format"},
		{"zero body", func(c *Config) { c.Server.MaxBodyBytes = 0 }, "server.max_body_bytes"},
		{"negative rate", func(c *Config) { c.RateLimit.IPRate = -1 }, "ratelimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestValidate_NonStandardSizeFallsBack(t *testing.T) {
	cfg := Default()
	cfg.Encode.Size = "100"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ico.SizeRequest(100), cfg.SizeRequest())

	sizes, err := ico.ResolveSizes(cfg.SizeRequest(), false)
	var use *ico.UnsupportedSizeError
	require.ErrorAs(t, err, &use)
	assert.Equal(t, ico.SizeSet{ico.DefaultSize}, sizes)
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	cfg.Decode.Format = "gif"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "decode.format")
}
