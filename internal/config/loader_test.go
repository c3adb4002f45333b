package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.True(t, cfg.Server.ExposeDebug)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
		assert.True(t, cfg.Health.Enabled)

		assert.Equal(t, ProviderDrive, cfg.Source.Provider)
		assert.Equal(t, "credentials.json", cfg.Source.CredentialsFile)
		assert.Equal(t, "application/pdf", cfg.Source.MimeType)
		assert.True(t, cfg.Source.SharedDrives)
		assert.Empty(t, cfg.Source.Include)

		assert.Equal(t, "https://studioapi.bluebeam.com/publicapi/v1", cfg.Studio.BaseURL)
		assert.Equal(t, "AES256", cfg.Studio.SSE)
		assert.Equal(t, 30*time.Second, cfg.Studio.RequestTimeout)

		assert.Equal(t, 1, cfg.Pipeline.Concurrency)
		assert.True(t, cfg.Pipeline.Verbose)
		assert.True(t, cfg.Pipeline.PreserveOrder)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"pipeline": map[string]any{
				"concurrency": 4,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 4, cfg.Pipeline.Concurrency)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("STUDIOSYNC_PORT", "3000")
		t.Setenv("STUDIOSYNC_LOG_LEVEL", "warn")
		t.Setenv("STUDIOSYNC_PIPELINE_VERBOSE", "false")
		t.Setenv("STUDIOSYNC_SOURCE_INCLUDE", "A*.pdf, B*.pdf")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Pipeline.Verbose)
		assert.Equal(t, []string{"A*.pdf", "B*.pdf"}, cfg.Source.Include)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("STUDIOSYNC_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "studiosync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  provider: file
  file:
    base_dir: /srv/docs
  max_bytes: 50MiB
  exclude:
    - "*draft*"
studio:
  rate_limit: 5
pipeline:
  concurrency: 3
  item_timeout: 90s
`), 0o600))

	t.Run("reads file", func(t *testing.T) {
		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, ProviderFile, cfg.Source.Provider)
		assert.Equal(t, "/srv/docs", cfg.Source.File.BaseDir)
		assert.Equal(t, []string{"*draft*"}, cfg.Source.Exclude)
		assert.Equal(t, 5.0, cfg.Studio.RateLimit)
		assert.Equal(t, 3, cfg.Pipeline.Concurrency)
		assert.Equal(t, 90*time.Second, cfg.Pipeline.ItemTimeout)

		n, err := cfg.Source.MaxBytesValue()
		require.NoError(t, err)
		assert.Equal(t, int64(50*1024*1024), n)
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("STUDIOSYNC_CONCURRENCY", "8")
		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadFile(ctx, filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid file value", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("pipeline:\n  concurrency: 0\n"), 0o600))
		_, err := LoadFile(ctx, bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline.concurrency")
	})
}

func TestGetConfig(t *testing.T) {
	cfg, err := Load(context.Background(), map[string]any{"server": map[string]any{"port": 7001}})
	require.NoError(t, err)

	current := GetConfig()
	require.NotNil(t, current)
	assert.Equal(t, cfg.Server.Port, current.Server.Port)
}

func TestDurationParsing(t *testing.T) {
	t.Setenv("STUDIOSYNC_READ_TIMEOUT", "45s")
	t.Setenv("STUDIOSYNC_SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("STUDIOSYNC_STUDIO_REQUEST_TIMEOUT", "2s")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Second, cfg.Studio.RequestTimeout)
}

func TestEnvSpecs(t *testing.T) {
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := map[string]bool{}
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, "STUDIOSYNC_")
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}
	for _, want := range []string{"STUDIOSYNC_LOG_LEVEL", "STUDIOSYNC_PORT", "STUDIOSYNC_HOST", "STUDIOSYNC_CREDENTIALS_FILE"} {
		assert.True(t, names[want], want)
	}
}

// resetAppIdentity resets package state for isolated tests.
func resetAppIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = nil
	appConfig = nil
}

func TestNilIdentity(t *testing.T) {
	resetAppIdentity()
	defer func() { _, _ = Load(context.Background()) }()

	assert.Empty(t, getUserConfigPaths())
	assert.Empty(t, getEnvSpecs())
	assert.Nil(t, GetConfig())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(context.Background())
		require.NoError(t, err)
		c := *cfg
		return &c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad profile", func(c *Config) { c.Logging.Profile = "XML" }, "logging.profile"},
		{"unknown provider", func(c *Config) { c.Source.Provider = "ftp" }, "source.provider"},
		{"s3 without bucket", func(c *Config) { c.Source.Provider = ProviderS3 }, "source.s3.bucket"},
		{"file without base dir", func(c *Config) { c.Source.Provider = ProviderFile }, "source.file.base_dir"},
		{"empty mime type", func(c *Config) { c.Source.MimeType = " " }, "source.mime_type"},
		{"bad max bytes", func(c *Config) { c.Source.MaxBytes = "lots" }, "source.max_bytes"},
		{"relative studio url", func(c *Config) { c.Studio.BaseURL = "/v1" }, "studio.base_url"},
		{"negative rate", func(c *Config) { c.Studio.RateLimit = -1 }, "studio.rate_limit"},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }, "pipeline.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantKey == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}
}
