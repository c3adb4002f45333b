// Package config loads studiosync configuration.
//
// Precedence, highest first: runtime overrides passed to Load, environment
// variables (STUDIOSYNC_ prefix), the YAML config file, built-in defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Health   HealthConfig   `mapstructure:"health"`
	Source   SourceConfig   `mapstructure:"source"`
	Studio   StudioConfig   `mapstructure:"studio"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RunTimeout bounds one run request. Zero disables the bound.
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// ExposeDebug includes the run trail in responses.
	ExposeDebug bool `mapstructure:"expose_debug"`

	// MaxBodyBytes limits run request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// LoggingConfig configures the loggers.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// HealthConfig configures the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SourceConfig selects and configures the document source.
type SourceConfig struct {
	// Provider is one of drive, s3, file.
	Provider string `mapstructure:"provider"`

	// CredentialsFile is the Drive service-account key.
	CredentialsFile string `mapstructure:"credentials_file"`

	// Endpoint overrides the Drive API base URL.
	Endpoint string `mapstructure:"endpoint"`

	SharedDrives bool `mapstructure:"shared_drives"`

	MimeType      string   `mapstructure:"mime_type"`
	Include       []string `mapstructure:"include"`
	Exclude       []string `mapstructure:"exclude"`
	IncludeHidden bool     `mapstructure:"include_hidden"`

	PageSize int `mapstructure:"page_size"`

	// MaxBytes is a size string such as "100MiB". Empty disables the limit.
	MaxBytes string `mapstructure:"max_bytes"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	S3   S3Config   `mapstructure:"s3"`
	File FileConfig `mapstructure:"file"`
}

// S3Config configures the S3 source.
type S3Config struct {
	Bucket           string        `mapstructure:"bucket"`
	Region           string        `mapstructure:"region"`
	Endpoint         string        `mapstructure:"endpoint"`
	Profile          string        `mapstructure:"profile"`
	ForcePathStyle   bool          `mapstructure:"force_path_style"`
	PresignSourceURL bool          `mapstructure:"presign_source_url"`
	PresignExpiry    time.Duration `mapstructure:"presign_expiry"`
}

// FileConfig configures the local filesystem source.
type FileConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// StudioConfig configures the destination client.
type StudioConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SSE            string        `mapstructure:"sse"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PipelineConfig configures run execution.
type PipelineConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	ItemTimeout   time.Duration `mapstructure:"item_timeout"`
	Verbose       bool          `mapstructure:"verbose"`
	PreserveOrder bool          `mapstructure:"preserve_order"`
}

// identity names the application for env and file lookup.
type identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var (
	configMu    sync.RWMutex
	appConfig   *Config
	appIdentity *identity
)

func defaultIdentity() *identity {
	return &identity{BinaryName: "studiosync", EnvPrefix: "STUDIOSYNC", ConfigName: "studiosync"}
}

// EnvPrefix returns the environment variable prefix.
func EnvPrefix() string {
	return defaultIdentity().EnvPrefix
}

// Load reads configuration using the default file search path.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile reads configuration from path, or from the default search path
// when path is empty. A missing default file is not an error; a missing
// explicit file is. The result becomes the value returned by GetConfig.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		appIdentity = defaultIdentity()
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(appIdentity.ConfigName)
		for _, p := range getUserConfigPathsLocked() {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(appIdentity.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecsLocked() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.run_timeout", "10m")
	v.SetDefault("server.expose_debug", true)
	v.SetDefault("server.max_body_bytes", 64*1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("health.enabled", true)

	v.SetDefault("source.provider", "drive")
	v.SetDefault("source.credentials_file", "credentials.json")
	v.SetDefault("source.shared_drives", true)
	v.SetDefault("source.mime_type", "application/pdf")
	v.SetDefault("source.include", []string{})
	v.SetDefault("source.exclude", []string{})
	v.SetDefault("source.include_hidden", false)
	v.SetDefault("source.page_size", 0)
	v.SetDefault("source.max_bytes", "")
	v.SetDefault("source.request_timeout", "60s")
	v.SetDefault("source.endpoint", "")
	v.SetDefault("source.s3.bucket", "")
	v.SetDefault("source.s3.region", "")
	v.SetDefault("source.s3.endpoint", "")
	v.SetDefault("source.s3.profile", "")
	v.SetDefault("source.s3.force_path_style", false)
	v.SetDefault("source.s3.presign_source_url", false)
	v.SetDefault("source.s3.presign_expiry", "15m")
	v.SetDefault("source.file.base_dir", "")

	v.SetDefault("studio.base_url", "https://studioapi.bluebeam.com/publicapi/v1")
	v.SetDefault("studio.request_timeout", "30s")
	v.SetDefault("studio.sse", "AES256")
	v.SetDefault("studio.rate_limit", 0)
	v.SetDefault("studio.user_agent", "studiosync")

	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.item_timeout", "5m")
	v.SetDefault("pipeline.verbose", true)
	v.SetDefault("pipeline.preserve_order", true)
}

// envSpec maps an environment variable to a config path.
type envSpec struct {
	Name string
	Path string
}

// getEnvSpecs returns the short-form environment variables. Every config
// path is also reachable as PREFIX_SECTION_KEY through AutomaticEnv.
func getEnvSpecs() []envSpec {
	configMu.RLock()
	defer configMu.RUnlock()
	return getEnvSpecsLocked()
}

func getEnvSpecsLocked() []envSpec {
	if appIdentity == nil {
		return []envSpec{}
	}
	p := appIdentity.EnvPrefix + "_"
	return []envSpec{
		{p + "HOST", "server.host"},
		{p + "PORT", "server.port"},
		{p + "READ_TIMEOUT", "server.read_timeout"},
		{p + "WRITE_TIMEOUT", "server.write_timeout"},
		{p + "SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{p + "RUN_TIMEOUT", "server.run_timeout"},
		{p + "EXPOSE_DEBUG", "server.expose_debug"},
		{p + "LOG_LEVEL", "logging.level"},
		{p + "LOG_PROFILE", "logging.profile"},
		{p + "SOURCE", "source.provider"},
		{p + "CREDENTIALS_FILE", "source.credentials_file"},
		{p + "MIME_TYPE", "source.mime_type"},
		{p + "MAX_BYTES", "source.max_bytes"},
		{p + "S3_BUCKET", "source.s3.bucket"},
		{p + "S3_REGION", "source.s3.region"},
		{p + "S3_ENDPOINT", "source.s3.endpoint"},
		{p + "BASE_DIR", "source.file.base_dir"},
		{p + "STUDIO_URL", "studio.base_url"},
		{p + "RATE_LIMIT", "studio.rate_limit"},
		{p + "CONCURRENCY", "pipeline.concurrency"},
		{p + "VERBOSE", "pipeline.verbose"},
	}
}

// getUserConfigPaths returns the directories searched for the config file.
func getUserConfigPaths() []string {
	configMu.RLock()
	defer configMu.RUnlock()
	return getUserConfigPathsLocked()
}

func getUserConfigPathsLocked() []string {
	if appIdentity == nil {
		return []string{}
	}
	paths := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, appIdentity.ConfigName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appIdentity.ConfigName))
	}
	return paths
}

// flatten turns nested override maps into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}

func (c *Config) normalize() {
	c.Source.Provider = strings.ToLower(strings.TrimSpace(c.Source.Provider))
	c.Logging.Profile = strings.ToUpper(strings.TrimSpace(c.Logging.Profile))
	c.Source.Include = compact(c.Source.Include)
	c.Source.Exclude = compact(c.Source.Exclude)
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
