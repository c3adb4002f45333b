package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/3leaps/studiosync/internal/observability"
	"github.com/3leaps/studiosync/pkg/source"
)

// Source provider names.
const (
	ProviderDrive = "drive"
	ProviderS3    = "s3"
	ProviderFile  = "file"
)

// ValidationError reports one invalid setting.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(key, format string, args ...any) {
		errs = append(errs, &ValidationError{Key: key, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port", "must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.RunTimeout < 0 {
		add("server", "timeouts must be >= 0")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes", "must be > 0")
	}

	if _, err := observability.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if !observability.ValidProfile(c.Logging.Profile) {
		add("logging.profile", "unknown profile %q", c.Logging.Profile)
	}

	switch c.Source.Provider {
	case ProviderDrive:
	case ProviderS3:
		if strings.TrimSpace(c.Source.S3.Bucket) == "" {
			add("source.s3.bucket", "required for the s3 provider")
		}
	case ProviderFile:
		if strings.TrimSpace(c.Source.File.BaseDir) == "" {
			add("source.file.base_dir", "required for the file provider")
		}
	default:
		add("source.provider", "must be one of drive, s3, file; got %q", c.Source.Provider)
	}
	if strings.TrimSpace(c.Source.MimeType) == "" {
		add("source.mime_type", "must not be empty")
	}
	if c.Source.PageSize < 0 {
		add("source.page_size", "must be >= 0")
	}
	if _, err := c.Source.MaxBytesValue(); err != nil {
		add("source.max_bytes", "%v", err)
	}

	if u, err := url.Parse(c.Studio.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("studio.base_url", "must be an absolute URL, got %q", c.Studio.BaseURL)
	}
	if c.Studio.RateLimit < 0 {
		add("studio.rate_limit", "must be >= 0")
	}
	if c.Studio.RequestTimeout < 0 {
		add("studio.request_timeout", "must be >= 0")
	}

	if c.Pipeline.Concurrency < 1 {
		add("pipeline.concurrency", "must be >= 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.ItemTimeout < 0 {
		add("pipeline.item_timeout", "must be >= 0")
	}

	return errors.Join(errs...)
}

// MaxBytesValue parses MaxBytes. Empty or "0" means no limit.
func (s SourceConfig) MaxBytesValue() (int64, error) {
	raw := strings.TrimSpace(s.MaxBytes)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	return source.ParseSize(raw)
}
