// Package drive implements the provider interface for Google Drive,
// including shared (team) drives.
package drive

import "strings"

// Config configures a Drive provider.
//
// Authentication uses a service-account credential file with the read-only
// Drive scope. Credentials are loaded once when the provider is created and
// reused for every List and GetObject call.
type Config struct {
	// CredentialsFile is the path to a service-account JSON key (required
	// unless the caller supplies its own client options).
	CredentialsFile string

	// Endpoint overrides the Drive API base URL. Leave empty for Google.
	Endpoint string

	// PageSize is the default page size for List operations.
	// Zero uses the provider default (100). Values over 1000 are clamped.
	PageSize int

	// SharedDrives enables listing of items that live on shared drives.
	// Defaults to true through DefaultConfig.
	SharedDrives bool
}

// DefaultPageSize is the default page size for List operations.
const DefaultPageSize = 100

// MaxPageSize is the maximum page size accepted by the Drive API.
const MaxPageSize = 1000

// SourceURLFormat builds the viewer link handed to the destination when the
// API does not return a webViewLink.
const SourceURLFormat = "https://drive.google.com/file/d/%s/view?usp=drive_link"

// DefaultConfig returns a Config with shared drive support enabled.
func DefaultConfig() Config {
	return Config{
		PageSize:     DefaultPageSize,
		SharedDrives: true,
	}
}

// Validate checks that required configuration is present.
//
// requireCredentials is false when the caller injects authentication through
// client options (tests, workload identity).
func (c *Config) Validate(requireCredentials bool) error {
	if requireCredentials && strings.TrimSpace(c.CredentialsFile) == "" {
		return &ConfigError{Field: "CredentialsFile", Message: "credentials file is required"}
	}
	if c.PageSize < 0 {
		return &ConfigError{Field: "PageSize", Message: "page size must be >= 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "drive config: " + e.Field + ": " + e.Message
}
