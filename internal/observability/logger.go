// Package observability owns the process loggers.
//
// CLILogger writes human-readable console output for commands. ServerLogger
// writes structured JSON for the HTTP service. Both start as no-op loggers so
// packages can log before initialization.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	ProfileStructured = "STRUCTURED"
	ProfileConsole    = "CONSOLE"
)

var (
	// CLILogger is used by command implementations.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the HTTP server and request middleware.
	ServerLogger = zap.NewNop()
)

// InitCLILogger configures CLILogger. Verbose enables debug output.
func InitCLILogger(service string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	logger, err := build(ProfileConsole, level, service)
	if err != nil {
		return
	}
	CLILogger = logger
}

// InitServerLogger configures ServerLogger with the given level and profile.
// An empty profile selects structured output.
func InitServerLogger(service, level, profile string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	logger, err := build(profile, lvl, service)
	if err != nil {
		return err
	}
	ServerLogger = logger
	return nil
}

// ParseLevel parses a level name. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

// ValidProfile reports whether profile names a known logging profile.
func ValidProfile(profile string) bool {
	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case "", ProfileStructured, ProfileConsole:
		return true
	}
	return false
}

func build(profile string, level zapcore.Level, service string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case ProfileConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
		cfg.DisableCaller = true
	case "", ProfileStructured:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	// stdout carries report and JSONL output
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		logger = logger.With(zap.String("service", service))
	}
	return logger, nil
}

// Sync flushes both loggers. Errors from syncing terminals are ignored.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
