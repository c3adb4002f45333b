package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"go.uber.org/zap"

	"github.com/3leaps/studiosync/internal/config"
	"github.com/3leaps/studiosync/internal/observability"
	"github.com/3leaps/studiosync/pkg/match"
	"github.com/3leaps/studiosync/pkg/output"
	"github.com/3leaps/studiosync/pkg/pipeline"
	"github.com/3leaps/studiosync/pkg/provider"
	"github.com/3leaps/studiosync/pkg/provider/drive"
	"github.com/3leaps/studiosync/pkg/provider/file"
	"github.com/3leaps/studiosync/pkg/provider/s3"
	"github.com/3leaps/studiosync/pkg/source"
	"github.com/3leaps/studiosync/pkg/studio"
)

// createProvider creates the source provider selected by cfg.
func createProvider(ctx context.Context, cfg config.SourceConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderDrive:
		dc := drive.DefaultConfig()
		dc.CredentialsFile = resolveCredentialsFile(cfg.CredentialsFile)
		dc.Endpoint = cfg.Endpoint
		dc.PageSize = cfg.PageSize
		dc.SharedDrives = cfg.SharedDrives
		return drive.New(ctx, dc)
	case config.ProviderS3:
		return s3.New(ctx, s3.Config{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Profile:  cfg.S3.Profile,
			// S3-compatible services (moto, MinIO, etc.) need path-style URLs.
			ForcePathStyle:   cfg.S3.ForcePathStyle || cfg.S3.Endpoint != "",
			MaxKeys:          cfg.PageSize,
			PresignSourceURL: cfg.S3.PresignSourceURL,
			PresignExpiry:    cfg.S3.PresignExpiry,
		})
	case config.ProviderFile:
		return file.New(file.Config{BaseDir: cfg.File.BaseDir})
	default:
		return nil, fmt.Errorf("unknown source provider %q", cfg.Provider)
	}
}

// resolveCredentialsFile falls back to the application data directory when
// a relative key path does not exist in the working directory.
func resolveCredentialsFile(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return path
	}
	name := "studiosync"
	if id := GetAppIdentity(); id != nil && id.ConfigName != "" {
		name = id.ConfigName
	}
	alt := filepath.Join(gfconfig.GetAppDataDir(name), path)
	if _, err := os.Stat(alt); err == nil {
		observability.CLILogger.Debug("Using credentials from data directory", zap.String("path", alt))
		return alt
	}
	return path
}

// buildPipeline assembles a pipeline over prov from cfg.
func buildPipeline(prov provider.Provider, cfg *config.Config, log *zap.Logger) (*pipeline.Pipeline, error) {
	matcher, err := match.New(match.Config{
		Includes:      cfg.Source.Include,
		Excludes:      cfg.Source.Exclude,
		IncludeHidden: cfg.Source.IncludeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid match patterns: %w", err)
	}

	maxBytes, err := cfg.Source.MaxBytesValue()
	if err != nil {
		return nil, fmt.Errorf("invalid source.max_bytes: %w", err)
	}

	src, err := source.New(prov, source.Config{
		MimeType:       cfg.Source.MimeType,
		Matcher:        matcher,
		PageSize:       cfg.Source.PageSize,
		MaxBytes:       maxBytes,
		RequestTimeout: cfg.Source.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	client, err := studio.New(studio.Config{
		BaseURL:        cfg.Studio.BaseURL,
		RequestTimeout: cfg.Studio.RequestTimeout,
		SSE:            cfg.Studio.SSE,
		RateLimit:      cfg.Studio.RateLimit,
		UserAgent:      userAgent(cfg.Studio.UserAgent),
	})
	if err != nil {
		return nil, err
	}

	return pipeline.New(src, src, client, log, pipeline.Config{
		Concurrency:   cfg.Pipeline.Concurrency,
		ItemTimeout:   cfg.Pipeline.ItemTimeout,
		Verbose:       cfg.Pipeline.Verbose,
		PreserveOrder: cfg.Pipeline.PreserveOrder,
	}), nil
}

func userAgent(base string) string {
	if base == "" {
		base = "studiosync"
	}
	if strings.Contains(base, "/") {
		return base
	}
	return base + "/" + versionInfo.Version
}

// createWriter creates a JSONL writer for dest: "" or "stdout", or a path
// with an optional "file:" prefix. Returns the writer, a cleanup function,
// and any error.
func createWriter(dest, runID, providerName string) (output.Writer, func(), error) {
	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, runID, providerName)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, runID, providerName)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

func crucibleVersion() string {
	return crucible.GetVersion().Crucible
}
