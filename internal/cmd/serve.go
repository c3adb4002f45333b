package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/studiosync/internal/config"
	"github.com/3leaps/studiosync/internal/observability"
	"github.com/3leaps/studiosync/internal/server"
	"github.com/3leaps/studiosync/internal/server/handlers"
	"github.com/3leaps/studiosync/pkg/provider"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload HTTP API",
	Long: `Start the HTTP server. POST /upload (or /v1/runs) with
{"sessionId", "bluebeamAccessToken", "driveFolderId"} runs one transfer and
returns the per-document report.

SIGINT or SIGTERM stops accepting requests and waits for in-flight runs up
to server.shutdown_timeout.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadedConfig
	if cfg == nil {
		return exitError(foundry.ExitInvalidArgument, "Configuration not loaded", errors.New("no configuration"))
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	if err := observability.InitServerLogger(appIdentity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	log := observability.ServerLogger
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prov, err := createProvider(ctx, cfg.Source)
	if err != nil {
		log.Error("Failed to create source provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to source", err)
	}
	defer func() { _ = prov.Close() }()

	p, err := buildPipeline(prov, cfg, log)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	if cfg.Health.Enabled {
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("signals", signalHealthChecker{shutdown: ctx})
		hm.RegisterChecker("identity", identityHealthChecker{
			binaryName: appIdentity.BinaryName,
			envPrefix:  appIdentity.EnvPrefix,
			configName: appIdentity.ConfigName,
		})
		hm.RegisterChecker("source", sourceHealthChecker{prov: prov})
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithRunner(p),
		server.WithLogger(log),
		server.WithExposeDebug(cfg.Server.ExposeDebug),
		server.WithRunTimeout(cfg.Server.RunTimeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithHTTPTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
		server.WithHealth(cfg.Health.Enabled),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown incomplete", zap.Error(err))
		return exitError(foundry.ExitSignalInt, "Shutdown incomplete", err)
	}
	log.Info("Server stopped")
	return nil
}

// signalHealthChecker fails once SIGINT or SIGTERM cancelled the shutdown
// context, so readiness drops while in-flight runs drain.
type signalHealthChecker struct {
	shutdown context.Context
}

func (c signalHealthChecker) CheckHealth(ctx context.Context) error {
	if c.shutdown == nil {
		return errors.New("shutdown signal not wired")
	}
	if err := c.shutdown.Err(); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// identityHealthChecker verifies the app identity used for env and config
// lookup is complete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("identity missing binary name")
	case c.envPrefix == "":
		return errors.New("identity missing env prefix")
	case c.configName == "":
		return errors.New("identity missing config name")
	}
	return nil
}

// sourceHealthChecker fails when no source provider is configured.
type sourceHealthChecker struct {
	prov provider.Provider
}

func (c sourceHealthChecker) CheckHealth(ctx context.Context) error {
	if c.prov == nil {
		return errors.New("source provider not configured")
	}
	if config.GetConfig() == nil {
		return errors.New("configuration not loaded")
	}
	return nil
}
