// Package cmd implements the studiosync command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/studiosync/internal/config"
	"github.com/3leaps/studiosync/internal/observability"
	"github.com/3leaps/studiosync/internal/server/handlers"
)

// AppIdentity names the binary for banners, env lookup and config files.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var (
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

	appIdentity *AppIdentity

	cfgFile  string
	logLevel string
	verbose  bool

	// loadedConfig is set by the root pre-run hook.
	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "studiosync",
	Short: "Copy documents from a source folder into a Studio session",
	Long: `studiosync lists the eligible documents of a source folder (Google Drive,
S3 or a local directory), downloads each one and hands it to a Studio session
through the register, upload and confirm handshake.

Run it once from the command line with "run", or serve the HTTP API with "serve".`,
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeOf(err))
	}
}

// SetVersionInfo records build information from ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(handlers.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		Crucible:  crucibleVersion(),
	})
}

// GetAppIdentity returns the identity set during initialization, or nil.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./studiosync.yaml, then ~/.config/studiosync/)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose console output")
}

func initialize(cmd *cobra.Command, args []string) error {
	appIdentity = &AppIdentity{
		BinaryName: "studiosync",
		EnvPrefix:  config.EnvPrefix(),
		ConfigName: "studiosync",
	}
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	var overrides []map[string]any
	if logLevel != "" {
		overrides = append(overrides, map[string]any{"logging": map[string]any{"level": logLevel}})
	}

	cfg, err := config.LoadFile(cmd.Context(), cfgFile, overrides...)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	loadedConfig = cfg

	observability.CLILogger.Debug("Loaded configuration",
		zap.String("config_file", cfgFile),
		zap.String("source_provider", cfg.Source.Provider),
		zap.String("studio_base_url", cfg.Studio.BaseURL))
	return nil
}
