package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/studiosync/internal/config"
	"github.com/3leaps/studiosync/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and source credentials",
	Long: `Run diagnostic checks on the configuration and the credentials the selected
source provider needs. No documents are listed or transferred.

Examples:
  studiosync doctor
  studiosync doctor --config studiosync.yaml`,
	RunE: runDoctor,
}

// exitCodeDoctor is returned when any check fails.
const exitCodeDoctor = 1

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck is one diagnostic. detail is shown on success.
type doctorCheck struct {
	name string
	run  func(ctx context.Context) (detail string, err error)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := loadedConfig
	checks := doctorChecks(cfg)

	observability.CLILogger.Info("=== studiosync doctor ===")
	failed := 0
	for i, c := range checks {
		detail, err := c.run(cmd.Context())
		prefix := fmt.Sprintf("[%d/%d] %s...", i+1, len(checks), c.name)
		if err != nil {
			failed++
			observability.CLILogger.Error(prefix+" failed", zap.Error(err))
			continue
		}
		observability.CLILogger.Info(prefix+" ok "+detail)
	}

	if failed > 0 {
		observability.CLILogger.Warn(fmt.Sprintf("%d of %d checks failed. Review the output above.", failed, len(checks)))
		return exitError(exitCodeDoctor, "Diagnostics failed", fmt.Errorf("%d checks failed", failed))
	}
	observability.CLILogger.Info("All checks passed.")
	return nil
}

func doctorChecks(cfg *config.Config) []doctorCheck {
	checks := []doctorCheck{
		{"Go runtime", func(context.Context) (string, error) {
			return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
		}},
		{"Crucible access", func(context.Context) (string, error) {
			v := crucible.GetVersion()
			if v.Crucible == "" {
				return "", fmt.Errorf("crucible version unavailable")
			}
			return "v" + v.Crucible, nil
		}},
		{"Configuration", func(context.Context) (string, error) {
			if cfg == nil {
				return "", fmt.Errorf("configuration not loaded")
			}
			if err := cfg.Validate(); err != nil {
				return "", err
			}
			return "provider=" + cfg.Source.Provider, nil
		}},
	}
	if cfg == nil {
		return checks
	}

	switch cfg.Source.Provider {
	case config.ProviderDrive:
		checks = append(checks, doctorCheck{"Drive credentials", func(context.Context) (string, error) {
			path := resolveCredentialsFile(cfg.Source.CredentialsFile)
			if _, err := os.Stat(path); err != nil {
				return "", fmt.Errorf("service-account key %s: %w (also looked in %s)", path, err,
					gfconfig.GetAppDataDir("studiosync"))
			}
			return path, nil
		}})
	case config.ProviderS3:
		checks = append(checks, doctorCheck{"AWS credentials", func(ctx context.Context) (string, error) {
			var opts []func(*awsconfig.LoadOptions) error
			if cfg.Source.S3.Profile != "" {
				opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Source.S3.Profile))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				return "", fmt.Errorf("load aws config: %w", err)
			}
			creds, err := awsCfg.Credentials.Retrieve(ctx)
			if err != nil {
				return "", fmt.Errorf("retrieve credentials: %w", err)
			}
			return maskAccessKey(creds.AccessKeyID) + " from " + creds.Source, nil
		}})
	case config.ProviderFile:
		checks = append(checks, doctorCheck{"Source directory", func(context.Context) (string, error) {
			info, err := os.Stat(cfg.Source.File.BaseDir)
			if err != nil {
				return "", err
			}
			if !info.IsDir() {
				return "", fmt.Errorf("%s is not a directory", cfg.Source.File.BaseDir)
			}
			return cfg.Source.File.BaseDir, nil
		}})
	}
	return checks
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
