package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/studiosync/internal/config"
	"github.com/3leaps/studiosync/internal/observability"
	"github.com/3leaps/studiosync/pkg/pipeline"
	"github.com/3leaps/studiosync/pkg/report"
)

// Report formats.
const (
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatJSONL = "jsonl"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Copy one source folder into a Studio session",
	Long: `Run one transfer: list the eligible documents of a source folder and hand
each one to the Studio session through register, upload and confirm.

The destination token may be given with --token or through the
STUDIOSYNC_DESTINATION_TOKEN environment variable. It is never logged.

Per-document failures are part of the report and do not change the exit
code. Invalid input and source listing failures do.

Example:
  studiosync run --batch 123-456-789 --folder 1AbCdEf --token "$TOKEN"
  studiosync run --batch 123-456-789 --folder reports/2026 --format yaml
  studiosync run --batch 123-456-789 --folder 1AbCdEf --format jsonl --output file:run.jsonl`,
	RunE: runRun,
}

var (
	runBatch  string
	runToken  string
	runFolder string
	runFormat string
	runOutput string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runBatch, "batch", "", "Studio session (batch) id")
	runCmd.Flags().StringVar(&runToken, "token", "", "Studio access token")
	runCmd.Flags().StringVar(&runFolder, "folder", "", "Source folder id (Drive folder id, S3 prefix, or sub-directory)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", formatJSON, "Report format (json|yaml|jsonl)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output destination (stdout or file:<path>)")
}

func runRun(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(strings.TrimSpace(runFormat))
	switch format {
	case formatJSON, formatYAML, formatJSONL:
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("unsupported format: %s", runFormat))
	}

	cfg := loadedConfig
	if cfg == nil {
		return exitError(foundry.ExitInvalidArgument, "Configuration not loaded", errors.New("no configuration"))
	}

	req := pipeline.Request{
		BatchID:          runBatch,
		DestinationToken: runToken,
		FolderID:         runFolder,
	}
	if req.DestinationToken == "" {
		req.DestinationToken = os.Getenv(config.EnvPrefix() + "_DESTINATION_TOKEN")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return executeRun(ctx, cfg, req, format, runOutput)
}

// executeRun builds the pipeline from cfg, runs req and renders the report.
func executeRun(ctx context.Context, cfg *config.Config, req pipeline.Request, format, dest string) error {
	runID := uuid.New().String()

	prov, err := createProvider(ctx, cfg.Source)
	if err != nil {
		observability.CLILogger.Error("Failed to create source provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to source", err)
	}
	defer func() { _ = prov.Close() }()

	p, err := buildPipeline(prov, cfg, observability.CLILogger)
	if err != nil {
		observability.CLILogger.Error("Failed to build pipeline", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	if format == formatJSONL {
		w, cleanup, err := createWriter(dest, runID, cfg.Source.Provider)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
		}
		defer cleanup()
		p.WithWriter(w)
	}

	observability.CLILogger.Info("Starting run",
		zap.String("run_id", runID),
		zap.String("batch_id", req.BatchID),
		zap.String("folder_id", req.FolderID),
		zap.String("provider", cfg.Source.Provider),
		zap.Int("concurrency", cfg.Pipeline.Concurrency))

	rep, err := p.Run(ctx, req)
	if err != nil {
		re, ok := pipeline.AsRunError(err)
		if ok {
			for _, line := range re.Debug {
				observability.CLILogger.Info(line)
			}
		}
		switch {
		case pipeline.KindOf(err) == pipeline.KindInputInvalid:
			return exitError(foundry.ExitInvalidArgument, "Invalid run input", err)
		case ctx.Err() != nil:
			return exitError(foundry.ExitSignalInt, "Run cancelled", err)
		default:
			return exitError(foundry.ExitExternalServiceUnavailable, "Run failed", err)
		}
	}

	if format != formatJSONL {
		if err := writeReport(dest, format, rep); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write report", err)
		}
	}

	c := rep.Counts()
	observability.CLILogger.Info("Run completed",
		zap.String("run_id", runID),
		zap.Int("items", c.Total()),
		zap.Int("succeeded", c.Succeeded),
		zap.Int("download_failed", c.DownloadFailed),
		zap.Int("upload_failed", c.UploadFailed))

	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, "Run cancelled", ctx.Err())
	}
	return nil
}

func writeReport(dest, format string, rep *report.RunReport) error {
	if dest == "" || dest == "stdout" {
		return renderReport(os.Stdout, format, rep)
	}
	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	if err := renderReport(f, format, rep); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// renderReport writes rep as indented JSON or YAML.
func renderReport(w io.Writer, format string, rep *report.RunReport) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
