package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
	"github.com/kubilitics/kubilitics-vitals/internal/config"
	"github.com/kubilitics/kubilitics-vitals/internal/logging"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type app struct {
	configPath string
	logLevel   string

	cfgMgr config.ConfigManager
	cfg    *config.Config
	logger *zap.Logger

	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand returns the vitals command tree writing to the process streams.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

// NewRootCommandWithIO returns the command tree writing to the given streams.
func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(out, errOut)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "vitals",
		Short:         "Synthetic health-vitals analytics",
		Long:          "vitals generates synthetic physiological time series, flags anomalous samples with an isolation forest, and derives a health score and rule-based insights.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newGenerateCmd(a),
		newAnalyzeCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

// init loads configuration and builds the logger. CLI flags take precedence
// over environment, file and defaults.
func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return err
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := mgr.Get(ctx)
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs[0])
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	a.cfgMgr, a.cfg, a.logger = mgr, cfg, logger
	return nil
}

func detectorOptions(cfg *config.Config) ml.DetectorOptions {
	return ml.DetectorOptions{
		Contamination: cfg.Detector.Contamination,
		NumTrees:      cfg.Detector.NumTrees,
		SubSampleSize: cfg.Detector.SubSampleSize,
		MaxDepth:      cfg.Detector.MaxDepth,
		Seed:          cfg.Detector.Seed,
		MinSamples:    cfg.Detector.MinSamples,
	}
}

func (a *app) newEngine(opts ...analytics.Option) (*analytics.Engine, error) {
	opts = append([]analytics.Option{
		analytics.WithLogger(a.logger),
		analytics.WithOutlierFraction(a.cfg.Generator.OutlierFraction),
	}, opts...)
	return analytics.NewEngine(detectorOptions(a.cfg), opts...)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "vitals %s\n", Version)
			return nil
		},
	}
}
