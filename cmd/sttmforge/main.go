// Command sttmforge generates STTM mapping documents and silver/gold
// notebook code with an oracle, validating every attempt and retrying with
// feedback until the output is valid or the attempt bound is reached.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sttmforge/internal/config"
	"sttmforge/internal/governor"
	"sttmforge/internal/logging"
	"sttmforge/internal/metrics"
	"sttmforge/internal/oracle"
	"sttmforge/internal/policy"
	"sttmforge/internal/prompts"
	"sttmforge/internal/sink"
	"sttmforge/internal/store"
)

// version is set at build time with -ldflags.
var version = "dev"

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	verbose    bool
	dryRun     bool
	responses  []string

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sttmforge",
		Short: "Oracle-driven STTM and SparkSQL notebook generation with validation and retry",
		Long: `sttmforge asks a text-generation oracle for an artifact, validates it
(grammar first, then deterministic rules, then an optional oracle judge) and
retries with cumulative feedback until it is valid or attempts run out.

Policies:
  structured-mapping  STTM JSON from a spreadsheet export (CSV)
  sql-silver          transform_sql_query_dict notebook cell
  sql-gold            <name>_df = spark.sql(...) gold notebook`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.Initialize(logging.Options{Level: level, Format: "console"})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			logging.SetSessionID(logging.NewSessionID())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "sttmforge.yaml", "Config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "Use a static oracle fed from --responses")
	root.PersistentFlags().StringSliceVar(&opts.responses, "responses", nil, "Files replayed in order by the static oracle")

	root.AddCommand(
		newRunCmd(opts),
		newBatchCmd(opts),
		newValidateCmd(opts),
		newServeCmd(opts),
		newStatsCmd(opts),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the config-level flags,
// reinitializing logging from the file's logging section.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.dryRun {
		cfg.Oracle = config.OracleConfig{Provider: "static", Responses: o.responses}
		cfg.Judge = config.OracleConfig{}
	}

	if cfg.Logging.Level != "" && !o.verbose {
		logger, err := logging.Initialize(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			File:        cfg.Logging.File,
			Development: cfg.Logging.Development,
			Categories:  cfg.Logging.Categories,
		})
		if err != nil {
			return nil, err
		}
		o.logger = logger
	}
	return cfg, nil
}

// app is the wired runtime shared by the task commands.
type app struct {
	cfg     *config.Config
	loader  *prompts.Loader
	gov     *governor.Governor
	stats   *metrics.Stats
	ledger  *store.Ledger
	closers []io.Closer
}

func (o *rootOptions) buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	timeout := cfg.GetOracleTimeout()
	client, err := oracle.NewFromConfig(ctx, cfg.Oracle, timeout)
	if err != nil {
		return nil, err
	}
	judge := client
	if !cfg.Judge.IsZero() {
		if judge, err = oracle.NewFromConfig(ctx, cfg.Judge, timeout); err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg:    cfg,
		loader: prompts.NewLoader(cfg.Templates.Dir),
		stats:  metrics.NewStats(),
	}
	recorders := []governor.Recorder{a.stats, metrics.NewCollector()}

	if cfg.Store.Enabled {
		ledger, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.ledger = ledger
		a.closers = append(a.closers, ledger)
		recorders = append(recorders, ledger)
	}

	artifacts, err := sink.New(ctx, cfg.Sink)
	if err != nil {
		a.Close()
		return nil, err
	}
	recorders = append(recorders, sink.NewRecorder(artifacts))

	a.gov = governor.New(
		metrics.InstrumentOracle(client, "generate"),
		governor.WithJudge(metrics.InstrumentOracle(judge, "judge")),
		governor.WithRegistry(policy.FromConfig(cfg.Policies, a.loader)),
		governor.WithLogger(logging.Get(logging.CategoryGovernor).Zap()),
		governor.WithRecorder(governor.Recorders(recorders...)),
	)
	logging.Boot("sttmforge ready: oracle=%s store=%v sink=%s", cfg.Oracle.Provider, cfg.Store.Enabled, cfg.Sink.Kind)
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logging.BootWarn("close failed: %v", err)
		}
	}
}
