package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/habergo/habergo/internal/adapter"
	"github.com/habergo/habergo/internal/compliance"
	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/dedup"
	"github.com/habergo/habergo/internal/fetcher"
	"github.com/habergo/habergo/internal/normalize"
	"github.com/habergo/habergo/internal/runner"
	"github.com/habergo/habergo/internal/store"
)

var (
	cfgFile      string
	verbose      bool
	scheduleSpec string
	storageType  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "habergo",
		Short: "habergo — news ingestion and deduplication pipeline",
		Long: `habergo ingests articles from configured news outlets, normalizes them
into a canonical form, deduplicates across outlets, and persists the
survivors.

Features:
  • Per-outlet source adapters (RSS/Atom feeds and listing-page scraping)
  • robots.txt compliance with per-outlet request throttling
  • Cross-outlet exact and near-duplicate detection
  • MongoDB or in-memory article store
  • One-shot and cron-scheduled runs`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand for a single ingestion run.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one ingestion run across all configured outlets",
		RunE:  runOnce,
	}
	cmd.Flags().StringVar(&storageType, "storage", "", "storage backend: mongo, memory (overrides config)")
	return cmd
}

// runOnce executes the run command.
func runOnce(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, st, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	report := r.RunOnce(ctx)
	totals := report.Totals()

	fmt.Printf("Run %s finished: %s\n", report.RunID, report.Status)
	fmt.Printf("  Duration:   %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Printf("  Fetched:    %d\n", totals.Fetched)
	fmt.Printf("  Accepted:   %d new articles\n", totals.Accepted)
	fmt.Printf("  Duplicate:  %d\n", totals.Duplicate)
	fmt.Printf("  Rejected:   %d\n", totals.Rejected)
	fmt.Printf("  Failed:     %d\n", totals.Failed)
	for _, a := range report.Adapters {
		if a.Fatal {
			fmt.Printf("  ✗ %s: %s\n", a.Outlet, a.Error)
		}
	}
	return nil
}

// scheduleCmd creates the "schedule" subcommand for recurring runs.
func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a recurring cron schedule",
		Long:  "Run ingestion on the configured cron schedule until interrupted.",
		RunE:  runSchedule,
	}
	cmd.Flags().StringVar(&scheduleSpec, "spec", "", `cron expression, e.g. "*/30 * * * *" (overrides config)`)
	cmd.Flags().StringVar(&storageType, "storage", "", "storage backend: mongo, memory (overrides config)")
	return cmd
}

// runSchedule executes the schedule command.
func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if scheduleSpec != "" {
		cfg.Schedule.Spec = scheduleSpec
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r, st, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	sched, err := runner.NewScheduler(cfg.Schedule.Spec, r, logger)
	if err != nil {
		return err
	}

	logger.Info("scheduler starting", "spec", cfg.Schedule.Spec)
	sched.Start()

	<-ctx.Done()
	logger.Info("received signal, shutting down...")
	sched.Stop()
	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("habergo %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Fetcher:\n")
			fmt.Printf("  Request Timeout:  %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Max Body Size:    %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nCompliance:\n")
			fmt.Printf("  User Agent:       %s\n", cfg.Compliance.UserAgent)
			fmt.Printf("  Min Interval:     %s\n", cfg.Compliance.MinInterval)
			fmt.Printf("  Policy TTL:       %s\n", cfg.Compliance.PolicyTTL)
			fmt.Printf("\nDedup:\n")
			fmt.Printf("  Similarity:       %.2f\n", cfg.Dedup.SimilarityThreshold)
			fmt.Printf("  Window Size:      %d\n", cfg.Dedup.WindowSize)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:             %s\n", cfg.Storage.Type)
			fmt.Printf("  Database:         %s\n", cfg.Storage.Database)
			fmt.Printf("\nSchedule:\n")
			fmt.Printf("  Spec:             %s\n", cfg.Schedule.Spec)
			fmt.Printf("\nOutlets:          %d configured\n", len(cfg.Outlets))
			for _, o := range cfg.Outlets {
				fmt.Printf("  %-12s kind=%s", o.Name, o.Kind)
				if o.Kind == "feed" {
					fmt.Printf(" feeds=%d", len(o.Feeds))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

// setup loads and validates configuration and builds the logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, setupLogger(cfg.Logging), nil
}

// buildRunner wires the full pipeline: fetcher, compliance gate, outlet
// adapters, normalizer, dedup engine, store, and writer.
func buildRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runner.Runner, store.Store, error) {
	client := fetcher.New(cfg, logger)
	gate := compliance.NewGate(cfg, client, logger)

	adapters, err := adapter.Build(cfg, gate, client, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build adapters: %w", err)
	}

	var st store.Store
	switch cfg.Storage.Type {
	case "memory":
		st = store.NewMemoryStore()
	default:
		st, err = store.NewMongoStore(ctx, &cfg.Storage, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect storage: %w", err)
		}
	}

	normalizer := normalize.New(cfg, logger)
	engine := dedup.New(&cfg.Dedup, st, logger)
	writer := store.NewWriter(st, logger)

	return runner.New(adapters, normalizer, engine, writer, st, logger), st, nil
}

// setupLogger creates a structured logger from config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	out := os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
