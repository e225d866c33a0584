//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for cstore-insights.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/cstore-insights/internal/cache"
	"github.com/pgEdge/cstore-insights/internal/census"
	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/enrich"
	"github.com/pgEdge/cstore-insights/internal/logging"
	"github.com/pgEdge/cstore-insights/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	dataSource string
	dataDir    string
	connection string
	cacheDir   string
	logLevel   string
	logFormat  string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "cstore-insights",
		Short: "Convenience-store retail analytics with Census demographics",
		Long: `cstore-insights loads a convenience-store sales dataset, filters it by
calendar year and month, and computes the overview, top product, beverage
drop-candidate, payment type and store demographic reports.

Store demographics come from a three-stage enrichment pipeline against the
US Census geocoder and ACS 5-year APIs. Each stage's result is cached on
disk and reused until the cache is cleared.

Reports are available from the command line or over an HTTP JSON API.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./cstore-insights.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataSource, "source", "",
		"dataset source: csv or postgres")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"CSV dataset directory")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "",
		"directory holding the enrichment caches")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (pretty, json)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if dataSource != "" {
		cfg.Data.Source = dataSource
	}
	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	if connection != "" {
		cfg.Data.Connection = connection
	}
	if cacheDir != "" {
		cfg.Enrich.CacheDir = cacheDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogFormat != "json",
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// loadDataset loads the configured dataset once for the command.
func loadDataset(ctx context.Context) (*dataset.Dataset, error) {
	ds, err := dataset.Load(ctx, cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return ds, nil
}

// newPipeline builds the enrichment pipeline from configuration. The
// returned function releases the memo backend.
func newPipeline(ctx context.Context, progress enrich.ProgressFunc) (*enrich.Pipeline, func() error, error) {
	memo, closeMemo, err := cache.NewMemo(ctx, cfg.Enrich)
	if err != nil {
		return nil, nil, err
	}

	opts := enrich.OptionsFromConfig(cfg.Enrich)
	opts.Progress = progress
	p := enrich.New(
		cache.NewStore(cfg.Enrich.CacheDir),
		census.NewClient(cfg.Census),
		memo,
		opts,
	)
	return p, closeMemo, nil
}

// elapsed formats a duration for summaries.
func elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
