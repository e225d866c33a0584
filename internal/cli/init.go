package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/cstore-insights/internal/datagen"
	"github.com/pgEdge/cstore-insights/internal/db"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

var (
	genStores             int
	genProducts           int
	genDays               int
	genStartYear          int
	genTransactionsPerDay int
	genSeed               uint64
	initDropExisting      bool
	genPartRows           int
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the dataset schema in PostgreSQL and seed it",
	Long: `Create the convenience-store tables in a PostgreSQL database and
populate them with a synthetic dataset. The postgres data source then reads
from these tables.

Example:
  cstore-insights init --connection "postgres://..." --stores 50 --days 730`,
	RunE: runInit,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a synthetic dataset as CSV files",
	Long: `Write a synthetic convenience-store dataset to the CSV data directory in
the layout read by the csv data source.

Example:
  cstore-insights generate --data-dir ./data --stores 25 --seed 42`,
	RunE: runGenerate,
}

// addGenerateFlags registers the dataset shape flags on cmd.
func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&genStores, "stores", 0,
		"number of stores to generate")
	cmd.Flags().IntVar(&genProducts, "products", 0,
		"number of products to generate")
	cmd.Flags().IntVar(&genDays, "days", 0,
		"number of days of transactions")
	cmd.Flags().IntVar(&genStartYear, "start-year", 0,
		"first calendar year of the dataset")
	cmd.Flags().IntVar(&genTransactionsPerDay, "transactions-per-day", 0,
		"mean checkouts per store per day")
	cmd.Flags().Uint64Var(&genSeed, "seed", 0,
		"random seed for reproducible output (0 = random)")
}

func init() {
	addGenerateFlags(initCmd)
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing tables before seeding")

	addGenerateFlags(generateCmd)
	generateCmd.Flags().IntVar(&genPartRows, "part-rows", 0,
		"split transaction items into part files of this many rows (0 = single file)")
}

// applyGenerateFlags overrides the generate config with CLI flags.
func applyGenerateFlags() {
	if genStores > 0 {
		cfg.Generate.Stores = genStores
	}
	if genProducts > 0 {
		cfg.Generate.Products = genProducts
	}
	if genDays > 0 {
		cfg.Generate.Days = genDays
	}
	if genStartYear > 0 {
		cfg.Generate.StartYear = genStartYear
	}
	if genTransactionsPerDay > 0 {
		cfg.Generate.TransactionsPerDay = genTransactionsPerDay
	}
	if genSeed > 0 {
		cfg.Generate.Seed = genSeed
	}
	if initDropExisting {
		cfg.Generate.DropExisting = true
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	applyGenerateFlags()

	// Validate configuration
	if err := cfg.ValidateInit(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	start := time.Now()

	// Connect to database
	pool, err := db.Connect(ctx, cfg.Data.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	// Refuse to seed twice unless asked to start over
	exists, err := db.MetadataExists(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to check metadata: %w", err)
	}
	if exists && !cfg.Generate.DropExisting {
		meta, err := db.GetAllMetadata(ctx, pool)
		if err != nil {
			return fmt.Errorf("failed to read metadata: %w", err)
		}
		ev := logging.Info()
		for _, k := range sortedKeys(meta) {
			ev = ev.Str(k, meta[k])
		}
		ev.Msg("Existing seed")
		return fmt.Errorf("database was already seeded at %s; use --drop-existing to reinitialize",
			meta["initialized_at"])
	}

	if cfg.Generate.DropExisting {
		logging.Info().Msg("Dropping existing schema")
		if err := db.DropSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
		if err := db.DropMetadata(ctx, pool); err != nil {
			logging.Debug().Err(err).Msg("No metadata table to drop")
		}
	}

	logging.Info().Msg("Creating schema")
	if err := db.CreateSchema(ctx, pool); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	gen := datagen.NewGenerator(cfg.Generate)
	ds, err := gen.Generate(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate data: %w", err)
	}
	if err := datagen.Seed(ctx, pool, ds, datagen.DefaultBatchConfig()); err != nil {
		return fmt.Errorf("failed to seed data: %w", err)
	}

	if err := db.SaveMetadata(ctx, pool, db.SeedInfo{
		Stores:   cfg.Generate.Stores,
		Products: cfg.Generate.Products,
		Days:     cfg.Generate.Days,
		Seed:     gen.Seed(),
	}); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	logging.Info().
		Int("stores", len(ds.Stores)).
		Int("sets", len(ds.Sets)).
		Int("items", len(ds.Items)).
		Uint64("seed", gen.Seed()).
		Str("elapsed", elapsed(start)).
		Msg("Database initialization complete")

	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	applyGenerateFlags()

	if err := cfg.ValidateGenerate(); err != nil {
		return err
	}
	if cfg.Data.Dir == "" {
		return fmt.Errorf("data directory is required")
	}

	ctx, cancel := signalContext()
	defer cancel()
	return generateCSV(ctx, cfg.Data.Dir, genPartRows)
}

func generateCSV(ctx context.Context, dir string, partRows int) error {
	start := time.Now()
	gen := datagen.NewGenerator(cfg.Generate)
	ds, err := gen.Generate(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate data: %w", err)
	}
	if err := datagen.WriteCSV(ctx, ds, dir, partRows); err != nil {
		return err
	}

	logging.Info().
		Str("dir", dir).
		Int("stores", len(ds.Stores)).
		Int("sets", len(ds.Sets)).
		Int("items", len(ds.Items)).
		Uint64("seed", gen.Seed()).
		Str("elapsed", elapsed(start)).
		Msg("Dataset written")
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
