//go:build integration

// Seeding tests against a live PostgreSQL.
// Run with: go test -tags=integration ./internal/datagen/...
// Set PGEDGE_TEST_CONN to override the connection string.

package datagen_test

import (
	"context"
	"testing"

	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/datagen"
	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/db"
	"github.com/pgEdge/cstore-insights/internal/filter"
	"github.com/pgEdge/cstore-insights/internal/reports"
	"github.com/pgEdge/cstore-insights/internal/testutil"
)

func TestSeedAndLoadPostgres(t *testing.T) {
	baseConnStr := testutil.SkipIfNoPostgres(t)

	testConnStr := testutil.CreateTestDB(t, baseConnStr, "seed")
	dbName := testutil.GetDBNameFromConnStr(testConnStr)

	cleanup := testutil.NewTestCleanup(t, baseConnStr, dbName)
	t.Cleanup(cleanup.Cleanup)

	pool := testutil.ConnectTestDB(t, testConnStr)
	cleanup.SetPool(pool)

	ctx := context.Background()
	gen := datagen.NewGenerator(config.GenerateConfig{
		Stores:             4,
		Products:           50,
		StartYear:          2023,
		Days:               45,
		TransactionsPerDay: 5,
		Seed:               2023,
	})
	generated, err := gen.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	t.Run("CreateSchema", func(t *testing.T) {
		if err := db.CreateSchema(ctx, pool); err != nil {
			t.Fatalf("CreateSchema failed: %v", err)
		}
	})

	t.Run("Seed", func(t *testing.T) {
		cfg := datagen.BatchInsertConfig{BatchSize: 100, ProgressInterval: 1000}
		if err := datagen.Seed(ctx, pool, generated, cfg); err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		if err := db.SaveMetadata(ctx, pool, db.SeedInfo{Stores: 4, Products: 50, Days: 45, Seed: gen.Seed()}); err != nil {
			t.Fatalf("SaveMetadata failed: %v", err)
		}
		seed, err := db.GetMetadataValue(ctx, pool, "seed")
		if err != nil || seed != "2023" {
			t.Errorf("Expected seed metadata 2023, got %q (%v)", seed, err)
		}
		meta, err := db.GetAllMetadata(ctx, pool)
		if err != nil {
			t.Fatalf("GetAllMetadata failed: %v", err)
		}
		if meta["stores"] != "4" || meta["initialized_at"] == "" {
			t.Errorf("Expected stores 4 and an init time, got %v", meta)
		}
	})

	t.Run("LoadPostgres", func(t *testing.T) {
		loaded, err := dataset.LoadPostgres(ctx, pool)
		if err != nil {
			t.Fatalf("LoadPostgres failed: %v", err)
		}
		for name, table := range generated.Tables() {
			if got := loaded.Tables()[name].Len(); got != table.Len() {
				t.Errorf("Table %s: expected %d rows, got %d", name, table.Len(), got)
			}
		}

		// The same filter over either copy gives the same overview.
		p := filter.DefaultParams()
		want := reports.BuildOverview(generated, filter.Apply(generated, p))
		got := reports.BuildOverview(loaded, filter.Apply(loaded, p))
		if got.TotalTransactions != want.TotalTransactions {
			t.Errorf("Expected %d transactions, got %d", want.TotalTransactions, got.TotalTransactions)
		}
		if diff := got.TotalRevenue - want.TotalRevenue; diff > 0.01 || diff < -0.01 {
			t.Errorf("Expected revenue %.2f, got %.2f", want.TotalRevenue, got.TotalRevenue)
		}
	})
}
