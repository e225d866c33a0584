package datagen

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/dataset"
)

func smallConfig(seed uint64) config.GenerateConfig {
	return config.GenerateConfig{
		Stores:             3,
		Products:           40,
		StartYear:          2023,
		Days:               20,
		TransactionsPerDay: 4,
		Seed:               seed,
	}
}

func generate(t *testing.T, cfg config.GenerateConfig) *dataset.Dataset {
	t.Helper()
	ds, err := NewGenerator(cfg).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return ds
}

func TestGenerateDeterministic(t *testing.T) {
	a := generate(t, smallConfig(42))
	b := generate(t, smallConfig(42))

	if len(a.Sets) != len(b.Sets) || len(a.Items) != len(b.Items) || len(a.Daily) != len(b.Daily) {
		t.Fatalf("Expected equal sizes, got sets %d/%d items %d/%d daily %d/%d",
			len(a.Sets), len(b.Sets), len(a.Items), len(b.Items), len(a.Daily), len(b.Daily))
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			t.Fatalf("Item %d differs: %+v != %+v", i, a.Items[i], b.Items[i])
		}
	}
	for i := range a.Products {
		if a.Products[i] != b.Products[i] {
			t.Fatalf("Product %d differs: %+v != %+v", i, a.Products[i], b.Products[i])
		}
	}
}

func TestGenerateShape(t *testing.T) {
	cfg := smallConfig(7)
	ds := generate(t, cfg)

	if len(ds.Stores) != cfg.Stores {
		t.Errorf("Expected %d stores, got %d", cfg.Stores, len(ds.Stores))
	}
	if len(ds.Products) != cfg.Products {
		t.Errorf("Expected %d products, got %d", cfg.Products, len(ds.Products))
	}
	if ds.Stores[0].StoreID != "1001" {
		t.Errorf("Expected first store id 1001, got %q", ds.Stores[0].StoreID)
	}

	categories := make(map[string]bool)
	for _, p := range ds.Products {
		categories[p.Category] = true
	}
	if len(categories) != len(catalog) {
		t.Errorf("Expected every catalog category, got %d of %d", len(categories), len(catalog))
	}

	setIDs := make(map[string]bool, len(ds.Sets))
	for _, s := range ds.Sets {
		if setIDs[s.ID] {
			t.Fatalf("Duplicate set id %s", s.ID)
		}
		setIDs[s.ID] = true
		if s.DateTime.Year() != cfg.StartYear {
			t.Errorf("Expected year %d, got %d", cfg.StartYear, s.DateTime.Year())
		}
	}
	for _, it := range ds.Items {
		if !setIDs[it.TransactionSetID] {
			t.Fatalf("Item references unknown set %s", it.TransactionSetID)
		}
		if _, ok := ds.Product(it.GTIN); !ok {
			t.Fatalf("Item references unknown GTIN %s", it.GTIN)
		}
	}
	for _, d := range ds.Daily {
		if d.Week < 1 || d.Week > 53 {
			t.Errorf("Expected week in 1..53, got %d", d.Week)
		}
	}
}

func TestDailyMatchesItems(t *testing.T) {
	ds := generate(t, smallConfig(99))

	var itemRevenue, dailyRevenue float64
	for _, it := range ds.Items {
		itemRevenue += it.LineTotal
	}
	for _, d := range ds.Daily {
		dailyRevenue += d.Revenue
	}
	if math.Abs(itemRevenue-dailyRevenue) > 0.01*float64(len(ds.Daily)) {
		t.Errorf("Expected daily revenue %.2f to match item revenue %.2f", dailyRevenue, itemRevenue)
	}

	// Set totals are the sum of their lines.
	lines := make(map[string]float64)
	for _, it := range ds.Items {
		lines[it.TransactionSetID] += it.LineTotal
	}
	for _, s := range ds.Sets {
		if s.GrandTotal == nil {
			continue
		}
		if math.Abs(*s.GrandTotal-lines[s.ID]) > 0.005 {
			t.Fatalf("Set %s: expected total %.2f, got %.2f", s.ID, lines[s.ID], *s.GrandTotal)
		}
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewGenerator(smallConfig(1)).Generate(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestNewGeneratorPicksSeed(t *testing.T) {
	g := NewGenerator(smallConfig(0))
	if g.Seed() == 0 {
		t.Error("Expected a non-zero seed")
	}
	if got := NewGenerator(smallConfig(5)).Seed(); got != 5 {
		t.Errorf("Expected seed 5, got %d", got)
	}
}

func TestWriteCSVLoads(t *testing.T) {
	tests := []struct {
		name     string
		partRows int
	}{
		{"single items file", 0},
		{"item parts", 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := generate(t, smallConfig(3))
			dir := t.TempDir()
			if err := WriteCSV(context.Background(), ds, dir, tt.partRows); err != nil {
				t.Fatalf("WriteCSV failed: %v", err)
			}

			if tt.partRows > 0 {
				parts, _ := filepath.Glob(filepath.Join(dir, dataset.ItemsPartDir, "part-*.csv"))
				want := (len(ds.Items) + tt.partRows - 1) / tt.partRows
				if len(parts) != want {
					t.Errorf("Expected %d part files, got %d", want, len(parts))
				}
				if _, err := os.Stat(filepath.Join(dir, dataset.ItemsFile)); !os.IsNotExist(err) {
					t.Error("Expected no single items file")
				}
			}

			loaded, err := dataset.LoadCSV(dir)
			if err != nil {
				t.Fatalf("LoadCSV failed: %v", err)
			}
			for name, table := range ds.Tables() {
				if got := loaded.Tables()[name].Len(); got != table.Len() {
					t.Errorf("Table %s: expected %d rows, got %d", name, table.Len(), got)
				}
			}
			if loaded.Items[0] != ds.Items[0] {
				t.Errorf("Expected first item %+v, got %+v", ds.Items[0], loaded.Items[0])
			}
			for i, s := range ds.Sets {
				l := loaded.Sets[i]
				if !l.DateTime.Equal(s.DateTime) || l.PaymentType != s.PaymentType || l.Total() != s.Total() {
					t.Fatalf("Set %d: expected %+v, got %+v", i, s, l)
				}
				if (l.GrandTotal == nil) != (s.GrandTotal == nil) {
					t.Fatalf("Set %d: null grand total not preserved", i)
				}
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d): expected %q, got %q", tt.bytes, tt.want, got)
		}
	}
}
