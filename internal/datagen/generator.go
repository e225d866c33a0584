//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

// firstStoreID is the identifier of the first generated store.
const firstStoreID = 1001

// BatchInsertConfig configures batch insert behavior.
type BatchInsertConfig struct {
	// BatchSize is the number of rows per COPY batch or item part file.
	BatchSize int

	// ProgressInterval is how often to log progress (in rows).
	ProgressInterval int64
}

// DefaultBatchConfig returns default batch insert configuration.
func DefaultBatchConfig() BatchInsertConfig {
	return BatchInsertConfig{
		BatchSize:        10000,
		ProgressInterval: 100000,
	}
}

// Generator builds a synthetic dataset. The same configuration and seed
// always produce the same dataset.
type Generator struct {
	cfg   config.GenerateConfig
	seed  uint64
	faker *Faker
}

// NewGenerator creates a generator. A zero seed picks one from the clock;
// Seed reports the value used.
func NewGenerator(cfg config.GenerateConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		cfg:   cfg,
		seed:  seed,
		faker: NewFakerWithSeed(seed),
	}
}

// Seed returns the seed in use.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// Generate produces every table. Daily aggregates are derived from the
// generated transaction items, so reports over either fact table agree.
func (g *Generator) Generate(ctx context.Context) (*dataset.Dataset, error) {
	start := time.Now()
	logging.Info().
		Int("stores", g.cfg.Stores).
		Int("products", g.cfg.Products).
		Int("days", g.cfg.Days).
		Uint64("seed", g.seed).
		Msg("Generating dataset")

	products, byCategory := g.products()
	index := productIndex(products)
	stores := g.stores()

	var (
		daily dataset.DailyAggregates
		sets  dataset.TransactionSets
		items dataset.TransactionItems
	)
	first := time.Date(g.cfg.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	total := int64(g.cfg.Days) * int64(len(stores))
	progress := NewProgressReporter("transaction_sets", total, max(1, total/10))

	for d := 0; d < g.cfg.Days; d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := first.AddDate(0, 0, d)
		for _, st := range stores {
			s, it, agg := g.storeDay(st, day, products, byCategory, index)
			sets = append(sets, s...)
			items = append(items, it...)
			daily = append(daily, agg...)
			progress.Update(1)
		}
	}
	progress.Done()

	logging.Info().
		Int("sets", len(sets)).
		Int("items", len(items)).
		Int("daily", len(daily)).
		Dur("elapsed", time.Since(start)).
		Msg("Dataset generated")

	return dataset.New(products, stores, daily, sets, items), nil
}

// products builds the GTIN master. It also returns the product indexes of
// each catalog category.
func (g *Generator) products() (dataset.Products, [][]int) {
	out := make(dataset.Products, 0, g.cfg.Products)
	byCategory := make([][]int, len(catalog))
	seen := make(map[string]bool, g.cfg.Products)
	weights := categoryWeights()

	for len(out) < g.cfg.Products {
		// Every category gets at least one product before weighting applies.
		ci := len(out)
		if ci >= len(catalog) {
			ci = ChooseWeighted(g.faker, indexes(len(catalog)), weights)
		}
		c := catalog[ci]

		gtin := "0" + g.faker.Digits(11)
		if seen[gtin] {
			continue
		}
		seen[gtin] = true

		brand := Choose(g.faker, c.brands)
		desc := fmt.Sprintf("%s %s %s", brand, titleWord(g.faker.Adjective()), Choose(g.faker, c.nouns))
		byCategory[ci] = append(byCategory[ci], len(out))
		out = append(out, dataset.Product{
			GTIN:        gtin,
			Brand:       brand,
			Category:    c.name,
			Subcategory: Choose(g.faker, c.subcategories),
			Description: desc,
		})
	}
	return out, byCategory
}

func (g *Generator) stores() dataset.Stores {
	chains := make([]string, 0, 4)
	for range 4 {
		chains = append(chains, g.faker.Company())
	}
	weights := regionWeights()

	out := make(dataset.Stores, 0, g.cfg.Stores)
	for i := 0; i < g.cfg.Stores; i++ {
		r := ChooseWeighted(g.faker, regions, weights)
		out = append(out, dataset.Store{
			StoreID:   dataset.CanonicalStoreIDInt(int64(firstStoreID + i)),
			Latitude:  roundTo(g.faker.Float64(r.minLat, r.maxLat), 6),
			Longitude: roundTo(g.faker.Float64(r.minLon, r.maxLon), 6),
			State:     r.state,
			City:      Choose(g.faker, r.cities),
			Chain:     Choose(g.faker, chains),
		})
	}
	return out
}

type dayAgg struct {
	revenue, quantity, transactions float64
}

// storeDay generates one store's checkouts for one day together with the
// daily aggregate rows they roll up to.
func (g *Generator) storeDay(st dataset.Store, day time.Time, products dataset.Products,
	byCategory [][]int, index map[string]int) (dataset.TransactionSets, dataset.TransactionItems, dataset.DailyAggregates) {

	n := g.faker.Int(max(1, g.cfg.TransactionsPerDay/2), g.cfg.TransactionsPerDay*3/2+1)
	weights := categoryWeights()
	cats := indexes(len(catalog))

	sets := make(dataset.TransactionSets, 0, n)
	var items dataset.TransactionItems
	agg := make(map[string]*dayAgg)

	for range n {
		id := g.faker.UUID()
		when := day.Add(time.Duration(ChooseWeighted(g.faker, checkoutHours, checkoutHourWeights))*time.Hour +
			time.Duration(g.faker.Int(0, 3599))*time.Second)

		lines := ChooseWeighted(g.faker, []int{1, 2, 3, 4, 5}, []int{40, 28, 17, 10, 5})
		inSet := make(map[string]bool, lines)
		var total float64
		for range lines {
			ci := ChooseWeighted(g.faker, cats, weights)
			pool := byCategory[ci]
			if len(pool) == 0 {
				continue
			}
			p := products[Choose(g.faker, pool)]
			c := catalog[ci]

			price := g.faker.Price(c.minPrice, c.maxPrice)
			qty := float64(ChooseWeighted(g.faker, []int{1, 2, 3}, []int{80, 15, 5}))
			line := Round2(price * qty)
			total += line

			items = append(items, dataset.TransactionItem{
				TransactionSetID: id,
				GTIN:             p.GTIN,
				UnitPrice:        price,
				UnitQuantity:     qty,
				LineTotal:        line,
			})

			a, ok := agg[p.GTIN]
			if !ok {
				a = &dayAgg{}
				agg[p.GTIN] = a
			}
			a.revenue += line
			a.quantity += qty
			if !inSet[p.GTIN] {
				inSet[p.GTIN] = true
				a.transactions++
			}
		}

		set := dataset.TransactionSet{
			ID:          id,
			StoreID:     st.StoreID,
			DateTime:    when,
			PaymentType: ChooseWeighted(g.faker, paymentTypes, paymentWeights),
		}
		// A small share of exported sets carry no grand total.
		if !g.faker.Chance(0.01) {
			t := Round2(total)
			set.GrandTotal = &t
		}
		sets = append(sets, set)
	}

	week := (day.YearDay()-1)/7 + 1
	gtins := make([]string, 0, len(agg))
	for gtin := range agg {
		gtins = append(gtins, gtin)
	}
	sort.Strings(gtins)

	daily := make(dataset.DailyAggregates, 0, len(gtins))
	for _, gtin := range gtins {
		a := agg[gtin]
		p := products[index[gtin]]
		daily = append(daily, dataset.DailyAggregate{
			StoreID:      st.StoreID,
			Category:     p.Category,
			Subcategory:  p.Subcategory,
			Brand:        p.Brand,
			Description:  p.Description,
			Year:         day.Year(),
			Month:        int(day.Month()),
			Week:         week,
			Revenue:      Round2(a.revenue),
			Quantity:     a.quantity,
			Transactions: a.transactions,
		})
	}
	return sets, items, daily
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func productIndex(products dataset.Products) map[string]int {
	idx := make(map[string]int, len(products))
	for i, p := range products {
		idx[p.GTIN] = i
	}
	return idx
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

func roundTo(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}

// ProgressReporter tracks and reports data generation progress.
type ProgressReporter struct {
	tableName        string
	totalRows        int64
	currentRow       int64
	progressInterval int64
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter(tableName string, totalRows int64, interval int64) *ProgressReporter {
	return &ProgressReporter{
		tableName:        tableName,
		totalRows:        totalRows,
		progressInterval: max(1, interval),
	}
}

// Update adds rows and logs each time a progress interval is crossed.
func (p *ProgressReporter) Update(rows int64) {
	oldRow := p.currentRow
	p.currentRow += rows

	if p.currentRow/p.progressInterval > oldRow/p.progressInterval {
		pct := 100.0
		if p.totalRows > 0 {
			pct = float64(p.currentRow) / float64(p.totalRows) * 100
		}
		logging.Info().
			Str("table", p.tableName).
			Int64("rows", p.currentRow).
			Int64("total", p.totalRows).
			Float64("percent", pct).
			Msg("Generating data")
	}
}

// Rows returns the rows counted so far.
func (p *ProgressReporter) Rows() int64 {
	return p.currentRow
}

// Done logs completion.
func (p *ProgressReporter) Done() {
	logging.Info().
		Str("table", p.tableName).
		Int64("rows", p.currentRow).
		Msg("Table complete")
}

// FormatSize formats a byte count as a human-readable string.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
