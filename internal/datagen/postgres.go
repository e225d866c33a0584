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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/db"
)

// Seed copies ds into the tables created by db.CreateSchema.
func Seed(ctx context.Context, pool *pgxpool.Pool, ds *dataset.Dataset, cfg BatchInsertConfig) error {
	if cfg.BatchSize <= 0 {
		cfg = DefaultBatchConfig()
	}

	err := copyTable(ctx, pool, cfg, db.TableProducts,
		[]string{"gtin", "brand", "category", "subcategory", "skupos_description"},
		len(ds.Products), func(i int) []any {
			p := ds.Products[i]
			return []any{p.GTIN, p.Brand, p.Category, p.Subcategory, p.Description}
		})
	if err != nil {
		return err
	}

	err = copyTable(ctx, pool, cfg, db.TableStores,
		[]string{"store_id", "latitude", "longitude", "state", "city", "store_chain_name"},
		len(ds.Stores), func(i int) []any {
			s := ds.Stores[i]
			return []any{s.StoreID, s.Latitude, s.Longitude, s.State, s.City, s.Chain}
		})
	if err != nil {
		return err
	}

	err = copyTable(ctx, pool, cfg, db.TableDaily,
		[]string{"store_id", "category", "subcategory", "brand", "skupos_description",
			"calendar_year", "calendar_month", "week", "total_revenue_amount", "quantity", "transaction_count"},
		len(ds.Daily), func(i int) []any {
			d := ds.Daily[i]
			return []any{d.StoreID, d.Category, d.Subcategory, d.Brand, d.Description,
				d.Year, d.Month, d.Week, d.Revenue, d.Quantity, d.Transactions}
		})
	if err != nil {
		return err
	}

	err = copyTable(ctx, pool, cfg, db.TableSets,
		[]string{"transaction_set_id", "store_id", "date_time", "payment_type", "grand_total_amount"},
		len(ds.Sets), func(i int) []any {
			s := ds.Sets[i]
			var payment any
			if s.PaymentType != "" {
				payment = s.PaymentType
			}
			return []any{s.ID, s.StoreID, s.DateTime, payment, s.GrandTotal}
		})
	if err != nil {
		return err
	}

	return copyTable(ctx, pool, cfg, db.TableItems,
		[]string{"transaction_set_id", "gtin", "unit_price", "unit_quantity", "grand_total_amount"},
		len(ds.Items), func(i int) []any {
			it := ds.Items[i]
			return []any{it.TransactionSetID, it.GTIN, it.UnitPrice, it.UnitQuantity, it.LineTotal}
		})
}

// copyTable streams n rows into table with COPY, one batch at a time.
func copyTable(ctx context.Context, pool *pgxpool.Pool, cfg BatchInsertConfig, table string,
	columns []string, n int, row func(i int) []any) error {

	progress := NewProgressReporter(table, int64(n), cfg.ProgressInterval)
	for lo := 0; lo < n; lo += cfg.BatchSize {
		hi := min(lo+cfg.BatchSize, n)
		src := pgx.CopyFromSlice(hi-lo, func(i int) ([]any, error) {
			return row(lo + i), nil
		})
		copied, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
		if err != nil {
			return fmt.Errorf("failed to copy into %s: %w", table, err)
		}
		progress.Update(copied)
	}
	progress.Done()
	return nil
}
