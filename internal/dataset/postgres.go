//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/cstore-insights/internal/logging"
)

// Queries against the tables created by db.CreateSchema. Nullable text
// columns are coalesced to the empty string.
const (
	selectProductsSQL = `
SELECT gtin, COALESCE(brand, ''), COALESCE(category, ''),
       COALESCE(subcategory, ''), COALESCE(skupos_description, '')
FROM cstore_master_gtin
ORDER BY gtin`

	selectStoresSQL = `
SELECT store_id, latitude, longitude, COALESCE(state, ''),
       COALESCE(city, ''), COALESCE(store_chain_name, '')
FROM cstore_stores
ORDER BY store_id`

	selectDailySQL = `
SELECT store_id, COALESCE(category, ''), COALESCE(subcategory, ''),
       COALESCE(brand, ''), COALESCE(skupos_description, ''),
       calendar_year, calendar_month, COALESCE(week, 0),
       total_revenue_amount, quantity, transaction_count
FROM cstore_transactions_daily_agg
ORDER BY id`

	selectSetsSQL = `
SELECT transaction_set_id, store_id, date_time,
       COALESCE(payment_type, ''), grand_total_amount
FROM cstore_transaction_sets
ORDER BY date_time, transaction_set_id`

	selectItemsSQL = `
SELECT transaction_set_id, gtin, unit_price, unit_quantity, grand_total_amount
FROM cstore_transaction_items
ORDER BY id`
)

// LoadPostgres reads every table from a seeded PostgreSQL database.
func LoadPostgres(ctx context.Context, pool *pgxpool.Pool) (*Dataset, error) {
	start := time.Now()

	products, err := queryRows(ctx, pool, "products", selectProductsSQL, func(row pgx.CollectableRow) (Product, error) {
		var p Product
		err := row.Scan(&p.GTIN, &p.Brand, &p.Category, &p.Subcategory, &p.Description)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	stores, err := queryRows(ctx, pool, "stores", selectStoresSQL, func(row pgx.CollectableRow) (Store, error) {
		var s Store
		err := row.Scan(&s.StoreID, &s.Latitude, &s.Longitude, &s.State, &s.City, &s.Chain)
		return s, err
	})
	if err != nil {
		return nil, err
	}

	daily, err := queryRows(ctx, pool, "daily aggregates", selectDailySQL, func(row pgx.CollectableRow) (DailyAggregate, error) {
		var d DailyAggregate
		err := row.Scan(&d.StoreID, &d.Category, &d.Subcategory, &d.Brand, &d.Description,
			&d.Year, &d.Month, &d.Week, &d.Revenue, &d.Quantity, &d.Transactions)
		return d, err
	})
	if err != nil {
		return nil, err
	}

	sets, err := queryRows(ctx, pool, "transaction sets", selectSetsSQL, func(row pgx.CollectableRow) (TransactionSet, error) {
		var s TransactionSet
		err := row.Scan(&s.ID, &s.StoreID, &s.DateTime, &s.PaymentType, &s.GrandTotal)
		return s, err
	})
	if err != nil {
		return nil, err
	}

	items, err := queryRows(ctx, pool, "transaction items", selectItemsSQL, func(row pgx.CollectableRow) (TransactionItem, error) {
		var i TransactionItem
		err := row.Scan(&i.TransactionSetID, &i.GTIN, &i.UnitPrice, &i.UnitQuantity, &i.LineTotal)
		return i, err
	})
	if err != nil {
		return nil, err
	}

	logging.Info().
		Int("products", len(products)).
		Int("stores", len(stores)).
		Int("daily", len(daily)).
		Int("sets", len(sets)).
		Int("items", len(items)).
		Dur("elapsed", time.Since(start)).
		Msg("Loaded PostgreSQL dataset")

	return New(products, stores, daily, sets, items), nil
}

func queryRows[T any](ctx context.Context, pool *pgxpool.Pool, what, sql string,
	scan pgx.RowToFunc[T]) ([]T, error) {

	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return out, nil
}
