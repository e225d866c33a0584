//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Table names of the seeded dataset, in load order.
const (
	TableProducts = "cstore_master_gtin"
	TableStores   = "cstore_stores"
	TableDaily    = "cstore_transactions_daily_agg"
	TableSets     = "cstore_transaction_sets"
	TableItems    = "cstore_transaction_items"
)

// Schema SQL for the convenience-store dataset. Store identifiers are text
// so that exported numeric and string forms round-trip unchanged.
const createSchemaSQL = `
-- Product master
CREATE TABLE IF NOT EXISTS cstore_master_gtin (
    gtin               TEXT PRIMARY KEY,
    brand              TEXT,
    category           TEXT,
    subcategory        TEXT,
    skupos_description TEXT
);

-- Store master
CREATE TABLE IF NOT EXISTS cstore_stores (
    store_id         TEXT PRIMARY KEY,
    latitude         DOUBLE PRECISION NOT NULL,
    longitude        DOUBLE PRECISION NOT NULL,
    state            TEXT,
    city             TEXT,
    store_chain_name TEXT
);

-- Daily aggregate fact
CREATE TABLE IF NOT EXISTS cstore_transactions_daily_agg (
    id                   BIGSERIAL PRIMARY KEY,
    store_id             TEXT NOT NULL,
    category             TEXT,
    subcategory          TEXT,
    brand                TEXT,
    skupos_description   TEXT,
    calendar_year        INTEGER NOT NULL,
    calendar_month       INTEGER NOT NULL,
    week                 INTEGER,
    total_revenue_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    quantity             DOUBLE PRECISION NOT NULL DEFAULT 0,
    transaction_count    DOUBLE PRECISION NOT NULL DEFAULT 0
);

-- Transaction set fact
CREATE TABLE IF NOT EXISTS cstore_transaction_sets (
    transaction_set_id TEXT PRIMARY KEY,
    store_id           TEXT NOT NULL,
    date_time          TIMESTAMP NOT NULL,
    payment_type       TEXT,
    grand_total_amount DOUBLE PRECISION
);

-- Transaction item fact
CREATE TABLE IF NOT EXISTS cstore_transaction_items (
    id                 BIGSERIAL PRIMARY KEY,
    transaction_set_id TEXT NOT NULL,
    gtin               TEXT NOT NULL,
    unit_price         DOUBLE PRECISION NOT NULL DEFAULT 0,
    unit_quantity      DOUBLE PRECISION NOT NULL DEFAULT 0,
    grand_total_amount DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_daily_period ON cstore_transactions_daily_agg(calendar_year, calendar_month);
CREATE INDEX IF NOT EXISTS idx_daily_store ON cstore_transactions_daily_agg(store_id);
CREATE INDEX IF NOT EXISTS idx_sets_date ON cstore_transaction_sets(date_time);
CREATE INDEX IF NOT EXISTS idx_items_set ON cstore_transaction_items(transaction_set_id);
`

const dropSchemaSQL = `
DROP TABLE IF EXISTS cstore_transaction_items CASCADE;
DROP TABLE IF EXISTS cstore_transaction_sets CASCADE;
DROP TABLE IF EXISTS cstore_transactions_daily_agg CASCADE;
DROP TABLE IF EXISTS cstore_stores CASCADE;
DROP TABLE IF EXISTS cstore_master_gtin CASCADE;
`

// CreateSchema creates the dataset tables.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, createSchemaSQL)
	return err
}

// DropSchema drops the dataset tables.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, dropSchemaSQL)
	return err
}
