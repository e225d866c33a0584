//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dataset holds the immutable in-memory reference and fact tables
// that every report is computed from.
package dataset

import (
	"time"
)

// Table names as exposed by Tables.
const (
	TableProducts = "gtin"
	TableStores   = "stores"
	TableDaily    = "daily"
	TableSets     = "sets"
	TableItems    = "items"
)

// Product is one GTIN master row.
type Product struct {
	GTIN        string `json:"gtin"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Description string `json:"description"`
}

// Store is one store master row.
type Store struct {
	StoreID   string  `json:"store_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	State     string  `json:"state"`
	City      string  `json:"city"`
	Chain     string  `json:"chain"`
}

// DailyAggregate is one pre-aggregated sales row. Week is 0 when unknown.
type DailyAggregate struct {
	StoreID      string  `json:"store_id"`
	Category     string  `json:"category"`
	Subcategory  string  `json:"subcategory"`
	Brand        string  `json:"brand"`
	Description  string  `json:"description"`
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	Week         int     `json:"week"`
	Revenue      float64 `json:"revenue"`
	Quantity     float64 `json:"quantity"`
	Transactions float64 `json:"transactions"`
}

// TransactionSet is one completed checkout.
type TransactionSet struct {
	ID          string    `json:"transaction_set_id"`
	StoreID     string    `json:"store_id"`
	DateTime    time.Time `json:"date_time"`
	PaymentType string    `json:"payment_type"`
	GrandTotal  *float64  `json:"grand_total"`
}

// Total returns the grand total, or 0 when it is null.
func (s TransactionSet) Total() float64 {
	if s.GrandTotal == nil {
		return 0
	}
	return *s.GrandTotal
}

// TransactionItem is one line of a transaction set.
type TransactionItem struct {
	TransactionSetID string  `json:"transaction_set_id"`
	GTIN             string  `json:"gtin"`
	UnitPrice        float64 `json:"unit_price"`
	UnitQuantity     float64 `json:"unit_quantity"`
	LineTotal        float64 `json:"line_total"`
}

// Table is any loaded row set.
type Table interface {
	Len() int
}

// Products is the GTIN master table.
type Products []Product

// Len returns the row count.
func (p Products) Len() int { return len(p) }

// Stores is the store master table.
type Stores []Store

// Len returns the row count.
func (s Stores) Len() int { return len(s) }

// DailyAggregates is the daily aggregate fact table.
type DailyAggregates []DailyAggregate

// Len returns the row count.
func (d DailyAggregates) Len() int { return len(d) }

// TransactionSets is the transaction set fact table.
type TransactionSets []TransactionSet

// Len returns the row count.
func (s TransactionSets) Len() int { return len(s) }

// TransactionItems is the transaction line item fact table.
type TransactionItems []TransactionItem

// Len returns the row count.
func (i TransactionItems) Len() int { return len(i) }

// Dataset is the loaded set of tables. It is never modified after New
// returns, so it may be shared freely between goroutines.
type Dataset struct {
	Products Products
	Stores   Stores
	Daily    DailyAggregates
	Sets     TransactionSets
	Items    TransactionItems

	productIndex map[string]int
}

// New builds a Dataset from already-parsed tables. Store identifiers in
// every table are rewritten to their canonical form.
func New(products Products, stores Stores, daily DailyAggregates,
	sets TransactionSets, items TransactionItems) *Dataset {

	for i := range stores {
		stores[i].StoreID = CanonicalStoreID(stores[i].StoreID)
	}
	for i := range daily {
		daily[i].StoreID = CanonicalStoreID(daily[i].StoreID)
	}
	for i := range sets {
		sets[i].StoreID = CanonicalStoreID(sets[i].StoreID)
	}

	idx := make(map[string]int, len(products))
	for i, p := range products {
		if _, dup := idx[p.GTIN]; !dup {
			idx[p.GTIN] = i
		}
	}

	return &Dataset{
		Products:     products,
		Stores:       stores,
		Daily:        daily,
		Sets:         sets,
		Items:        items,
		productIndex: idx,
	}
}

// Product looks up a product by GTIN. The first row wins on duplicates.
func (d *Dataset) Product(gtin string) (Product, bool) {
	i, ok := d.productIndex[gtin]
	if !ok {
		return Product{}, false
	}
	return d.Products[i], true
}

// Tables returns the named mapping of every loaded table.
func (d *Dataset) Tables() map[string]Table {
	return map[string]Table{
		TableProducts: d.Products,
		TableStores:   d.Stores,
		TableDaily:    d.Daily,
		TableSets:     d.Sets,
		TableItems:    d.Items,
	}
}
