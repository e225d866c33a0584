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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pgEdge/cstore-insights/internal/logging"
)

// CSV file names inside a dataset directory.
const (
	ProductsFile = "cstore_master_ctin.csv"
	StoresFile   = "cstore_stores.csv"
	DailyFile    = "cstore_transactions_daily_agg.csv"
	SetsFile     = "cstore_transaction_sets.csv"
	ItemsFile    = "cstore_transaction_items.csv"
	ItemsPartDir = "transaction_items"
)

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadCSV reads every table from a dataset directory.
func LoadCSV(dir string) (*Dataset, error) {
	start := time.Now()

	products, err := readProducts(filepath.Join(dir, ProductsFile))
	if err != nil {
		return nil, err
	}
	stores, err := readStores(filepath.Join(dir, StoresFile))
	if err != nil {
		return nil, err
	}
	daily, err := readDaily(filepath.Join(dir, DailyFile))
	if err != nil {
		return nil, err
	}
	sets, err := readSets(filepath.Join(dir, SetsFile))
	if err != nil {
		return nil, err
	}

	itemFiles, err := ItemFiles(dir)
	if err != nil {
		return nil, err
	}
	var items TransactionItems
	for _, f := range itemFiles {
		part, err := readItems(f)
		if err != nil {
			return nil, err
		}
		items = append(items, part...)
	}

	logging.Info().
		Str("dir", dir).
		Int("products", len(products)).
		Int("stores", len(stores)).
		Int("daily", len(daily)).
		Int("sets", len(sets)).
		Int("items", len(items)).
		Int("item_files", len(itemFiles)).
		Dur("elapsed", time.Since(start)).
		Msg("Loaded CSV dataset")

	return New(products, stores, daily, sets, items), nil
}

// ItemFiles returns the transaction item files for dir: the single items
// file when present, otherwise transaction_items/part-*.csv in name order.
func ItemFiles(dir string) ([]string, error) {
	single := filepath.Join(dir, ItemsFile)
	if _, err := os.Stat(single); err == nil {
		return []string{single}, nil
	}

	parts, err := filepath.Glob(filepath.Join(dir, ItemsPartDir, "part-*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list item parts: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no transaction items found: expected %s or %s/part-*.csv",
			single, filepath.Join(dir, ItemsPartDir))
	}
	sort.Strings(parts)
	return parts, nil
}

// csvRow gives column access by upper-cased header name.
type csvRow struct {
	file    string
	line    int
	columns map[string]int
	fields  []string
}

func (r *csvRow) str(col string) string {
	i, ok := r.columns[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r *csvRow) float(col string) (float64, error) {
	s := r.str(col)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s:%d: column %s: %w", r.file, r.line, col, err)
	}
	return f, nil
}

func (r *csvRow) optFloat(col string) (*float64, error) {
	if r.str(col) == "" {
		return nil, nil
	}
	f, err := r.float(col)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// int accepts integral float text such as "2023.0".
func (r *csvRow) int(col string) (int, error) {
	f, err := r.float(col)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s:%d: column %s: %q is not an integer", r.file, r.line, col, r.str(col))
	}
	return int(f), nil
}

func (r *csvRow) time(col string) (time.Time, error) {
	s := r.str(col)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s:%d: column %s: unrecognized timestamp %q", r.file, r.line, col, s)
}

// eachRow streams the rows of a CSV file with a header line. The named
// columns must all be present in the header.
func eachRow(path string, required []string, fn func(*csvRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		// Column names are matched case-insensitively; some exports carry "WEEk".
		name := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		columns[name] = i
	}
	for _, col := range required {
		if _, ok := columns[col]; !ok {
			return fmt.Errorf("%s: missing column %s", path, col)
		}
	}

	row := &csvRow{file: filepath.Base(path), line: 1, columns: columns}
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		row.line++
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		row.fields = fields
		if err := fn(row); err != nil {
			return err
		}
	}
}

func readProducts(path string) (Products, error) {
	var out Products
	err := eachRow(path, []string{"GTIN"}, func(r *csvRow) error {
		out = append(out, Product{
			GTIN:        r.str("GTIN"),
			Brand:       r.str("BRAND"),
			Category:    r.str("CATEGORY"),
			Subcategory: r.str("SUBCATEGORY"),
			Description: r.str("SKUPOS_DESCRIPTION"),
		})
		return nil
	})
	return out, err
}

func readStores(path string) (Stores, error) {
	var out Stores
	err := eachRow(path, []string{"STORE_ID", "LATITUDE", "LONGITUDE"}, func(r *csvRow) error {
		lat, err := r.float("LATITUDE")
		if err != nil {
			return err
		}
		lon, err := r.float("LONGITUDE")
		if err != nil {
			return err
		}
		out = append(out, Store{
			StoreID:   r.str("STORE_ID"),
			Latitude:  lat,
			Longitude: lon,
			State:     r.str("STATE"),
			City:      r.str("CITY"),
			Chain:     r.str("STORE_CHAIN_NAME"),
		})
		return nil
	})
	return out, err
}

func readDaily(path string) (DailyAggregates, error) {
	var out DailyAggregates
	required := []string{"STORE_ID", "CALENDAR_YEAR", "CALENDAR_MONTH", "TOTAL_REVENUE_AMOUNT"}
	err := eachRow(path, required, func(r *csvRow) error {
		var (
			row DailyAggregate
			err error
		)
		row.StoreID = r.str("STORE_ID")
		row.Category = r.str("CATEGORY")
		row.Subcategory = r.str("SUBCATEGORY")
		row.Brand = r.str("BRAND")
		row.Description = r.str("SKUPOS_DESCRIPTION")
		if row.Year, err = r.int("CALENDAR_YEAR"); err != nil {
			return err
		}
		if row.Month, err = r.int("CALENDAR_MONTH"); err != nil {
			return err
		}
		if row.Week, err = r.int("WEEK"); err != nil {
			return err
		}
		if row.Revenue, err = r.float("TOTAL_REVENUE_AMOUNT"); err != nil {
			return err
		}
		if row.Quantity, err = r.float("QUANTITY"); err != nil {
			return err
		}
		if row.Transactions, err = r.float("TRANSACTION_COUNT"); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

func readSets(path string) (TransactionSets, error) {
	var out TransactionSets
	required := []string{"TRANSACTION_SET_ID", "STORE_ID", "DATE_TIME"}
	err := eachRow(path, required, func(r *csvRow) error {
		ts, err := r.time("DATE_TIME")
		if err != nil {
			return err
		}
		total, err := r.optFloat("GRAND_TOTAL_AMOUNT")
		if err != nil {
			return err
		}
		out = append(out, TransactionSet{
			ID:          r.str("TRANSACTION_SET_ID"),
			StoreID:     r.str("STORE_ID"),
			DateTime:    ts,
			PaymentType: r.str("PAYMENT_TYPE"),
			GrandTotal:  total,
		})
		return nil
	})
	return out, err
}

func readItems(path string) (TransactionItems, error) {
	var out TransactionItems
	required := []string{"TRANSACTION_SET_ID", "GTIN"}
	err := eachRow(path, required, func(r *csvRow) error {
		var (
			row TransactionItem
			err error
		)
		row.TransactionSetID = r.str("TRANSACTION_SET_ID")
		row.GTIN = r.str("GTIN")
		if row.UnitPrice, err = r.float("UNIT_PRICE"); err != nil {
			return err
		}
		if row.UnitQuantity, err = r.float("UNIT_QUANTITY"); err != nil {
			return err
		}
		if row.LineTotal, err = r.float("GRAND_TOTAL_AMOUNT"); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}
