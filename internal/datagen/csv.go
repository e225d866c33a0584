package datagen

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

// csvDateTime is the DATE_TIME layout written to the sets file.
const csvDateTime = "2006-01-02 15:04:05"

// WriteCSV writes ds as a dataset directory readable by dataset.LoadCSV.
// With a positive partRows the transaction items are split into
// transaction_items/part-NNNNN.csv files of at most partRows rows.
func WriteCSV(ctx context.Context, ds *dataset.Dataset, dir string, partRows int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	err := writeFile(filepath.Join(dir, dataset.ProductsFile),
		[]string{"GTIN", "BRAND", "CATEGORY", "SUBCATEGORY", "SKUPOS_DESCRIPTION"},
		len(ds.Products), func(i int) []string {
			p := ds.Products[i]
			return []string{p.GTIN, p.Brand, p.Category, p.Subcategory, p.Description}
		})
	if err != nil {
		return err
	}

	err = writeFile(filepath.Join(dir, dataset.StoresFile),
		[]string{"STORE_ID", "LATITUDE", "LONGITUDE", "STATE", "CITY", "STORE_CHAIN_NAME"},
		len(ds.Stores), func(i int) []string {
			s := ds.Stores[i]
			return []string{s.StoreID, formatFloat(s.Latitude), formatFloat(s.Longitude), s.State, s.City, s.Chain}
		})
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	err = writeFile(filepath.Join(dir, dataset.DailyFile),
		[]string{"STORE_ID", "CATEGORY", "SUBCATEGORY", "BRAND", "SKUPOS_DESCRIPTION",
			"CALENDAR_YEAR", "CALENDAR_MONTH", "WEEK", "TOTAL_REVENUE_AMOUNT", "QUANTITY", "TRANSACTION_COUNT"},
		len(ds.Daily), func(i int) []string {
			d := ds.Daily[i]
			return []string{d.StoreID, d.Category, d.Subcategory, d.Brand, d.Description,
				strconv.Itoa(d.Year), strconv.Itoa(d.Month), strconv.Itoa(d.Week),
				formatFloat(d.Revenue), formatFloat(d.Quantity), formatFloat(d.Transactions)}
		})
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	err = writeFile(filepath.Join(dir, dataset.SetsFile),
		[]string{"TRANSACTION_SET_ID", "STORE_ID", "DATE_TIME", "PAYMENT_TYPE", "GRAND_TOTAL_AMOUNT"},
		len(ds.Sets), func(i int) []string {
			s := ds.Sets[i]
			total := ""
			if s.GrandTotal != nil {
				total = formatFloat(*s.GrandTotal)
			}
			return []string{s.ID, s.StoreID, s.DateTime.Format(csvDateTime), s.PaymentType, total}
		})
	if err != nil {
		return err
	}

	return writeItems(ctx, ds.Items, dir, partRows)
}

var itemsHeader = []string{"TRANSACTION_SET_ID", "GTIN", "UNIT_PRICE", "UNIT_QUANTITY", "GRAND_TOTAL_AMOUNT"}

func itemRecord(it dataset.TransactionItem) []string {
	return []string{it.TransactionSetID, it.GTIN, formatFloat(it.UnitPrice),
		formatFloat(it.UnitQuantity), formatFloat(it.LineTotal)}
}

func writeItems(ctx context.Context, items dataset.TransactionItems, dir string, partRows int) error {
	if partRows <= 0 {
		return writeFile(filepath.Join(dir, dataset.ItemsFile), itemsHeader, len(items), func(i int) []string {
			return itemRecord(items[i])
		})
	}

	partDir := filepath.Join(dir, dataset.ItemsPartDir)
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", partDir, err)
	}
	// A stale single file would shadow the parts.
	if err := os.Remove(filepath.Join(dir, dataset.ItemsFile)); err != nil && !os.IsNotExist(err) {
		return err
	}

	progress := NewProgressReporter("transaction_items", int64(len(items)), int64(partRows)*10)
	for part, lo := 0, 0; lo < len(items); part, lo = part+1, lo+partRows {
		if err := ctx.Err(); err != nil {
			return err
		}
		hi := min(lo+partRows, len(items))
		chunk := items[lo:hi]
		path := filepath.Join(partDir, fmt.Sprintf("part-%05d.csv", part))
		if err := writeFile(path, itemsHeader, len(chunk), func(i int) []string {
			return itemRecord(chunk[i])
		}); err != nil {
			return err
		}
		progress.Update(int64(len(chunk)))
	}
	progress.Done()
	return nil
}

// writeFile writes a header and n records produced by row.
func writeFile(path string, header []string, n int, row func(i int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	logging.Debug().
		Str("file", filepath.Base(path)).
		Int("rows", n).
		Str("size", FormatSize(size)).
		Msg("Wrote CSV file")
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
