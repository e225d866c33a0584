package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/pgEdge/cstore-insights/internal/enrich"
	"github.com/pgEdge/cstore-insights/internal/reports"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("output format must be 'text', 'json' or 'yaml'")
	}
}

// render writes v in the requested format. Text output falls back to YAML
// for values without a table layout.
func render(w io.Writer, format, title string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		return writeYAML(w, v)
	}

	if title != "" {
		fmt.Fprintf(w, "== %s ==\n", title)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	if !renderText(tw, v) {
		tw.Flush()
		return writeYAML(w, v)
	}
	fmt.Fprintln(tw)
	return tw.Flush()
}

// writeYAML goes through JSON so field names match the API.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func renderText(w io.Writer, v any) bool {
	switch r := v.(type) {
	case *reports.Overview:
		if emptyText(w, r.Status) {
			return true
		}
		fmt.Fprintf(w, "Products\t%d\n", r.Products)
		fmt.Fprintf(w, "Stores\t%d\t(%d with data, %d in period)\n", r.Stores, r.StoresWithData, r.StoresInPeriod)
		fmt.Fprintf(w, "States\t%d\n", r.States)
		fmt.Fprintf(w, "Chains\t%d\n", r.Chains)
		fmt.Fprintf(w, "Total revenue\t%s\n", money(r.TotalRevenue))
		fmt.Fprintf(w, "Transactions\t%d\n", r.TotalTransactions)
		names := make([]string, 0, len(r.Tables))
		for name := range r.Tables {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Table\tRows")
		fmt.Fprintln(w, "-----\t----")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%d\n", name, r.Tables[name])
		}

	case *reports.TopProducts:
		if emptyText(w, r.Status) {
			return true
		}
		fmt.Fprintln(w, "Rank\tBrand\tDescription\tCategory\tRevenue\tUnits\tAvg Price")
		fmt.Fprintln(w, "----\t-----\t-----------\t--------\t-------\t-----\t---------")
		for i, p := range r.Products {
			avg := "n/a"
			if p.AvgPriceDefined {
				avg = money(p.AvgPrice)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.0f\t%s\n",
				i+1, p.Brand, p.Description, p.Category, money(p.Revenue), p.Units, avg)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Total revenue\t%s\n", money(r.KPIs.TotalRevenue))
		fmt.Fprintf(w, "Avg weekly revenue\t%s\n", money(r.KPIs.AvgWeeklyRevenue))
		fmt.Fprintf(w, "Weeks\t%d\n", r.KPIs.Weeks)

	case *reports.Beverages:
		if emptyText(w, r.Status) {
			if len(r.Categories) > 0 {
				fmt.Fprintf(w, "Categories in period (%d):\t%s\n", r.CategoriesTotal, strings.Join(r.Categories, ", "))
			}
			return true
		}
		fmt.Fprintf(w, "Brands\t%d\n", r.KPIs.Brands)
		fmt.Fprintf(w, "Total revenue\t%s\n", money(r.KPIs.TotalRevenue))
		fmt.Fprintf(w, "Avg brand revenue\t%s\n", money(r.KPIs.AvgBrandRevenue))
		fmt.Fprintf(w, "Below %s\t%d\n", money(r.RevenueThreshold), r.KPIs.BelowThreshold)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Brand\tRevenue\tUnits\tTransactions\tRev/Unit\tRev/Txn")
		fmt.Fprintln(w, "-----\t-------\t-----\t------------\t--------\t-------")
		for _, b := range r.Bottom {
			fmt.Fprintf(w, "%s\t%s\t%.0f\t%.0f\t%s\t%s\n", b.Brand, money(b.Revenue), b.Units,
				b.Transactions, money(b.RevenuePerUnit), money(b.RevenuePerTransaction))
		}

	case *reports.Payments:
		if emptyText(w, r.Status) {
			return true
		}
		fmt.Fprintln(w, "Payment\tTransactions\tTotal Spend\tAvg Ticket\tItems/Txn")
		fmt.Fprintln(w, "-------\t------------\t-----------\t----------\t---------")
		for _, s := range r.Segments {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.2f\n", s.PaymentType, s.Transactions,
				money(s.TotalSpend), money(s.AvgTicket), s.ItemsPerTicket)
		}
		fmt.Fprintf(w, "Overall avg ticket\t%s\n", money(r.OverallAvgTicket))
		for _, s := range r.Segments {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Top %s products\tCategory\tPurchases\tRevenue\n", s.PaymentType)
			for _, p := range s.TopProducts {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.Description, p.Category, p.Purchases, money(p.Revenue))
			}
		}

	case *reports.Demographics:
		fmt.Fprintf(w, "Enrichment\t%s\n", r.State)
		fmt.Fprintf(w, "Stores\t%d\t(%d with demographics)\n", r.Stores, r.Enriched)
		if emptyText(w, r.Status) {
			return true
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "State\tStores\tAvg Population\tAvg Median Income\tAvg Below Poverty\tAvg Home Value")
		fmt.Fprintln(w, "-----\t------\t--------------\t-----------------\t-----------------\t--------------")
		for _, s := range r.ByState {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", s.State, s.Stores,
				optNumber(s.AvgTractPopulation), optNumber(s.AvgMedianIncome),
				optNumber(s.AvgBelowPoverty), optNumber(s.AvgHomeValue))
		}

	case enrich.Status:
		fmt.Fprintf(w, "State\t%s\n", r.State)
		fmt.Fprintf(w, "Cache dir\t%s\n", r.Dir)
		stages := make([]string, 0, len(r.Caches))
		for s := range r.Caches {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		for _, s := range stages {
			present := "missing"
			if r.Caches[s] {
				present = "cached"
			}
			fmt.Fprintf(w, "%s\t%s\n", s, present)
		}
		if r.Running != "" {
			fmt.Fprintf(w, "Running\t%s\n", r.Running)
		}

	case []*enrich.StageResult:
		fmt.Fprintln(w, "Stage\tSkipped\tRequested\tSucceeded\tFailed\tMemoized\tRows\tDuration\tp95")
		fmt.Fprintln(w, "-----\t-------\t---------\t---------\t------\t--------\t----\t--------\t---")
		for _, s := range r {
			fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\t%d\t%d\t%.0fms\t%.1fms\n", s.Stage, s.Skipped, s.Requested,
				s.Succeeded, s.Failed, s.Memoized, s.Rows, s.DurationMS, s.P95MS)
		}

	default:
		return false
	}
	return true
}

func emptyText(w io.Writer, s reports.Status) bool {
	if !s.Empty {
		return false
	}
	fmt.Fprintln(w, s.Message)
	return true
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func optNumber(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *v)
}
