package reports

import (
	"sort"

	"github.com/pgEdge/cstore-insights/internal/dataset"
)

// ExcludedCategory never appears in the top-products report.
const ExcludedCategory = "FUEL"

// TopN is the number of ranked products.
const TopN = 5

// ProductSummary is one ranked product.
type ProductSummary struct {
	Brand        string  `json:"brand"`
	Description  string  `json:"description"`
	Category     string  `json:"category"`
	Revenue      float64 `json:"revenue"`
	Units        float64 `json:"units"`
	Transactions float64 `json:"transactions"`

	// AvgPrice is revenue per unit; it is 0 and AvgPriceDefined is false
	// when no units were sold.
	AvgPrice        float64 `json:"avg_price"`
	AvgPriceDefined bool    `json:"avg_price_defined"`
}

// WeeklyPoint is one (week, product) cell of the weekly series.
type WeeklyPoint struct {
	Week        int     `json:"week"`
	Description string  `json:"description"`
	Brand       string  `json:"brand"`
	Revenue     float64 `json:"revenue"`
	Units       float64 `json:"units"`
}

// TopProductKPIs are headline numbers for the top products.
type TopProductKPIs struct {
	TotalRevenue     float64 `json:"total_revenue"`
	TotalUnits       float64 `json:"total_units"`
	AvgWeeklyRevenue float64 `json:"avg_weekly_revenue"`
	Weeks            int     `json:"weeks"`
}

// TopProducts is the top-products page.
type TopProducts struct {
	Status
	Available  []string         `json:"available_categories"`
	Categories []string         `json:"categories"`
	Products   []ProductSummary `json:"products"`
	Weekly     []WeeklyPoint    `json:"weekly"`
	KPIs       TopProductKPIs   `json:"kpis"`
}

func init() {
	Register(reportFunc{
		name:        "top-products",
		description: "Top 5 products by revenue with weekly trend, fuel excluded",
		build: func(in Input) (any, error) {
			return BuildTopProducts(in.Unified.Daily, in.Options.Categories), nil
		},
	})
}

// Categories lists the distinct non-empty categories in daily, excluding
// fuel, sorted.
func Categories(daily dataset.DailyAggregates) []string {
	seen := make(map[string]struct{})
	for _, d := range daily {
		if d.Category != "" && d.Category != ExcludedCategory {
			seen[d.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type productKey struct {
	brand, description, category string
}

// BuildTopProducts ranks products in daily by revenue. An empty categories
// list includes every non-fuel category; a selection naming only fuel
// matches nothing.
func BuildTopProducts(daily dataset.DailyAggregates, categories []string) *TopProducts {
	res := &TopProducts{Available: Categories(daily)}

	include := make(map[string]bool)
	for _, c := range categories {
		if c != ExcludedCategory {
			include[c] = true
		}
	}
	if len(categories) > 0 && len(include) == 0 {
		res.Categories = []string{}
		res.Products = []ProductSummary{}
		res.Status = emptyStatus("No products match the selected filters")
		return res
	}
	if len(include) == 0 {
		res.Categories = res.Available
	} else {
		for c := range include {
			res.Categories = append(res.Categories, c)
		}
		sort.Strings(res.Categories)
	}

	var rows dataset.DailyAggregates
	for _, d := range daily {
		if d.Category == ExcludedCategory {
			continue
		}
		if len(include) > 0 && !include[d.Category] {
			continue
		}
		rows = append(rows, d)
	}

	groups := make(map[productKey]*ProductSummary)
	for _, d := range rows {
		if d.Brand == "" || d.Description == "" || d.Category == "" {
			continue
		}
		k := productKey{d.Brand, d.Description, d.Category}
		g, ok := groups[k]
		if !ok {
			g = &ProductSummary{Brand: d.Brand, Description: d.Description, Category: d.Category}
			groups[k] = g
		}
		g.Revenue += d.Revenue
		g.Units += d.Quantity
		g.Transactions += d.Transactions
	}

	ranked := make([]ProductSummary, 0, len(groups))
	for _, g := range groups {
		g.AvgPriceDefined = g.Units != 0
		g.AvgPrice = ratio(g.Revenue, g.Units)
		ranked = append(ranked, *g)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		if a.Brand != b.Brand {
			return a.Brand < b.Brand
		}
		return a.Category < b.Category
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	res.Products = ranked

	if len(ranked) == 0 {
		res.Status = emptyStatus("No products match the selected filters")
		return res
	}

	res.Weekly = weeklySeries(rows, ranked)
	for _, p := range ranked {
		res.KPIs.TotalRevenue += p.Revenue
		res.KPIs.TotalUnits += p.Units
	}
	weeks := make(map[int]struct{})
	var weeklyRevenue float64
	for _, w := range res.Weekly {
		weeks[w.Week] = struct{}{}
		weeklyRevenue += w.Revenue
	}
	res.KPIs.Weeks = len(weeks)
	res.KPIs.AvgWeeklyRevenue = ratio(weeklyRevenue, float64(len(res.Weekly)))
	return res
}

type weekKey struct {
	week               int
	description, brand string
}

// weeklySeries groups rows for the ranked descriptions by week. Rows
// without a week are skipped.
func weeklySeries(rows dataset.DailyAggregates, ranked []ProductSummary) []WeeklyPoint {
	top := make(map[string]bool, len(ranked))
	for _, p := range ranked {
		top[p.Description] = true
	}

	groups := make(map[weekKey]*WeeklyPoint)
	for _, d := range rows {
		if d.Week <= 0 || !top[d.Description] {
			continue
		}
		k := weekKey{d.Week, d.Description, d.Brand}
		g, ok := groups[k]
		if !ok {
			g = &WeeklyPoint{Week: d.Week, Description: d.Description, Brand: d.Brand}
			groups[k] = g
		}
		g.Revenue += d.Revenue
		g.Units += d.Quantity
	}

	out := make([]WeeklyPoint, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		return a.Brand < b.Brand
	})
	return out
}
