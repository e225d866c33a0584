package reports

import (
	"sort"
	"strings"

	"github.com/pgEdge/cstore-insights/internal/dataset"
)

// Limits on the beverage report's lists.
const (
	BottomN           = 10
	MaxCategoryListed = 20
)

// BrandPerformance is one beverage brand.
type BrandPerformance struct {
	Brand                 string  `json:"brand"`
	Revenue               float64 `json:"revenue"`
	Units                 float64 `json:"units"`
	Transactions          float64 `json:"transactions"`
	RevenuePerUnit        float64 `json:"revenue_per_unit"`
	RevenuePerTransaction float64 `json:"revenue_per_transaction"`
}

// BeverageKPIs are headline numbers over the kept brands.
type BeverageKPIs struct {
	Brands          int     `json:"brands"`
	TotalRevenue    float64 `json:"total_revenue"`
	AvgBrandRevenue float64 `json:"avg_brand_revenue"`
	BelowThreshold  int     `json:"below_threshold"`
}

// Beverages is the drop-candidate page.
type Beverages struct {
	Status
	MinTransactions  int                `json:"min_transactions"`
	RevenueThreshold float64            `json:"revenue_threshold"`
	Brands           []BrandPerformance `json:"brands"`
	Bottom           []BrandPerformance `json:"bottom"`
	KPIs             BeverageKPIs       `json:"kpis"`

	// Categories lists up to MaxCategoryListed categories in the filtered
	// period, for diagnosing an empty result.
	Categories      []string `json:"categories"`
	CategoriesTotal int      `json:"categories_total"`
}

func init() {
	Register(reportFunc{
		name:        "beverages",
		description: "Packaged beverage brands ranked from lowest revenue, drop candidates first",
		build: func(in Input) (any, error) {
			return BuildBeverages(in.Unified.Daily, in.Options.MinTransactions, in.Options.RevenueThreshold), nil
		},
	})
}

// IsBeverage reports whether a category or subcategory names a beverage.
func IsBeverage(category, subcategory string) bool {
	for _, s := range []string{strings.ToUpper(category), strings.ToUpper(subcategory)} {
		if strings.Contains(s, "BEVERAGE") || strings.Contains(s, "DRINK") {
			return true
		}
	}
	return false
}

// BuildBeverages groups beverage rows by brand, keeps brands with at least
// minTransactions transactions and sorts them by revenue ascending.
func BuildBeverages(daily dataset.DailyAggregates, minTransactions int, threshold float64) *Beverages {
	res := &Beverages{MinTransactions: minTransactions, RevenueThreshold: threshold}

	all := make(map[string]struct{})
	for _, d := range daily {
		all[d.Category] = struct{}{}
	}
	res.CategoriesTotal = len(all)
	for c := range all {
		res.Categories = append(res.Categories, c)
	}
	sort.Strings(res.Categories)
	if len(res.Categories) > MaxCategoryListed {
		res.Categories = res.Categories[:MaxCategoryListed]
	}

	groups := make(map[string]*BrandPerformance)
	for _, d := range daily {
		if d.Category == "" || d.Brand == "" || !IsBeverage(d.Category, d.Subcategory) {
			continue
		}
		g, ok := groups[d.Brand]
		if !ok {
			g = &BrandPerformance{Brand: d.Brand}
			groups[d.Brand] = g
		}
		g.Revenue += d.Revenue
		g.Units += d.Quantity
		g.Transactions += d.Transactions
	}

	for _, g := range groups {
		if g.Transactions < float64(minTransactions) {
			continue
		}
		g.RevenuePerUnit = ratio(g.Revenue, g.Units)
		g.RevenuePerTransaction = ratio(g.Revenue, g.Transactions)
		res.Brands = append(res.Brands, *g)
	}
	sort.Slice(res.Brands, func(i, j int) bool {
		a, b := res.Brands[i], res.Brands[j]
		if a.Revenue != b.Revenue {
			return a.Revenue < b.Revenue
		}
		return a.Brand < b.Brand
	})

	if len(res.Brands) == 0 {
		res.Status = emptyStatus("No packaged beverage brands meet the minimum transaction count")
		return res
	}

	res.Bottom = res.Brands
	if len(res.Bottom) > BottomN {
		res.Bottom = res.Bottom[:BottomN]
	}

	res.KPIs.Brands = len(res.Brands)
	for _, b := range res.Brands {
		res.KPIs.TotalRevenue += b.Revenue
		if b.Revenue < threshold {
			res.KPIs.BelowThreshold++
		}
	}
	res.KPIs.AvgBrandRevenue = ratio(res.KPIs.TotalRevenue, float64(len(res.Brands)))
	return res
}
