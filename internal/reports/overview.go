package reports

import (
	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/filter"
)

// Overview is the summary page.
type Overview struct {
	Status

	Tables map[string]int `json:"tables"`

	Products int `json:"products"`
	Stores   int `json:"stores"`
	States   int `json:"states"`
	Chains   int `json:"chains"`

	// StoresWithData counts stores present in the daily table for any
	// period; StoresInPeriod only those in the filtered period.
	StoresWithData int `json:"stores_with_data"`
	StoresInPeriod int `json:"stores_in_period"`

	TotalRevenue      float64 `json:"total_revenue"`
	TotalTransactions int     `json:"total_transactions"`
	ActiveStores      int     `json:"active_stores"`
	Items             int     `json:"items"`

	Years []int `json:"years"`
}

func init() {
	Register(reportFunc{
		name:        "overview",
		description: "Table sizes, store coverage and period totals",
		build: func(in Input) (any, error) {
			return BuildOverview(in.Dataset, in.Unified), nil
		},
	})
}

// BuildOverview summarizes the dataset and the filtered period.
func BuildOverview(ds *dataset.Dataset, u *filter.Unified) *Overview {
	o := &Overview{
		Tables:   make(map[string]int),
		Products: len(ds.Products),
		Stores:   len(ds.Stores),
		Years:    filter.Years(ds),
	}
	for name, t := range ds.Tables() {
		o.Tables[name] = t.Len()
	}

	states := make(map[string]struct{})
	chains := make(map[string]struct{})
	for _, s := range ds.Stores {
		if s.State != "" {
			states[s.State] = struct{}{}
		}
		if s.Chain != "" {
			chains[s.Chain] = struct{}{}
		}
	}
	o.States, o.Chains = len(states), len(chains)

	o.StoresWithData = distinctStores(ds.Daily)
	o.StoresInPeriod = distinctStores(u.Daily)

	o.TotalRevenue = u.TotalRevenue
	o.TotalTransactions = u.TotalTransactions
	o.ActiveStores = u.UniqueStores
	o.Items = len(u.Items)

	if u.Empty() {
		o.Status = emptyStatus("No sales in the selected period")
	}
	return o
}

func distinctStores(daily dataset.DailyAggregates) int {
	seen := make(map[string]struct{})
	for _, d := range daily {
		seen[d.StoreID] = struct{}{}
	}
	return len(seen)
}
