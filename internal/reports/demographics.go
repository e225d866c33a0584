package reports

import (
	"fmt"
	"sort"

	"github.com/pgEdge/cstore-insights/internal/census"
	"github.com/pgEdge/cstore-insights/internal/enrich"
)

// StateDemographics averages tract values over one state's stores.
type StateDemographics struct {
	State              string   `json:"state"`
	Stores             int      `json:"stores"`
	AvgTractPopulation *float64 `json:"avg_tract_population"`
	AvgMedianIncome    *float64 `json:"avg_median_income"`
	AvgBelowPoverty    *float64 `json:"avg_below_poverty"`
	AvgHomeValue       *float64 `json:"avg_home_value"`
}

// StorePoint is one store for scatter plots.
type StorePoint struct {
	StoreID      string   `json:"store_id"`
	State        string   `json:"state"`
	City         string   `json:"city"`
	Population   float64  `json:"population"`
	Income       float64  `json:"income"`
	Poverty      *float64 `json:"poverty"`
	HomeValue    *float64 `json:"home_value"`
	Revenue      float64  `json:"revenue"`
	Transactions float64  `json:"transactions"`
}

// Demographics is the enrichment page.
type Demographics struct {
	Status
	State    string              `json:"enrichment_state"`
	Stores   int                 `json:"stores"`
	Enriched int                 `json:"enriched"`
	ByState  []StateDemographics `json:"by_state"`
	Points   []StorePoint        `json:"points"`
	Records  []map[string]any    `json:"records,omitempty"`
}

func init() {
	Register(reportFunc{
		name:        "demographics",
		description: "Store-level Census demographics summarized by state",
		build: func(in Input) (any, error) {
			d, err := BuildDemographics(in)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
	})
}

// BuildDemographics joins the enrichment snapshot onto the stores and
// summarizes the stores that have population and income. Every stage must
// have completed.
func BuildDemographics(in Input) (*Demographics, error) {
	if !in.Enrichment.Complete() {
		state := enrich.NotGeocoded
		if in.Enrichment != nil {
			state = in.Enrichment.State
		}
		return nil, fmt.Errorf("%w: state is %s, run all enrichment stages first",
			enrich.ErrEnrichmentIncomplete, state)
	}

	joined := enrich.Join(in.Dataset.Stores, in.Enrichment, in.Unified.Daily)
	res := &Demographics{
		State:  in.Enrichment.State.String(),
		Stores: len(joined),
	}

	type acc struct {
		stores                          int
		pop, income, poverty, homeValue mean
	}
	byState := make(map[string]*acc)

	for _, e := range joined {
		if !e.Demographic() {
			continue
		}
		res.Enriched++
		res.Records = append(res.Records, e.Record())

		pop := *e.Tract[census.TotalPopulation]
		income := *e.Tract[census.MedianHouseholdIncome]
		res.Points = append(res.Points, StorePoint{
			StoreID:      e.Store.StoreID,
			State:        e.Store.State,
			City:         e.Store.City,
			Population:   pop,
			Income:       income,
			Poverty:      e.Tract[census.BelowPoverty],
			HomeValue:    e.Tract[census.MedianHomeValue],
			Revenue:      e.Revenue,
			Transactions: e.Transactions,
		})

		a, ok := byState[e.Store.State]
		if !ok {
			a = &acc{}
			byState[e.Store.State] = a
		}
		a.stores++
		a.pop.add(&pop)
		a.income.add(&income)
		a.poverty.add(e.Tract[census.BelowPoverty])
		a.homeValue.add(e.Tract[census.MedianHomeValue])
	}

	for st, a := range byState {
		res.ByState = append(res.ByState, StateDemographics{
			State:              st,
			Stores:             a.stores,
			AvgTractPopulation: a.pop.value(),
			AvgMedianIncome:    a.income.value(),
			AvgBelowPoverty:    a.poverty.value(),
			AvgHomeValue:       a.homeValue.value(),
		})
	}
	sort.Slice(res.ByState, func(i, j int) bool {
		a, b := res.ByState[i], res.ByState[j]
		if a.Stores != b.Stores {
			return a.Stores > b.Stores
		}
		return a.State < b.State
	})

	if res.Enriched == 0 {
		res.Status = emptyStatus("No stores have tract population and income")
	}
	return res, nil
}

// mean averages the non-nil values it is given.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v != nil {
		m.sum += *v
		m.n++
	}
}

// value is nil when nothing was added.
func (m *mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}
