package enrich

import (
	"github.com/pgEdge/cstore-insights/internal/census"
	"github.com/pgEdge/cstore-insights/internal/dataset"
)

// CountyPrefix prefixes county ACS fields in flattened records.
const CountyPrefix = "county_"

// EnrichedStore is one store with its geography, demographics and sales.
type EnrichedStore struct {
	Store dataset.Store    `json:"store"`
	Geo   census.Geography `json:"geography"`

	HasTract bool          `json:"has_tract"`
	Tract    census.Values `json:"tract"`

	HasCounty  bool          `json:"has_county"`
	CountyName string        `json:"county_name,omitempty"`
	County     census.Values `json:"county"`

	Revenue      float64 `json:"revenue"`
	Transactions float64 `json:"transactions"`
}

// Demographic reports whether the store has the tract values a demographic
// row needs: total population and median household income.
func (e EnrichedStore) Demographic() bool {
	return e.HasTract &&
		e.Tract[census.TotalPopulation] != nil &&
		e.Tract[census.MedianHouseholdIncome] != nil
}

// Record flattens the store into one map. Tract values use their ACS codes;
// county values carry CountyPrefix.
func (e EnrichedStore) Record() map[string]any {
	r := map[string]any{
		"STORE_ID":         e.Store.StoreID,
		"LATITUDE":         e.Store.Latitude,
		"LONGITUDE":        e.Store.Longitude,
		"STATE":            e.Store.State,
		"CITY":             e.Store.City,
		"STORE_CHAIN_NAME": e.Store.Chain,
		"statefp":          e.Geo.State,
		"countyfp":         e.Geo.County,
		"tract":            e.Geo.Tract,
		"revenue":          e.Revenue,
		"transactions":     e.Transactions,
	}
	r[CountyPrefix+"NAME"] = e.CountyName
	for k, v := range e.Tract.Map("") {
		r[k] = v
	}
	for k, v := range e.County.Map(CountyPrefix) {
		r[k] = v
	}
	return r
}

// Join left-joins the stores onto the snapshot's geocode, tract and county
// rows and onto per-store performance summed from daily. Every store
// appears once, in input order.
func Join(stores dataset.Stores, snap *Snapshot, daily []dataset.DailyAggregate) []EnrichedStore {
	geos := make(map[string]census.Geography)
	tracts := make(map[census.Geography]census.Values)
	counties := make(map[string]census.CountyRecord)
	if snap != nil {
		for _, g := range snap.Geocodes {
			geos[dataset.CanonicalStoreID(g.StoreID)] = g.Geo
		}
		for _, t := range snap.Tracts {
			tracts[t.Geo] = t.Values
		}
		for _, c := range snap.Counties {
			counties[c.Key()] = c
		}
	}

	type perf struct{ revenue, transactions float64 }
	byStore := make(map[string]perf)
	for _, d := range daily {
		id := dataset.CanonicalStoreID(d.StoreID)
		p := byStore[id]
		p.revenue += d.Revenue
		p.transactions += d.Transactions
		byStore[id] = p
	}

	out := make([]EnrichedStore, len(stores))
	for i, s := range stores {
		id := dataset.CanonicalStoreID(s.StoreID)
		e := EnrichedStore{Store: s, Geo: geos[id]}
		if e.Geo.Valid() {
			if v, ok := tracts[e.Geo]; ok {
				e.HasTract, e.Tract = true, v
			}
			if c, ok := counties[e.Geo.CountyKey()]; ok {
				e.HasCounty, e.CountyName, e.County = true, c.Name, c.Values
			}
		}
		p := byStore[id]
		e.Revenue, e.Transactions = p.revenue, p.transactions
		out[i] = e
	}
	return out
}
