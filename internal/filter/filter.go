//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package filter implements the global period filter shared by every report.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgEdge/cstore-insights/internal/dataset"
)

// ErrInvalidParams is returned for an unusable year/month selection.
var ErrInvalidParams = errors.New("invalid filter parameters")

// Params is the global filter selection. A nil Year means all years.
type Params struct {
	Year   *int  `json:"year,omitempty"`
	Months []int `json:"months"`
}

// DefaultParams selects all years and all twelve months.
func DefaultParams() Params {
	return Params{Months: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}
}

// Validate rejects an empty month set and months outside 1-12.
func (p Params) Validate() error {
	if len(p.Months) == 0 {
		return fmt.Errorf("%w: at least one month must be selected", ErrInvalidParams)
	}
	for _, m := range p.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("%w: month %d is out of range 1-12", ErrInvalidParams, m)
		}
	}
	return nil
}

// Key returns a canonical string for the selection; month order and
// duplicates do not change it.
func (p Params) Key() string {
	mask := p.monthSet()
	var b strings.Builder
	if p.Year == nil {
		b.WriteString("*")
	} else {
		b.WriteString(strconv.Itoa(*p.Year))
	}
	b.WriteByte(':')
	for m := 1; m <= 12; m++ {
		if mask[m] {
			b.WriteString(strconv.Itoa(m))
			b.WriteByte(',')
		}
	}
	return b.String()
}

func (p Params) monthSet() [13]bool {
	var set [13]bool
	for _, m := range p.Months {
		if m >= 1 && m <= 12 {
			set[m] = true
		}
	}
	return set
}

func (p Params) match(year, month int, months *[13]bool) bool {
	if month < 1 || month > 12 || !months[month] {
		return false
	}
	return p.Year == nil || *p.Year == year
}

// Unified is the filtered view every report consumes.
type Unified struct {
	Params            Params                   `json:"params"`
	Daily             dataset.DailyAggregates  `json:"-"`
	Sets              dataset.TransactionSets  `json:"-"`
	Items             dataset.TransactionItems `json:"-"`
	TotalRevenue      float64                  `json:"total_revenue"`
	TotalTransactions int                      `json:"total_transactions"`
	UniqueStores      int                      `json:"unique_stores"`
}

// Empty reports whether neither daily rows nor transaction sets survived.
func (u *Unified) Empty() bool {
	return len(u.Sets) == 0 && len(u.Daily) == 0
}

// Apply filters the daily and transaction-set tables by period, then keeps
// only the items whose set survived. The input dataset is not modified.
func Apply(ds *dataset.Dataset, p Params) *Unified {
	months := p.monthSet()
	u := &Unified{Params: p}

	for _, d := range ds.Daily {
		if p.match(d.Year, d.Month, &months) {
			u.Daily = append(u.Daily, d)
		}
	}

	valid := make(map[string]struct{})
	stores := make(map[string]struct{})
	for _, s := range ds.Sets {
		// Year and month are derived from the timestamp and not kept on the row.
		if !p.match(s.DateTime.Year(), int(s.DateTime.Month()), &months) {
			continue
		}
		u.Sets = append(u.Sets, s)
		valid[s.ID] = struct{}{}
		stores[s.StoreID] = struct{}{}
		u.TotalRevenue += s.Total()
	}

	for _, it := range ds.Items {
		if _, ok := valid[it.TransactionSetID]; ok {
			u.Items = append(u.Items, it)
		}
	}

	u.TotalTransactions = len(u.Sets)
	u.UniqueStores = len(stores)
	return u
}

// YearRange returns the smallest and largest calendar year present in the
// daily aggregate table. ok is false when the table is empty.
func YearRange(ds *dataset.Dataset) (lo, hi int, ok bool) {
	for i, d := range ds.Daily {
		if i == 0 || d.Year < lo {
			lo = d.Year
		}
		if i == 0 || d.Year > hi {
			hi = d.Year
		}
	}
	return lo, hi, len(ds.Daily) > 0
}

// Years lists every calendar year from YearRange in ascending order.
func Years(ds *dataset.Dataset) []int {
	lo, hi, ok := YearRange(ds)
	if !ok {
		return nil
	}
	years := make([]int, 0, hi-lo+1)
	for y := lo; y <= hi; y++ {
		years = append(years, y)
	}
	return years
}
