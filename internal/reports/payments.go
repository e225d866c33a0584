package reports

import (
	"sort"

	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/filter"
)

// KnownPaymentTypes are the only payment types the segmentation considers.
var KnownPaymentTypes = []string{"CASH", "CREDIT", "DEBIT"}

// PaymentSegment summarizes one payment type.
type PaymentSegment struct {
	PaymentType    string           `json:"payment_type"`
	Transactions   int              `json:"transactions"`
	TotalSpend     float64          `json:"total_spend"`
	AvgTicket      float64          `json:"avg_ticket"`
	TotalItems     float64          `json:"total_items"`
	ItemsPerTicket float64          `json:"items_per_transaction"`
	TopProducts    []PaymentProduct `json:"top_products"`
}

// PaymentProduct is one product within a payment segment.
type PaymentProduct struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Purchases   int     `json:"purchases"`
	Revenue     float64 `json:"revenue"`
}

// Payments is the payment comparison page.
type Payments struct {
	Status
	PaymentTypes     []string         `json:"payment_types"`
	Segments         []PaymentSegment `json:"segments"`
	OverallAvgTicket float64          `json:"overall_avg_ticket"`
}

func init() {
	Register(reportFunc{
		name:        "payments",
		description: "Cash, credit and debit customers compared by ticket size and top products",
		build: func(in Input) (any, error) {
			return BuildPayments(in.Dataset, in.Unified, in.Options.PaymentTypes), nil
		},
	})
}

type segmentAcc struct {
	sets  map[string]float64
	items float64
}

type paymentProductKey struct {
	paymentType, description, category string
}

type paymentProductAcc struct {
	sets    map[string]struct{}
	revenue float64
}

// BuildPayments segments the filtered transactions by payment type. Only
// sets with at least one filtered item take part; spend is summed once per
// set.
func BuildPayments(ds *dataset.Dataset, u *filter.Unified, types []string) *Payments {
	selected := selectPaymentTypes(types)
	res := &Payments{PaymentTypes: selected}

	want := make(map[string]bool, len(selected))
	for _, t := range selected {
		want[t] = true
	}

	setType := make(map[string]string)
	setTotal := make(map[string]float64)
	for _, s := range u.Sets {
		if want[s.PaymentType] {
			setType[s.ID] = s.PaymentType
			setTotal[s.ID] = s.Total()
		}
	}

	segments := make(map[string]*segmentAcc)
	products := make(map[paymentProductKey]*paymentProductAcc)
	for _, it := range u.Items {
		pt, ok := setType[it.TransactionSetID]
		if !ok {
			continue
		}
		seg, ok := segments[pt]
		if !ok {
			seg = &segmentAcc{sets: make(map[string]float64)}
			segments[pt] = seg
		}
		seg.sets[it.TransactionSetID] = setTotal[it.TransactionSetID]
		seg.items += it.UnitQuantity

		p, _ := ds.Product(it.GTIN)
		if p.Category == "" {
			continue
		}
		k := paymentProductKey{pt, p.Description, p.Category}
		acc, ok := products[k]
		if !ok {
			acc = &paymentProductAcc{sets: make(map[string]struct{})}
			products[k] = acc
		}
		acc.sets[it.TransactionSetID] = struct{}{}
		acc.revenue += it.LineTotal
	}

	top := make(map[string][]PaymentProduct)
	for k, acc := range products {
		top[k.paymentType] = append(top[k.paymentType], PaymentProduct{
			Description: k.description,
			Category:    k.category,
			Purchases:   len(acc.sets),
			Revenue:     acc.revenue,
		})
	}

	var allSpend float64
	var allSets int
	for _, pt := range selected {
		seg, ok := segments[pt]
		if !ok {
			continue
		}
		out := PaymentSegment{
			PaymentType:  pt,
			Transactions: len(seg.sets),
			TotalItems:   seg.items,
		}
		for _, total := range seg.sets {
			out.TotalSpend += total
		}
		out.AvgTicket = ratio(out.TotalSpend, float64(out.Transactions))
		out.ItemsPerTicket = ratio(out.TotalItems, float64(out.Transactions))
		out.TopProducts = rankPaymentProducts(top[pt])

		allSpend += out.TotalSpend
		allSets += out.Transactions
		res.Segments = append(res.Segments, out)
	}
	res.OverallAvgTicket = ratio(allSpend, float64(allSets))

	if len(res.Segments) == 0 {
		res.Status = emptyStatus("No transactions for the selected payment types")
	}
	return res
}

// selectPaymentTypes keeps the known payment types from types, in known
// order. An empty selection uses DefaultPaymentTypes.
func selectPaymentTypes(types []string) []string {
	if len(types) == 0 {
		types = DefaultPaymentTypes
	}
	asked := make(map[string]bool)
	for _, t := range upper(types) {
		asked[t] = true
	}
	var out []string
	for _, t := range KnownPaymentTypes {
		if asked[t] {
			out = append(out, t)
		}
	}
	return out
}

func rankPaymentProducts(in []PaymentProduct) []PaymentProduct {
	sort.Slice(in, func(i, j int) bool {
		a, b := in[i], in[j]
		if a.Purchases != b.Purchases {
			return a.Purchases > b.Purchases
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		return a.Category < b.Category
	})
	if len(in) > TopN {
		in = in[:TopN]
	}
	return in
}
