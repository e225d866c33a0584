//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package reports builds the aggregates behind each report page from the
// unified filtered view.
package reports

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/enrich"
	"github.com/pgEdge/cstore-insights/internal/filter"
)

// ErrUnknownReport is returned by Get for an unregistered name.
var ErrUnknownReport = errors.New("unknown report")

// Defaults for page parameters.
const (
	DefaultMinTransactions  = 18
	DefaultRevenueThreshold = 10000.0
)

// DefaultPaymentTypes are selected when none are given.
var DefaultPaymentTypes = []string{"CASH", "CREDIT"}

// Options holds the page parameters every report may read.
type Options struct {
	// Categories restricts the top-products report. Empty means all.
	Categories []string

	// MinTransactions and RevenueThreshold drive the beverage report.
	MinTransactions  int
	RevenueThreshold float64

	// PaymentTypes selects the payment segments to compare.
	PaymentTypes []string
}

// DefaultOptions returns the parameters used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MinTransactions:  DefaultMinTransactions,
		RevenueThreshold: DefaultRevenueThreshold,
		PaymentTypes:     append([]string(nil), DefaultPaymentTypes...),
	}
}

// OptionsFromConfig builds Options from the reports configuration section.
func OptionsFromConfig(cfg config.ReportsConfig) Options {
	opts := DefaultOptions()
	opts.MinTransactions = cfg.MinTransactions
	opts.RevenueThreshold = cfg.RevenueThreshold
	if len(cfg.PaymentTypes) > 0 {
		opts.PaymentTypes = upper(cfg.PaymentTypes)
	}
	return opts
}

// Input is everything a report may draw on.
type Input struct {
	Dataset    *dataset.Dataset
	Unified    *filter.Unified
	Options    Options
	Enrichment *enrich.Snapshot
}

// Report builds one page's aggregate.
type Report interface {
	// Name returns the report identifier used on the command line and in
	// the API.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Build computes the aggregate.
	Build(in Input) (any, error)
}

// Status is embedded in every result. An empty result is a valid outcome,
// not an error.
type Status struct {
	Empty   bool   `json:"empty"`
	Message string `json:"message,omitempty"`
}

func emptyStatus(msg string) Status {
	return Status{Empty: true, Message: msg}
}

var (
	registry = make(map[string]Report)
	mu       sync.RWMutex
)

// Register adds a report to the registry.
func Register(r Report) {
	mu.Lock()
	defer mu.Unlock()
	registry[r.Name()] = r
}

// Get retrieves a report by name.
func Get(name string) (Report, error) {
	mu.RLock()
	defer mu.RUnlock()

	r, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}
	return r, nil
}

// List returns all registered report names, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered reports, sorted by name.
func All() []Report {
	names := List()

	mu.RLock()
	defer mu.RUnlock()
	out := make([]Report, 0, len(names))
	for _, n := range names {
		out = append(out, registry[n])
	}
	return out
}

// reportFunc adapts a build function to Report.
type reportFunc struct {
	name        string
	description string
	build       func(Input) (any, error)
}

func (r reportFunc) Name() string                { return r.name }
func (r reportFunc) Description() string         { return r.description }
func (r reportFunc) Build(in Input) (any, error) { return r.build(in) }

// ratio divides with a zero guard.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
