package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/reports"
)

func samplePayments() *reports.Payments {
	return &reports.Payments{
		PaymentTypes: []string{"CASH"},
		Segments: []reports.PaymentSegment{{
			PaymentType:  "CASH",
			Transactions: 2,
			TotalSpend:   24.5,
			AvgTicket:    12.25,
			TopProducts: []reports.PaymentProduct{
				{Description: "Chips", Category: "SALTY SNACKS", Purchases: 2, Revenue: 6},
			},
		}},
		OverallAvgTicket: 12.25,
	}
}

func TestRenderFormats(t *testing.T) {
	v := samplePayments()

	var buf bytes.Buffer
	if err := render(&buf, formatJSON, "", v); err != nil {
		t.Fatalf("JSON render failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if decoded["overall_avg_ticket"] != 12.25 {
		t.Errorf("Expected overall_avg_ticket 12.25, got %v", decoded["overall_avg_ticket"])
	}

	buf.Reset()
	if err := render(&buf, formatYAML, "", v); err != nil {
		t.Fatalf("YAML render failed: %v", err)
	}
	var fromYAML map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &fromYAML); err != nil {
		t.Fatalf("Expected valid YAML, got %v", err)
	}
	// Field names follow the JSON tags.
	if _, ok := fromYAML["segments"]; !ok {
		t.Errorf("Expected segments key, got %v", fromYAML)
	}

	buf.Reset()
	if err := render(&buf, formatText, "Payments", v); err != nil {
		t.Fatalf("Text render failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"== Payments ==", "CASH", "$24.50", "Chips"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected text output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	v := &reports.TopProducts{Status: reports.Status{Empty: true, Message: "No sales in the selected period"}}
	if err := render(&buf, formatText, "", v); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No sales in the selected period") {
		t.Errorf("Expected empty message, got %q", buf.String())
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		if err := validFormat(f); err != nil {
			t.Errorf("Expected %s to be valid, got %v", f, err)
		}
	}
	if err := validFormat("xml"); err == nil {
		t.Error("Expected error for xml")
	}
}

func TestFilterParams(t *testing.T) {
	tests := []struct {
		name     string
		cfgYear  int
		year     string
		months   []int
		wantYear int // 0 means all years
		wantLen  int
		wantErr  bool
	}{
		{name: "defaults", wantLen: 12},
		{name: "config year", cfgYear: 2023, wantYear: 2023, wantLen: 12},
		{name: "flag overrides config", cfgYear: 2023, year: "2024", wantYear: 2024, wantLen: 12},
		{name: "all clears config year", cfgYear: 2023, year: "all", wantLen: 12},
		{name: "months", months: []int{1, 2}, wantLen: 2},
		{name: "bad year", year: "20x4", wantErr: true},
		{name: "bad month", months: []int{13}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg = config.DefaultConfig()
			cfg.Filters.Year = tt.cfgYear
			reportYear, reportMonths = tt.year, tt.months
			defer func() { reportYear, reportMonths = "", nil }()

			p, err := filterParams()
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			gotYear := 0
			if p.Year != nil {
				gotYear = *p.Year
			}
			if gotYear != tt.wantYear {
				t.Errorf("Expected year %d, got %d", tt.wantYear, gotYear)
			}
			if len(p.Months) != tt.wantLen {
				t.Errorf("Expected %d months, got %d", tt.wantLen, len(p.Months))
			}
		})
	}
}

func TestReportOptions(t *testing.T) {
	cfg = config.DefaultConfig()
	reportMinTransactions, reportRevenueThreshold = 25, -1
	reportPaymentTypes = []string{"debit"}
	defer func() {
		reportMinTransactions, reportRevenueThreshold = -1, -1
		reportPaymentTypes = nil
	}()

	opts := reportOptions()
	if opts.MinTransactions != 25 {
		t.Errorf("Expected min transactions 25, got %d", opts.MinTransactions)
	}
	if opts.RevenueThreshold != reports.DefaultRevenueThreshold {
		t.Errorf("Expected default threshold, got %v", opts.RevenueThreshold)
	}
	if len(opts.PaymentTypes) != 1 {
		t.Errorf("Expected one payment type, got %v", opts.PaymentTypes)
	}
}
