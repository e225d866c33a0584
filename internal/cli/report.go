package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgEdge/cstore-insights/internal/cache"
	"github.com/pgEdge/cstore-insights/internal/enrich"
	"github.com/pgEdge/cstore-insights/internal/filter"
	"github.com/pgEdge/cstore-insights/internal/logging"
	"github.com/pgEdge/cstore-insights/internal/reports"
)

var (
	reportYear             string
	reportMonths           []int
	reportCategories       []string
	reportMinTransactions  int
	reportRevenueThreshold float64
	reportPaymentTypes     []string
	outputFormat           string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List available reports",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Available reports:")
		cmd.Println()
		for _, r := range reports.All() {
			cmd.Printf("  %-14s - %s\n", r.Name(), r.Description())
		}
		cmd.Println()
		cmd.Println("Use 'cstore-insights report <name>' or 'cstore-insights report all'.")
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <name|all>",
	Short: "Compute a report over the filtered dataset",
	Long: `Compute one report, or every report with "all", over the dataset
filtered by calendar year and month.

Examples:
  cstore-insights report overview --year 2023
  cstore-insights report top-products --month 1,2,3 --category "SALTY SNACKS"
  cstore-insights report beverages --min-transactions 25 --revenue-threshold 5000
  cstore-insights report all --output json`,
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return append(reports.List(), "all"), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportYear, "year", "",
		"calendar year, or 'all' (default from config)")
	reportCmd.Flags().IntSliceVar(&reportMonths, "month", nil,
		"calendar months 1-12 (default from config)")
	reportCmd.Flags().StringSliceVar(&reportCategories, "category", nil,
		"top-products categories (default: all except FUEL)")
	reportCmd.Flags().IntVar(&reportMinTransactions, "min-transactions", -1,
		"beverage brand minimum transaction count")
	reportCmd.Flags().Float64Var(&reportRevenueThreshold, "revenue-threshold", -1,
		"beverage drop-candidate revenue threshold")
	reportCmd.Flags().StringSliceVar(&reportPaymentTypes, "payment-type", nil,
		"payment types to compare: CASH, CREDIT, DEBIT")
	reportCmd.Flags().StringVarP(&outputFormat, "output", "o", formatText,
		"output format: text, json, yaml")
}

// filterParams builds the global filter from config and flags.
func filterParams() (filter.Params, error) {
	p := filter.DefaultParams()
	if cfg.Filters.Year != 0 {
		y := cfg.Filters.Year
		p.Year = &y
	}
	p.Months = append([]int(nil), cfg.Filters.Months...)

	if reportYear != "" {
		if strings.EqualFold(reportYear, "all") {
			p.Year = nil
		} else {
			y, err := strconv.Atoi(reportYear)
			if err != nil {
				return p, fmt.Errorf("%w: year %q is not a number", filter.ErrInvalidParams, reportYear)
			}
			p.Year = &y
		}
	}
	if len(reportMonths) > 0 {
		p.Months = reportMonths
	}
	return p, p.Validate()
}

// reportOptions builds page parameters from config and flags.
func reportOptions() reports.Options {
	opts := reports.OptionsFromConfig(cfg.Reports)
	if len(reportCategories) > 0 {
		opts.Categories = reportCategories
	}
	if reportMinTransactions >= 0 {
		opts.MinTransactions = reportMinTransactions
	}
	if reportRevenueThreshold >= 0 {
		opts.RevenueThreshold = reportRevenueThreshold
	}
	if len(reportPaymentTypes) > 0 {
		opts.PaymentTypes = reportPaymentTypes
	}
	return opts
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := validFormat(outputFormat); err != nil {
		return err
	}

	var selected []reports.Report
	all := args[0] == "all"
	if all {
		selected = reports.All()
	} else {
		r, err := reports.Get(args[0])
		if err != nil {
			return fmt.Errorf("%w; run 'cstore-insights reports' to list them", err)
		}
		selected = []reports.Report{r}
	}

	params, err := filterParams()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ds, err := loadDataset(ctx)
	if err != nil {
		return err
	}
	session := filter.NewSession(ds)
	u, err := session.Unified(params)
	if err != nil {
		return err
	}

	in := reports.Input{
		Dataset: ds,
		Unified: u,
		Options: reportOptions(),
	}
	// Demographics reads the stage caches only; no API calls are made.
	store := cache.NewStore(cfg.Enrich.CacheDir)
	in.Enrichment = enrich.New(store, nil, nil, enrich.Options{}).Snapshot(ctx)

	// Structured output of "all" is one document keyed by report name.
	combined := make(map[string]any)
	for _, r := range selected {
		result, err := r.Build(in)
		if err != nil {
			if all && errors.Is(err, enrich.ErrEnrichmentIncomplete) {
				logging.Warn().Str("report", r.Name()).Err(err).Msg("Skipping report")
				continue
			}
			return fmt.Errorf("report %s: %w", r.Name(), err)
		}
		switch {
		case !all:
			return render(cmd.OutOrStdout(), outputFormat, "", result)
		case outputFormat == formatText:
			if err := render(cmd.OutOrStdout(), outputFormat, r.Description(), result); err != nil {
				return err
			}
		default:
			combined[r.Name()] = result
		}
	}
	if all && outputFormat != formatText {
		return render(cmd.OutOrStdout(), outputFormat, "", combined)
	}
	return nil
}
