package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/cstore-insights/internal/api"
	"github.com/pgEdge/cstore-insights/internal/filter"
	"github.com/pgEdge/cstore-insights/internal/logging"
	"github.com/pgEdge/cstore-insights/internal/reports"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports and the enrichment workflow over HTTP",
	Long: `Load the dataset once and serve every report as JSON, together with
endpoints that inspect, run and clear the enrichment stages.

Example:
  cstore-insights serve --listen :8080
  curl 'localhost:8080/api/top-products?year=2023&month=1&month=2'`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"address to listen on (default from config, :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ds, err := loadDataset(ctx)
	if err != nil {
		return err
	}

	pipeline, closeMemo, err := newPipeline(ctx, nil)
	if err != nil {
		return err
	}
	defer closeMemo()

	logging.Info().
		Str("listen", cfg.Server.Listen).
		Str("enrichment", pipeline.State().String()).
		Int("stores", len(ds.Stores)).
		Msg("Starting server")

	srv := api.NewServer(filter.NewSession(ds), pipeline, reports.OptionsFromConfig(cfg.Reports))
	return srv.ListenAndServe(ctx, cfg.Server.Listen)
}
