package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/enrich"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

var enrichForce bool

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run or inspect the Census enrichment pipeline",
	Long: `Enrich stores with Census demographics in three stages:

  geocode - store coordinates to state, county and tract codes
  tract   - ACS 5-year values for each distinct tract
  county  - ACS 5-year values for every US county

Each stage requires the previous one and writes a cache file that later runs
reuse. Use --force to refetch a cached stage and 'enrich clear' to start over.`,
}

var enrichStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pipeline state and which caches exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validFormat(outputFormat); err != nil {
			return err
		}
		p, closeMemo, err := newPipeline(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer closeMemo()
		return render(cmd.OutOrStdout(), outputFormat, "", p.Status())
	},
}

var enrichRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order, skipping cached ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnrich(cmd, nil)
	},
}

var enrichClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all three stage caches and the response memo",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateEnrich(); err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		p, closeMemo, err := newPipeline(ctx, nil)
		if err != nil {
			return err
		}
		defer closeMemo()

		removed, err := p.Clear(ctx)
		if err != nil {
			return err
		}
		for _, f := range removed {
			cmd.Printf("Removed %s\n", f)
		}
		if len(removed) == 0 {
			cmd.Println("No caches to remove")
		}
		return nil
	},
}

// stageCmd builds the subcommand for one stage.
func stageCmd(stage enrich.Stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   stage.String(),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, &stage)
		},
	}
}

func init() {
	enrichCmd.PersistentFlags().BoolVar(&enrichForce, "force", false,
		"refetch stages whose cache already exists")
	enrichCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatText,
		"output format: text, json, yaml")

	enrichCmd.AddCommand(enrichStatusCmd)
	enrichCmd.AddCommand(stageCmd(enrich.StageGeocode, "Geocode every store to a census tract"))
	enrichCmd.AddCommand(stageCmd(enrich.StageTract, "Fetch ACS values for each geocoded tract"))
	enrichCmd.AddCommand(stageCmd(enrich.StageCounty, "Fetch ACS values for every county"))
	enrichCmd.AddCommand(enrichRunCmd)
	enrichCmd.AddCommand(enrichClearCmd)
}

// runEnrich runs one stage, or all of them when stage is nil.
func runEnrich(cmd *cobra.Command, stage *enrich.Stage) error {
	if err := cfg.ValidateEnrich(); err != nil {
		return err
	}
	if err := validFormat(outputFormat); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Only the geocode stage reads stores.
	var stores dataset.Stores
	if stage == nil || *stage == enrich.StageGeocode {
		ds, err := loadDataset(ctx)
		if err != nil {
			return err
		}
		stores = ds.Stores
	}

	p, closeMemo, err := newPipeline(ctx, nil)
	if err != nil {
		return err
	}
	defer closeMemo()

	var results []*enrich.StageResult
	if stage == nil {
		results, err = p.Run(ctx, stores, enrichForce)
	} else {
		var res *enrich.StageResult
		res, err = p.RunStage(ctx, *stage, stores, enrichForce)
		if res != nil {
			results = append(results, res)
		}
	}
	if len(results) > 0 {
		if rerr := render(cmd.OutOrStdout(), outputFormat, "", results); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			logging.Info().Msg("Enrichment interrupted; no cache was written for the running stage")
		}
		return fmt.Errorf("enrichment failed: %w", err)
	}

	logging.Info().Str("state", p.State().String()).Msg("Enrichment finished")
	return nil
}
