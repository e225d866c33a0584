package dataset

import (
	"context"
	"fmt"

	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/db"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

// Load reads the dataset from the configured source. It is called once at
// process start and the returned handle is passed to every consumer.
func Load(ctx context.Context, cfg config.DataConfig) (*Dataset, error) {
	switch cfg.Source {
	case config.SourceCSV:
		return LoadCSV(cfg.Dir)
	case config.SourcePostgres:
		pool, err := db.ConnectWithMaxConns(ctx, cfg.Connection, 4)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		// Databases seeded elsewhere have no metadata table.
		if seed, err := db.GetMetadataValue(ctx, pool, "seed"); err == nil {
			logging.Info().Str("seed", seed).Msg("Loading generated dataset")
		}
		return LoadPostgres(ctx, pool)
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Source)
	}
}
