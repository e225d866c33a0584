//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package enrich

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pgEdge/cstore-insights/internal/cache"
	"github.com/pgEdge/cstore-insights/internal/census"
	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

// Census is the subset of the Census client the pipeline calls.
type Census interface {
	Geocode(ctx context.Context, lat, lon float64) (census.Geography, error)
	FetchTract(ctx context.Context, g census.Geography) (census.Values, error)
	FetchCounties(ctx context.Context) ([]census.CountyRecord, error)
}

// DefaultReportInterval is how often a running stage logs its progress.
const DefaultReportInterval = 5 * time.Second

// Options configures a Pipeline.
type Options struct {
	Workers        int
	RequestDelay   time.Duration
	ReportInterval time.Duration
	Progress       ProgressFunc
}

// OptionsFromConfig builds Options from the enrich configuration section.
func OptionsFromConfig(cfg config.EnrichConfig) Options {
	return Options{
		Workers:        cfg.Workers,
		RequestDelay:   time.Duration(cfg.RequestDelay) * time.Millisecond,
		ReportInterval: DefaultReportInterval,
	}
}

// Pipeline runs the geocode, tract and county stages against the stage
// caches. One stage runs at a time.
type Pipeline struct {
	store  *cache.Store
	census Census
	memo   cache.Memo

	workers        int
	limiter        *rate.Limiter
	reportInterval time.Duration
	progress       ProgressFunc
	log            zerolog.Logger

	mu sync.Mutex

	stateMu   sync.Mutex
	running   Stage
	isRunning bool
}

// Snapshot is everything the caches currently hold.
type Snapshot struct {
	State    State                   `json:"state"`
	Geocodes []census.StoreGeography `json:"geocodes"`
	Tracts   []census.TractRecord    `json:"tracts"`
	Counties []census.CountyRecord   `json:"counties"`
}

// Complete reports whether every stage has finished.
func (s *Snapshot) Complete() bool {
	return s != nil && s.State == CountyACSFetched
}

// Status is the externally visible pipeline state.
type Status struct {
	State   State           `json:"state"`
	Caches  map[string]bool `json:"caches"`
	Running string          `json:"running,omitempty"`
	Dir     string          `json:"cache_dir"`
}

// New creates a Pipeline. A nil memo disables response memoization.
func New(store *cache.Store, client Census, memo cache.Memo, opts Options) *Pipeline {
	if memo == nil {
		memo = cache.NopMemo{}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store:          store,
		census:         client,
		memo:           memo,
		workers:        workers,
		limiter:        rate.NewLimiter(rate.Every(opts.RequestDelay), 1),
		reportInterval: opts.ReportInterval,
		progress:       opts.Progress,
		log:            logging.With("enrich"),
	}
}

// Status returns the current state. It does not wait for a running stage.
func (p *Pipeline) Status() Status {
	p.stateMu.Lock()
	running, isRunning := p.running, p.isRunning
	p.stateMu.Unlock()

	ctx := context.Background()
	st := Status{
		Caches: make(map[string]bool, len(cache.Kinds)),
		Dir:    p.store.Dir(),
	}
	present := make(map[cache.Kind]bool, len(cache.Kinds))
	for _, k := range cache.Kinds {
		present[k] = p.store.Readable(ctx, k)
		st.Caches[k.String()] = present[k]
	}
	st.State = deriveState(func(k cache.Kind) bool { return present[k] }, running, isRunning)
	if isRunning {
		st.Running = running.String()
	}
	return st
}

// State returns the current workflow state.
func (p *Pipeline) State() State {
	return p.Status().State
}

func (p *Pipeline) begin(s Stage) {
	p.stateMu.Lock()
	p.running, p.isRunning = s, true
	p.stateMu.Unlock()
}

func (p *Pipeline) end() {
	p.stateMu.Lock()
	p.isRunning = false
	p.stateMu.Unlock()
}

// throttle waits for the shared limiter before an API call.
func (p *Pipeline) throttle(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

func newResult(s Stage) *StageResult {
	return &StageResult{RunID: uuid.NewString(), Stage: s.String()}
}

// Geocode resolves every store to a census tract and writes the geocode
// cache. The cache holds exactly one row per store, in store order; stores
// that could not be geocoded have empty identifiers. When the cache exists
// and force is false the stage is skipped.
func (p *Pipeline) Geocode(ctx context.Context, stores dataset.Stores, force bool) (*StageResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := newResult(StageGeocode)
	if !force {
		if rows, found := p.store.LoadGeocodes(ctx); found {
			return p.skipped(res, len(rows)), nil
		}
	}

	p.begin(StageGeocode)
	defer p.end()

	start := time.Now()
	lat := newLatencyRecorder()
	slots := make([]census.StoreGeography, len(stores))
	memoHits := make([]bool, len(stores))
	res.Requested = len(stores)

	p.log.Info().Int("stores", len(stores)).Int("workers", p.workers).Msg("Geocoding stores")

	err := runPool(ctx, p.log, StageGeocode.String(), len(stores), p.workers, p.reportInterval, p.progress,
		func(ctx context.Context, i int) bool {
			s := stores[i]
			slots[i].StoreID = s.StoreID
			geo, hit, err := p.geocodeOne(ctx, s, lat)
			memoHits[i] = hit
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn().Err(err).Str("store_id", s.StoreID).Msg("Geocode failed")
				}
				return false
			}
			slots[i].Geo = geo
			return true
		})
	if err != nil {
		p.log.Warn().Err(err).Msg("Geocode stage cancelled, cache not written")
		return nil, err
	}

	for i := range slots {
		if slots[i].Geo.Valid() {
			res.Succeeded++
		} else {
			res.Failed++
		}
		if memoHits[i] {
			res.Memoized++
		}
	}
	res.Rows = len(slots)

	if err := p.store.SaveGeocodes(ctx, slots); err != nil {
		return nil, err
	}
	lat.fill(res, time.Since(start))
	p.logResult(res)
	return res, nil
}

func (p *Pipeline) geocodeOne(ctx context.Context, s dataset.Store, lat *latencyRecorder) (census.Geography, bool, error) {
	if !validCoordinate(s.Latitude, -90, 90) || !validCoordinate(s.Longitude, -180, 180) {
		return census.Geography{}, false, fmt.Errorf("invalid coordinates (%g, %g)", s.Latitude, s.Longitude)
	}

	key := fmt.Sprintf("geocode:%.6f,%.6f", s.Latitude, s.Longitude)
	var geo census.Geography
	if hit, err := p.memo.Get(ctx, key, &geo); err != nil {
		p.log.Debug().Err(err).Str("key", key).Msg("Memo read failed")
	} else if hit {
		return geo, true, nil
	}

	if err := p.throttle(ctx); err != nil {
		return census.Geography{}, false, err
	}
	t0 := time.Now()
	geo, err := p.census.Geocode(ctx, s.Latitude, s.Longitude)
	lat.record(time.Since(t0))
	if err != nil {
		return census.Geography{}, false, err
	}

	if err := p.memo.Set(ctx, key, geo); err != nil {
		p.log.Debug().Err(err).Str("key", key).Msg("Memo write failed")
	}
	return geo, false, nil
}

func validCoordinate(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// Tract fetches ACS values for every distinct geocoded tract and writes the
// tract cache. Tracts that fail or come back empty are omitted. The geocode
// cache must exist.
func (p *Pipeline) Tract(ctx context.Context, force bool) (*StageResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	geos, found := p.store.LoadGeocodes(ctx)
	if !found {
		return nil, fmt.Errorf("%w: tract stage needs the geocode cache", ErrStageNotReady)
	}

	res := newResult(StageTract)
	if !force {
		if rows, found := p.store.LoadTracts(ctx); found {
			return p.skipped(res, len(rows)), nil
		}
	}

	p.begin(StageTract)
	defer p.end()

	tracts := distinctTracts(geos)
	start := time.Now()
	lat := newLatencyRecorder()
	slots := make([]*census.TractRecord, len(tracts))
	memoHits := make([]bool, len(tracts))
	res.Requested = len(tracts)

	p.log.Info().Int("tracts", len(tracts)).Int("workers", p.workers).Msg("Fetching tract ACS values")

	err := runPool(ctx, p.log, StageTract.String(), len(tracts), p.workers, p.reportInterval, p.progress,
		func(ctx context.Context, i int) bool {
			g := tracts[i]
			vals, hit, err := p.tractOne(ctx, g, lat)
			memoHits[i] = hit
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn().Err(err).Str("tract", g.String()).Msg("Tract ACS fetch failed")
				}
				return false
			}
			slots[i] = &census.TractRecord{Geo: g, Values: vals}
			return true
		})
	if err != nil {
		p.log.Warn().Err(err).Msg("Tract stage cancelled, cache not written")
		return nil, err
	}

	rows := make([]census.TractRecord, 0, len(slots))
	for i, r := range slots {
		if r != nil {
			rows = append(rows, *r)
		}
		if memoHits[i] {
			res.Memoized++
		}
	}
	res.Succeeded = len(rows)
	res.Failed = len(tracts) - len(rows)
	res.Rows = len(rows)

	if err := p.store.SaveTracts(ctx, rows); err != nil {
		return nil, err
	}
	lat.fill(res, time.Since(start))
	p.logResult(res)
	return res, nil
}

func (p *Pipeline) tractOne(ctx context.Context, g census.Geography, lat *latencyRecorder) (census.Values, bool, error) {
	key := "tract:" + g.String()
	var vals census.Values
	if hit, err := p.memo.Get(ctx, key, &vals); err != nil {
		p.log.Debug().Err(err).Str("key", key).Msg("Memo read failed")
	} else if hit {
		return vals, true, nil
	}

	if err := p.throttle(ctx); err != nil {
		return census.Values{}, false, err
	}
	t0 := time.Now()
	vals, err := p.census.FetchTract(ctx, g)
	lat.record(time.Since(t0))
	if err != nil {
		return census.Values{}, false, err
	}

	if err := p.memo.Set(ctx, key, vals); err != nil {
		p.log.Debug().Err(err).Str("key", key).Msg("Memo write failed")
	}
	return vals, false, nil
}

// distinctTracts returns the valid geographies in geos, deduplicated and
// sorted by state, county, tract.
func distinctTracts(geos []census.StoreGeography) []census.Geography {
	seen := make(map[census.Geography]bool)
	var out []census.Geography
	for _, sg := range geos {
		if !sg.Geo.Valid() || seen[sg.Geo] {
			continue
		}
		seen[sg.Geo] = true
		out = append(out, sg.Geo)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.County != b.County {
			return a.County < b.County
		}
		return a.Tract < b.Tract
	})
	return out
}

// County fetches ACS values for every county in one call and writes the
// county cache. Any failure fails the stage and nothing is written. The
// tract cache must exist.
func (p *Pipeline) County(ctx context.Context, force bool) (*StageResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.store.Readable(ctx, StageTract) {
		return nil, fmt.Errorf("%w: county stage needs the tract cache", ErrStageNotReady)
	}

	res := newResult(StageCounty)
	if !force {
		if rows, found := p.store.LoadCounties(ctx); found {
			return p.skipped(res, len(rows)), nil
		}
	}

	p.begin(StageCounty)
	defer p.end()

	start := time.Now()
	lat := newLatencyRecorder()
	res.Requested = 1

	p.log.Info().Msg("Fetching county ACS values")

	if err := p.throttle(ctx); err != nil {
		return nil, err
	}
	t0 := time.Now()
	rows, err := p.census.FetchCounties(ctx)
	lat.record(time.Since(t0))
	if err != nil {
		p.log.Error().Err(err).Msg("County ACS fetch failed, cache not written")
		return nil, fmt.Errorf("fetch county ACS: %w", err)
	}
	if len(rows) == 0 {
		p.log.Error().Msg("County ACS returned no rows, cache not written")
		return nil, fmt.Errorf("fetch county ACS: %w", census.ErrNoData)
	}

	if err := p.store.SaveCounties(ctx, rows); err != nil {
		return nil, err
	}
	res.Succeeded = 1
	res.Rows = len(rows)
	if p.progress != nil {
		p.progress(Progress{Stage: StageCounty.String(), Done: 1, Total: 1})
	}
	lat.fill(res, time.Since(start))
	p.logResult(res)
	return res, nil
}

// Run executes the three stages in order, skipping those already cached
// unless force is set. It stops at the first stage error.
func (p *Pipeline) Run(ctx context.Context, stores dataset.Stores, force bool) ([]*StageResult, error) {
	var results []*StageResult

	res, err := p.Geocode(ctx, stores, force)
	if err != nil {
		return results, fmt.Errorf("geocode stage: %w", err)
	}
	results = append(results, res)

	res, err = p.Tract(ctx, force)
	if err != nil {
		return results, fmt.Errorf("tract stage: %w", err)
	}
	results = append(results, res)

	res, err = p.County(ctx, force)
	if err != nil {
		return results, fmt.Errorf("county stage: %w", err)
	}
	results = append(results, res)

	return results, nil
}

// RunStage runs a single stage by identity.
func (p *Pipeline) RunStage(ctx context.Context, s Stage, stores dataset.Stores, force bool) (*StageResult, error) {
	switch s {
	case StageGeocode:
		return p.Geocode(ctx, stores, force)
	case StageTract:
		return p.Tract(ctx, force)
	case StageCounty:
		return p.County(ctx, force)
	default:
		return nil, fmt.Errorf("unknown enrichment stage %d", int(s))
	}
}

// Clear deletes every stage cache and drops memoized responses. It returns
// the cache files it removed.
func (p *Pipeline) Clear(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.store.Clear()
	if memoErr := p.memo.Clear(ctx); memoErr != nil {
		err = errors.Join(err, fmt.Errorf("clear memo: %w", memoErr))
	}

	p.stateMu.Lock()
	p.isRunning = false
	p.stateMu.Unlock()

	p.log.Info().Strs("removed", removed).Msg("Cleared enrichment caches")
	return removed, err
}

// Snapshot loads whatever the caches currently hold. Caches are installed
// by rename, so a snapshot taken while a stage runs sees the previous
// complete state. The state follows the caches that loaded, so an
// unreadable cache counts as missing.
func (p *Pipeline) Snapshot(ctx context.Context) *Snapshot {
	p.stateMu.Lock()
	running, isRunning := p.running, p.isRunning
	p.stateMu.Unlock()

	snap := &Snapshot{}
	found := make(map[cache.Kind]bool, len(cache.Kinds))
	snap.Geocodes, found[StageGeocode] = p.store.LoadGeocodes(ctx)
	snap.Tracts, found[StageTract] = p.store.LoadTracts(ctx)
	snap.Counties, found[StageCounty] = p.store.LoadCounties(ctx)
	snap.State = deriveState(func(k cache.Kind) bool { return found[k] }, running, isRunning)
	return snap
}

func (p *Pipeline) skipped(res *StageResult, rows int) *StageResult {
	res.Skipped = true
	res.Rows = rows
	p.log.Info().
		Str("stage", res.Stage).
		Int("rows", rows).
		Msg("Stage cache present, skipping")
	return res
}

func (p *Pipeline) logResult(res *StageResult) {
	p.log.Info().
		Str("run_id", res.RunID).
		Str("stage", res.Stage).
		Int("requested", res.Requested).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("memoized", res.Memoized).
		Int("rows", res.Rows).
		Float64("duration_ms", res.DurationMS).
		Float64("p95_ms", res.P95MS).
		Msg("Stage complete")
}
