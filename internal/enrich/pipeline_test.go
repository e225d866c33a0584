package enrich

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pgEdge/cstore-insights/internal/cache"
	"github.com/pgEdge/cstore-insights/internal/census"
	"github.com/pgEdge/cstore-insights/internal/dataset"
)

// fakeCensus answers from fixed tables. Coordinates whose latitude is in
// failLat fail to geocode; tracts in failTract fail to fetch.
type fakeCensus struct {
	mu        sync.Mutex
	failLat   map[float64]bool
	failTract map[string]bool
	countyErr error

	geocodeCalls atomic.Int64
	tractCalls   atomic.Int64
	countyCalls  atomic.Int64

	// block, when set, holds every geocode call until the context ends.
	// started receives a value as each blocked call begins.
	block   bool
	started chan struct{}
}

func (f *fakeCensus) Geocode(ctx context.Context, lat, lon float64) (census.Geography, error) {
	f.geocodeCalls.Add(1)
	if f.block {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return census.Geography{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLat[lat] {
		return census.Geography{}, census.ErrNoData
	}
	// Two stores share each tract.
	tract := int(lat) / 2
	return census.Geography{State: "16", County: "001", Tract: fmt.Sprintf("%06d", tract)}, nil
}

func (f *fakeCensus) FetchTract(ctx context.Context, g census.Geography) (census.Values, error) {
	f.tractCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTract[g.Tract] {
		return census.Values{}, errors.New("HTTP 500")
	}
	var v census.Values
	pop, income := 1000.0, 50000.0
	v[census.TotalPopulation] = &pop
	v[census.MedianHouseholdIncome] = &income
	return v, nil
}

func (f *fakeCensus) FetchCounties(ctx context.Context) ([]census.CountyRecord, error) {
	f.countyCalls.Add(1)
	if f.countyErr != nil {
		return nil, f.countyErr
	}
	pop := 250000.0
	var v census.Values
	v[census.TotalPopulation] = &pop
	return []census.CountyRecord{{State: "16", County: "001", Name: "Ada County, Idaho", Values: v}}, nil
}

// makeStores returns n stores with latitudes 10, 11, ... so that
// neighbouring pairs share a tract.
func makeStores(n int) dataset.Stores {
	stores := make(dataset.Stores, n)
	for i := range stores {
		stores[i] = dataset.Store{
			StoreID:   fmt.Sprintf("%d", i+1),
			Latitude:  float64(10 + i),
			Longitude: -116,
			State:     "ID",
		}
	}
	return stores
}

func newTestPipeline(t *testing.T, fc *fakeCensus, memo cache.Memo) *Pipeline {
	t.Helper()
	return New(cache.NewStore(t.TempDir()), fc, memo, Options{Workers: 3})
}

func TestGeocodeFailuresKeepRowCount(t *testing.T) {
	tests := []struct {
		name     string
		stores   int
		failures []float64
	}{
		{name: "no failures", stores: 6},
		{name: "some failures", stores: 6, failures: []float64{11, 14}},
		{name: "all failures", stores: 3, failures: []float64{10, 11, 12}},
		{name: "no stores", stores: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCensus{failLat: map[float64]bool{}}
			for _, lat := range tt.failures {
				fc.failLat[lat] = true
			}
			p := newTestPipeline(t, fc, nil)
			stores := makeStores(tt.stores)

			res, err := p.Geocode(context.Background(), stores, false)
			if err != nil {
				t.Fatalf("Geocode: %v", err)
			}
			if res.Rows != tt.stores {
				t.Errorf("Expected %d rows, got %d", tt.stores, res.Rows)
			}
			if res.Failed != len(tt.failures) {
				t.Errorf("Expected %d failures, got %d", len(tt.failures), res.Failed)
			}

			rows, found := p.store.LoadGeocodes(context.Background())
			if !found {
				t.Fatal("geocode cache not written")
			}
			if len(rows) != tt.stores {
				t.Fatalf("Expected %d cached rows, got %d", tt.stores, len(rows))
			}
			nulls := 0
			for i, r := range rows {
				if r.StoreID != stores[i].StoreID {
					t.Errorf("row %d store = %s, want %s", i, r.StoreID, stores[i].StoreID)
				}
				if !r.Geo.Valid() {
					nulls++
				}
			}
			if nulls != len(tt.failures) {
				t.Errorf("Expected %d null rows, got %d", len(tt.failures), nulls)
			}
			if p.State() != Geocoded {
				t.Errorf("Expected state GEOCODED, got %s", p.State())
			}
		})
	}
}

func TestTractFailuresAreOmitted(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCensus{failTract: map[string]bool{"000006": true}}
	p := newTestPipeline(t, fc, nil)

	// Latitudes 10..17 map to tracts 5, 6, 7, 8.
	if _, err := p.Geocode(ctx, makeStores(8), false); err != nil {
		t.Fatal(err)
	}
	res, err := p.Tract(ctx, false)
	if err != nil {
		t.Fatalf("Tract: %v", err)
	}
	if res.Requested != 4 {
		t.Errorf("Expected 4 requested tracts, got %d", res.Requested)
	}
	if res.Rows != 3 || res.Failed != 1 {
		t.Errorf("Expected 3 rows and 1 failure, got %d and %d", res.Rows, res.Failed)
	}

	rows, _ := p.store.LoadTracts(ctx)
	want := []string{"000005", "000007", "000008"}
	if len(rows) != len(want) {
		t.Fatalf("Expected %d tracts, got %d", len(want), len(rows))
	}
	for i, r := range rows {
		if r.Geo.Tract != want[i] {
			t.Errorf("tract %d = %s, want %s", i, r.Geo.Tract, want[i])
		}
	}
	if p.State() != TractACSFetched {
		t.Errorf("Expected state TRACT_ACS_FETCHED, got %s", p.State())
	}
}

func TestStageGating(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, &fakeCensus{}, nil)

	if _, err := p.Tract(ctx, false); !errors.Is(err, ErrStageNotReady) {
		t.Errorf("Tract before geocode: expected ErrStageNotReady, got %v", err)
	}
	if _, err := p.County(ctx, false); !errors.Is(err, ErrStageNotReady) {
		t.Errorf("County before tract: expected ErrStageNotReady, got %v", err)
	}
	if p.State() != NotGeocoded {
		t.Errorf("Expected state NOT_GEOCODED, got %s", p.State())
	}
}

func TestCachedStagesAreSkipped(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCensus{}
	p := newTestPipeline(t, fc, nil)
	stores := makeStores(4)

	if _, err := p.Run(ctx, stores, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.State() != CountyACSFetched {
		t.Fatalf("Expected state COUNTY_ACS_FETCHED, got %s", p.State())
	}
	geocodes, tracts, counties := fc.geocodeCalls.Load(), fc.tractCalls.Load(), fc.countyCalls.Load()

	results, err := p.Run(ctx, stores, false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, r := range results {
		if !r.Skipped {
			t.Errorf("stage %s should be skipped", r.Stage)
		}
	}
	if fc.geocodeCalls.Load() != geocodes || fc.tractCalls.Load() != tracts || fc.countyCalls.Load() != counties {
		t.Error("skipped stages must not call the API")
	}

	res, err := p.Geocode(ctx, stores, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped {
		t.Error("force should bypass the cache")
	}
	if fc.geocodeCalls.Load() != geocodes+4 {
		t.Errorf("Expected %d geocode calls, got %d", geocodes+4, fc.geocodeCalls.Load())
	}
}

func TestMemoServesRepeatCalls(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCensus{}
	p := newTestPipeline(t, fc, cache.NewMemoryMemo(0))
	stores := makeStores(4)

	if _, err := p.Geocode(ctx, stores, false); err != nil {
		t.Fatal(err)
	}
	res, err := p.Geocode(ctx, stores, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Memoized != 4 {
		t.Errorf("Expected 4 memoized responses, got %d", res.Memoized)
	}
	if fc.geocodeCalls.Load() != 4 {
		t.Errorf("Expected 4 geocode calls, got %d", fc.geocodeCalls.Load())
	}
}

func TestCountyFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCensus{countyErr: errors.New("timeout")}
	p := newTestPipeline(t, fc, nil)

	if _, err := p.Geocode(ctx, makeStores(2), false); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Tract(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, err := p.County(ctx, false); err == nil {
		t.Fatal("expected county stage error")
	}
	if p.store.Exists(StageCounty) {
		t.Error("county cache must not be written on failure")
	}
	if p.State() != TractACSFetched {
		t.Errorf("Expected state TRACT_ACS_FETCHED, got %s", p.State())
	}
}

func TestCorruptTractCacheIsNotFetched(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCensus{}
	p := newTestPipeline(t, fc, nil)

	if _, err := p.Geocode(ctx, makeStores(4), false); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.store.Path(StageTract), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	st := p.Status()
	if st.State != Geocoded {
		t.Errorf("Expected state GEOCODED, got %s", st.State)
	}
	if st.Caches["tract"] {
		t.Error("Expected tract cache to be reported missing")
	}
	if snap := p.Snapshot(ctx); snap.State != Geocoded || snap.Complete() {
		t.Errorf("Expected incomplete GEOCODED snapshot, got %s", snap.State)
	}

	if _, err := p.County(ctx, false); !errors.Is(err, ErrStageNotReady) {
		t.Errorf("Expected ErrStageNotReady, got %v", err)
	}
	if fc.countyCalls.Load() != 0 {
		t.Errorf("Expected no county calls, got %d", fc.countyCalls.Load())
	}
	if p.store.Exists(StageCounty) {
		t.Error("Expected no county cache")
	}

	// The tract stage refetches over the unreadable file.
	res, err := p.Tract(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped {
		t.Error("Expected tract stage to run, got skipped")
	}
	if p.State() != TractACSFetched {
		t.Errorf("Expected state TRACT_ACS_FETCHED, got %s", p.State())
	}
}

func TestCancelledGeocodeWritesNothing(t *testing.T) {
	fc := &fakeCensus{block: true, started: make(chan struct{}, 1)}
	p := newTestPipeline(t, fc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-fc.started
		cancel()
	}()

	_, err := p.Geocode(ctx, makeStores(10), false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if p.store.Exists(StageGeocode) {
		t.Error("cancelled stage must not write its cache")
	}
	if p.Status().Running != "" {
		t.Error("running flag should be cleared")
	}
}

func TestClearResetsState(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCensus{}
	memo := cache.NewMemoryMemo(0)
	p := newTestPipeline(t, fc, memo)
	stores := makeStores(3)

	if _, err := p.Run(ctx, stores, false); err != nil {
		t.Fatal(err)
	}

	removed, err := p.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("Expected 3 removed caches, got %d", len(removed))
	}
	if p.State() != NotGeocoded {
		t.Errorf("Expected state NOT_GEOCODED, got %s", p.State())
	}
	if memo.Len() != 0 {
		t.Errorf("Expected empty memo, got %d entries", memo.Len())
	}

	before := fc.geocodeCalls.Load()
	res, err := p.Geocode(ctx, stores, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || fc.geocodeCalls.Load() != before+3 {
		t.Error("geocode should run again after clear")
	}
}

func TestProgressReported(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, &fakeCensus{failLat: map[float64]bool{10: true}}, nil)

	var last Progress
	calls := 0
	p.progress = func(pr Progress) {
		calls++
		last = pr
	}
	if _, err := p.Geocode(ctx, makeStores(5), false); err != nil {
		t.Fatal(err)
	}
	if calls != 5 {
		t.Errorf("Expected 5 progress calls, got %d", calls)
	}
	if last.Done != 5 || last.Total != 5 || last.Failed != 1 {
		t.Errorf("last progress = %+v", last)
	}
}

func TestDeriveState(t *testing.T) {
	tests := []struct {
		name      string
		present   []cache.Kind
		running   Stage
		isRunning bool
		expected  State
	}{
		{"nothing", nil, 0, false, NotGeocoded},
		{"geocoded", []cache.Kind{StageGeocode}, 0, false, Geocoded},
		{"tract pending", []cache.Kind{StageGeocode}, StageTract, true, TractACSPending},
		{"tract fetched", []cache.Kind{StageGeocode, StageTract}, 0, false, TractACSFetched},
		{"county pending", []cache.Kind{StageGeocode, StageTract}, StageCounty, true, CountyACSPending},
		{"complete", []cache.Kind{StageGeocode, StageTract, StageCounty}, 0, false, CountyACSFetched},
		{"gap", []cache.Kind{StageGeocode, StageCounty}, 0, false, Geocoded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists := func(k cache.Kind) bool {
				for _, p := range tt.present {
					if p == k {
						return true
					}
				}
				return false
			}
			got := deriveState(exists, tt.running, tt.isRunning)
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseStage(t *testing.T) {
	if s, err := ParseStage("Tract"); err != nil || s != StageTract {
		t.Errorf("ParseStage(Tract) = %v, %v", s, err)
	}
	if _, err := ParseStage("zip"); err == nil {
		t.Error("Expected error for unknown stage")
	}
}
