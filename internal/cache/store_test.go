package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgEdge/cstore-insights/internal/census"
)

func f(v float64) *float64 { return &v }

func sampleValues(base float64) census.Values {
	var v census.Values
	for i := range v {
		v[i] = f(base + float64(i))
	}
	return v
}

func TestStoreGeocodesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	if s.Exists(KindGeocode) {
		t.Fatal("cache should not exist yet")
	}
	if _, found := s.LoadGeocodes(ctx); found {
		t.Fatal("LoadGeocodes found a missing cache")
	}

	rows := []census.StoreGeography{
		{StoreID: "1", Geo: census.Geography{State: "16", County: "001", Tract: "000100"}},
		{StoreID: "2"},
		{StoreID: "3", Geo: census.Geography{State: "16", County: "027", Tract: "020100"}},
	}
	if err := s.SaveGeocodes(ctx, rows); err != nil {
		t.Fatalf("SaveGeocodes: %v", err)
	}
	if !s.Exists(KindGeocode) {
		t.Fatal("cache should exist after save")
	}

	got, found := s.LoadGeocodes(ctx)
	if !found {
		t.Fatal("LoadGeocodes did not find the cache")
	}
	if len(got) != len(rows) {
		t.Fatalf("len = %d, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
	if got[1].Geo.Valid() {
		t.Error("failed geocode should load as invalid geography")
	}
}

func TestStoreTractsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	vals := sampleValues(100)
	vals[census.MedianHomeValue] = nil
	rows := []census.TractRecord{
		{Geo: census.Geography{State: "16", County: "001", Tract: "000100"}, Values: vals},
		{Geo: census.Geography{State: "16", County: "001", Tract: "000200"}, Values: sampleValues(5)},
	}
	if err := s.SaveTracts(ctx, rows); err != nil {
		t.Fatalf("SaveTracts: %v", err)
	}

	got, found := s.LoadTracts(ctx)
	if !found || len(got) != 2 {
		t.Fatalf("LoadTracts = %d rows, found=%v", len(got), found)
	}
	if got[0].Geo != rows[0].Geo {
		t.Errorf("geo = %+v, want %+v", got[0].Geo, rows[0].Geo)
	}
	if got[0].Values[census.MedianHomeValue] != nil {
		t.Error("null value should round-trip as nil")
	}
	if *got[0].Values[census.TotalPopulation] != 100 {
		t.Errorf("population = %v, want 100", *got[0].Values[census.TotalPopulation])
	}
	if *got[1].Values[census.VehicleHouseholds] != 14 {
		t.Errorf("last value = %v, want 14", *got[1].Values[census.VehicleHouseholds])
	}
}

func TestStoreCountiesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	rows := []census.CountyRecord{
		{State: "16", County: "001", Name: "Ada County, Idaho", Values: sampleValues(1)},
	}
	if err := s.SaveCounties(ctx, rows); err != nil {
		t.Fatalf("SaveCounties: %v", err)
	}
	got, found := s.LoadCounties(ctx)
	if !found || len(got) != 1 {
		t.Fatalf("LoadCounties = %d rows, found=%v", len(got), found)
	}
	if got[0].Name != "Ada County, Idaho" || got[0].Key() != "16:001" {
		t.Errorf("county = %+v", got[0])
	}
}

func TestStoreEmptyCacheIsComplete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	if err := s.SaveTracts(ctx, nil); err != nil {
		t.Fatalf("SaveTracts: %v", err)
	}
	got, found := s.LoadTracts(ctx)
	if !found {
		t.Fatal("an empty cache should still count as present")
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestStoreCorruptCacheIsAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	if err := os.WriteFile(s.Path(KindCounty), []byte("not a database"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, found := s.LoadCounties(ctx); found {
		t.Error("corrupt cache should be treated as absent")
	}
	if !s.Exists(KindCounty) {
		t.Fatal("Expected the corrupt file to exist on disk")
	}
	if s.Readable(ctx, KindCounty) {
		t.Error("Expected corrupt cache to be unreadable")
	}
}

func TestStoreReadable(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	if s.Readable(ctx, KindTract) {
		t.Error("Expected missing cache to be unreadable")
	}
	// An empty but valid cache is still complete.
	if err := s.SaveTracts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if !s.Readable(ctx, KindTract) {
		t.Error("Expected empty tract cache to be readable")
	}
}

func TestStoreCancelledWriteLeavesNoFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	s := NewStore(dir)

	err := s.SaveGeocodes(ctx, []census.StoreGeography{{StoreID: "1"}})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if s.Exists(KindGeocode) {
		t.Error("failed write must not install a cache file")
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(t.TempDir())

	if err := s.SaveGeocodes(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCounties(ctx, nil); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed %d files, want 2", len(removed))
	}
	for _, k := range Kinds {
		if s.Exists(k) {
			t.Errorf("%s cache still exists", k)
		}
	}

	removed, err = s.Clear()
	if err != nil || len(removed) != 0 {
		t.Errorf("second Clear = %v, %v; want nothing removed", removed, err)
	}
}
