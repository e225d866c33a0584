//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cache persists enrichment stage results and memoizes individual
// Census API responses.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pgEdge/cstore-insights/internal/census"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

// Kind identifies one stage cache.
type Kind int

// Stage caches, in pipeline order.
const (
	KindGeocode Kind = iota
	KindTract
	KindCounty
)

// Kinds lists every stage cache in pipeline order.
var Kinds = []Kind{KindGeocode, KindTract, KindCounty}

// FileName is the cache file name inside the cache directory.
func (k Kind) FileName() string {
	switch k {
	case KindGeocode:
		return "census_tract_geocoded.db"
	case KindTract:
		return "census_tract_acs.db"
	case KindCounty:
		return "census_county_acs.db"
	default:
		return fmt.Sprintf("unknown_%d.db", int(k))
	}
}

func (k Kind) String() string {
	switch k {
	case KindGeocode:
		return "geocode"
	case KindTract:
		return "tract"
	case KindCounty:
		return "county"
	default:
		return "unknown"
	}
}

// Store reads and writes the three stage caches under one directory. A
// readable cache file is the only completeness signal.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the cache file path for k.
func (s *Store) Path(k Kind) string {
	return filepath.Join(s.dir, k.FileName())
}

// Exists reports whether the cache file for k is present.
func (s *Store) Exists(k Kind) bool {
	info, err := os.Stat(s.Path(k))
	return err == nil && info.Mode().IsRegular()
}

// Clear deletes every stage cache and returns the paths it removed.
func (s *Store) Clear() ([]string, error) {
	var removed []string
	var errs []error
	for _, k := range Kinds {
		p := s.Path(k)
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return removed, errors.Join(errs...)
}

var acsColumns = func() string {
	cols := make([]string, len(census.Variables))
	for i, v := range census.Variables {
		cols[i] = v + " REAL"
	}
	return strings.Join(cols, ",\n    ")
}()

var acsNames = strings.Join(census.Variables[:], ", ")

var tables = map[Kind]string{
	KindGeocode: "store_geocodes",
	KindTract:   "tract_acs",
	KindCounty:  "county_acs",
}

var schemas = map[Kind]string{
	KindGeocode: `
CREATE TABLE store_geocodes (
    position INTEGER PRIMARY KEY,
    store_id TEXT NOT NULL,
    statefp  TEXT,
    countyfp TEXT,
    tract    TEXT
)`,
	KindTract: `
CREATE TABLE tract_acs (
    position INTEGER PRIMARY KEY,
    statefp  TEXT NOT NULL,
    countyfp TEXT NOT NULL,
    tract    TEXT NOT NULL,
    ` + acsColumns + `
)`,
	KindCounty: `
CREATE TABLE county_acs (
    position INTEGER PRIMARY KEY,
    state    TEXT NOT NULL,
    county   TEXT NOT NULL,
    name     TEXT NOT NULL,
    ` + acsColumns + `
)`,
}

// write builds a cache in a temp file and renames it into place, so a
// failed write never leaves a file that looks complete.
func (s *Store) write(ctx context.Context, k Kind, insert func(tx *sql.Tx) (int, error)) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, k.FileName()+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	rows, err := func() (int, error) {
		defer db.Close()
		if _, err := db.ExecContext(ctx, schemas[k]); err != nil {
			return 0, fmt.Errorf("create cache schema: %w", err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("begin: %w", err)
		}
		n, err := insert(tx)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		return n, tx.Commit()
	}()
	if err != nil {
		return fmt.Errorf("write %s cache: %w", k, err)
	}

	if err := os.Rename(tmpPath, s.Path(k)); err != nil {
		return fmt.Errorf("install %s cache: %w", k, err)
	}
	ok = true

	logging.Debug().
		Str("cache", k.String()).
		Str("path", s.Path(k)).
		Int("rows", rows).
		Msg("Wrote stage cache")
	return nil
}

// read opens an existing cache. found is false when the file is missing or
// unreadable; read errors are logged and treated as an absent cache.
func (s *Store) read(ctx context.Context, k Kind, scan func(db *sql.DB) error) (found bool) {
	path := s.Path(k)
	if !s.Exists(k) {
		return false
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Cannot open stage cache, treating as absent")
		return false
	}
	defer db.Close()

	if err := scan(db); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Cannot read stage cache, treating as absent")
		return false
	}
	return true
}

// Readable reports whether the cache for k is present and can be queried.
// A file that exists but cannot be read counts as absent.
func (s *Store) Readable(ctx context.Context, k Kind) bool {
	return s.read(ctx, k, func(db *sql.DB) error {
		var n int
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tables[k]).Scan(&n)
	})
}

// SaveGeocodes writes the geocode stage cache. Failed stores are stored
// with null identifiers.
func (s *Store) SaveGeocodes(ctx context.Context, rows []census.StoreGeography) error {
	return s.write(ctx, KindGeocode, func(tx *sql.Tx) (int, error) {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO store_geocodes (position, store_id, statefp, countyfp, tract) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for i, r := range rows {
			if _, err := stmt.ExecContext(ctx, i, r.StoreID,
				nullText(r.Geo.State), nullText(r.Geo.County), nullText(r.Geo.Tract)); err != nil {
				return 0, fmt.Errorf("insert store %s: %w", r.StoreID, err)
			}
		}
		return len(rows), nil
	})
}

// LoadGeocodes reads the geocode stage cache.
func (s *Store) LoadGeocodes(ctx context.Context) ([]census.StoreGeography, bool) {
	var out []census.StoreGeography
	found := s.read(ctx, KindGeocode, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT store_id, statefp, countyfp, tract FROM store_geocodes ORDER BY position`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r census.StoreGeography
			var st, co, tr sql.NullString
			if err := rows.Scan(&r.StoreID, &st, &co, &tr); err != nil {
				return err
			}
			r.Geo = census.Geography{State: st.String, County: co.String, Tract: tr.String}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, found
}

// SaveTracts writes the tract ACS stage cache.
func (s *Store) SaveTracts(ctx context.Context, rows []census.TractRecord) error {
	return s.write(ctx, KindTract, func(tx *sql.Tx) (int, error) {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tract_acs (position, statefp, countyfp, tract, `+
			acsNames+`) VALUES (?, ?, ?, ?`+strings.Repeat(", ?", census.VarCount)+`)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for i, r := range rows {
			args := append([]any{i, r.Geo.State, r.Geo.County, r.Geo.Tract}, valueArgs(r.Values)...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return 0, fmt.Errorf("insert tract %s: %w", r.Geo, err)
			}
		}
		return len(rows), nil
	})
}

// LoadTracts reads the tract ACS stage cache.
func (s *Store) LoadTracts(ctx context.Context) ([]census.TractRecord, bool) {
	var out []census.TractRecord
	found := s.read(ctx, KindTract, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT statefp, countyfp, tract, `+acsNames+` FROM tract_acs ORDER BY position`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r census.TractRecord
			var vals [census.VarCount]sql.NullFloat64
			dest := []any{&r.Geo.State, &r.Geo.County, &r.Geo.Tract}
			for i := range vals {
				dest = append(dest, &vals[i])
			}
			if err := rows.Scan(dest...); err != nil {
				return err
			}
			r.Values = fromNull(vals)
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, found
}

// SaveCounties writes the county ACS stage cache.
func (s *Store) SaveCounties(ctx context.Context, rows []census.CountyRecord) error {
	return s.write(ctx, KindCounty, func(tx *sql.Tx) (int, error) {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO county_acs (position, state, county, name, `+
			acsNames+`) VALUES (?, ?, ?, ?`+strings.Repeat(", ?", census.VarCount)+`)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for i, r := range rows {
			args := append([]any{i, r.State, r.County, r.Name}, valueArgs(r.Values)...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return 0, fmt.Errorf("insert county %s: %w", r.Key(), err)
			}
		}
		return len(rows), nil
	})
}

// LoadCounties reads the county ACS stage cache.
func (s *Store) LoadCounties(ctx context.Context) ([]census.CountyRecord, bool) {
	var out []census.CountyRecord
	found := s.read(ctx, KindCounty, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT state, county, name, `+acsNames+` FROM county_acs ORDER BY position`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r census.CountyRecord
			var vals [census.VarCount]sql.NullFloat64
			dest := []any{&r.State, &r.County, &r.Name}
			for i := range vals {
				dest = append(dest, &vals[i])
			}
			if err := rows.Scan(dest...); err != nil {
				return err
			}
			r.Values = fromNull(vals)
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, found
}

func nullText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func valueArgs(v census.Values) []any {
	args := make([]any, len(v))
	for i, p := range v {
		if p == nil {
			args[i] = nil
		} else {
			args[i] = *p
		}
	}
	return args
}

func fromNull(vals [census.VarCount]sql.NullFloat64) census.Values {
	var v census.Values
	for i, n := range vals {
		if n.Valid {
			f := n.Float64
			v[i] = &f
		}
	}
	return v
}
