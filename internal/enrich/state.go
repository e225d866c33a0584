//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package enrich runs the three-stage Census enrichment workflow and joins
// its output onto the store table.
package enrich

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pgEdge/cstore-insights/internal/cache"
)

var (
	// ErrStageNotReady is returned when a stage's upstream cache is missing.
	ErrStageNotReady = errors.New("enrichment stage not ready")

	// ErrEnrichmentIncomplete is returned when a consumer needs every stage
	// to have finished.
	ErrEnrichmentIncomplete = errors.New("enrichment incomplete")
)

// State is the overall progress of the workflow.
type State int

// Workflow states, in order.
const (
	NotGeocoded State = iota
	Geocoded
	TractACSPending
	TractACSFetched
	CountyACSPending
	CountyACSFetched
)

func (s State) String() string {
	switch s {
	case NotGeocoded:
		return "NOT_GEOCODED"
	case Geocoded:
		return "GEOCODED"
	case TractACSPending:
		return "TRACT_ACS_PENDING"
	case TractACSFetched:
		return "TRACT_ACS_FETCHED"
	case CountyACSPending:
		return "COUNTY_ACS_PENDING"
	case CountyACSFetched:
		return "COUNTY_ACS_FETCHED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stage is one step of the workflow. It shares its identity with the cache
// the step writes.
type Stage = cache.Kind

// Stages in pipeline order.
const (
	StageGeocode = cache.KindGeocode
	StageTract   = cache.KindTract
	StageCounty  = cache.KindCounty
)

// ParseStage resolves a stage name such as "tract".
func ParseStage(name string) (Stage, error) {
	for _, k := range cache.Kinds {
		if strings.EqualFold(k.String(), name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown enrichment stage %q (valid: geocode, tract, county)", name)
}

// deriveState maps cache presence plus the running stage onto a State.
// Caches count only as a contiguous prefix: a county cache without a tract
// cache does not advance the state.
func deriveState(exists func(cache.Kind) bool, running Stage, isRunning bool) State {
	state := NotGeocoded
	if !exists(StageGeocode) {
		return state
	}
	state = Geocoded

	if !exists(StageTract) {
		if isRunning && running == StageTract {
			return TractACSPending
		}
		return state
	}
	state = TractACSFetched

	if !exists(StageCounty) {
		if isRunning && running == StageCounty {
			return CountyACSPending
		}
		return state
	}
	return CountyACSFetched
}
