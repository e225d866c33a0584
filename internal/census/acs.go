//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package census talks to the US Census geocoder and the ACS 5-year API.
package census

import (
	"fmt"
	"strconv"
	"strings"
)

// Variable indexes into Values, in request order.
const (
	TotalPopulation = iota
	SexByAgeTotal
	MedianHouseholdIncome
	ProfessionalDegree
	BelowPoverty
	MedianHomeValue
	MedianGrossRent
	CommuteWorkers
	Unemployed
	VehicleHouseholds

	VarCount
)

// Variables are the ACS estimate codes requested for every geography.
var Variables = [VarCount]string{
	"B01003_001E",
	"B01001_001E",
	"B19019_001E",
	"B15003_025E",
	"B17001_002E",
	"B25077_001E",
	"B25064_001E",
	"B08301_001E",
	"B23025_004E",
	"B08201_001E",
}

// VariableList is Variables joined for the get= parameter.
func VariableList() string {
	return strings.Join(Variables[:], ",")
}

// Values holds one estimate per variable; nil marks a missing value.
type Values [VarCount]*float64

// Get returns the value for an ACS code such as "B19019_001E".
func (v Values) Get(code string) *float64 {
	for i, name := range Variables {
		if name == code {
			return v[i]
		}
	}
	return nil
}

// Map returns the values keyed by ACS code, prefixed with prefix.
func (v Values) Map(prefix string) map[string]*float64 {
	m := make(map[string]*float64, VarCount)
	for i, name := range Variables {
		m[prefix+name] = v[i]
	}
	return m
}

// parseValue converts one ACS cell. Census encodes annotations such as
// "not available" as large negative numbers; those become nil.
func parseValue(cell any) (*float64, error) {
	var f float64
	switch c := cell.(type) {
	case nil:
		return nil, nil
	case float64:
		f = c
	case string:
		c = strings.TrimSpace(c)
		if c == "" || strings.EqualFold(c, "null") {
			return nil, nil
		}
		var err error
		f, err = strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ACS value %q: %w", c, err)
		}
	default:
		return nil, fmt.Errorf("unexpected ACS value type %T", cell)
	}
	if f < 0 {
		return nil, nil
	}
	return &f, nil
}

func parseValues(cells []any) (Values, error) {
	var v Values
	if len(cells) != VarCount {
		return v, fmt.Errorf("expected %d ACS values, got %d", VarCount, len(cells))
	}
	for i, cell := range cells {
		p, err := parseValue(cell)
		if err != nil {
			return v, fmt.Errorf("%s: %w", Variables[i], err)
		}
		v[i] = p
	}
	return v, nil
}

func cellString(cell any) string {
	switch c := cell.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}
