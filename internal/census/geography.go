package census

import (
	"strings"
)

// Geography identifies a census tract. Empty fields mean the store could
// not be geocoded.
type Geography struct {
	State  string `json:"state"`
	County string `json:"county"`
	Tract  string `json:"tract"`
}

// Valid reports whether all three identifiers are present.
func (g Geography) Valid() bool {
	return g.State != "" && g.County != "" && g.Tract != ""
}

// Normalize zero-pads the codes to 2, 3 and 6 digits.
func (g Geography) Normalize() Geography {
	return Geography{
		State:  PadCode(g.State, 2),
		County: PadCode(g.County, 3),
		Tract:  PadCode(g.Tract, 6),
	}
}

// String formats the geography as state-county-tract.
func (g Geography) String() string {
	return g.State + "-" + g.County + "-" + g.Tract
}

// CountyKey is the (state, county) join key.
func (g Geography) CountyKey() string {
	return g.State + ":" + g.County
}

// PadCode trims a FIPS code and left-pads it with zeros to width. Empty
// codes stay empty.
func PadCode(code string, width int) string {
	code = strings.TrimSpace(code)
	if code == "" || len(code) >= width {
		return code
	}
	return strings.Repeat("0", width-len(code)) + code
}

// StoreGeography is the geocode result for one store.
type StoreGeography struct {
	StoreID string    `json:"store_id"`
	Geo     Geography `json:"geography"`
}

// TractRecord holds the ACS values for one tract.
type TractRecord struct {
	Geo    Geography `json:"geography"`
	Values Values    `json:"values"`
}

// CountyRecord holds the ACS values for one county.
type CountyRecord struct {
	State  string `json:"state"`
	County string `json:"county"`
	Name   string `json:"name"`
	Values Values `json:"values"`
}

// Key is the (state, county) join key.
func (c CountyRecord) Key() string {
	return c.State + ":" + c.County
}
