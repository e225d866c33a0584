//-------------------------------------------------------------------------
//
// pgEdge C-Store Insights
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package census

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/pkg/version"
)

// ErrNoData is returned when the API answers without a usable row.
var ErrNoData = errors.New("census: no data")

// tractLayerName is the geographies key holding tract matches.
const tractLayerName = "Census Tracts"

// Client calls the geocoder and ACS endpoints.
type Client struct {
	geocoderURL string
	acsURL      string
	apiKey      string
	benchmark   string
	vintage     string

	geocodeTimeout time.Duration
	tractTimeout   time.Duration
	countyTimeout  time.Duration

	httpClient *http.Client
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.CensusConfig) *Client {
	return &Client{
		geocoderURL:    cfg.GeocoderURL,
		acsURL:         cfg.ACSURL,
		apiKey:         cfg.APIKey,
		benchmark:      cfg.Benchmark,
		vintage:        cfg.Vintage,
		geocodeTimeout: time.Duration(cfg.GeocodeTimeout) * time.Second,
		tractTimeout:   time.Duration(cfg.TractTimeout) * time.Second,
		countyTimeout:  time.Duration(cfg.CountyTimeout) * time.Second,
		httpClient:     &http.Client{},
	}
}

// geocodeResponse is the subset of the geocoder payload we read.
type geocodeResponse struct {
	Result struct {
		Geographies map[string][]struct {
			State  string `json:"STATE"`
			County string `json:"COUNTY"`
			Tract  string `json:"TRACT"`
		} `json:"geographies"`
	} `json:"result"`
}

// Geocode reverse-geocodes a coordinate to its census tract.
func (c *Client) Geocode(ctx context.Context, lat, lon float64) (Geography, error) {
	q := url.Values{}
	q.Set("x", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("benchmark", c.benchmark)
	q.Set("vintage", c.vintage)
	q.Set("format", "json")

	var resp geocodeResponse
	if err := c.getJSON(ctx, c.geocodeTimeout, c.geocoderURL, q, &resp); err != nil {
		return Geography{}, err
	}

	tracts := resp.Result.Geographies[tractLayerName]
	if len(tracts) == 0 {
		return Geography{}, fmt.Errorf("%w: no tract at (%g, %g)", ErrNoData, lat, lon)
	}
	g := Geography{State: tracts[0].State, County: tracts[0].County, Tract: tracts[0].Tract}.Normalize()
	if !g.Valid() {
		return Geography{}, fmt.Errorf("%w: incomplete tract at (%g, %g)", ErrNoData, lat, lon)
	}
	return g, nil
}

// FetchTract fetches the ACS values for one tract.
func (c *Client) FetchTract(ctx context.Context, g Geography) (Values, error) {
	q := url.Values{}
	q.Set("get", VariableList())
	q.Set("for", "tract:"+g.Tract)
	q.Set("in", "state:"+g.State+" county:"+g.County)
	c.setKey(q)

	var table [][]any
	if err := c.getJSON(ctx, c.tractTimeout, c.acsURL, q, &table); err != nil {
		return Values{}, err
	}
	if len(table) < 2 {
		return Values{}, fmt.Errorf("%w: tract %s", ErrNoData, g)
	}

	// Trailing state, county and tract columns echo the request.
	row := table[1]
	if len(row) < 3 {
		return Values{}, fmt.Errorf("tract %s: short ACS row", g)
	}
	v, err := parseValues(row[:len(row)-3])
	if err != nil {
		return Values{}, fmt.Errorf("tract %s: %w", g, err)
	}
	return v, nil
}

// FetchCounties fetches the ACS values for every county in one call.
func (c *Client) FetchCounties(ctx context.Context) ([]CountyRecord, error) {
	q := url.Values{}
	q.Set("get", VariableList()+",NAME")
	q.Set("for", "county:*")
	q.Set("in", "state:*")
	c.setKey(q)

	var table [][]any
	if err := c.getJSON(ctx, c.countyTimeout, c.acsURL, q, &table); err != nil {
		return nil, err
	}
	return parseCountyTable(table)
}

// parseCountyTable maps rows by header name so column order is not assumed.
func parseCountyTable(table [][]any) ([]CountyRecord, error) {
	if len(table) < 2 {
		return nil, fmt.Errorf("%w: county table", ErrNoData)
	}

	index := make(map[string]int, len(table[0]))
	for i, h := range table[0] {
		index[cellString(h)] = i
	}
	need := append([]string{"NAME", "state", "county"}, Variables[:]...)
	for _, col := range need {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("county table: missing column %s", col)
		}
	}

	out := make([]CountyRecord, 0, len(table)-1)
	for n, row := range table[1:] {
		if len(row) != len(table[0]) {
			return nil, fmt.Errorf("county table row %d: expected %d columns, got %d", n+1, len(table[0]), len(row))
		}
		cells := make([]any, VarCount)
		for i, name := range Variables {
			cells[i] = row[index[name]]
		}
		v, err := parseValues(cells)
		if err != nil {
			return nil, fmt.Errorf("county table row %d: %w", n+1, err)
		}
		out = append(out, CountyRecord{
			State:  PadCode(cellString(row[index["state"]]), 2),
			County: PadCode(cellString(row[index["county"]]), 3),
			Name:   cellString(row[index["NAME"]]),
			Values: v,
		})
	}
	return out, nil
}

func (c *Client) setKey(q url.Values) {
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
}

func (c *Client) getJSON(ctx context.Context, timeout time.Duration, base string, q url.Values, result any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u := base + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("census request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("census GET %s: %w", base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("census read body: %w", err)
	}
	// The ACS API answers 204 with no body for unknown geographies.
	if resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return fmt.Errorf("%w: empty response from %s", ErrNoData, base)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("census HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("census decode: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
