package census

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pgEdge/cstore-insights/internal/config"
)

func testServer(handler http.HandlerFunc) (*httptest.Server, *Client) {
	srv := httptest.NewServer(handler)
	cfg := config.DefaultConfig().Census
	cfg.GeocoderURL = srv.URL + "/geocoder"
	cfg.ACSURL = srv.URL + "/acs"
	cfg.APIKey = "test-key"
	return srv, NewClient(cfg)
}

func acsRow(values ...string) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func TestGeocode(t *testing.T) {
	srv, client := testServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geocoder" {
			t.Errorf("path = %q, want /geocoder", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("x") != "-116.2" || q.Get("y") != "43.61" {
			t.Errorf("x,y = %q,%q, want -116.2,43.61", q.Get("x"), q.Get("y"))
		}
		if q.Get("benchmark") != "Public_AR_Census2020" || q.Get("vintage") != "Census2020_Census2020" {
			t.Errorf("unexpected benchmark/vintage %q/%q", q.Get("benchmark"), q.Get("vintage"))
		}
		if q.Get("format") != "json" {
			t.Errorf("format = %q, want json", q.Get("format"))
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "cstore-insights/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"result":{"geographies":{"Census Tracts":[{"STATE":"16","COUNTY":"1","TRACT":"100","NAME":"x"}]}}}`))
	})
	defer srv.Close()

	g, err := client.Geocode(context.Background(), 43.61, -116.2)
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	want := Geography{State: "16", County: "001", Tract: "000100"}
	if g != want {
		t.Errorf("Geocode = %+v, want %+v", g, want)
	}
}

func TestGeocode_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		noData  bool
	}{
		{
			name: "no tracts",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"result":{"geographies":{"Census Tracts":[]}}}`))
			},
			noData: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"result":`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, client := testServer(tt.handler)
			defer srv.Close()

			_, err := client.Geocode(context.Background(), 1, 2)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.noData && !errors.Is(err, ErrNoData) {
				t.Errorf("expected ErrNoData, got %v", err)
			}
		})
	}
}

func TestGeocode_Timeout(t *testing.T) {
	srv, client := testServer(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	defer srv.Close()
	client.geocodeTimeout = 50 * time.Millisecond

	start := time.Now()
	if _, err := client.Geocode(context.Background(), 1, 2); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}

func TestFetchTract(t *testing.T) {
	srv, client := testServer(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("get") != VariableList() {
			t.Errorf("get = %q", q.Get("get"))
		}
		if q.Get("for") != "tract:000100" {
			t.Errorf("for = %q, want tract:000100", q.Get("for"))
		}
		if q.Get("in") != "state:16 county:001" {
			t.Errorf("in = %q, want %q", q.Get("in"), "state:16 county:001")
		}
		if q.Get("key") != "test-key" {
			t.Errorf("key = %q, want test-key", q.Get("key"))
		}
		header := append(Variables[:], "state", "county", "tract")
		json.NewEncoder(w).Encode([][]any{
			acsRow(header...),
			acsRow("4100", "4100", "61000", "12", "300", "250000", "900", "2000", "50", "1500", "16", "001", "000100"),
		})
	})
	defer srv.Close()

	v, err := client.FetchTract(context.Background(), Geography{State: "16", County: "001", Tract: "000100"})
	if err != nil {
		t.Fatalf("FetchTract: %v", err)
	}
	if v[TotalPopulation] == nil || *v[TotalPopulation] != 4100 {
		t.Errorf("population = %v, want 4100", v[TotalPopulation])
	}
	if got := v.Get("B19019_001E"); got == nil || *got != 61000 {
		t.Errorf("income = %v, want 61000", got)
	}
	if *v[VehicleHouseholds] != 1500 {
		t.Errorf("last value = %v, want 1500 (geography columns must be stripped)", *v[VehicleHouseholds])
	}
}

func TestFetchTract_AnnotationsAreNull(t *testing.T) {
	srv, client := testServer(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]any{
			acsRow(append(Variables[:], "state", "county", "tract")...),
			{"100", nil, "-666666666", "1", "2", "3", "4", "5", "6", "7", "16", "001", "000100"},
		})
	})
	defer srv.Close()

	v, err := client.FetchTract(context.Background(), Geography{State: "16", County: "001", Tract: "000100"})
	if err != nil {
		t.Fatalf("FetchTract: %v", err)
	}
	if v[SexByAgeTotal] != nil {
		t.Errorf("null cell = %v, want nil", *v[SexByAgeTotal])
	}
	if v[MedianHouseholdIncome] != nil {
		t.Errorf("annotation value = %v, want nil", *v[MedianHouseholdIncome])
	}
}

func TestFetchTract_Empty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"header only", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([][]any{acsRow(Variables[:]...)})
		}},
		{"no content", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, client := testServer(tt.handler)
			defer srv.Close()

			_, err := client.FetchTract(context.Background(), Geography{State: "16", County: "001", Tract: "1"})
			if !errors.Is(err, ErrNoData) {
				t.Errorf("expected ErrNoData, got %v", err)
			}
		})
	}
}

func TestFetchCounties(t *testing.T) {
	srv, client := testServer(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("get") != VariableList()+",NAME" {
			t.Errorf("get = %q", q.Get("get"))
		}
		if q.Get("for") != "county:*" || q.Get("in") != "state:*" {
			t.Errorf("for/in = %q/%q", q.Get("for"), q.Get("in"))
		}
		header := append(append([]string{}, Variables[:]...), "NAME", "state", "county")
		json.NewEncoder(w).Encode([][]any{
			acsRow(header...),
			acsRow("500000", "500000", "70000", "1", "2", "3", "4", "5", "6", "7", "Ada County, Idaho", "16", "1"),
			acsRow("1000", "1000", "40000", "1", "2", "3", "4", "5", "6", "7", "Butte County, Idaho", "16", "023"),
		})
	})
	defer srv.Close()

	counties, err := client.FetchCounties(context.Background())
	if err != nil {
		t.Fatalf("FetchCounties: %v", err)
	}
	if len(counties) != 2 {
		t.Fatalf("len = %d, want 2", len(counties))
	}
	c := counties[0]
	if c.State != "16" || c.County != "001" || c.Name != "Ada County, Idaho" {
		t.Errorf("county = %+v", c)
	}
	if c.Key() != "16:001" {
		t.Errorf("key = %q, want 16:001", c.Key())
	}
	if *c.Values[MedianHouseholdIncome] != 70000 {
		t.Errorf("income = %v, want 70000", *c.Values[MedianHouseholdIncome])
	}
}

func TestFetchCounties_Errors(t *testing.T) {
	tests := []struct {
		name  string
		table [][]any
	}{
		{"header only", [][]any{acsRow("NAME", "state", "county")}},
		{"missing column", [][]any{acsRow("NAME", "state"), acsRow("x", "16")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, client := testServer(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.table)
			})
			defer srv.Close()

			if _, err := client.FetchCounties(context.Background()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPadCode(t *testing.T) {
	tests := []struct {
		code  string
		width int
		want  string
	}{
		{"1", 2, "01"},
		{"16", 2, "16"},
		{" 7 ", 3, "007"},
		{"", 3, ""},
		{"100", 6, "000100"},
		{"1234567", 6, "1234567"},
	}
	for _, tt := range tests {
		if got := PadCode(tt.code, tt.width); got != tt.want {
			t.Errorf("PadCode(%q, %d) = %q, want %q", tt.code, tt.width, got, tt.want)
		}
	}
}
