package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pgEdge/cstore-insights/internal/enrich"
	"github.com/pgEdge/cstore-insights/internal/filter"
	"github.com/pgEdge/cstore-insights/internal/reports"
)

// multi returns every value of a repeatable query parameter, also
// splitting comma-separated values.
func multi(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseParams reads year and month from the query string.
func parseParams(q url.Values) (filter.Params, error) {
	p := filter.DefaultParams()

	if y := strings.TrimSpace(q.Get("year")); y != "" && !strings.EqualFold(y, "all") {
		year, err := strconv.Atoi(y)
		if err != nil {
			return p, fmt.Errorf("%w: year %q is not a number", filter.ErrInvalidParams, y)
		}
		p.Year = &year
	}

	if months := multi(q, "month"); len(months) > 0 {
		p.Months = p.Months[:0]
		for _, m := range months {
			n, err := strconv.Atoi(m)
			if err != nil {
				return p, fmt.Errorf("%w: month %q is not a number", filter.ErrInvalidParams, m)
			}
			p.Months = append(p.Months, n)
		}
	}

	return p, p.Validate()
}

// parseOptions overlays query parameters on the server defaults.
func (s *Server) parseOptions(q url.Values) (reports.Options, error) {
	opts := s.defaults
	if cats := multi(q, "category"); len(cats) > 0 {
		opts.Categories = cats
	}
	if v := q.Get("min_transactions"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: min_transactions %q must be a non-negative integer", filter.ErrInvalidParams, v)
		}
		opts.MinTransactions = n
	}
	if v := q.Get("revenue_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return opts, fmt.Errorf("%w: revenue_threshold %q must be a non-negative number", filter.ErrInvalidParams, v)
		}
		opts.RevenueThreshold = f
	}
	if types := multi(q, "payment_type"); len(types) > 0 {
		opts.PaymentTypes = types
	}
	return opts, nil
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []entry
	for _, rep := range reports.All() {
		out = append(out, entry{Name: rep.Name(), Description: rep.Description()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReport serves one registered report.
func (s *Server) handleReport(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := reports.Get(name)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		q := r.URL.Query()
		params, err := parseParams(q)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		opts, err := s.parseOptions(q)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		u, err := s.session.Unified(params)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		in := reports.Input{
			Dataset: s.session.Dataset(),
			Unified: u,
			Options: opts,
		}
		if s.pipeline != nil {
			in.Enrichment = s.pipeline.Snapshot(r.Context())
		}

		result, err := rep.Build(in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleEnrichmentStatus(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Status())
}

func (s *Server) handleEnrichmentStage(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment is not configured")
		return
	}
	stage, err := enrich.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if err := s.base.Err(); err != nil {
		s.fail(w, r, err)
		return
	}
	// A client that goes away does not abort the batch; server shutdown does.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	res, err := s.pipeline.RunStage(ctx, stage, s.session.Dataset().Stores, force)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"status": s.pipeline.Status(),
	})
}

func (s *Server) handleEnrichmentClear(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment is not configured")
		return
	}
	removed, err := s.pipeline.Clear(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
		"status":  s.pipeline.Status(),
	})
}
