package enrich

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// StageResult summarizes one stage run.
type StageResult struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"`
	Skipped   bool   `json:"skipped"`
	Requested int    `json:"requested"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Memoized  int    `json:"memoized"`
	Rows      int    `json:"rows"`

	DurationMS float64 `json:"duration_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	P99MS      float64 `json:"p99_ms"`
}

// latencyRecorder tracks API call latencies in microseconds.
type latencyRecorder struct {
	mu sync.Mutex
	h  *hdrhistogram.Histogram
}

func newLatencyRecorder() *latencyRecorder {
	// 1us to 5 minutes, 3 significant figures.
	return &latencyRecorder{h: hdrhistogram.New(1, int64(5*time.Minute/time.Microsecond), 3)}
}

func (r *latencyRecorder) record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	r.mu.Lock()
	r.h.RecordValue(us)
	r.mu.Unlock()
}

func (r *latencyRecorder) quantileMS(q float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h.TotalCount() == 0 {
		return 0
	}
	return float64(r.h.ValueAtQuantile(q)) / 1000
}

// fill copies duration and percentiles into res.
func (r *latencyRecorder) fill(res *StageResult, elapsed time.Duration) {
	res.DurationMS = float64(elapsed.Microseconds()) / 1000
	res.P50MS = r.quantileMS(50)
	res.P95MS = r.quantileMS(95)
	res.P99MS = r.quantileMS(99)
}
