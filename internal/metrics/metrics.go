// Package metrics keeps rolling per-category accuracy and latency windows
// for health reporting. Advisories are surfaced as WARNING events by the
// pipeline; they never drive the fallback manager directly, keeping the two
// control paths decoupled.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/tiroq/tablewatch/internal/detect"
)

// windowSize is the number of records retained per category.
const windowSize = 1000

// advisoryMinSamples avoids advisories from a handful of cold-start records.
const advisoryMinSamples = 20

const (
	advisorySuccessRate = 0.90
	advisoryConfidence  = 0.70
)

type record struct {
	success    bool
	confidence float64
	duration   time.Duration
}

type window struct {
	records []record
	next    int
	full    bool
}

func (w *window) add(r record) {
	if len(w.records) < windowSize {
		w.records = append(w.records, r)
		return
	}
	w.records[w.next] = r
	w.next = (w.next + 1) % windowSize
	w.full = true
}

// Stats summarizes one category's rolling window.
type Stats struct {
	Count          int           `json:"count"`
	SuccessRate    float64       `json:"success_rate"`
	MeanConfidence float64       `json:"mean_confidence"`
	P50            time.Duration `json:"p50"`
	P95            time.Duration `json:"p95"`
	P99            time.Duration `json:"p99"`
}

// Tracker records detection outcomes per category.
type Tracker struct {
	mu      sync.Mutex
	windows map[detect.Category]*window
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{windows: make(map[detect.Category]*window)}
}

// Record adds one outcome. Confidence of failed detections is recorded as
// given (usually zero) and still counts toward the mean.
func (t *Tracker) Record(category detect.Category, success bool, confidence float64, duration time.Duration) {
	t.mu.Lock()
	w, ok := t.windows[category]
	if !ok {
		w = &window{}
		t.windows[category] = w
	}
	w.add(record{success: success, confidence: confidence, duration: duration})
	t.mu.Unlock()
}

// Snapshot computes the current stats for one category.
func (t *Tracker) Snapshot(category detect.Category) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[category]
	if !ok || len(w.records) == 0 {
		return Stats{}
	}

	var successes int
	var confSum float64
	durations := make([]time.Duration, 0, len(w.records))
	for _, r := range w.records {
		if r.success {
			successes++
		}
		confSum += r.confidence
		durations = append(durations, r.duration)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	n := len(w.records)
	return Stats{
		Count:          n,
		SuccessRate:    float64(successes) / float64(n),
		MeanConfidence: confSum / float64(n),
		P50:            percentile(durations, 0.50),
		P95:            percentile(durations, 0.95),
		P99:            percentile(durations, 0.99),
	}
}

// SnapshotAll returns stats for every tracked category.
func (t *Tracker) SnapshotAll() map[detect.Category]Stats {
	t.mu.Lock()
	categories := make([]detect.Category, 0, len(t.windows))
	for c := range t.windows {
		categories = append(categories, c)
	}
	t.mu.Unlock()

	out := make(map[detect.Category]Stats, len(categories))
	for _, c := range categories {
		out[c] = t.Snapshot(c)
	}
	return out
}

// Unhealthy reports whether a category's window warrants an advisory, with a
// human-readable reason. Windows below the sample floor are never unhealthy.
func (t *Tracker) Unhealthy(category detect.Category) (bool, string) {
	s := t.Snapshot(category)
	if s.Count < advisoryMinSamples {
		return false, ""
	}
	if s.SuccessRate < advisorySuccessRate {
		return true, "success rate below 90%"
	}
	if s.MeanConfidence < advisoryConfidence {
		return true, "mean confidence below 70%"
	}
	return false, ""
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
