// Package report aggregates per-item outcomes into the final run report and
// writes it to sinks.
package report

import (
	"sort"
	"sync"
	"time"
)

// StateChange is one timestamped lifecycle transition of an item
type StateChange struct {
	State  string    `json:"state"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// ClipReport describes one render instruction outcome
type ClipReport struct {
	Platform  string        `json:"platform"`
	Rank      int           `json:"rank"`
	Start     float64       `json:"start"`
	End       float64       `json:"end"`
	Score     float64       `json:"score"`
	Truncated bool          `json:"truncated"`
	Output    string        `json:"output"`
	Success   bool          `json:"success"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Error     string        `json:"error,omitempty"`
}

// GapReport is a candidate skipped for one platform
type GapReport struct {
	Rank     int    `json:"rank"`
	Platform string `json:"platform"`
	Reason   string `json:"reason"`
}

// ItemReport is the terminal record of one source item
type ItemReport struct {
	Index         int           `json:"index"`
	ID            string        `json:"id"`
	Source        string        `json:"source"`
	State         string        `json:"state"`
	Duration      float64       `json:"duration"`
	Candidates    int           `json:"candidates"`
	FetchAttempts int           `json:"fetch_attempts"`
	Clips         []ClipReport  `json:"clips"`
	Gaps          []GapReport   `json:"gaps"`
	Error         string        `json:"error,omitempty"`
	History       []StateChange `json:"history"`
}

// Totals summarizes a run
type Totals struct {
	Items       int `json:"items"`
	Done        int `json:"done"`
	Failed      int `json:"failed"`
	Candidates  int `json:"candidates"`
	Clips       int `json:"clips"`
	FailedClips int `json:"failed_clips"`
	Gaps        int `json:"gaps"`
}

// Report is the aggregated outcome of one run
type Report struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Items      []ItemReport   `json:"items"`
	Totals     Totals         `json:"totals"`
	ByPlatform map[string]int `json:"clips_by_platform"`
}

// SuccessRate is the share of items that reached Done
func (r *Report) SuccessRate() float64 {
	if r.Totals.Items == 0 {
		return 0
	}
	return float64(r.Totals.Done) / float64(r.Totals.Items)
}

// FirstErrors returns up to n item or clip errors in item order
func (r *Report) FirstErrors(n int) []string {
	var errs []string
	for _, item := range r.Items {
		if item.Error != "" {
			errs = append(errs, item.Source+": "+item.Error)
		}
		for _, c := range item.Clips {
			if c.Error != "" {
				errs = append(errs, item.Source+" ["+c.Platform+"]: "+c.Error)
			}
		}
		if len(errs) >= n {
			return errs[:n]
		}
	}
	return errs
}

// Aggregator collects item reports from concurrent workers
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	startedAt time.Time
	items     []ItemReport
}

func NewAggregator(runID string, startedAt time.Time) *Aggregator {
	return &Aggregator{runID: runID, startedAt: startedAt}
}

// Add records one terminal item
func (a *Aggregator) Add(item ItemReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, item)
}

// Report builds the final report sorted by submission index
func (a *Aggregator) Report(finishedAt time.Time) *Report {
	a.mu.Lock()
	items := make([]ItemReport, len(a.items))
	copy(items, a.items)
	a.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })

	r := &Report{
		RunID:      a.runID,
		StartedAt:  a.startedAt,
		FinishedAt: finishedAt,
		Items:      items,
		ByPlatform: make(map[string]int),
	}

	for _, item := range items {
		r.Totals.Items++
		switch item.State {
		case "done":
			r.Totals.Done++
		case "failed":
			r.Totals.Failed++
		}
		r.Totals.Candidates += item.Candidates
		r.Totals.Gaps += len(item.Gaps)
		for _, c := range item.Clips {
			if c.Success {
				r.Totals.Clips++
				r.ByPlatform[c.Platform]++
			} else {
				r.Totals.FailedClips++
			}
		}
	}

	return r
}
