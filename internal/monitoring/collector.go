// Package monitoring checks the ledger for signs that bulletin updates have
// stopped landing and posts alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/surveillance-cli/internal/model"
	"github.com/sells-group/surveillance-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of update health.
type MetricsSnapshot struct {
	// Run metrics over the last LookbackRuns runs.
	Runs         int     `json:"runs"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	LastRunStatus store.RunStatus `json:"last_run_status,omitempty"`
	LastRunError  string          `json:"last_run_error,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`

	// Document metrics across the whole ledger.
	DocumentsDone   int `json:"documents_done"`
	DocumentsFailed int `json:"documents_failed"`

	// LatestReference is the newest reference date of a merged bulletin.
	LatestReference string `json:"latest_reference,omitempty"`

	LookbackRuns int       `json:"lookback_runs"`
	CollectedAt  time.Time `json:"collected_at"`
}

// Ledger is the subset of store.Store the collector reads.
type Ledger interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]store.Document, error)
}

// Collector gathers metrics from the ledger.
type Collector struct {
	ledger Ledger
	now    func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(ledger Ledger) *Collector {
	return &Collector{ledger: ledger, now: time.Now}
}

// Collect gathers a snapshot over the most recent lookbackRuns runs.
func (c *Collector) Collect(ctx context.Context, lookbackRuns int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackRuns: lookbackRuns,
		CollectedAt:  c.now().UTC(),
	}

	runs, err := c.ledger.ListRuns(ctx, lookbackRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	snap.Runs = len(runs)
	for _, r := range runs {
		switch r.Status {
		case store.RunComplete:
			snap.RunsComplete++
		case store.RunFailed:
			snap.RunsFailed++
		case store.RunRunning:
			snap.RunsRunning++
		}
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if len(runs) > 0 {
		last := runs[0]
		started := last.StartedAt
		snap.LastRunStatus = last.Status
		snap.LastRunError = last.Error
		snap.LastRunAt = &started
	}

	done, err := c.ledger.ListDocuments(ctx, store.DocumentFilter{Status: store.DocumentDone})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list done documents")
	}
	snap.DocumentsDone = len(done)
	var latest time.Time
	for _, d := range done {
		t, ok := model.ParseDate(d.ReferenceDate)
		if ok && t.After(latest) {
			latest = t
			snap.LatestReference = d.ReferenceDate
		}
	}

	failed, err := c.ledger.ListDocuments(ctx, store.DocumentFilter{Status: store.DocumentFailed})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failed documents")
	}
	snap.DocumentsFailed = len(failed)

	return snap, nil
}
