// Package monitoring summarizes recent enrichment runs from the ledger.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/internal/store"
)

// scanLimit caps how many runs one snapshot inspects.
const scanLimit = 1000

// Snapshot holds a point-in-time view of enrichment health.
type Snapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsRecovered int     `json:"runs_recovered"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Cycle and item metrics across those runs.
	Cycles          int     `json:"cycles"`
	CyclesUnflushed int     `json:"cycles_unflushed"`
	Items           int     `json:"items"`
	Found           int     `json:"found"`
	NotFound        int     `json:"not_found"`
	TimedOut        int     `json:"timed_out"`
	Errored         int     `json:"errored"`
	FoundRate       float64 `json:"found_rate"`
	RowsWritten     int     `json:"rows_written"`
	AvgItemMillis   int64   `json:"avg_item_ms"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Ledger is the read side of the store the collector needs.
type Ledger interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	ListCycles(ctx context.Context, runID string) ([]model.CycleRecord, error)
}

// Collector gathers metrics from the ledger.
type Collector struct {
	ledger Ledger
	now    func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(l Ledger) *Collector {
	return &Collector{ledger: l, now: time.Now}
}

// Collect gathers a snapshot over runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Runs come back newest first.
	runs, err := c.ledger.ListRuns(ctx, store.RunFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var itemTime time.Duration
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			break
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusRecovered:
			snap.RunsRecovered++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		cycles, err := c.ledger.ListCycles(ctx, r.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list cycles of run %s", r.ID)
		}
		for _, cy := range cycles {
			snap.Cycles++
			if !cy.Flushed {
				snap.CyclesUnflushed++
			}
			snap.RowsWritten += cy.RowsWritten
			for _, it := range cy.Items {
				snap.Items++
				itemTime += it.Duration
			}
			snap.Found += cy.Count(model.ItemFound)
			snap.NotFound += cy.Count(model.ItemNotFound)
			snap.TimedOut += cy.Count(model.ItemTimeout)
			snap.Errored += cy.Count(model.ItemError)
		}
	}

	if finished := snap.RunsComplete + snap.RunsRecovered + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Items > 0 {
		snap.FoundRate = float64(snap.Found) / float64(snap.Items)
		snap.AvgItemMillis = (itemTime / time.Duration(snap.Items)).Milliseconds()
	}
	return snap, nil
}
