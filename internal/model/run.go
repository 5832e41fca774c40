package model

import "time"

// RunStatus represents the state of one invocation of the engine.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusRecovered RunStatus = "recovered" // stopped early, progress persisted
	RunStatusFailed    RunStatus = "failed"
)

// ItemStatus describes how a single lookup ended.
type ItemStatus string

const (
	ItemFound    ItemStatus = "found"
	ItemNotFound ItemStatus = "not_found"
	ItemTimeout  ItemStatus = "timeout"
	ItemError    ItemStatus = "error"
)

// Run is one invocation of the engine as recorded in the ledger.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	RowStart   int        `json:"row_start"`
	RowEnd     int        `json:"row_end"`
	Cycles     int        `json:"cycles"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ItemOutcome records the lookup of one name within a cycle.
type ItemOutcome struct {
	Name     string           `json:"name"`
	Status   ItemStatus       `json:"status"`
	Result   EnrichmentResult `json:"result"`
	Duration time.Duration    `json:"duration"`
}

// CycleRecord is the ledger entry for one processed slice.
type CycleRecord struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	RowStart    int           `json:"row_start"`
	RowEnd      int           `json:"row_end"`
	Items       []ItemOutcome `json:"items"`
	RowsWritten int           `json:"rows_written"`
	Flushed     bool          `json:"flushed"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Count returns how many items ended with the given status.
func (c CycleRecord) Count(status ItemStatus) int {
	n := 0
	for _, it := range c.Items {
		if it.Status == status {
			n++
		}
	}
	return n
}
