package model

import "github.com/rotisserie/eris"

// Default cursor values used when no progress has been persisted. Row 0 is
// the header row.
const (
	DefaultRowStart         = 1
	DefaultMaxCountPerCycle = 5
)

// Progress is the resumable cursor over the dataset.
type Progress struct {
	RowStart         int `json:"row_start"`
	MaxCountPerCycle int `json:"max_count_per_cycle"`
}

// DefaultProgress returns the cursor for a fresh dataset.
func DefaultProgress() Progress {
	return Progress{RowStart: DefaultRowStart, MaxCountPerCycle: DefaultMaxCountPerCycle}
}

// Validate checks the cursor invariants.
func (p Progress) Validate() error {
	if p.RowStart < 0 {
		return eris.Errorf("progress: row_start must be >= 0, got %d", p.RowStart)
	}
	if p.MaxCountPerCycle <= 0 {
		return eris.Errorf("progress: max_count_per_cycle must be > 0, got %d", p.MaxCountPerCycle)
	}
	return nil
}

// SliceEnd returns the exclusive end row of the next slice over a dataset of
// length n.
func (p Progress) SliceEnd(n int) int {
	return min(n, p.RowStart+p.MaxCountPerCycle)
}

// Done reports whether every row of a dataset of length n was consumed.
func (p Progress) Done(n int) bool {
	return p.RowStart >= n
}
