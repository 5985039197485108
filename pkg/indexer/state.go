package indexer

import (
	"sync/atomic"
	"time"
)

// Result summarizes a bulk run.
type Result struct {
	RunID      string    `json:"run_id"`
	Force      bool      `json:"force"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Processed counts images written to the index.
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	// Error is set when the run aborted before the listing was exhausted.
	Error string `json:"error,omitempty"`
}

// Status is a snapshot of the indexer's job state.
type Status struct {
	Running bool `json:"running"`

	// Current holds live counters of the active run.
	Current *Result `json:"current,omitempty"`

	// Last is the result of the most recently finished run.
	Last *Result `json:"last,omitempty"`
}

// run is the mutable state of one bulk run. Counters are updated by the
// workers and read by Status without locking.
type run struct {
	id      string
	force   bool
	started time.Time

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func (r *run) snapshot() *Result {
	return &Result{
		RunID:     r.id,
		Force:     r.force,
		StartedAt: r.started,
		Processed: int(r.processed.Load()),
		Skipped:   int(r.skipped.Load()),
		Failed:    int(r.failed.Load()),
	}
}
