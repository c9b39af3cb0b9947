package pipeline

import (
	"time"

	"github.com/skywatch/apod-pipeline/internal/domain"
)

// State is a pipeline run state.
type State string

// Run states, entered strictly in order; Failed is terminal and reachable
// from any non-idle state.
const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateNormalizing  State = "normalizing"
	StatePersisting   State = "persisting"
	StateSnapshotting State = "snapshotting"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// StepStatus is the per-step outcome reported to the scheduling host.
type StepStatus string

const (
	// StatusSuccess means the step completed.
	StatusSuccess StepStatus = "success"
	// StatusTransientFailure means the host should retry the whole run.
	StatusTransientFailure StepStatus = "transient-failure"
	// StatusFatalFailure means the run must not be retried without
	// intervention.
	StatusFatalFailure StepStatus = "fatal-failure"
)

// StepResult records the outcome of one pipeline step.
type StepResult struct {
	// Step is the state the pipeline was in while executing.
	Step State
	// Status is the host-facing outcome.
	Status StepStatus
	// Attempts counts executions of the step within this run (at most two:
	// the initial attempt plus one in-place re-entry on a transient error).
	Attempts int
	// Err is the final error for failed steps, nil on success.
	Err error
}

// RunReport is the full outcome of one pipeline run. The host's retry and
// backoff policy consumes it; the controller itself keeps no state between
// runs.
type RunReport struct {
	// RunID uniquely identifies this run in logs and reports.
	RunID string
	// Date is the calendar date the run processed.
	Date time.Time
	// State is the final state of the run.
	State State
	// Steps are the per-step results in execution order.
	Steps []StepResult
	// Record is the normalized record, set once normalization succeeded.
	Record *domain.Record
	// Snapshot is the committed (or deduplicated) revision, set when the
	// run reached Done.
	Snapshot *domain.Snapshot
}

// Outcome reduces the run to the host-facing status: success only when the
// run reached Done, otherwise the status of the failed step.
func (r *RunReport) Outcome() StepStatus {
	if r.State == StateDone {
		return StatusSuccess
	}
	for _, step := range r.Steps {
		if step.Status != StatusSuccess {
			return step.Status
		}
	}
	return StatusFatalFailure
}

// Err returns the error of the failed step, or nil for successful runs.
func (r *RunReport) Err() error {
	for _, step := range r.Steps {
		if step.Err != nil {
			return step.Err
		}
	}
	return nil
}
