// Package pipeline orchestrates one fetch-normalize-persist-snapshot run.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/skywatch/apod-pipeline/internal/apod"
	"github.com/skywatch/apod-pipeline/internal/database"
	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/logger"
	"github.com/skywatch/apod-pipeline/internal/snapshot"
)

// Fetcher retrieves one date's raw record from the metadata endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, date time.Time) (*apod.RawRecord, error)
}

// RecordStore persists normalized records keyed by date.
type RecordStore interface {
	Upsert(ctx context.Context, rec *domain.Record) (*domain.UpsertOutcome, error)
	ListAll(ctx context.Context) ([]*domain.Record, error)
}

// Committer records a point-in-time export as a new revision.
type Committer interface {
	Commit(ctx context.Context, records []*domain.Record) (*domain.Snapshot, error)
}

// Controller drives a single run through its states. Every step is
// idempotent, so after any transient failure the whole run can be
// re-executed from the top; the controller holds no state across runs.
type Controller struct {
	fetcher   Fetcher
	store     RecordStore
	snapshots Committer
	log       logger.Logger
	now       func() time.Time
}

// NewController creates a pipeline controller.
func NewController(fetcher Fetcher, store RecordStore, snapshots Committer, log logger.Logger) *Controller {
	return &Controller{
		fetcher:   fetcher,
		store:     store,
		snapshots: snapshots,
		log:       log,
		now:       time.Now,
	}
}

// Run executes one pipeline run for the given calendar date and reports the
// outcome. A failed run leaves no partial state for the date: persistence is
// an idempotent upsert and the snapshot commit is atomic.
func (c *Controller) Run(ctx context.Context, date time.Time) *RunReport {
	started := c.now()
	report := &RunReport{
		RunID: uuid.NewString(),
		Date:  date,
		State: StateIdle,
	}

	log := c.log.With(
		logger.String("run_id", report.RunID),
		logger.String("date", date.Format(domain.DateFormat)),
	)
	log.Info("Starting pipeline run")

	var raw *apod.RawRecord
	var extractedAt time.Time
	if !c.step(ctx, report, log, StateFetching, func(ctx context.Context) error {
		fetched, err := c.fetcher.Fetch(ctx, date)
		if err != nil {
			return err
		}
		raw = fetched
		extractedAt = c.now()
		return nil
	}) {
		return report
	}

	var rec *domain.Record
	if !c.step(ctx, report, log, StateNormalizing, func(ctx context.Context) error {
		normalized, err := apod.Normalize(raw, extractedAt)
		if err != nil {
			return err
		}
		rec = normalized
		return nil
	}) {
		return report
	}
	report.Record = rec

	if !c.step(ctx, report, log, StatePersisting, func(ctx context.Context) error {
		outcome, err := c.store.Upsert(ctx, rec)
		if err != nil {
			return err
		}
		log.Info("Record persisted",
			logger.Bool("inserted", outcome.Inserted),
			logger.Time("stored_at", outcome.StoredAt),
		)
		return nil
	}) {
		return report
	}

	if !c.step(ctx, report, log, StateSnapshotting, func(ctx context.Context) error {
		records, err := c.store.ListAll(ctx)
		if err != nil {
			return err
		}
		snap, err := c.snapshots.Commit(ctx, records)
		if err != nil {
			return err
		}
		report.Snapshot = snap
		return nil
	}) {
		return report
	}

	report.State = StateDone
	log.Info("Pipeline run complete",
		logger.String("revision_id", report.Snapshot.RevisionID),
		logger.Int("source_row_count", report.Snapshot.SourceRowCount),
		logger.Duration("duration", c.now().Sub(started)),
	)
	return report
}

// step executes one state's work. On a transient error it re-enters the
// same state exactly once; backoff and further attempts belong to the
// scheduling host, which sees the step status in the report. It returns
// false when the run moved to Failed.
func (c *Controller) step(
	ctx context.Context,
	report *RunReport,
	log logger.Logger,
	state State,
	fn func(context.Context) error,
) bool {
	report.State = state

	attempts := 0
	var err error
	for {
		attempts++
		err = fn(ctx)
		if err == nil {
			report.Steps = append(report.Steps, StepResult{
				Step:     state,
				Status:   StatusSuccess,
				Attempts: attempts,
			})
			return true
		}
		if attempts == 1 && classify(err) == StatusTransientFailure {
			log.Warn("Step failed, re-entering once",
				logger.String("state", string(state)),
				logger.Error(err),
			)
			continue
		}
		break
	}

	status := classify(err)
	report.Steps = append(report.Steps, StepResult{
		Step:     state,
		Status:   status,
		Attempts: attempts,
		Err:      err,
	})
	report.State = StateFailed

	log.Error("Pipeline run failed",
		logger.String("state", string(state)),
		logger.String("status", string(status)),
		logger.Int("attempts", attempts),
		logger.Error(err),
	)
	return false
}

// classify maps a step error onto the host-facing retry taxonomy.
func classify(err error) StepStatus {
	var fetchErr *apod.FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Transient() {
			return StatusTransientFailure
		}
		return StatusFatalFailure
	}

	var validationErr *apod.ValidationError
	if errors.As(err, &validationErr) {
		return StatusFatalFailure
	}

	var storeErr *database.StoreError
	if errors.As(err, &storeErr) {
		if storeErr.Fatal {
			return StatusFatalFailure
		}
		return StatusTransientFailure
	}

	var commitErr *snapshot.CommitError
	if errors.As(err, &commitErr) {
		if commitErr.Transient {
			return StatusTransientFailure
		}
		return StatusFatalFailure
	}

	// A timed-out step is a transient failure of that step.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusTransientFailure
	}

	return StatusFatalFailure
}
