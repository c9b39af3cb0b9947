package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/skywatch/apod-pipeline/internal/domain"
)

// recordColumns lists the apod_records columns in select order.
const recordColumns = `date, title, primary_url, explanation, media_type,
	       high_res_url, attribution, extracted_at, stored_at`

// RecordRepository handles database operations for astronomy records.
// Writes are idempotent: the date primary key is the conflict-resolution
// key, so retrying an upsert after a crash leaves the same observable state.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Upsert inserts the record or fully replaces the stored fields for its
// date. stored_at is assigned server-side and never decreases across
// updates. The outcome reports whether a new row was created.
func (r *RecordRepository) Upsert(ctx context.Context, rec *domain.Record) (*domain.UpsertOutcome, error) {
	if err := rec.Validate(); err != nil {
		return nil, &StoreError{Fatal: true, Err: fmt.Errorf("invalid record: %w", err)}
	}

	query := `
		INSERT INTO apod_records (date, title, primary_url, explanation, media_type,
		                          high_res_url, attribution, extracted_at, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (date) DO UPDATE SET
			title        = EXCLUDED.title,
			primary_url  = EXCLUDED.primary_url,
			explanation  = EXCLUDED.explanation,
			media_type   = EXCLUDED.media_type,
			high_res_url = EXCLUDED.high_res_url,
			attribution  = EXCLUDED.attribution,
			extracted_at = EXCLUDED.extracted_at,
			stored_at    = GREATEST(apod_records.stored_at, NOW())
		RETURNING (xmax = 0) AS inserted, stored_at
	`

	var outcome domain.UpsertOutcome
	err := r.db.QueryRowxContext(
		ctx,
		query,
		rec.Date,
		rec.Title,
		rec.PrimaryURL,
		rec.Explanation,
		rec.MediaType,
		rec.HighResURL,
		rec.Attribution,
		rec.ExtractedAt,
	).Scan(&outcome.Inserted, &outcome.StoredAt)

	if err != nil {
		return nil, classifyStoreError("upsert record", err)
	}

	rec.StoredAt = outcome.StoredAt
	return &outcome, nil
}

// GetByDate retrieves the record for a calendar date.
// It returns ErrRecordNotFound when no record exists for the date.
func (r *RecordRepository) GetByDate(ctx context.Context, date time.Time) (*domain.Record, error) {
	var rec domain.Record
	query := `
		SELECT ` + recordColumns + `
		FROM apod_records
		WHERE date = $1
	`

	err := r.db.GetContext(ctx, &rec, query, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("date %s: %w", date.Format(domain.DateFormat), ErrRecordNotFound)
		}
		return nil, classifyStoreError("get record", err)
	}

	return &rec, nil
}

// ListAll retrieves every stored record ordered by date ascending.
// The ordering is what makes the snapshot export reproducible.
func (r *RecordRepository) ListAll(ctx context.Context) ([]*domain.Record, error) {
	var records []*domain.Record
	query := `
		SELECT ` + recordColumns + `
		FROM apod_records
		ORDER BY date ASC
	`

	err := r.db.SelectContext(ctx, &records, query)
	if err != nil {
		return nil, classifyStoreError("list records", err)
	}

	if records == nil {
		records = []*domain.Record{}
	}

	return records, nil
}

// ListStoredSince retrieves records persisted at or after the given time,
// ordered by stored_at ascending. Served by the stored_at index.
func (r *RecordRepository) ListStoredSince(ctx context.Context, since time.Time) ([]*domain.Record, error) {
	var records []*domain.Record
	query := `
		SELECT ` + recordColumns + `
		FROM apod_records
		WHERE stored_at >= $1
		ORDER BY stored_at ASC
	`

	err := r.db.SelectContext(ctx, &records, query, since)
	if err != nil {
		return nil, classifyStoreError("list records since", err)
	}

	if records == nil {
		records = []*domain.Record{}
	}

	return records, nil
}

// Count returns the total number of stored records.
func (r *RecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM apod_records`

	err := r.db.GetContext(ctx, &count, query)
	if err != nil {
		return 0, classifyStoreError("count records", err)
	}

	return count, nil
}
