package apod

import (
	"time"

	"github.com/skywatch/apod-pipeline/internal/domain"
)

// Normalize maps a raw API record into the canonical schema.
//
// The media type is coerced into the closed enumeration (unknown values
// become "other"), and the high-res URL is kept only for image records even
// when the raw payload carries a stray value. Normalize is deterministic:
// identical input always yields identical output, which is what lets the
// downstream upsert stay idempotent across retries.
func Normalize(raw *RawRecord, extractedAt time.Time) (*domain.Record, error) {
	if raw == nil {
		return nil, &ValidationError{Field: "record", Reason: "is missing"}
	}
	if raw.Date == "" {
		return nil, &ValidationError{Field: "date", Reason: "is missing"}
	}
	date, err := domain.ParseDate(raw.Date)
	if err != nil {
		return nil, &ValidationError{Field: "date", Reason: "is not a calendar date"}
	}
	if raw.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "is missing"}
	}
	if raw.URL == "" {
		return nil, &ValidationError{Field: "url", Reason: "is missing"}
	}

	mediaType := domain.ParseMediaType(raw.MediaType)

	rec := &domain.Record{
		Date:        date,
		Title:       raw.Title,
		PrimaryURL:  raw.URL,
		Explanation: raw.Explanation,
		MediaType:   mediaType,
		ExtractedAt: extractedAt.UTC(),
	}

	// high_res_url is present iff the payload is an image.
	if mediaType == domain.MediaTypeImage && raw.HDURL != "" {
		hd := raw.HDURL
		rec.HighResURL = &hd
	}
	if raw.Copyright != "" {
		attribution := raw.Copyright
		rec.Attribution = &attribution
	}

	return rec, nil
}
