// Package domain provides the domain models shared across the pipeline.
package domain

import (
	"fmt"
	"time"
)

// DateFormat is the calendar date layout used by the metadata API and the
// record key.
const DateFormat = "2006-01-02"

// MediaType classifies the media payload of a record.
type MediaType string

const (
	// MediaTypeImage represents a still image payload.
	MediaTypeImage MediaType = "image"
	// MediaTypeVideo represents a video payload.
	MediaTypeVideo MediaType = "video"
	// MediaTypeOther represents any payload the upstream schema may add later.
	MediaTypeOther MediaType = "other"
)

// ParseMediaType coerces an upstream media type value into the closed
// enumeration. Unknown values map to MediaTypeOther so upstream schema drift
// never fails the pipeline.
func ParseMediaType(s string) MediaType {
	switch MediaType(s) {
	case MediaTypeImage:
		return MediaTypeImage
	case MediaTypeVideo:
		return MediaTypeVideo
	default:
		return MediaTypeOther
	}
}

// Record is one astronomy metadata record, exactly one per calendar date.
type Record struct {
	// Date is the calendar date the record describes. Unique key.
	Date time.Time `db:"date" json:"date"`
	// Title is the short text label of the entry.
	Title string `db:"title" json:"title"`
	// PrimaryURL locates the media payload (image or video).
	PrimaryURL string `db:"primary_url" json:"primary_url"`
	// Explanation is the long-form text description.
	Explanation string `db:"explanation" json:"explanation"`
	// MediaType is the coerced payload classification.
	MediaType MediaType `db:"media_type" json:"media_type"`
	// HighResURL is set only when MediaType is image.
	HighResURL *string `db:"high_res_url" json:"high_res_url,omitempty"`
	// Attribution is the optional copyright or credit text.
	Attribution *string `db:"attribution" json:"attribution,omitempty"`
	// ExtractedAt is when the record was successfully fetched upstream.
	ExtractedAt time.Time `db:"extracted_at" json:"extracted_at"`
	// StoredAt is assigned by the store and never decreases across updates.
	StoredAt time.Time `db:"stored_at" json:"stored_at"`
}

// DateString returns the record's date in the canonical YYYY-MM-DD form.
func (r *Record) DateString() string {
	return r.Date.Format(DateFormat)
}

// Validate checks the record's internal invariants.
func (r *Record) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("record has no date")
	}
	if r.PrimaryURL == "" {
		return fmt.Errorf("record %s has no primary URL", r.DateString())
	}
	if r.HighResURL != nil && r.MediaType != MediaTypeImage {
		return fmt.Errorf("record %s: high-res URL set but media type is %s",
			r.DateString(), r.MediaType)
	}
	return nil
}

// ParseDate parses a calendar date in the canonical YYYY-MM-DD form into a
// UTC midnight time value.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// UpsertOutcome reports what an upsert did to the store.
type UpsertOutcome struct {
	// Inserted is true when a new row was created, false when an existing
	// row for the date was overwritten.
	Inserted bool
	// StoredAt is the persistence timestamp assigned by the store.
	StoredAt time.Time
}
