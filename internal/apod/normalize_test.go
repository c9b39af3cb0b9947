package apod_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/apod-pipeline/internal/apod"
	"github.com/skywatch/apod-pipeline/internal/domain"
)

func imageRaw() *apod.RawRecord {
	return &apod.RawRecord{
		Date:        "2024-01-01",
		Title:       "The Snows of Mars",
		URL:         "https://example.com/mars.jpg",
		Explanation: "Frost on the northern plains.",
		MediaType:   "image",
		HDURL:       "https://example.com/mars_hd.jpg",
		Copyright:   "J. Doe",
	}
}

func TestNormalize_ImageKeepsHighResURL(t *testing.T) {
	extractedAt := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	rec, err := apod.Normalize(imageRaw(), extractedAt)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", rec.DateString())
	assert.Equal(t, domain.MediaTypeImage, rec.MediaType)
	assert.Equal(t, "https://example.com/mars.jpg", rec.PrimaryURL)
	require.NotNil(t, rec.HighResURL)
	assert.Equal(t, "https://example.com/mars_hd.jpg", *rec.HighResURL)
	require.NotNil(t, rec.Attribution)
	assert.Equal(t, "J. Doe", *rec.Attribution)
	assert.Equal(t, extractedAt, rec.ExtractedAt)
	assert.NoError(t, rec.Validate())
}

func TestNormalize_VideoDropsStrayHighResURL(t *testing.T) {
	raw := imageRaw()
	raw.Date = "2024-01-02"
	raw.MediaType = "video"
	raw.URL = "https://example.com/comet.mp4"
	// Stray value that the upstream payload should not have carried.
	raw.HDURL = "https://example.com/stray.jpg"

	rec, err := apod.Normalize(raw, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.MediaTypeVideo, rec.MediaType)
	assert.Nil(t, rec.HighResURL)
	assert.NoError(t, rec.Validate())
}

func TestNormalize_UnknownMediaTypeBecomesOther(t *testing.T) {
	raw := imageRaw()
	raw.MediaType = "hologram"
	raw.HDURL = ""

	rec, err := apod.Normalize(raw, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.MediaTypeOther, rec.MediaType)
	assert.Nil(t, rec.HighResURL)
}

func TestNormalize_OtherDropsHighResURL(t *testing.T) {
	raw := imageRaw()
	raw.MediaType = "hologram"

	rec, err := apod.Normalize(raw, time.Now())
	require.NoError(t, err)

	assert.Nil(t, rec.HighResURL)
	assert.NoError(t, rec.Validate())
}

func TestNormalize_MissingCopyright(t *testing.T) {
	raw := imageRaw()
	raw.Copyright = ""

	rec, err := apod.Normalize(raw, time.Now())
	require.NoError(t, err)

	assert.Nil(t, rec.Attribution)
}

func TestNormalize_Deterministic(t *testing.T) {
	extractedAt := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	first, err := apod.Normalize(imageRaw(), extractedAt)
	require.NoError(t, err)
	second, err := apod.Normalize(imageRaw(), extractedAt)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalize_RejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*apod.RawRecord)
	}{
		{"missing date", func(r *apod.RawRecord) { r.Date = "" }},
		{"garbage date", func(r *apod.RawRecord) { r.Date = "yesterday" }},
		{"missing title", func(r *apod.RawRecord) { r.Title = "" }},
		{"missing url", func(r *apod.RawRecord) { r.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := imageRaw()
			tt.mutate(raw)

			_, err := apod.Normalize(raw, time.Now())

			var validationErr *apod.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestNormalize_NilRecord(t *testing.T) {
	_, err := apod.Normalize(nil, time.Now())

	var validationErr *apod.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
