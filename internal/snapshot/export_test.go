package snapshot_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/snapshot"
)

func exportRecord(date, title string) *domain.Record {
	d, _ := domain.ParseDate(date)
	return &domain.Record{
		Date:        d,
		Title:       title,
		PrimaryURL:  "https://example.com/" + date + ".jpg",
		Explanation: "An explanation.",
		MediaType:   domain.MediaTypeImage,
		ExtractedAt: time.Now(),
		StoredAt:    time.Now(),
	}
}

func TestExport_EmptyDataset(t *testing.T) {
	content, err := snapshot.Export(nil)
	require.NoError(t, err)

	assert.Equal(t, "date,title,primary_url,explanation,media_type,high_res_url,attribution\n", string(content))
}

func TestExport_RendersAllFields(t *testing.T) {
	hd := "https://example.com/hd.jpg"
	attribution := "J. Doe"
	rec := exportRecord("2024-01-01", "Galaxy")
	rec.HighResURL = &hd
	rec.Attribution = &attribution

	content, err := snapshot.Export([]*domain.Record{rec})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-01-01,Galaxy,https://example.com/2024-01-01.jpg,An explanation.,image,https://example.com/hd.jpg,J. Doe", lines[1])
}

func TestExport_NilOptionalsRenderEmpty(t *testing.T) {
	rec := exportRecord("2024-01-01", "Galaxy")

	content, err := snapshot.Export([]*domain.Record{rec})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], "image,,"), "optional columns should be empty: %q", lines[1])
}

func TestExport_QuotesEmbeddedSeparators(t *testing.T) {
	rec := exportRecord("2024-01-01", `Comet, "Great" one`)

	content, err := snapshot.Export([]*domain.Record{rec})
	require.NoError(t, err)

	assert.Contains(t, string(content), `"Comet, ""Great"" one"`)
}

func TestExport_TimestampsDoNotAffectOutput(t *testing.T) {
	first := exportRecord("2024-01-01", "Galaxy")
	second := exportRecord("2024-01-01", "Galaxy")
	second.ExtractedAt = second.ExtractedAt.Add(48 * time.Hour)
	second.StoredAt = second.StoredAt.Add(48 * time.Hour)

	a, err := snapshot.Export([]*domain.Record{first})
	require.NoError(t, err)
	b, err := snapshot.Export([]*domain.Record{second})
	require.NoError(t, err)

	assert.Equal(t, a, b, "re-fetch timestamps must not change the canonical export")
}

func TestExport_Deterministic(t *testing.T) {
	records := []*domain.Record{
		exportRecord("2024-01-01", "First"),
		exportRecord("2024-01-02", "Second"),
	}

	a, err := snapshot.Export(records)
	require.NoError(t, err)
	b, err := snapshot.Export(records)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
