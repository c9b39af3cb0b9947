// Package snapshot provides the versioned, content-addressed store for
// point-in-time exports of the record table.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/skywatch/apod-pipeline/internal/domain"
)

// exportHeader is the fixed column order of the canonical export.
var exportHeader = []string{
	"date", "title", "primary_url", "explanation",
	"media_type", "high_res_url", "attribution",
}

// Export serializes records into the canonical CSV form used for content
// addressing. Rows must already be ordered by date ascending; the encoding
// is byte-reproducible so identical datasets always hash identically.
//
// Fetch and persistence timestamps are excluded on purpose: they change on
// every re-run even when the upstream data has not, and including them would
// defeat commit deduplication.
func Export(records []*domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("write export header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.DateString(),
			rec.Title,
			rec.PrimaryURL,
			rec.Explanation,
			string(rec.MediaType),
			derefOrEmpty(rec.HighResURL),
			derefOrEmpty(rec.Attribution),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write export row %s: %w", rec.DateString(), err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush export: %w", err)
	}

	return buf.Bytes(), nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
