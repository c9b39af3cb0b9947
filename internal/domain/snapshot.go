package domain

import "time"

// Snapshot is one immutable revision of the exported dataset.
// Revisions form a linear history: every snapshot points at the head that
// preceded it, and the chain terminates at a single root.
type Snapshot struct {
	// RevisionID is the content-derived identifier assigned at commit time.
	// It covers both the parent id and the content hash, so ids stay unique
	// even when the dataset content reverts to an earlier state.
	RevisionID string `json:"revision_id"`
	// ParentRevisionID is the immediately preceding revision, empty for the
	// root revision.
	ParentRevisionID string `json:"parent_revision_id,omitempty"`
	// ContentHash is the SHA-256 of the canonical export bytes.
	ContentHash string `json:"content_hash"`
	// SourceRowCount is the number of records included in the export.
	SourceRowCount int `json:"source_row_count"`
	// CommittedAt is when the revision was recorded.
	CommittedAt time.Time `json:"committed_at"`
}
