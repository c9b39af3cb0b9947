package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/logger"
)

var (
	revisionsBucket = []byte("revisions")
	objectsBucket   = []byte("objects")
	refsBucket      = []byte("refs")

	headKey = []byte("HEAD")
)

// ErrNoRevisions is returned when the store has no committed revision yet.
var ErrNoRevisions = errors.New("no revisions")

// Pusher replicates a committed revision to an off-host remote.
// Push must be idempotent: re-pushing an already pushed revision is a no-op
// overwrite.
type Pusher interface {
	Push(ctx context.Context, snap *domain.Snapshot, content []byte) error
}

// Config configures the snapshot repository.
type Config struct {
	// Path is the revision database file.
	Path string
	// WorkDir receives the latest export for human consumption.
	WorkDir string
	// ExportFile is the export file name inside WorkDir.
	ExportFile string
}

// Repository is a versioned, content-addressed store over the record export.
// Revision metadata, export blobs and the head ref live in a single bbolt
// file; commits run inside one write transaction, which serializes them and
// keeps the history linear (parentage is always assigned from the head read
// in the same transaction).
type Repository struct {
	db         *bolt.DB
	workDir    string
	exportFile string
	remote     Pusher
	log        logger.Logger
	now        func() time.Time
}

// Open opens (creating if necessary) the snapshot repository at cfg.Path.
// remote may be nil when no off-host replication is configured.
func Open(cfg Config, remote Pusher, log logger.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{revisionsBucket, objectsBucket, refsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot buckets: %w", err)
	}

	return &Repository{
		db:         db,
		workDir:    cfg.WorkDir,
		exportFile: cfg.ExportFile,
		remote:     remote,
		log:        log,
		now:        time.Now,
	}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Commit records a point-in-time export of the given records as a new
// revision with the current head as parent. If the export is byte-identical
// to the head's content the commit is a no-op that returns the existing
// head. Either a revision with a valid id is returned or nothing was
// created.
func (r *Repository) Commit(ctx context.Context, records []*domain.Record) (*domain.Snapshot, error) {
	content, err := Export(records)
	if err != nil {
		return nil, &CommitError{Err: err}
	}

	sum := sha256.Sum256(content)
	contentHash := hex.EncodeToString(sum[:])

	var snap *domain.Snapshot
	var dedup bool

	err = r.db.Update(func(tx *bolt.Tx) error {
		head, headErr := readHead(tx)
		if headErr != nil && !errors.Is(headErr, ErrNoRevisions) {
			return headErr
		}

		if head != nil && head.ContentHash == contentHash {
			snap = head
			dedup = true
			return nil
		}

		parentID := ""
		if head != nil {
			parentID = head.RevisionID
		}

		snap = &domain.Snapshot{
			RevisionID:       deriveRevisionID(parentID, contentHash),
			ParentRevisionID: parentID,
			ContentHash:      contentHash,
			SourceRowCount:   len(records),
			CommittedAt:      r.now().UTC(),
		}

		meta, marshalErr := json.Marshal(snap)
		if marshalErr != nil {
			return fmt.Errorf("marshal revision: %w", marshalErr)
		}

		if putErr := tx.Bucket(objectsBucket).Put([]byte(contentHash), content); putErr != nil {
			return putErr
		}
		if putErr := tx.Bucket(revisionsBucket).Put([]byte(snap.RevisionID), meta); putErr != nil {
			return putErr
		}
		return tx.Bucket(refsBucket).Put(headKey, []byte(snap.RevisionID))
	})
	if err != nil {
		return nil, &CommitError{Transient: true, Err: err}
	}

	if dedup {
		r.log.Debug("Export unchanged, reusing head revision",
			logger.String("revision_id", snap.RevisionID),
		)
	} else {
		r.log.Info("Committed snapshot revision",
			logger.String("revision_id", snap.RevisionID),
			logger.String("parent_revision_id", snap.ParentRevisionID),
			logger.Int("source_row_count", snap.SourceRowCount),
		)
	}

	if writeErr := r.writeWorkDirExport(content); writeErr != nil {
		return nil, &CommitError{Transient: true, Err: writeErr}
	}

	if r.remote != nil {
		if pushErr := r.remote.Push(ctx, snap, content); pushErr != nil {
			// The local revision is already durable; a retried run will
			// dedup and re-push.
			return nil, &CommitError{Transient: true, Err: fmt.Errorf("push revision: %w", pushErr)}
		}
	}

	return snap, nil
}

// Head returns the current head revision.
// It returns ErrNoRevisions when nothing has been committed yet.
func (r *Repository) Head() (*domain.Snapshot, error) {
	var head *domain.Snapshot
	err := r.db.View(func(tx *bolt.Tx) error {
		var readErr error
		head, readErr = readHead(tx)
		return readErr
	})
	if err != nil {
		return nil, err
	}
	return head, nil
}

// History returns up to limit revisions, newest first, by walking the
// parent chain from the head. A limit <= 0 returns the full chain.
func (r *Repository) History(limit int) ([]*domain.Snapshot, error) {
	var history []*domain.Snapshot

	err := r.db.View(func(tx *bolt.Tx) error {
		head, headErr := readHead(tx)
		if headErr != nil {
			return headErr
		}

		seen := make(map[string]bool)
		for current := head; current != nil; {
			if seen[current.RevisionID] {
				return fmt.Errorf("revision chain cycles at %s", current.RevisionID)
			}
			seen[current.RevisionID] = true
			history = append(history, current)

			if limit > 0 && len(history) >= limit {
				return nil
			}
			if current.ParentRevisionID == "" {
				return nil
			}

			parent, parentErr := readRevision(tx, current.ParentRevisionID)
			if parentErr != nil {
				return parentErr
			}
			current = parent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return history, nil
}

// Verify walks the full parent chain from head to root and checks that the
// history is linear: no cycles, no missing parents, and every revision's
// export object present.
func (r *Repository) Verify() error {
	return r.db.View(func(tx *bolt.Tx) error {
		head, err := readHead(tx)
		if err != nil {
			if errors.Is(err, ErrNoRevisions) {
				return nil
			}
			return err
		}

		seen := make(map[string]bool)
		for current := head; ; {
			if seen[current.RevisionID] {
				return fmt.Errorf("revision chain cycles at %s", current.RevisionID)
			}
			seen[current.RevisionID] = true

			if tx.Bucket(objectsBucket).Get([]byte(current.ContentHash)) == nil {
				return fmt.Errorf("revision %s is missing its export object", current.RevisionID)
			}

			if current.ParentRevisionID == "" {
				return nil
			}
			parent, parentErr := readRevision(tx, current.ParentRevisionID)
			if parentErr != nil {
				return fmt.Errorf("revision %s: broken parent link: %w", current.RevisionID, parentErr)
			}
			current = parent
		}
	})
}

// Content returns the export bytes of the given revision.
func (r *Repository) Content(revisionID string) ([]byte, error) {
	var content []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		rev, readErr := readRevision(tx, revisionID)
		if readErr != nil {
			return readErr
		}
		stored := tx.Bucket(objectsBucket).Get([]byte(rev.ContentHash))
		if stored == nil {
			return fmt.Errorf("revision %s is missing its export object", revisionID)
		}
		content = append([]byte(nil), stored...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// writeWorkDirExport replaces the working-directory export atomically.
func (r *Repository) writeWorkDirExport(content []byte) error {
	if r.workDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}

	target := filepath.Join(r.workDir, r.exportFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace export: %w", err)
	}
	return nil
}

// deriveRevisionID computes the content-derived revision identifier.
// Covering the parent id keeps ids unique across content reverts.
func deriveRevisionID(parentID, contentHash string) string {
	sum := sha256.Sum256([]byte(parentID + "\n" + contentHash))
	return hex.EncodeToString(sum[:])
}

// readHead reads the head revision inside a transaction.
func readHead(tx *bolt.Tx) (*domain.Snapshot, error) {
	id := tx.Bucket(refsBucket).Get(headKey)
	if id == nil {
		return nil, ErrNoRevisions
	}
	return readRevision(tx, string(id))
}

// readRevision reads one revision's metadata inside a transaction.
func readRevision(tx *bolt.Tx, id string) (*domain.Snapshot, error) {
	data := tx.Bucket(revisionsBucket).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("revision %s not found", id)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode revision %s: %w", id, err)
	}
	return &snap, nil
}
