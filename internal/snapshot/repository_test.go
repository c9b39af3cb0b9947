package snapshot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/logger"
	"github.com/skywatch/apod-pipeline/internal/snapshot"
)

type fakePusher struct {
	err    error
	pushed []string
}

func (p *fakePusher) Push(_ context.Context, snap *domain.Snapshot, _ []byte) error {
	if p.err != nil {
		return p.err
	}
	p.pushed = append(p.pushed, snap.RevisionID)
	return nil
}

func openTestRepo(t *testing.T, remote snapshot.Pusher) *snapshot.Repository {
	t.Helper()

	dir := t.TempDir()
	repo, err := snapshot.Open(snapshot.Config{
		Path:       filepath.Join(dir, "snapshots.db"),
		WorkDir:    filepath.Join(dir, "work"),
		ExportFile: "records.csv",
	}, remote, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestRepository_HeadEmpty(t *testing.T) {
	repo := openTestRepo(t, nil)

	_, err := repo.Head()
	assert.ErrorIs(t, err, snapshot.ErrNoRevisions)
}

func TestRepository_CommitRoot(t *testing.T) {
	repo := openTestRepo(t, nil)
	records := []*domain.Record{exportRecord("2024-01-01", "Galaxy")}

	snap, err := repo.Commit(context.Background(), records)
	require.NoError(t, err)

	assert.NotEmpty(t, snap.RevisionID)
	assert.Empty(t, snap.ParentRevisionID, "root revision has no parent")
	assert.Equal(t, 1, snap.SourceRowCount)
	assert.False(t, snap.CommittedAt.IsZero())

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, snap.RevisionID, head.RevisionID)
}

func TestRepository_CommitDedupsIdenticalExport(t *testing.T) {
	repo := openTestRepo(t, nil)
	records := []*domain.Record{exportRecord("2024-01-01", "Galaxy")}

	first, err := repo.Commit(context.Background(), records)
	require.NoError(t, err)

	// New pipeline run, same upstream data, fresh timestamps.
	rerun := []*domain.Record{exportRecord("2024-01-01", "Galaxy")}
	second, err := repo.Commit(context.Background(), rerun)
	require.NoError(t, err)

	assert.Equal(t, first.RevisionID, second.RevisionID, "identical export must not create a revision")

	history, err := repo.History(0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRepository_CommitAdvancesHead(t *testing.T) {
	repo := openTestRepo(t, nil)
	ctx := context.Background()

	root, err := repo.Commit(ctx, []*domain.Record{exportRecord("2024-01-01", "Galaxy")})
	require.NoError(t, err)

	next, err := repo.Commit(ctx, []*domain.Record{
		exportRecord("2024-01-01", "Galaxy"),
		exportRecord("2024-01-02", "Nebula"),
	})
	require.NoError(t, err)

	assert.NotEqual(t, root.RevisionID, next.RevisionID)
	assert.Equal(t, root.RevisionID, next.ParentRevisionID)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, next.RevisionID, head.RevisionID)
}

func TestRepository_HistoryNewestFirst(t *testing.T) {
	repo := openTestRepo(t, nil)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"One", "Two", "Three"} {
		snap, err := repo.Commit(ctx, []*domain.Record{exportRecord("2024-01-01", title)})
		require.NoError(t, err)
		ids = append(ids, snap.RevisionID)
	}

	history, err := repo.History(0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].RevisionID)
	assert.Equal(t, ids[1], history[1].RevisionID)
	assert.Equal(t, ids[0], history[2].RevisionID)

	limited, err := repo.History(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRepository_RevisionIDsUniqueAcrossContentRevert(t *testing.T) {
	repo := openTestRepo(t, nil)
	ctx := context.Background()

	a := []*domain.Record{exportRecord("2024-01-01", "Original")}
	b := []*domain.Record{exportRecord("2024-01-01", "Corrected")}

	first, err := repo.Commit(ctx, a)
	require.NoError(t, err)
	_, err = repo.Commit(ctx, b)
	require.NoError(t, err)

	// Upstream reverts to the original content.
	reverted, err := repo.Commit(ctx, a)
	require.NoError(t, err)

	assert.Equal(t, first.ContentHash, reverted.ContentHash)
	assert.NotEqual(t, first.RevisionID, reverted.RevisionID, "same content under a different parent needs a new id")

	require.NoError(t, repo.Verify())
}

func TestRepository_ContentRoundTrip(t *testing.T) {
	repo := openTestRepo(t, nil)
	records := []*domain.Record{exportRecord("2024-01-01", "Galaxy")}

	snap, err := repo.Commit(context.Background(), records)
	require.NoError(t, err)

	want, err := snapshot.Export(records)
	require.NoError(t, err)

	got, err := repo.Content(snap.RevisionID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRepository_WorkDirExport(t *testing.T) {
	dir := t.TempDir()
	repo, err := snapshot.Open(snapshot.Config{
		Path:       filepath.Join(dir, "snapshots.db"),
		WorkDir:    filepath.Join(dir, "work"),
		ExportFile: "records.csv",
	}, nil, logger.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	records := []*domain.Record{exportRecord("2024-01-01", "Galaxy")}
	_, err = repo.Commit(context.Background(), records)
	require.NoError(t, err)

	want, err := snapshot.Export(records)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "work", "records.csv"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRepository_RemotePush(t *testing.T) {
	remote := &fakePusher{}
	repo := openTestRepo(t, remote)

	snap, err := repo.Commit(context.Background(), []*domain.Record{exportRecord("2024-01-01", "Galaxy")})
	require.NoError(t, err)

	require.Len(t, remote.pushed, 1)
	assert.Equal(t, snap.RevisionID, remote.pushed[0])
}

func TestRepository_RemotePushFailureIsTransientAndRetryable(t *testing.T) {
	remote := &fakePusher{err: errors.New("remote unavailable")}
	repo := openTestRepo(t, remote)
	ctx := context.Background()
	records := []*domain.Record{exportRecord("2024-01-01", "Galaxy")}

	_, err := repo.Commit(ctx, records)

	var commitErr *snapshot.CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.True(t, commitErr.Transient)

	// The revision committed locally despite the push failure.
	head, err := repo.Head()
	require.NoError(t, err)

	// A retried run dedups against the head and re-pushes it.
	remote.err = nil
	snap, err := repo.Commit(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, head.RevisionID, snap.RevisionID)
	require.Len(t, remote.pushed, 1)
	assert.Equal(t, head.RevisionID, remote.pushed[0])

	history, err := repo.History(0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRepository_VerifyEmptyStore(t *testing.T) {
	repo := openTestRepo(t, nil)
	assert.NoError(t, repo.Verify())
}

// corruptStore mutates the revision database behind the repository's back.
func corruptStore(t *testing.T, path string, mutate func(tx *bolt.Tx) error) {
	t.Helper()

	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(mutate))
	require.NoError(t, db.Close())
}

func TestRepository_VerifyDetectsBrokenParentLink(t *testing.T) {
	dir := t.TempDir()
	cfg := snapshot.Config{
		Path:       filepath.Join(dir, "snapshots.db"),
		WorkDir:    filepath.Join(dir, "work"),
		ExportFile: "records.csv",
	}

	repo, err := snapshot.Open(cfg, nil, logger.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	var ids []string
	for _, title := range []string{"One", "Two", "Three"} {
		snap, commitErr := repo.Commit(ctx, []*domain.Record{exportRecord("2024-01-01", title)})
		require.NoError(t, commitErr)
		ids = append(ids, snap.RevisionID)
	}
	require.NoError(t, repo.Close())

	corruptStore(t, cfg.Path, func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("revisions")).Delete([]byte(ids[1]))
	})

	repo, err = snapshot.Open(cfg, nil, logger.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	err = repo.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken parent link")
}

func TestRepository_VerifyDetectsMissingObject(t *testing.T) {
	dir := t.TempDir()
	cfg := snapshot.Config{
		Path:       filepath.Join(dir, "snapshots.db"),
		WorkDir:    filepath.Join(dir, "work"),
		ExportFile: "records.csv",
	}

	repo, err := snapshot.Open(cfg, nil, logger.NewNop())
	require.NoError(t, err)

	head, err := repo.Commit(context.Background(), []*domain.Record{exportRecord("2024-01-01", "Galaxy")})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	corruptStore(t, cfg.Path, func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("objects")).Delete([]byte(head.ContentHash))
	})

	repo, err = snapshot.Open(cfg, nil, logger.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	err = repo.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing its export object")
}
