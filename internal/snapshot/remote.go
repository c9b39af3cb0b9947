package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/logger"
)

// Object key prefixes inside the remote bucket.
const (
	objectKeyPrefix   = "objects/"
	revisionKeyPrefix = "revisions/"
	headRefKey        = "refs/HEAD"
)

// RemoteConfig holds the S3-compatible remote target.
type RemoteConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Remote replicates revisions to S3-compatible object storage for off-host
// durability. Every payload is keyed by content hash or revision id, so
// pushes overwrite identical data and stay idempotent.
type Remote struct {
	client *miniogo.Client
	bucket string
	log    logger.Logger
}

// NewRemote creates a remote pusher for the given target.
func NewRemote(cfg RemoteConfig, log logger.Logger) (*Remote, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	log.Info("Snapshot remote configured",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket),
	)

	return &Remote{client: client, bucket: cfg.Bucket, log: log}, nil
}

// Push uploads the revision's export blob, its metadata, and the head ref.
func (r *Remote) Push(ctx context.Context, snap *domain.Snapshot, content []byte) error {
	objectKey := objectKeyPrefix + snap.ContentHash + ".csv"
	_, err := r.client.PutObject(
		ctx,
		r.bucket,
		objectKey,
		bytes.NewReader(content),
		int64(len(content)),
		miniogo.PutObjectOptions{
			ContentType: "text/csv",
			UserMetadata: map[string]string{
				"revision-id": snap.RevisionID,
				"row-count":   strconv.Itoa(snap.SourceRowCount),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("upload export object: %w", err)
	}

	meta, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal revision metadata: %w", err)
	}

	revisionKey := revisionKeyPrefix + snap.RevisionID + ".json"
	if err := r.putJSON(ctx, revisionKey, meta); err != nil {
		return fmt.Errorf("upload revision metadata: %w", err)
	}

	if err := r.putJSON(ctx, headRefKey, []byte(strconv.Quote(snap.RevisionID))); err != nil {
		return fmt.Errorf("upload head ref: %w", err)
	}

	r.log.Debug("Pushed revision to remote",
		logger.String("revision_id", snap.RevisionID),
		logger.String("object_key", objectKey),
		logger.Int("size", len(content)),
	)

	return nil
}

// putJSON uploads a small JSON payload to the given key.
func (r *Remote) putJSON(ctx context.Context, key string, data []byte) error {
	_, err := r.client.PutObject(
		ctx,
		r.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		miniogo.PutObjectOptions{ContentType: "application/json"},
	)
	return err
}
