package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rapidoc/docsync/internal/config"
	"github.com/rapidoc/docsync/internal/document"
)

// SnapshotArchive writes every whole-set write of an owner record to MinIO as
// a JSON object, giving an append-only history the live store does not keep.
type SnapshotArchive struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewSnapshotArchive creates a MinIO client and ensures the bucket exists.
func NewSnapshotArchive(ctx context.Context, cfg config.MinIOConfig) (*SnapshotArchive, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &SnapshotArchive{client: mc, bucket: cfg.Bucket, now: time.Now}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// SnapshotKey names the object for one archived write.
func SnapshotKey(ownerID string, at time.Time) string {
	return fmt.Sprintf("snapshots/%s/%020d.json", ownerID, at.UTC().UnixNano())
}

// ArchiveSnapshot uploads docs as the owner's latest snapshot.
func (s *SnapshotArchive) ArchiveSnapshot(ctx context.Context, ownerID string, docs []document.Document) error {
	b, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	key := SnapshotKey(ownerID, s.now())
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(b), int64(len(b)), minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// LoadSnapshot reads back an archived snapshot by key.
func (s *SnapshotArchive) LoadSnapshot(ctx context.Context, key string) ([]document.Document, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	var docs []document.Document
	if err := json.NewDecoder(obj).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return docs, nil
}

// ListSnapshots returns the archived snapshot keys for an owner, oldest first.
func (s *SnapshotArchive) ListSnapshots(ctx context.Context, ownerID string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: "snapshots/" + ownerID + "/", Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}
