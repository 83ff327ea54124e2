package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vityasyyy/dalam-kemasan/internal/config"
	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/snapshot"
)

const revisionMeta = "Kemasan-Revision"

// Storage keeps the drive snapshot as a single object in MinIO/S3.
type Storage struct {
	client    *minio.Client
	bucket    string
	objectKey string
	region    string
	codec     snapshot.Codec
}

var _ snapshot.Repository = (*Storage)(nil)

// New creates a MinIO client from the Config.
func New(cfg *config.Config, codec snapshot.Codec) (*Storage, error) {
	client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		Secure: cfg.S3.UseSSL,
		Region: cfg.S3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:    client,
		bucket:    cfg.S3.Bucket,
		objectKey: cfg.S3.ObjectKey,
		region:    cfg.S3.Region,
		codec:     codec,
	}, nil
}

// EnsureBucket makes sure the snapshot bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Load downloads and decodes the snapshot object.
func (s *Storage) Load(ctx context.Context) (*drive.Snapshot, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError("get snapshot object", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapError("read snapshot object", err)
	}
	return s.codec.Decode(data)
}

// Save uploads snap unless the stored object carries the same or a newer
// revision. The check reads object metadata first, so two savers racing on
// the same bucket are only ordered best-effort.
func (s *Storage) Save(ctx context.Context, snap *drive.Snapshot) error {
	stored, found, err := s.storedRevision(ctx)
	if err != nil {
		return err
	}
	if found && stored >= snap.Revision {
		return fmt.Errorf("save revision %d over %d: %w", snap.Revision, stored, snapshot.ErrStale)
	}
	data, err := s.codec.Encode(snap, time.Now())
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{revisionMeta: strconv.FormatUint(snap.Revision, 10)},
	}
	if _, err := s.client.PutObject(ctx, s.bucket, s.objectKey, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload snapshot object: %w", err)
	}
	return nil
}

func (s *Storage) storedRevision(ctx context.Context) (uint64, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.objectKey, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat snapshot object: %w", err)
	}
	raw := info.UserMetadata[revisionMeta]
	if raw == "" {
		return 0, false, nil
	}
	rev, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse stored revision %q: %w", raw, err)
	}
	return rev, true, nil
}

func (s *Storage) mapError(op string, err error) error {
	if isNotFound(err) {
		return snapshot.ErrNoSnapshot
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
