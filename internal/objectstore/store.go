package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Store is the Object Store component (spec §4.1). A single configured
// instance is shared process-wide; it is safe for concurrent use (spec §5).
type Store interface {
	// Put writes data under key, transparently choosing single-PUT for payloads
	// ≤ 5 MiB and multipart for larger payloads (spec §4.1).
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get reads the full object back.
	Get(ctx context.Context, key string) ([]byte, string, error)
	// Delete removes a single object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix, returning the count removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// PresignGet returns a time-limited URL for an out-of-band GET.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// minioStore implements Store on top of an S3-compatible MinIO client.
type minioStore struct {
	client *minio.Client
	bucket string
}

// New connects to the configured S3/MinIO endpoint and ensures the bucket
// exists, creating it if absent (the MinIO dev path; idempotent against
// head-bucket for real S3, per spec §4.1).
func New(ctx context.Context, cfg *Config) (Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			// A concurrent creator winning the race is not an error.
			exists, existsErr := client.BucketExists(ctx, cfg.Bucket)
			if existsErr != nil || !exists {
				return nil, fmt.Errorf("create bucket: %w", err)
			}
		}
	}

	return &minioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *minioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = InferContentType(key)
	}

	if len(data) <= multipartThreshold {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return fmt.Errorf("put object %q: %w", key, err)
		}

		return nil
	}

	return s.putMultipart(ctx, key, data, contentType)
}

// putMultipart partitions data into 5 MiB parts and uploads via the low-level
// Core API so a failed part aborts the whole upload, leaving no orphaned
// parts billable (spec §4.1).
func (s *minioStore) putMultipart(ctx context.Context, key string, data []byte, contentType string) error {
	core := &minio.Core{Client: s.client}

	uploadID, err := core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("start multipart upload %q: %w", key, err)
	}

	parts, err := uploadParts(ctx, core, s.bucket, key, uploadID, data)
	if err != nil {
		if abortErr := core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); abortErr != nil {
			return fmt.Errorf("%w (abort also failed: %s)", err, abortErr)
		}

		return err
	}

	if _, err := core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, parts, minio.PutObjectOptions{}); err != nil {
		if abortErr := core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); abortErr != nil {
			return fmt.Errorf("complete multipart upload %q: %w (abort also failed: %s)", key, err, abortErr)
		}

		return fmt.Errorf("complete multipart upload %q: %w", key, err)
	}

	return nil
}

func uploadParts(
	ctx context.Context,
	core *minio.Core,
	bucket, key, uploadID string,
	data []byte,
) ([]minio.CompletePart, error) {
	var parts []minio.CompletePart

	partNumber := 1

	for offset := 0; offset < len(data); offset += partSize {
		end := offset + partSize
		if end > len(data) {
			end = len(data)
		}

		chunk := data[offset:end]

		objPart, err := core.PutObjectPart(ctx, bucket, key, uploadID, partNumber,
			bytes.NewReader(chunk), int64(len(chunk)), minio.PutObjectPartOptions{})
		if err != nil {
			return nil, fmt.Errorf("upload part %d of %q: %w", partNumber, key, err)
		}

		parts = append(parts, minio.CompletePart{PartNumber: partNumber, ETag: objPart.ETag})
		partNumber++
	}

	return parts, nil
}

func (s *minioStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = obj.Close() }()

	info, err := obj.Stat()
	if err != nil {
		var errResp minio.ErrorResponse
		if errors.As(err, &errResp) && errResp.Code == "NoSuchKey" {
			return nil, "", ErrObjectNotFound
		}

		return nil, "", fmt.Errorf("stat object %q: %w", key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("read object %q: %w", key, err)
	}

	return data, info.ContentType, nil
}

func (s *minioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}

	return nil
}

func (s *minioStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objectsCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})

	removeCh := make(chan minio.ObjectInfo)

	go func() {
		defer close(removeCh)

		for obj := range objectsCh {
			if obj.Err != nil {
				continue
			}

			removeCh <- obj
		}
	}()

	count := 0

	for result := range s.client.RemoveObjects(ctx, s.bucket, removeCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return count, fmt.Errorf("delete prefix %q: %w", prefix, result.Err)
		}

		count++
	}

	return count, nil
}

func (s *minioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list prefix %q: %w", prefix, obj.Err)
		}

		keys = append(keys, obj.Key)
	}

	return keys, nil
}

func (s *minioStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}

	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign get %q: %w", key, err)
	}

	return url.String(), nil
}
