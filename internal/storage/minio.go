package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	_ Storage = (*MinioStorage)(nil)
	_ Bucket  = (*MinioStorage)(nil)
)

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// It talks to the store through minio.Core so ranged reads come back with the
// store's own Content-Range header.
type MinioStorage struct {
	core   *minio.Core
	bucket string
	region string
}

// NewMinioStorage creates a MinIO client. It does not touch the bucket; see
// EnsureBucket and SetPublicReadPolicy for the boot steps.
func NewMinioStorage(endpoint, accessKey, secretKey, bucket, region string, useSSL bool) (*MinioStorage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	host, secure, err := parseEndpoint(endpoint, useSSL)
	if err != nil {
		return nil, err
	}
	core, err := minio.NewCore(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStorage{
		core:   core,
		bucket: strings.TrimSpace(bucket),
		region: region,
	}, nil
}

// Upload streams reader to MinIO under key. size must be the exact byte count
// (pass -1 only if the size is unknown; MinIO then buffers it).
func (s *MinioStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.core.Client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, mapMinioErr(err))
	}
	return nil
}

// Stat returns the object's metadata.
func (s *MinioStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.core.Client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, mapMinioErr(err))
	}
	return toObjectInfo(key, info), nil
}

// Open issues a GET for key, forwarding byteRange as the Range header.
func (s *MinioStorage) Open(ctx context.Context, key, byteRange string) (*Object, error) {
	opts := minio.GetObjectOptions{}
	if byteRange != "" {
		opts.Set("Range", byteRange)
	}
	body, info, header, err := s.core.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, mapMinioErr(err))
	}
	return &Object{
		ObjectInfo:   toObjectInfo(key, info),
		ContentRange: header.Get("Content-Range"),
		Body:         body,
	}, nil
}

// EnsureBucket creates the bucket if it does not already exist.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.core.Client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.core.Client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// SetPublicReadPolicy allows anonymous GET on every object in the bucket.
func (s *MinioStorage) SetPublicReadPolicy(ctx context.Context) error {
	if err := s.core.Client.SetBucketPolicy(ctx, s.bucket, PublicReadPolicy(s.bucket)); err != nil {
		return fmt.Errorf("set bucket policy %q: %w", s.bucket, err)
	}
	return nil
}

func toObjectInfo(key string, info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		ContentType:  info.ContentType,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return err
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return ErrNotFound
	case "InvalidRange", "RangeNotSatisfiable":
		return ErrInvalidRange
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrInvalidRange
	}
	return err
}

// parseEndpoint accepts either "host:port" or a full URL; a URL's scheme wins
// over useSSL when it is https.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		if parsed.Scheme == "https" {
			return parsed.Host, true, nil
		}
		return parsed.Host, useSSL, nil
	}
	return raw, useSSL, nil
}
