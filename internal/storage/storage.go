// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup.
// MinioStorage and S3Storage work with any S3-compatible provider;
// MemoryStorage backs tests and local runs without an object store.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when the key (or its bucket) does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidRange is returned when the store rejects a byte range as
	// malformed or unsatisfiable for the object's size.
	ErrInvalidRange = errors.New("invalid range")
)

// ObjectInfo is the metadata the store reports for an object or for the
// ranged slice of it that was returned.
type ObjectInfo struct {
	Key          string
	ContentType  string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Object is an open read of a stored object. Body must be closed by the caller.
type Object struct {
	ObjectInfo
	// ContentRange is the store's Content-Range value, e.g. "bytes 0-99/1000".
	// Empty when the whole object is returned.
	ContentRange string
	Body         io.ReadCloser
}

// Storage is the interface for uploading and retrieving objects.
type Storage interface {
	// Upload writes data under key as a single put; the object becomes
	// visible only once the write completes.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Stat returns metadata for key without reading the body.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Open streams key. byteRange is an HTTP Range header value forwarded
	// verbatim to the store; empty means the whole object.
	Open(ctx context.Context, key, byteRange string) (*Object, error)
}

// Bucket covers the one-time, boot-only bucket setup steps.
type Bucket interface {
	EnsureBucket(ctx context.Context) error
	SetPublicReadPolicy(ctx context.Context) error
}
