package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Bucket  = (*MemoryStorage)(nil)
)

type memoryObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

// MemoryStorage keeps objects in process memory. It answers ranged reads the
// way S3 does, except that malformed ranges are rejected instead of ignored.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// Upload reads reader to completion before publishing the object.
func (s *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put object %q: read %d bytes, expected %d", key, len(data), size)
	}
	sum := md5.Sum(data)

	s.mu.Lock()
	s.objects[key] = memoryObject{
		data:        data,
		contentType: contentType,
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
		modified:    s.now().UTC(),
	}
	s.mu.Unlock()
	return nil
}

// Stat returns the metadata for key.
func (s *MemoryStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	obj, ok := s.lookup(key)
	if !ok {
		return ObjectInfo{}, fmt.Errorf("stat object %q: %w", key, ErrNotFound)
	}
	return obj.info(key, int64(len(obj.data))), nil
}

// Open returns the whole object, or the slice selected by byteRange.
func (s *MemoryStorage) Open(ctx context.Context, key, byteRange string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, ok := s.lookup(key)
	if !ok {
		return nil, fmt.Errorf("get object %q: %w", key, ErrNotFound)
	}

	total := int64(len(obj.data))
	if byteRange == "" {
		return &Object{
			ObjectInfo: obj.info(key, total),
			Body:       io.NopCloser(bytes.NewReader(obj.data)),
		}, nil
	}

	start, end, err := parseByteRange(byteRange, total)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	return &Object{
		ObjectInfo:   obj.info(key, end-start+1),
		ContentRange: fmt.Sprintf("bytes %d-%d/%d", start, end, total),
		Body:         io.NopCloser(bytes.NewReader(obj.data[start : end+1])),
	}, nil
}

// EnsureBucket is a no-op; the in-memory store has a single implicit bucket.
func (s *MemoryStorage) EnsureBucket(context.Context) error { return nil }

// SetPublicReadPolicy is a no-op.
func (s *MemoryStorage) SetPublicReadPolicy(context.Context) error { return nil }

// Len reports the number of stored objects.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Keys returns every stored key in no particular order.
func (s *MemoryStorage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStorage) lookup(key string) (memoryObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

func (o memoryObject) info(key string, size int64) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		ContentType:  o.contentType,
		Size:         size,
		ETag:         o.etag,
		LastModified: o.modified,
	}
}

// parseByteRange resolves a single "bytes=" range against an object of size
// total and returns inclusive offsets. Multi-range requests are rejected.
func parseByteRange(header string, total int64) (int64, int64, error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || set == "" || strings.Contains(set, ",") {
		return 0, 0, ErrInvalidRange
	}
	first, last, ok := strings.Cut(set, "-")
	if !ok {
		return 0, 0, ErrInvalidRange
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix range: the final N bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 || total == 0 {
			return 0, 0, ErrInvalidRange
		}
		if n > total {
			n = total
		}
		return total - n, total - 1, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= total {
		return 0, 0, ErrInvalidRange
	}
	end := total - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return 0, 0, ErrInvalidRange
		}
		if end > total-1 {
			end = total - 1
		}
	}
	return start, end, nil
}
