// Package transcode normalizes uploaded media before it is stored: images
// become lossy WebP, and videos (when enabled) become faststart MP4.
package transcode

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/semaphore"
)

// ErrUnsupportedImage is returned when the input bytes cannot be decoded as an image.
var ErrUnsupportedImage = errors.New("unsupported image")

// Output is a transcoded asset ready to be written to storage. Close
// releases any temporary resources held by Body.
type Output struct {
	Body        io.Reader
	Size        int64
	ContentType string
	Ext         string // without the leading dot

	release func() error
}

// Close releases the output's resources. It is safe to call more than once.
func (o *Output) Close() error {
	if o == nil || o.release == nil {
		return nil
	}
	release := o.release
	o.release = nil
	return release()
}

// Limiter bounds how many CPU-heavy transcodes run at once.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter allows n concurrent transcodes; n < 1 is treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn once a slot is free, or returns ctx's error if it ends first.
// A nil Limiter runs fn immediately.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if l == nil {
		return fn()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}
