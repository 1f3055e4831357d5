package transcode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// WebP input support for image.Decode; imaging registers the rest.
	_ "golang.org/x/image/webp"
)

const (
	// WebPContentType is the content type of every transcoded image.
	WebPContentType = "image/webp"
	webpExt         = "webp"

	// DefaultImageQuality is the lossy WebP quality used when none is set.
	DefaultImageQuality = 80
)

// ImageTranscoder re-encodes any decodable image as lossy WebP.
type ImageTranscoder struct {
	// Quality is the WebP quality in 1..100.
	Quality int
	// MaxDimension caps the longest edge; 0 keeps the original size.
	MaxDimension int
	Limiter      *Limiter
}

// NewImageTranscoder returns an ImageTranscoder; quality outside 1..100 falls
// back to DefaultImageQuality.
func NewImageTranscoder(quality, maxDimension int, limiter *Limiter) *ImageTranscoder {
	if quality < 1 || quality > 100 {
		quality = DefaultImageQuality
	}
	if maxDimension < 0 {
		maxDimension = 0
	}
	return &ImageTranscoder{Quality: quality, MaxDimension: maxDimension, Limiter: limiter}
}

// Transcode decodes src (honouring EXIF orientation) and encodes it as WebP.
func (t *ImageTranscoder) Transcode(ctx context.Context, src io.Reader, _ string) (*Output, error) {
	var buf bytes.Buffer
	err := t.Limiter.Do(ctx, func() error {
		img, err := imaging.Decode(src, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		img = t.fit(img)
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(t.Quality)}); err != nil {
			return fmt.Errorf("encode webp: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		Body:        bytes.NewReader(buf.Bytes()),
		Size:        int64(buf.Len()),
		ContentType: WebPContentType,
		Ext:         webpExt,
	}, nil
}

func (t *ImageTranscoder) fit(img image.Image) image.Image {
	if t.MaxDimension <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= t.MaxDimension && b.Dy() <= t.MaxDimension {
		return img
	}
	return imaging.Fit(img, t.MaxDimension, t.MaxDimension, imaging.Lanczos)
}
