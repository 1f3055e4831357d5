package transcode

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageTranscodeProducesWebP(t *testing.T) {
	tr := NewImageTranscoder(80, 0, nil)

	out, err := tr.Transcode(context.Background(), bytes.NewReader(pngBytes(t, 4, 3)), "photo.png")
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, WebPContentType, out.ContentType)
	assert.Equal(t, "webp", out.Ext)

	data, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.Equal(t, out.Size, int64(len(data)))

	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Width)
	assert.Equal(t, 3, cfg.Height)
}

func TestImageTranscodeFitsMaxDimension(t *testing.T) {
	tr := NewImageTranscoder(80, 20, nil)

	out, err := tr.Transcode(context.Background(), bytes.NewReader(pngBytes(t, 100, 50)), "wide.png")
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(out.Body)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestImageTranscodeRejectsGarbage(t *testing.T) {
	tr := NewImageTranscoder(80, 0, nil)

	_, err := tr.Transcode(context.Background(), strings.NewReader("not an image"), "x.png")
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestNewImageTranscoderDefaults(t *testing.T) {
	tr := NewImageTranscoder(0, -5, nil)
	assert.Equal(t, DefaultImageQuality, tr.Quality)
	assert.Zero(t, tr.MaxDimension)
}

func TestLimiterHonoursContext(t *testing.T) {
	l := NewLimiter(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.NoError(t, l.Do(context.Background(), func() error { return nil }))
}
