package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illtip/mediaproxy/internal/storage"
	"github.com/illtip/mediaproxy/internal/transcode"
)

const fixedID = "0b9c1f3e-5a3e-4c0e-9f1a-2f4d1c2b7e10"

type fakeTranscoder struct {
	ext, contentType string
	data             []byte
	err              error
	calls            int
	lastName         string
}

func (f *fakeTranscoder) Transcode(_ context.Context, src io.Reader, name string) (*transcode.Output, error) {
	f.calls++
	f.lastName = name
	if _, err := io.Copy(io.Discard, src); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &transcode.Output{
		Body:        bytes.NewReader(f.data),
		Size:        int64(len(f.data)),
		ContentType: f.contentType,
		Ext:         f.ext,
	}, nil
}

type failingStore struct {
	storage.Storage
	err error
}

func (f failingStore) Upload(context.Context, string, io.Reader, int64, string) error {
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store storage.Storage, images, videos Transcoder, videoEnabled bool) *Service {
	svc := NewService(store, images, videos, Options{
		ServerURL:           "http://media.test/",
		VideoUploadsEnabled: videoEnabled,
	}, discardLogger())
	svc.newID = func() string { return fixedID }
	return svc
}

func webpFake() *fakeTranscoder {
	return &fakeTranscoder{ext: "webp", contentType: "image/webp", data: []byte("RIFFxxxxWEBP")}
}

func TestUploadImageIsTranscoded(t *testing.T) {
	store := storage.NewMemoryStorage()
	images := webpFake()
	svc := newTestService(store, images, nil, false)

	res, err := svc.Upload(context.Background(), Upload{
		File: strings.NewReader("png bytes"), Size: 9,
		ContentType: "image/png", Filename: "cat.png", Folder: "posts",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://media.test/media/posts/"+fixedID+".webp", res.URL)
	assert.Equal(t, "posts/"+fixedID+".webp", res.Key)
	assert.Equal(t, 1, images.calls)

	info, err := store.Stat(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", info.ContentType)
	assert.Equal(t, int64(len(images.data)), info.Size)
}

func TestUploadDefaultsFolder(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := newTestService(store, webpFake(), nil, false)

	res, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("x"), Size: 1, ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFolder+"/"+fixedID+".webp", res.Key)
}

func TestUploadUsesFolderVerbatim(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := newTestService(store, webpFake(), nil, false)

	res, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("x"), Size: 1, ContentType: "image/png", Folder: "a/b"})
	require.NoError(t, err)
	assert.Equal(t, "a/b/"+fixedID+".webp", res.Key)
	assert.Equal(t, "http://media.test/media/a/b/"+fixedID+".webp", res.URL)
}

func TestUploadPassThrough(t *testing.T) {
	store := storage.NewMemoryStorage()
	images := webpFake()
	svc := newTestService(store, images, nil, false)

	res, err := svc.Upload(context.Background(), Upload{
		File: strings.NewReader("%PDF-1.7"), Size: 8,
		ContentType: "application/pdf", Filename: "cv.pdf", Folder: "docs",
	})
	require.NoError(t, err)
	assert.Equal(t, "docs/"+fixedID+"-cv.pdf", res.Key)
	assert.Zero(t, images.calls)

	obj, err := store.Open(context.Background(), res.Key, "")
	require.NoError(t, err)
	defer obj.Body.Close()
	body, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "%PDF-1.7", string(body))
	assert.Equal(t, "application/pdf", obj.ContentType)
}

func TestUploadPassThroughStripsClientPath(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := newTestService(store, nil, nil, false)

	res, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("x"), Size: 1, ContentType: "text/plain", Filename: `C:\Users\me\notes.txt`})
	require.NoError(t, err)
	assert.Equal(t, DefaultFolder+"/"+fixedID+"-notes.txt", res.Key)
}

func TestUploadVideoRejectedWhenDisabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	videos := &fakeTranscoder{ext: "mp4", contentType: "video/mp4"}
	svc := newTestService(store, webpFake(), videos, false)

	_, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("movie"), Size: 5, ContentType: "video/quicktime", Filename: "clip.mov"})
	assert.ErrorIs(t, err, ErrVideoUploadsDisabled)
	assert.Zero(t, videos.calls)
	assert.Zero(t, store.Len())
}

func TestUploadVideoTranscodedWhenEnabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	videos := &fakeTranscoder{ext: "mp4", contentType: "video/mp4", data: []byte("mp4 data")}
	svc := newTestService(store, webpFake(), videos, true)

	res, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("movie"), Size: 5, ContentType: "video/quicktime", Filename: "clip.mov", Folder: "posts"})
	require.NoError(t, err)
	assert.Equal(t, "posts/"+fixedID+".mp4", res.Key)
	assert.Equal(t, "video/mp4", res.ContentType)
	assert.Equal(t, "clip.mov", videos.lastName)
}

func TestUploadVideoStoredAsIsWithoutTranscoder(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := newTestService(store, webpFake(), nil, true)

	res, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("movie"), Size: 5, ContentType: "video/mp4", Filename: "clip.mp4"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFolder+"/"+fixedID+"-clip.mp4", res.Key)
	assert.Equal(t, "video/mp4", res.ContentType)
}

func TestUploadTranscodeFailureStoresNothing(t *testing.T) {
	store := storage.NewMemoryStorage()
	images := &fakeTranscoder{err: transcode.ErrUnsupportedImage}
	svc := newTestService(store, images, nil, false)

	_, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("junk"), Size: 4, ContentType: "image/png"})
	assert.ErrorIs(t, err, transcode.ErrUnsupportedImage)
	assert.Zero(t, store.Len())
}

func TestUploadStoreFailureIsWrapped(t *testing.T) {
	boom := errors.New("bucket unreachable")
	svc := newTestService(failingStore{err: boom}, webpFake(), nil, false)

	_, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("x"), Size: 1, ContentType: "image/png"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestUploadGeneratesUniqueIDs(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := NewService(store, nil, nil, Options{ServerURL: "http://media.test"}, discardLogger())

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		res, err := svc.Upload(context.Background(), Upload{File: strings.NewReader("x"), Size: 1, ContentType: "text/plain", Filename: "same.txt"})
		require.NoError(t, err)
		assert.False(t, seen[res.Key], "duplicate key %s", res.Key)
		seen[res.Key] = true
	}
	assert.Equal(t, 20, store.Len())
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"image/png":                 ClassImage,
		"IMAGE/JPEG":                ClassImage,
		"image/heic; foo=bar":       ClassImage,
		"video/mp4":                 ClassVideo,
		"video/quicktime":           ClassVideo,
		"application/pdf":           ClassOther,
		"text/plain; charset=utf-8": ClassOther,
		"":                          ClassOther,
		"application/octet-stream":  ClassOther,
		"imagery/png":               ClassOther,
	}
	for in, want := range cases {
		assert.Equal(t, want, Classify(in), in)
	}
}

func TestProxyURLEscapesSegments(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(), nil, nil, false)
	assert.Equal(t, "http://media.test/media/a/b/x.webp", svc.ProxyURL("a/b", "x.webp"))
	assert.Equal(t, "http://media.test/media/my%20posts/id-my%20file.pdf", svc.ProxyURL("my posts", "id-my file.pdf"))
}
