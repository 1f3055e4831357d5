// Package media implements media ingestion (validate, transcode, store) and
// the range-aware streaming proxy that serves stored objects back.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/illtip/mediaproxy/internal/metrics"
	"github.com/illtip/mediaproxy/internal/storage"
	"github.com/illtip/mediaproxy/internal/transcode"
)

// DefaultFolder is used when an upload names no folder.
const DefaultFolder = "uploads"

// Media classes, derived from the primary type of the declared MIME type.
const (
	ClassImage = "image"
	ClassVideo = "video"
	ClassOther = "other"
)

const defaultContentType = "application/octet-stream"

// ErrVideoUploadsDisabled is returned for video/* uploads while the video
// pipeline is switched off.
var ErrVideoUploadsDisabled = errors.New("video uploads are disabled")

// Transcoder converts an uploaded asset into its stored form.
type Transcoder interface {
	Transcode(ctx context.Context, src io.Reader, name string) (*transcode.Output, error)
}

// Options configures the ingestion pipeline.
type Options struct {
	// ServerURL is the externally visible origin proxy URLs are built on.
	ServerURL           string
	VideoUploadsEnabled bool
}

// Upload is one incoming file.
type Upload struct {
	File        io.Reader
	Size        int64
	ContentType string // as declared by the client
	Filename    string
	Folder      string
}

// Result describes a stored upload.
type Result struct {
	URL         string
	Key         string
	ContentType string
	Size        int64
}

// Service contains the ingestion pipeline.
type Service struct {
	store  storage.Storage
	images Transcoder
	videos Transcoder
	opts   Options
	logger *slog.Logger
	newID  func() string
}

// NewService creates a new media Service. videos may be nil, in which case
// enabled video uploads are stored as-is.
func NewService(store storage.Storage, images, videos Transcoder, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts.ServerURL = strings.TrimRight(opts.ServerURL, "/")
	return &Service{
		store:  store,
		images: images,
		videos: videos,
		opts:   opts,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Upload classifies, transcodes and stores one file and returns its proxy
// URL. The store write is the last step, so a failure leaves nothing behind.
func (s *Service) Upload(ctx context.Context, in Upload) (*Result, error) {
	folder := in.Folder
	if folder == "" {
		folder = DefaultFolder
	}
	declared := in.ContentType
	if declared == "" {
		declared = defaultContentType
	}
	class := Classify(declared)
	id := s.newID()

	var (
		name        string
		contentType string
		body        io.Reader
		size        int64
	)
	switch class {
	case ClassImage:
		out, err := s.transcode(ctx, s.images, class, in)
		if err != nil {
			metrics.UploadsTotal.WithLabelValues(class, "failed").Inc()
			return nil, fmt.Errorf("transcode image: %w", err)
		}
		defer out.Close()
		name = id + "." + out.Ext
		contentType, body, size = out.ContentType, out.Body, out.Size

	case ClassVideo:
		if !s.opts.VideoUploadsEnabled {
			metrics.UploadsTotal.WithLabelValues(class, "rejected").Inc()
			return nil, ErrVideoUploadsDisabled
		}
		if s.videos == nil {
			name = id + "-" + cleanFilename(in.Filename)
			contentType, body, size = declared, in.File, in.Size
			break
		}
		out, err := s.transcode(ctx, s.videos, class, in)
		if err != nil {
			metrics.UploadsTotal.WithLabelValues(class, "failed").Inc()
			return nil, fmt.Errorf("transcode video: %w", err)
		}
		defer out.Close()
		name = id + "." + out.Ext
		contentType, body, size = out.ContentType, out.Body, out.Size

	default:
		name = id + "-" + cleanFilename(in.Filename)
		contentType, body, size = declared, in.File, in.Size
	}

	key := folder + "/" + name
	s.logger.InfoContext(ctx, "[UPLOAD] writing object", "key", key, "content_type", contentType, "size", size)
	if err := s.store.Upload(ctx, key, body, size, contentType); err != nil {
		metrics.UploadsTotal.WithLabelValues(class, "failed").Inc()
		return nil, fmt.Errorf("store object: %w", err)
	}
	metrics.UploadsTotal.WithLabelValues(class, "stored").Inc()

	res := &Result{
		URL:         s.ProxyURL(folder, name),
		Key:         key,
		ContentType: contentType,
		Size:        size,
	}
	s.logger.InfoContext(ctx, "[UPLOAD] stored", "key", key, "url", res.URL)
	return res, nil
}

// ProxyURL returns the URL the streaming proxy serves folder/name under.
func (s *Service) ProxyURL(folder, name string) string {
	segments := strings.Split(folder, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.opts.ServerURL + "/media/" + strings.Join(segments, "/") + "/" + url.PathEscape(name)
}

func (s *Service) transcode(ctx context.Context, t Transcoder, class string, in Upload) (*transcode.Output, error) {
	if t == nil {
		return nil, fmt.Errorf("no %s transcoder configured", class)
	}
	start := time.Now()
	out, err := t.Transcode(ctx, in.File, in.Filename)
	metrics.TranscodeDurationSeconds.WithLabelValues(class).Observe(time.Since(start).Seconds())
	return out, err
}

// Classify maps a declared MIME type to a media class.
func Classify(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return ClassImage
	case strings.HasPrefix(mediaType, "video/"):
		return ClassVideo
	default:
		return ClassOther
	}
}

// cleanFilename keeps only the final path element of a client filename.
func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
