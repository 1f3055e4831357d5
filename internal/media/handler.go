package media

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/illtip/mediaproxy/internal/metrics"
	"github.com/illtip/mediaproxy/internal/middleware"
	"github.com/illtip/mediaproxy/internal/response"
	"github.com/illtip/mediaproxy/internal/storage"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temp files.
const multipartMemory = 8 << 20

const (
	msgNoFile        = "No file uploaded"
	msgTooLarge      = "File too large"
	msgVideoDisabled = "Video uploads are temporarily disabled. Please upload images only."
	msgUploadFailed  = "Failed to process and upload media: "
	msgNotFound      = "Media not found"
	msgBadRange      = "Range Not Satisfiable"
)

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	URL string `json:"url" example:"http://localhost:3000/media/posts/0b9c1f3e-5a3e-4c0e-9f1a-2f4d1c2b7e10.webp"`
}

// Handler holds HTTP handlers for media endpoints.
type Handler struct {
	svc            *Service
	store          storage.Storage
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates a new media Handler. maxUploadBytes <= 0 disables the
// body limit.
func NewHandler(svc *Service, store storage.Storage, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, store: store, maxUploadBytes: maxUploadBytes, logger: logger}
}

// Mount registers the upload and proxy routes. uploadGuard wraps /upload only.
func (h *Handler) Mount(r chi.Router, uploadGuard ...func(http.Handler) http.Handler) {
	r.With(uploadGuard...).Post("/upload", h.Upload)
	r.Get("/media/*", h.Serve)
	r.Head("/media/*", h.Serve)
}

// Upload godoc
//
//	@Summary		Upload media
//	@Description	Stores one file. Images are re-encoded as WebP; video is rejected while the video pipeline is disabled; anything else is stored as sent.
//	@Tags			media
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to upload"
//	@Param			folder	formData	string	false	"Target folder (default uploads)"
//	@Success		200		{object}	UploadResponse
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		413		{object}	response.ErrorBody
//	@Failure		500		{object}	response.ErrorBody
//	@Router			/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			response.TooLarge(w, msgTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(w, msgTooLarge)
			return
		}
		response.BadRequest(w, msgNoFile)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, msgNoFile)
		return
	}
	defer file.Close()

	res, err := h.svc.Upload(r.Context(), Upload{
		File:        file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
		Folder:      r.PostFormValue("folder"),
	})
	if errors.Is(err, ErrVideoUploadsDisabled) {
		response.BadRequest(w, msgVideoDisabled)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "[UPLOAD] failed", "err", err, "user", middleware.UserID(r.Context()))
		response.InternalError(w, msgUploadFailed+err.Error())
		return
	}

	response.OK(w, UploadResponse{URL: res.URL})
}

// Serve godoc
//
//	@Summary		Stream media
//	@Description	Relays a stored object. GET forwards Range to the object store and answers 200 or 206; HEAD returns the same headers without a body.
//	@Tags			media
//	@Produce		octet-stream
//	@Param			path	path		string	true	"folder/key"
//	@Param			Range	header		string	false	"Byte range, e.g. bytes=0-1023"
//	@Success		200		{file}		binary
//	@Success		206		{file}		binary
//	@Failure		404		{object}	response.ErrorBody
//	@Failure		416		{string}	string
//	@Router			/media/{path} [get]
//	@Router			/media/{path} [head]
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when the request carries one, so the wildcard is
	// still encoded exactly in that case.
	folder, key, ok := splitMediaPath(chi.URLParam(r, "*"), r.URL.RawPath != "")
	if !ok {
		h.notFound(w, r)
		return
	}
	objectKey := folder + "/" + key

	if r.Method == http.MethodHead {
		h.head(w, r, objectKey)
		return
	}
	h.get(w, r, objectKey)
}

func (h *Handler) head(w http.ResponseWriter, r *http.Request, objectKey string) {
	h.logger.DebugContext(r.Context(), "[PROXY] head", "key", objectKey)

	info, err := h.store.Stat(r.Context(), objectKey)
	if err != nil {
		h.logger.WarnContext(r.Context(), "[PROXY] head failed", "key", objectKey, "err", err)
		h.notFound(w, r)
		return
	}
	setStreamingHeaders(w.Header(), objectKey, info)
	w.WriteHeader(http.StatusOK)
	metrics.ProxyResponsesTotal.WithLabelValues(r.Method, "200").Inc()
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, objectKey string) {
	ctx := r.Context()
	byteRange := r.Header.Get("Range")
	h.logger.DebugContext(ctx, "[PROXY] get", "key", objectKey, "range", byteRange)

	obj, err := h.store.Open(ctx, objectKey, byteRange)
	if errors.Is(err, storage.ErrInvalidRange) {
		h.logger.WarnContext(ctx, "[PROXY] invalid range", "key", objectKey, "range", byteRange)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		response.Text(w, http.StatusRequestedRangeNotSatisfiable, msgBadRange)
		metrics.ProxyResponsesTotal.WithLabelValues(r.Method, "416").Inc()
		return
	}
	if err != nil {
		h.logger.WarnContext(ctx, "[PROXY] get failed", "key", objectKey, "err", err)
		h.notFound(w, r)
		return
	}
	defer obj.Body.Close()

	status := statusForRange(byteRange, obj)
	hdr := w.Header()
	setStreamingHeaders(hdr, objectKey, obj.ObjectInfo)
	if obj.ContentRange != "" {
		hdr.Set("Content-Range", obj.ContentRange)
	}
	w.WriteHeader(status)
	metrics.ProxyResponsesTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()

	n, err := relay(ctx, w, obj.Body)
	metrics.ProxyBytesTotal.Add(float64(n))
	if err != nil {
		h.logger.DebugContext(ctx, "[PROXY] stream ended early", "key", objectKey, "bytes", n, "err", err)
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	response.NotFound(w, msgNotFound)
	metrics.ProxyResponsesTotal.WithLabelValues(r.Method, "404").Inc()
}
