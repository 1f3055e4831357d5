package media

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/illtip/mediaproxy/internal/storage"
)

const cacheControl = "public, max-age=3600"

// extContentTypes covers stores that drop Content-Type on read.
var extContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webp": "image/webp",
}

// contentTypeFor returns the stored content type, else a type inferred from
// the key's extension, else the generic byte-stream type.
func contentTypeFor(key, stored string) string {
	if stored != "" {
		return stored
	}
	if ct, ok := extContentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return defaultContentType
}

// setStreamingHeaders sets the headers every successful media response
// carries, ranged or not.
func setStreamingHeaders(h http.Header, key string, info storage.ObjectInfo) {
	h.Set("Content-Type", contentTypeFor(key, info.ContentType))
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", cacheControl)
	h.Set("Access-Control-Allow-Origin", "*")
	if info.ETag != "" {
		h.Set("ETag", info.ETag)
	}
	if lm := lastModified(info.LastModified); lm != "" {
		h.Set("Last-Modified", lm)
	}
}

// splitMediaPath splits the wildcard part of /media/* at its last slash into
// folder and key. Folders may contain slashes; keys may not. escaped reports
// whether raw is still percent-encoded, which is the case when the router
// matched on the request's RawPath; an already-decoded path is used as is.
func splitMediaPath(raw string, escaped bool) (folder, key string, ok bool) {
	i := strings.LastIndex(raw, "/")
	if i <= 0 || i == len(raw)-1 {
		return "", "", false
	}
	folder, key = raw[:i], raw[i+1:]
	if escaped {
		var err error
		if folder, err = url.PathUnescape(folder); err != nil {
			return "", "", false
		}
		if key, err = url.PathUnescape(key); err != nil {
			return "", "", false
		}
	}
	return folder, key, true
}

var relayBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 32<<10)
		return &b
	},
}

// relay streams body to w until EOF, a write error, or ctx ending. It is the
// only place a store stream meets the response; nothing is buffered beyond
// one copy chunk.
func relay(ctx context.Context, w io.Writer, body io.Reader) (int64, error) {
	bufp := relayBufPool.Get().(*[]byte)
	defer relayBufPool.Put(bufp)
	return io.CopyBuffer(w, &ctxReader{ctx: ctx, r: body}, *bufp)
}

// ctxReader stops reading once ctx is done, so a disconnected client ends
// the store read at the next chunk boundary.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// statusForRange picks 206 only when a range was asked for and the store
// answered with one; a store that ignored the range sent the full object.
func statusForRange(requested string, obj *storage.Object) int {
	if requested != "" && obj.ContentRange != "" {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

func lastModified(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(http.TimeFormat)
}
