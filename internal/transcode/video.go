package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// MP4ContentType is the content type of every transcoded video.
	MP4ContentType = "video/mp4"
	mp4Ext         = "mp4"

	// maxStderr bounds how much ffmpeg output is kept for error messages.
	maxStderr = 2048
)

// FFmpegTranscoder converts uploaded video to H.264/AAC MP4 with the moov
// atom up front, so players can start and seek over ranged GETs.
type FFmpegTranscoder struct {
	Path    string // ffmpeg binary; defaults to "ffmpeg" on PATH
	TempDir string // defaults to os.TempDir()
	Limiter *Limiter
}

// NewFFmpegTranscoder returns a transcoder using the ffmpeg binary at path.
func NewFFmpegTranscoder(path string, limiter *Limiter) *FFmpegTranscoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegTranscoder{Path: path, Limiter: limiter}
}

// Args returns the ffmpeg arguments converting in to out.
func (t *FFmpegTranscoder) Args(in, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		out,
	}
}

// Transcode spools src to a temp file, runs ffmpeg and returns the MP4.
// The returned Output owns the temp directory until Close.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, src io.Reader, name string) (*Output, error) {
	dir, err := os.MkdirTemp(t.TempDir, "transcode-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	in := filepath.Join(dir, "input"+filepath.Ext(filepath.Base(name)))
	out := filepath.Join(dir, "output."+mp4Ext)
	if err := spool(in, src); err != nil {
		_ = cleanup()
		return nil, err
	}

	err = t.Limiter.Do(ctx, func() error {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, t.Path, t.Args(in, out)...)
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), maxStderr))
		}
		return nil
	})
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	f, err := os.Open(out)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("open transcoded video: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = cleanup()
		return nil, fmt.Errorf("stat transcoded video: %w", err)
	}

	return &Output{
		Body:        f,
		Size:        info.Size(),
		ContentType: MP4ContentType,
		Ext:         mp4Ext,
		release: func() error {
			_ = f.Close()
			return cleanup()
		},
	}, nil
}

func spool(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create input file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("write input file: %w", err)
	}
	return f.Close()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
