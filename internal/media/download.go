// Package media downloads post attachments to disk and loads them back as
// images for multi-modal prompts.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// DownloadError describes a failed media download. It is never fatal to a
// fetch; the caller drops the entry and keeps the post.
type DownloadError struct {
	URL    string
	Status int // 0 when the request itself failed
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("downloading %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("downloading %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Downloader saves remote media into a directory.
type Downloader struct {
	dir     string
	http    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDownloader creates a Downloader writing into dir. Requests are paced to
// a few per second and each one is bounded by timeout (10s when <= 0).
func NewDownloader(dir string, timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Downloader{
		dir:     dir,
		http:    resty.New().SetTimeout(timeout),
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 2),
		logger:  slog.Default(),
	}
}

// Dir returns the target directory.
func (d *Downloader) Dir() string { return d.dir }

// Download fetches url into <dir>/<name> and returns the written path. The
// file is written via a temp file so a partial body never lands at name. name
// must be a plain file name; separators and leading dots are rejected.
func (d *Downloader) Download(ctx context.Context, url, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid media file name %q", name)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}

	resp, err := d.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return "", &DownloadError{URL: url, Status: resp.StatusCode()}
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating media dir: %w", err)
	}

	body := resp.Body()
	path := filepath.Join(d.dir, name)
	tmp, err := os.CreateTemp(d.dir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming %s: %w", name, err)
	}

	d.logger.Debug("media downloaded", "path", path, "size", humanize.Bytes(uint64(len(body))))
	return path, nil
}
