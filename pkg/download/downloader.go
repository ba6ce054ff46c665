// Package download streams resolved media to files named after their item.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/xmly-dl/pkg/client"
	"github.com/Sternrassler/xmly-dl/pkg/pagination"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmly_downloads_total",
		Help: "Total media downloads by result",
	}, []string{"result"}) // "ok", "failed"

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmly_download_bytes_total",
		Help: "Total media bytes written to disk",
	})
)

// File describes a completed download.
type File struct {
	Path  string
	Bytes int64
}

// Downloader writes media streams to disk. It is safe for concurrent use
// as long as callers write distinct items.
type Downloader struct {
	client *client.Client
	logger zerolog.Logger
}

// New creates a downloader that fetches through c.
func New(c *client.Client) *Downloader {
	return &Downloader{
		client: c,
		logger: log.With().Str("component", "downloader").Logger(),
	}
}

// Download streams location into dir under FileName(item, location). The
// body is copied as it arrives. A name that would place the file anywhere
// but directly in dir fails with ErrNameOutsideDir before any request. An
// existing file with the same name is truncated and overwritten. On a mid-stream failure the partial file is
// left in place and an error is returned.
func (d *Downloader) Download(ctx context.Context, item pagination.Item, location, dir string) (*File, error) {
	name, err := FileName(item, location)
	if err != nil {
		downloadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	target := filepath.Join(dir, name)
	if filepath.Base(target) != name || filepath.Dir(target) != filepath.Clean(dir) {
		downloadsTotal.WithLabelValues("failed").Inc()
		return nil, &FilesystemError{Op: "create", Path: target, Err: ErrNameOutsideDir}
	}

	d.logger.Info().
		Int64("id", item.ID).
		Str("name", item.Name).
		Msg("Downloading item")

	start := time.Now()
	resp, err := d.client.Get(ctx, location, nil, client.KindMedia)
	if err != nil {
		downloadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	n, err := writeStream(resp.Body, target, location)
	downloadBytesTotal.Add(float64(n))
	if err != nil {
		downloadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	downloadsTotal.WithLabelValues("ok").Inc()
	d.logger.Info().
		Int64("id", item.ID).
		Str("path", target).
		Str("size", humanize.Bytes(uint64(n))).
		Dur("duration", time.Since(start)).
		Msg("Saved item")

	return &File{Path: target, Bytes: n}, nil
}

// writeStream copies body into a newly created (or truncated) file at
// target and reports how many bytes reached the file.
func writeStream(body io.Reader, target, location string) (int64, error) {
	f, err := os.Create(target)
	if err != nil {
		return 0, &FilesystemError{Op: "create", Path: target, Err: err}
	}

	w := NewProgressWriter(f, nil)
	_, copyErr := io.Copy(w, body)
	closeErr := f.Close()
	n := w.Written()

	switch {
	case w.Err() != nil:
		return n, &FilesystemError{Op: "write", Path: target, Err: w.Err()}
	case copyErr != nil:
		return n, &client.TransportError{
			Method: http.MethodGet,
			URL:    location,
			Class:  client.ErrorClassNetwork,
			Err:    fmt.Errorf("read body after %d bytes: %w", n, copyErr),
		}
	case closeErr != nil:
		return n, &FilesystemError{Op: "close", Path: target, Err: closeErr}
	}

	return n, nil
}

// FileName returns "<id>-<name><ext>", where ext is the extension of the
// last path segment of location including its dot, or empty when there is
// none. Query and fragment do not contribute.
func FileName(item pagination.Item, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location %q: %w", location, err)
	}

	segment := u.Path[strings.LastIndex(u.Path, "/")+1:]
	return strconv.FormatInt(item.ID, 10) + "-" + item.Name + path.Ext(segment), nil
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
