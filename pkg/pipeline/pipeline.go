// Package pipeline wires listing discovery, resolution and download into
// one run over a listing root.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/xmly-dl/pkg/download"
	"github.com/Sternrassler/xmly-dl/pkg/pagination"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultOutputRoot is the directory that holds one folder per listing.
const DefaultOutputRoot = "result"

// Lister discovers the items of a listing.
type Lister interface {
	List(ctx context.Context, root string) ([]pagination.Item, error)
}

// Resolver turns an item identifier into a media location.
type Resolver interface {
	Resolve(ctx context.Context, id int64) (string, error)
}

// Downloader streams a resolved item into a directory.
type Downloader interface {
	Download(ctx context.Context, item pagination.Item, location, dir string) (*download.File, error)
}

// Config holds the orchestrator configuration.
type Config struct {
	// OutputRoot holds the per-listing save directories.
	OutputRoot string
}

// Result summarizes a run.
type Result struct {
	// Dir is the absolute save-target directory.
	Dir       string
	Items     int
	Succeeded int
	Failed    int
	Bytes     int64
}

// Orchestrator runs the listing pipeline.
type Orchestrator struct {
	lister     Lister
	resolver   Resolver
	downloader Downloader
	config     Config
	logger     zerolog.Logger
}

// New creates a new orchestrator. An empty OutputRoot falls back to
// DefaultOutputRoot.
func New(l Lister, r Resolver, d Downloader, cfg Config) *Orchestrator {
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = DefaultOutputRoot
	}

	return &Orchestrator{
		lister:     l,
		resolver:   r,
		downloader: d,
		config:     cfg,
		logger:     log.With().Str("component", "pipeline").Logger(),
	}
}

// Run downloads every item of the listing at root.
//
// The listing is walked first. Then one chain (resolve, download) is
// started per item, all at once. Chains are not cancelled when a sibling
// fails: every chain runs to completion, after which Run returns the first
// chain error, if any, as an *ItemError. The returned Result is populated
// in both cases once the save directory is known.
func (o *Orchestrator) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()

	if err := download.EnsureDir(o.config.OutputRoot); err != nil {
		return nil, err
	}

	dir, err := SaveDir(o.config.OutputRoot, root)
	if err != nil {
		return nil, err
	}
	if err := download.EnsureDir(dir); err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, &download.FilesystemError{Op: "abs", Path: dir, Err: err}
	}
	result := &Result{Dir: absDir}

	items, err := o.lister.List(ctx, root)
	if err != nil {
		return result, fmt.Errorf("list %s: %w", root, err)
	}
	result.Items = len(items)

	o.logger.Info().
		Int("items", len(items)).
		Str("dir", absDir).
		Msg("Starting downloads")

	var (
		succeeded atomic.Int64
		failed    atomic.Int64
		written   atomic.Int64
		g         errgroup.Group
	)

	for _, item := range items {
		g.Go(func() error {
			f, err := o.chain(ctx, item, dir)
			if err != nil {
				failed.Add(1)
				o.logger.Warn().
					Err(err).
					Int64("id", item.ID).
					Str("name", item.Name).
					Msg("Item failed")
				return err
			}
			succeeded.Add(1)
			written.Add(f.Bytes)
			return nil
		})
	}

	err = g.Wait()

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	result.Bytes = written.Load()

	logEvent := o.logger.Info()
	if err != nil {
		logEvent = o.logger.Error().Err(err)
	}
	logEvent.
		Int("items", result.Items).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Str("size", humanize.Bytes(uint64(result.Bytes))).
		Dur("duration", time.Since(start)).
		Msg("Run finished")

	return result, err
}

// chain resolves then downloads one item. Download never starts without a
// successful resolution.
func (o *Orchestrator) chain(ctx context.Context, item pagination.Item, dir string) (*download.File, error) {
	location, err := o.resolver.Resolve(ctx, item.ID)
	if err != nil {
		return nil, &ItemError{Item: item, Stage: StageResolve, Err: err}
	}

	f, err := o.downloader.Download(ctx, item, location, dir)
	if err != nil {
		return nil, &ItemError{Item: item, Stage: StageDownload, Location: location, Err: err}
	}

	return f, nil
}

// SaveDir returns outputRoot joined with the last path segment of the
// listing root, e.g. ("result", "https://host/waiyu/14359664") ->
// "result/14359664".
func SaveDir(outputRoot, root string) (string, error) {
	u, err := url.Parse(root)
	if err != nil {
		return "", fmt.Errorf("parse listing root %q: %w", root, err)
	}

	p := strings.TrimRight(u.Path, "/")
	name := p[strings.LastIndex(p, "/")+1:]
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("listing root %q has no usable last path segment", root)
	}

	return filepath.Join(outputRoot, name), nil
}
