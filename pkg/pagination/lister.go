package pagination

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/xmly-dl/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmly_pages_fetched_total",
		Help: "Total number of listing pages fetched and parsed",
	})

	itemsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xmly_items_discovered_total",
		Help: "Total number of items discovered in listing pages",
	})
)

// PageFetcher is the interface the site client must implement for
// single-page fetching.
type PageFetcher interface {
	// FetchPage fetches page pageNum of the listing at root and returns the raw markup.
	FetchPage(ctx context.Context, root string, pageNum int) ([]byte, error)
}

// HTTPFetcher fetches listing pages through the shared site client.
type HTTPFetcher struct {
	client *client.Client
}

// NewHTTPFetcher creates a page fetcher backed by c.
func NewHTTPFetcher(c *client.Client) *HTTPFetcher {
	return &HTTPFetcher{client: c}
}

// FetchPage implements PageFetcher.
func (f *HTTPFetcher) FetchPage(ctx context.Context, root string, pageNum int) ([]byte, error) {
	return f.client.GetBytes(ctx, PageURL(root, pageNum), nil, client.KindPage)
}

// Lister walks a listing until its last page.
type Lister struct {
	fetcher   PageFetcher
	selectors Selectors
	logger    zerolog.Logger
}

// NewLister creates a new lister. Empty selector fields fall back to
// DefaultSelectors.
func NewLister(fetcher PageFetcher, sel Selectors) *Lister {
	def := DefaultSelectors()
	if sel.Item == "" {
		sel.Item = def.Item
	}
	if sel.Next == "" {
		sel.Next = def.Next
	}

	return &Lister{
		fetcher:   fetcher,
		selectors: sel,
		logger:    log.With().Str("component", "lister").Logger(),
	}
}

// Walk fetches and parses pages 1, 2, ... of root, calling fn with each
// parsed page. It stops after the first page without a next-page control,
// or when fn returns an error.
func (l *Lister) Walk(ctx context.Context, root string, fn func(*Page) error) error {
	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.logger.Info().
			Str("root", root).
			Int("page", pageNum).
			Msg("Fetching listing page")

		data, err := l.fetcher.FetchPage(ctx, root, pageNum)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", pageNum, err)
		}

		page, err := ParsePage(bytes.NewReader(data), pageNum, l.selectors)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.URL = PageURL(root, pageNum)
			}
			return err
		}

		pagesFetchedTotal.Inc()
		itemsDiscoveredTotal.Add(float64(len(page.Items)))

		l.logger.Debug().
			Int("page", pageNum).
			Int("items", len(page.Items)).
			Bool("has_next", page.HasNext).
			Msg("Parsed listing page")

		if err := fn(page); err != nil {
			return err
		}

		if !page.HasNext {
			return nil
		}
	}
}

// List returns every item of the listing in page order, then document
// order within each page.
func (l *Lister) List(ctx context.Context, root string) ([]Item, error) {
	start := time.Now()
	items := []Item{}
	pages := 0

	err := l.Walk(ctx, root, func(p *Page) error {
		items = append(items, p.Items...)
		pages++
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("root", root).
		Int("pages", pages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Listing complete")

	return items, nil
}
