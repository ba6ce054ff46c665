// Package resolve turns item identifiers into direct media locations using
// the site's resolution API.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/xmly-dl/pkg/cache"
	"github.com/Sternrassler/xmly-dl/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Path is the resolution endpoint path relative to the API base.
const Path = "/revision/play/v1/audio"

// RetSuccess is the only envelope status that means success.
const RetSuccess = 200

var resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "xmly_resolutions_total",
	Help: "Total item resolutions by result",
}, []string{"result"}) // "ok", "cached", "failed"

// Envelope is the resolution API response.
type Envelope struct {
	Ret  int      `json:"ret"`
	Data *Payload `json:"data"`
}

// Payload is the success payload of an Envelope.
type Payload struct {
	Src string `json:"src"`
}

// Cache stores successful resolutions. *cache.Manager implements it.
type Cache interface {
	Get(ctx context.Context, id int64) (string, error)
	Set(ctx context.Context, id int64, src string) error
}

var _ Cache = (*cache.Manager)(nil)

// Config holds the resolver configuration.
type Config struct {
	// APIBase is the scheme and host serving the resolution endpoint,
	// e.g. "https://www.ximalaya.com" (REQUIRED)
	APIBase string

	// Cache is optional; nil disables caching.
	Cache Cache
}

// Resolver resolves item identifiers. It is safe for concurrent use.
type Resolver struct {
	client   *client.Client
	endpoint string
	cache    Cache
	logger   zerolog.Logger
}

// New creates a new resolver.
func New(c *client.Client, cfg Config) (*Resolver, error) {
	if c == nil {
		return nil, fmt.Errorf("site client is required")
	}

	base, err := url.Parse(cfg.APIBase)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base must be an absolute URL (got %q)", cfg.APIBase)
	}

	return &Resolver{
		client:   c,
		endpoint: strings.TrimRight(cfg.APIBase, "/") + Path,
		cache:    cfg.Cache,
		logger:   log.With().Str("component", "resolver").Logger(),
	}, nil
}

// Endpoint returns the full resolution endpoint URL.
func (r *Resolver) Endpoint() string {
	return r.endpoint
}

// Resolve returns the direct media location of item id. It makes at most
// one API call and never retries.
func (r *Resolver) Resolve(ctx context.Context, id int64) (string, error) {
	if src, ok := r.cached(ctx, id); ok {
		resolutionsTotal.WithLabelValues("cached").Inc()
		return src, nil
	}

	query := url.Values{}
	query.Set("id", strconv.FormatInt(id, 10))
	query.Set("ptype", "1")

	body, err := r.client.GetBytes(ctx, r.endpoint, query, client.KindAPI)
	if err != nil {
		resolutionsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("resolve item %d: %w", id, err)
	}

	src, err := Decode(id, body)
	if err != nil {
		resolutionsTotal.WithLabelValues("failed").Inc()
		return "", err
	}

	resolutionsTotal.WithLabelValues("ok").Inc()
	r.logger.Debug().Int64("id", id).Str("src", src).Msg("Resolved item")

	if r.cache != nil {
		if err := r.cache.Set(ctx, id, src); err != nil {
			r.logger.Warn().Err(err).Int64("id", id).Msg("Failed to cache resolution")
		}
	}

	return src, nil
}

// Decode discriminates a raw envelope. Anything but ret == RetSuccess with
// a non-empty src is a *ResolutionError carrying body verbatim.
func Decode(id int64, body []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &ResolutionError{ID: id, Body: string(body), Err: fmt.Errorf("decode envelope: %w", err)}
	}

	if env.Ret != RetSuccess {
		return "", &ResolutionError{ID: id, Ret: env.Ret, Body: string(body)}
	}

	if env.Data == nil || env.Data.Src == "" {
		return "", &ResolutionError{ID: id, Ret: env.Ret, Body: string(body), Err: errMissingSource}
	}

	return env.Data.Src, nil
}

func (r *Resolver) cached(ctx context.Context, id int64) (string, bool) {
	if r.cache == nil {
		return "", false
	}

	src, err := r.cache.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn().Err(err).Int64("id", id).Msg("Cache get error")
		}
		return "", false
	}

	r.logger.Debug().Int64("id", id).Msg("Resolution cache hit")
	return src, true
}
