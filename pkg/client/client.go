// Package client provides the site HTTP client used for listing pages,
// the resolution API and media streams. Every request carries the same
// browser identity headers.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for site requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmly_requests_total",
		Help: "Total site requests by kind and status",
	}, []string{"kind", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xmly_request_duration_seconds",
		Help:    "Time to response headers in seconds by kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xmly_errors_total",
		Help: "Total request errors by class",
	}, []string{"class"})
)

// DefaultUserAgent is a desktop browser identifier. The origin rejects
// requests that do not look like they come from a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Kind labels a request for metrics and logs.
type Kind string

const (
	// KindPage is a listing page fetch.
	KindPage Kind = "page"

	// KindAPI is a resolution endpoint call.
	KindAPI Kind = "api"

	// KindMedia is a media stream download.
	KindMedia Kind = "media"
)

// Client is the shared site client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent on every request (REQUIRED)
	UserAgent string

	// Referer header sent on every request (REQUIRED)
	// Format: "https://www.ximalaya.com/"
	Referer string

	// Timeout bounds the wait for response headers. The body read is not
	// covered, so long media streams are unaffected. Zero disables it.
	Timeout time.Duration
}

// DefaultConfig returns a configuration with a browser User-Agent and the
// given referer.
func DefaultConfig(referer string) Config {
	return Config{
		UserAgent: DefaultUserAgent,
		Referer:   referer,
		Timeout:   0,
	}
}

// New creates a new site client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Referer == "" {
		return nil, fmt.Errorf("referer is required")
	}

	if _, err := url.ParseRequestURI(cfg.Referer); err != nil {
		return nil, fmt.Errorf("referer must be an absolute URL (got %q)", cfg.Referer)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: newTransport(cfg.Timeout),
		},
		config: cfg,
		logger: log.With().Str("component", "site-client").Logger(),
	}, nil
}

func newTransport(headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = headerTimeout
	return t
}

// Do sends req with the identity headers applied. A network failure is
// returned as *TransportError and a non-2xx response as *StatusError; in
// both cases no response is returned. On success the caller owns the body.
func (c *Client) Do(req *http.Request, kind Kind) (*http.Response, error) {
	target := req.URL.String()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Referer", c.config.Referer)

	c.logger.Debug().
		Str("kind", string(kind)).
		Str("method", req.Method).
		Str("url", target).
		Msg("Executing request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(string(kind)).Observe(time.Since(startTime).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(string(kind), "network_error").Inc()
		c.logger.Debug().Err(err).Str("url", target).Msg("Request failed")
		return nil, &TransportError{
			Method: req.Method,
			URL:    target,
			Class:  ErrorClassNetwork,
			Err:    err,
		}
	}

	requestsTotal.WithLabelValues(string(kind), strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		resp.Body.Close()

		c.logger.Debug().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Request returned error status")

		return nil, &StatusError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Class:      errClass,
		}
	}

	return resp, nil
}

// Get performs a GET request. query may be nil.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, kind Kind) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if len(query) > 0 {
		q := req.URL.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	return c.Do(req, kind)
}

// GetBytes performs a GET request and reads the whole body.
func (c *Client) GetBytes(ctx context.Context, rawURL string, query url.Values, kind Kind) ([]byte, error) {
	resp, err := c.Get(ctx, rawURL, query, kind)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{
			Method: http.MethodGet,
			URL:    resp.Request.URL.String(),
			Class:  ErrorClassNetwork,
			Err:    fmt.Errorf("read body: %w", err),
		}
	}

	return body, nil
}
