// Package metrics provides the Prometheus registry reference for xmly-dl.
// All metrics are defined in their respective packages (client, pagination,
// resolve, download, cache) to maintain modularity and avoid circular
// dependencies.
//
// A CLI run is short-lived, so nothing is served over HTTP. WriteTextfile
// dumps the registry in the text exposition format for the node_exporter
// textfile collector.
package metrics

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Gatherer is the gatherer WriteTextfile reads from. All metrics are
// registered on the default registry via promauto in their own packages.
var Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes all gathered metrics to path. The file is written
// to a temporary name first and renamed, so a collector never reads a
// partial file.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics file path is required")
	}
	if !strings.HasSuffix(filepath.Base(path), ".prom") {
		return fmt.Errorf("metrics file %q must end in .prom", path)
	}

	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - xmly_requests_total{kind, status} (Counter): Requests by kind (page, api, media) and HTTP status
//   - xmly_request_duration_seconds{kind} (Histogram): Time to response headers by kind
//   - xmly_errors_total{class} (Counter): Errors by class (client, server, network, unexpected)
//
// Listing Metrics (pkg/pagination):
//   - xmly_pages_fetched_total (Counter): Listing pages fetched and parsed
//   - xmly_items_discovered_total (Counter): Item links extracted from listing pages
//
// Resolution Metrics (pkg/resolve):
//   - xmly_resolutions_total{result} (Counter): Resolutions by result (ok, cached, failed)
//
// Download Metrics (pkg/download):
//   - xmly_downloads_total{result} (Counter): Downloads by result (ok, failed)
//   - xmly_download_bytes_total (Counter): Media bytes written to disk
//
// Cache Metrics (pkg/cache):
//   - xmly_cache_hits_total (Counter): Resolution cache hits
//   - xmly_cache_misses_total (Counter): Resolution cache misses
//   - xmly_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Resolution failure ratio
//   sum(xmly_resolutions_total{result="failed"}) / sum(xmly_resolutions_total)
//
//   # Downloaded volume
//   xmly_download_bytes_total
//
//   # P95 media response latency
//   histogram_quantile(0.95, rate(xmly_request_duration_seconds_bucket{kind="media"}[5m]))
