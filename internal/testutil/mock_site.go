// Package testutil provides testing utilities for the listing downloader.
package testutil

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ResolvePath is the resolution endpoint path served by MockSite.
const ResolvePath = "/revision/play/v1/audio"

// MockItem is one anchor rendered into a mock listing page.
type MockItem struct {
	ID   int64
	Name string
}

// MockPage describes one listing page.
type MockPage struct {
	Items   []MockItem
	HasNext bool
}

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSite is a configurable mock of the listing site, its resolution API
// and its media host, all served from one httptest server.
type MockSite struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	resolves map[string]MockResponse

	// Tracking
	RequestCount      int
	ResolveCount      int
	Paths             []string
	LastRequestHeader http.Header
}

// NewMockSite creates a new mock site server.
func NewMockSite() *MockSite {
	mock := &MockSite{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		resolves: make(map[string]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Paths = append(mock.Paths, r.URL.Path)
		mock.LastRequestHeader = r.Header.Clone()
		if r.URL.Path == ResolvePath {
			mock.ResolveCount++
		}
		mock.mu.Unlock()

		if r.URL.Path == ResolvePath {
			mock.resolveHandler(w, r)
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSite) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSite) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSite) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ResolveCount = 0
	m.Paths = nil
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSite) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockSite) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, responseHandler(resp))
}

// SetPages serves pages as <albumPath>/p1/, <albumPath>/p2/, ...
func (m *MockSite) SetPages(albumPath string, pages ...MockPage) {
	albumPath = strings.TrimRight(albumPath, "/")
	for i, p := range pages {
		m.SetResponse(fmt.Sprintf("%s/p%d/", albumPath, i+1), MockResponse{
			StatusCode: http.StatusOK,
			Body:       ListingHTML(albumPath, p),
			Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
		})
	}
}

// SetResolution configures the resolution endpoint response for id.
func (m *MockSite) SetResolution(id int64, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolves[strconv.FormatInt(id, 10)] = resp
}

// SetMedia serves body at path and makes id resolve to it.
func (m *MockSite) SetMedia(id int64, path, body string) {
	m.SetResponse(path, MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "audio/mp4"},
	})
	m.SetResolution(id, NewResolvedResponse(m.URL()+path))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSite) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetResolveCount returns the number of resolution endpoint calls.
func (m *MockSite) GetResolveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ResolveCount
}

// GetPaths returns the requested paths in arrival order.
func (m *MockSite) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Paths...)
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockSite) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// resolveHandler dispatches on the id query parameter.
func (m *MockSite) resolveHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	resp, exists := m.resolves[r.URL.Query().Get("id")]
	m.mu.RUnlock()

	if !exists || r.URL.Query().Get("ptype") != "1" {
		resp = NewFailedResolution(404)
	}
	responseHandler(resp)(w, r)
}

func responseHandler(resp MockResponse) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		// Add delay if specified
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// ListingHTML renders a listing page in the album markup.
func ListingHTML(albumPath string, p MockPage) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>album</title></head><body>\n")
	b.WriteString(`<div class="sound-list"><ul>` + "\n")
	for _, it := range p.Items {
		fmt.Fprintf(&b, `<li><div class="text"><a href="%s/%d" title="%s">%s</a></div></li>`+"\n",
			albumPath, it.ID, html.EscapeString(it.Name), html.EscapeString(it.Name))
	}
	b.WriteString("</ul></div>\n")
	b.WriteString(`<ul class="pagination">`)
	if p.HasNext {
		b.WriteString(`<li class="page-next"><a href="#">next</a></li>`)
	}
	b.WriteString("</ul>\n</body></html>\n")
	return b.String()
}

// NewResolvedResponse creates a successful resolution envelope.
func NewResolvedResponse(src string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"ret":200,"data":{"src":%q}}`, src),
		Headers:    map[string]string{"Content-Type": "application/json;charset=UTF-8"},
	}
}

// NewFailedResolution creates an envelope with a non-success ret and null data.
func NewFailedResolution(ret int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"ret":%d,"data":null}`, ret),
		Headers:    map[string]string{"Content-Type": "application/json;charset=UTF-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}
