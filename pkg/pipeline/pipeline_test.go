package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/xmly-dl/internal/testutil"
	"github.com/Sternrassler/xmly-dl/pkg/client"
	"github.com/Sternrassler/xmly-dl/pkg/download"
	"github.com/Sternrassler/xmly-dl/pkg/pagination"
	"github.com/Sternrassler/xmly-dl/pkg/resolve"
)

func setupOrchestrator(t *testing.T) (*Orchestrator, *testutil.MockSite, string) {
	t.Helper()

	site := testutil.NewMockSite()
	t.Cleanup(site.Close)

	c, err := client.New(client.DefaultConfig(site.URL() + "/"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	r, err := resolve.New(c, resolve.Config{APIBase: site.URL()})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	outputRoot := filepath.Join(t.TempDir(), "result")
	o := New(
		pagination.NewLister(pagination.NewHTTPFetcher(c), pagination.DefaultSelectors()),
		r,
		download.New(c),
		Config{OutputRoot: outputRoot},
	)

	return o, site, outputRoot
}

func TestSaveDir(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		expected string
		wantErr  bool
	}{
		{name: "album", root: "https://www.example.com/waiyu/14359664", expected: filepath.Join("result", "14359664")},
		{name: "trailing slash", root: "https://www.example.com/waiyu/14359664/", expected: filepath.Join("result", "14359664")},
		{name: "query ignored", root: "https://www.example.com/coll/7?x=1", expected: filepath.Join("result", "7")},
		{name: "no path", root: "https://www.example.com", wantErr: true},
		{name: "dot dot", root: "https://www.example.com/a/..", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SaveDir("result", tt.root)
			if tt.wantErr {
				if err == nil {
					t.Errorf("SaveDir(%q) = %q, want error", tt.root, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SaveDir() failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("SaveDir() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRun_EndToEnd(t *testing.T) {
	o, site, outputRoot := setupOrchestrator(t)

	site.SetPages("/coll/99",
		testutil.MockPage{
			Items:   []testutil.MockItem{{ID: 1, Name: "One"}, {ID: 2, Name: "Two"}},
			HasNext: true,
		},
		testutil.MockPage{
			Items: []testutil.MockItem{{ID: 3, Name: "Three"}},
		},
	)
	site.SetMedia(1, "/media/a.m4a", "first")
	site.SetMedia(2, "/media/b.mp3", "second")
	site.SetMedia(3, "/media/c", "third")

	result, err := o.Run(context.Background(), site.URL()+"/coll/99")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	expectedDir, _ := filepath.Abs(filepath.Join(outputRoot, "99"))
	if result.Dir != expectedDir {
		t.Errorf("Dir = %q, want %q", result.Dir, expectedDir)
	}
	if !filepath.IsAbs(result.Dir) {
		t.Errorf("Dir %q is not absolute", result.Dir)
	}
	if result.Items != 3 || result.Succeeded != 3 || result.Failed != 0 {
		t.Errorf("Result = %+v", result)
	}
	if result.Bytes != int64(len("first")+len("second")+len("third")) {
		t.Errorf("Bytes = %d", result.Bytes)
	}

	files := map[string]string{
		"1-One.m4a": "first",
		"2-Two.mp3": "second",
		"3-Three":   "third",
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(result.Dir, name))
		if err != nil {
			t.Errorf("Missing %s: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	if site.GetResolveCount() != 3 {
		t.Errorf("ResolveCount = %d, want 3", site.GetResolveCount())
	}
}

func TestRun_FailedItemDoesNotCancelSiblings(t *testing.T) {
	o, site, _ := setupOrchestrator(t)

	var items []testutil.MockItem
	for id := int64(1); id <= 5; id++ {
		items = append(items, testutil.MockItem{ID: id, Name: fmt.Sprintf("item%d", id)})
		if id == 3 {
			site.SetResolution(id, testutil.NewFailedResolution(500))
			continue
		}
		site.SetMedia(id, fmt.Sprintf("/media/%d.m4a", id), fmt.Sprintf("body-%d", id))
	}
	site.SetPages("/coll/5", testutil.MockPage{Items: items})

	result, err := o.Run(context.Background(), site.URL()+"/coll/5")
	if err == nil {
		t.Fatal("Expected run to fail")
	}

	var itemErr *ItemError
	if !errors.As(err, &itemErr) {
		t.Fatalf("Expected *ItemError, got %T: %v", err, err)
	}
	if itemErr.Item.ID != 3 || itemErr.Stage != StageResolve {
		t.Errorf("ItemError = %+v", itemErr)
	}

	var resErr *resolve.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Expected *resolve.ResolutionError in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), `{"ret":500,"data":null}`) {
		t.Errorf("Error %q does not carry the raw envelope", err.Error())
	}

	if result == nil {
		t.Fatal("Expected a result alongside the error")
	}
	if result.Succeeded != 4 || result.Failed != 1 {
		t.Errorf("Result = %+v", result)
	}

	for id := int64(1); id <= 5; id++ {
		_, statErr := os.Stat(filepath.Join(result.Dir, fmt.Sprintf("%d-item%d.m4a", id, id)))
		if id == 3 {
			if statErr == nil {
				t.Error("Failed item must not produce a file")
			}
			continue
		}
		if statErr != nil {
			t.Errorf("Sibling %d not downloaded: %v", id, statErr)
		}
	}
}

func TestRun_DownloadStageFailure(t *testing.T) {
	o, site, _ := setupOrchestrator(t)

	site.SetPages("/coll/8", testutil.MockPage{Items: []testutil.MockItem{{ID: 8, Name: "gone"}}})
	site.SetResolution(8, testutil.NewResolvedResponse(site.URL()+"/media/missing.m4a"))

	_, err := o.Run(context.Background(), site.URL()+"/coll/8")

	var itemErr *ItemError
	if !errors.As(err, &itemErr) {
		t.Fatalf("Expected *ItemError, got %T: %v", err, err)
	}
	if itemErr.Stage != StageDownload {
		t.Errorf("Stage = %q, want %q", itemErr.Stage, StageDownload)
	}

	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		t.Errorf("Expected *client.StatusError in chain, got %v", err)
	}
}

func TestRun_SecondRunOverwrites(t *testing.T) {
	o, site, _ := setupOrchestrator(t)

	site.SetPages("/coll/2", testutil.MockPage{Items: []testutil.MockItem{{ID: 1, Name: "x"}}})
	site.SetMedia(1, "/media/x.m4a", "version one, longer")

	first, err := o.Run(context.Background(), site.URL()+"/coll/2")
	if err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}

	site.SetMedia(1, "/media/x.m4a", "v2")
	second, err := o.Run(context.Background(), site.URL()+"/coll/2")
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if first.Dir != second.Dir {
		t.Errorf("Dir changed between runs: %q vs %q", first.Dir, second.Dir)
	}

	got, _ := os.ReadFile(filepath.Join(second.Dir, "1-x.m4a"))
	if string(got) != "v2" {
		t.Errorf("content = %q, want %q", got, "v2")
	}
}

func TestRun_ListingErrorStartsNoDownloads(t *testing.T) {
	o, site, _ := setupOrchestrator(t)

	site.SetResponse("/coll/404/p1/", testutil.NewServerErrorResponse())

	result, err := o.Run(context.Background(), site.URL()+"/coll/404")
	if err == nil {
		t.Fatal("Expected listing error")
	}

	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		t.Errorf("Expected *client.StatusError, got %T: %v", err, err)
	}
	if site.GetResolveCount() != 0 {
		t.Errorf("ResolveCount = %d, want 0", site.GetResolveCount())
	}

	entries, _ := os.ReadDir(result.Dir)
	if len(entries) != 0 {
		t.Errorf("Expected empty save dir, found %d entries", len(entries))
	}
}

func TestRun_EmptyListing(t *testing.T) {
	o, site, _ := setupOrchestrator(t)

	site.SetPages("/coll/0", testutil.MockPage{})

	result, err := o.Run(context.Background(), site.URL()+"/coll/0")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Items != 0 || result.Succeeded != 0 {
		t.Errorf("Result = %+v", result)
	}
	if info, err := os.Stat(result.Dir); err != nil || !info.IsDir() {
		t.Errorf("Save dir %q should exist", result.Dir)
	}
}

// stubResolver lets a test observe the chain without HTTP.
type stubResolver struct{ err error }

func (s stubResolver) Resolve(_ context.Context, id int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("https://cdn.example/%d.m4a", id), nil
}

type stubLister struct{ items []pagination.Item }

func (s stubLister) List(context.Context, string) ([]pagination.Item, error) {
	return s.items, nil
}

type countingDownloader struct{ calls chan int64 }

func (d countingDownloader) Download(_ context.Context, item pagination.Item, _, _ string) (*download.File, error) {
	d.calls <- item.ID
	return &download.File{Bytes: 1}, nil
}

func TestRun_ResolveFailureSkipsDownload(t *testing.T) {
	calls := make(chan int64, 4)
	o := New(
		stubLister{items: []pagination.Item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}},
		stubResolver{err: errors.New("nope")},
		countingDownloader{calls: calls},
		Config{OutputRoot: filepath.Join(t.TempDir(), "result")},
	)

	result, err := o.Run(context.Background(), "https://www.example.com/coll/1")
	if err == nil {
		t.Fatal("Expected error")
	}
	if len(calls) != 0 {
		t.Errorf("Download called %d times, want 0", len(calls))
	}
	if result.Failed != 2 {
		t.Errorf("Failed = %d, want 2", result.Failed)
	}
}

// barrierResolver only answers once every item has entered Resolve.
type barrierResolver struct {
	arrived sync.WaitGroup
	timeout time.Duration
}

func (b *barrierResolver) Resolve(_ context.Context, id int64) (string, error) {
	b.arrived.Done()

	all := make(chan struct{})
	go func() {
		b.arrived.Wait()
		close(all)
	}()

	select {
	case <-all:
		return fmt.Sprintf("https://cdn.example/%d.m4a", id), nil
	case <-time.After(b.timeout):
		return "", fmt.Errorf("item %d: other chains never started", id)
	}
}

func TestRun_AllChainsInFlightTogether(t *testing.T) {
	const n = 50

	items := make([]pagination.Item, n)
	for i := range items {
		items[i] = pagination.Item{ID: int64(i + 1), Name: fmt.Sprintf("item%d", i+1)}
	}

	resolver := &barrierResolver{timeout: 5 * time.Second}
	resolver.arrived.Add(n)
	calls := make(chan int64, n)

	o := New(
		stubLister{items: items},
		resolver,
		countingDownloader{calls: calls},
		Config{OutputRoot: filepath.Join(t.TempDir(), "result")},
	)

	result, err := o.Run(context.Background(), "https://www.example.com/coll/50")
	if err != nil {
		t.Fatalf("Run() failed, chains were not launched together: %v", err)
	}
	if result.Succeeded != n {
		t.Errorf("Succeeded = %d, want %d", result.Succeeded, n)
	}
	if len(calls) != n {
		t.Errorf("Download called %d times, want %d", len(calls), n)
	}
}

func TestNew_DefaultOutputRoot(t *testing.T) {
	o := New(stubLister{}, stubResolver{}, countingDownloader{}, Config{})
	if o.config.OutputRoot != DefaultOutputRoot {
		t.Errorf("OutputRoot = %q, want %q", o.config.OutputRoot, DefaultOutputRoot)
	}
}
