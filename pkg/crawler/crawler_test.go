package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise-ai/sitewise/pkg/crawler"
	"github.com/sitewise-ai/sitewise/pkg/fetch"
	"github.com/sitewise-ai/sitewise/pkg/pagecache"
	"github.com/sitewise-ai/sitewise/pkg/resource"
	"github.com/sitewise-ai/sitewise/pkg/storage"
)

// failingFetcher refuses every URL with the same error.
type failingFetcher struct {
	err error
}

func (f *failingFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	return nil, f.err
}

func page(title, desc, body string) string {
	return fmt.Sprintf(`<html><head><title>%s</title><meta name="description" content="%s"></head><body>%s</body></html>`, title, desc, body)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("Acme Home", "Everything Acme.",
				`<a href="/about">About</a> <a href="/pricing">Pricing</a> <a href="/about">About again</a> <a href="https://elsewhere.example/">External</a>`))
		case "/about":
			fmt.Fprint(w, page("About Acme", "Who we are.", `<a href="/">Home</a>`))
		case "/pricing":
			fmt.Fprint(w, page("Acme Pricing", "Plans and pricing.", `<a href="/">Home</a> <a href="/pricing">Self</a>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newWebsiteResource(t *testing.T, store *storage.Memory, source string) *resource.Resource {
	t.Helper()
	r := &resource.Resource{
		ID:       "res-1",
		TenantID: "tenant-1",
		Kind:     resource.KindWebsiteURL,
		Source:   source,
		Status:   resource.StatusCrawling,
	}
	require.NoError(t, store.CreateResource(context.Background(), r))
	return r
}

func TestBuildIndexesWholeSite(t *testing.T) {
	srv := newSite(t)
	store := storage.NewMemory()
	cache := pagecache.New(store, time.Hour)
	res := newWebsiteResource(t, store, srv.URL)

	b := crawler.New(store, fetch.New(fetch.WithRateLimit(1000)), cache,
		crawler.WithLimits(50, 3), crawler.WithWorkers(2), crawler.WithDeadline(30*time.Second))

	report, err := b.Build(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, 3, report.PagesCrawled)
	assert.NotEmpty(t, report.Keywords)
	assert.Contains(t, report.Keywords, "pricing")
	assert.Greater(t, report.ContentSize, int64(0))

	idx, err := store.GetSiteIndexByResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusCompleted, idx.Status)
	assert.Equal(t, 3, idx.PagesCrawled)
	assert.Empty(t, idx.LastError)

	entries, err := store.ListEntries(context.Background(), idx.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byURL := make(map[string]*resource.Entry, len(entries))
	for _, e := range entries {
		byURL[e.URL] = e
	}
	root, ok := byURL[srv.URL+"/"]
	require.True(t, ok, "missing root entry, got %v", byURL)
	assert.Equal(t, "Acme Home", root.Title)
	assert.Equal(t, "Everything Acme.", root.Description)
	assert.Contains(t, root.Keywords, "acme")

	// No entry for the external link.
	for url := range byURL {
		assert.Contains(t, url, srv.URL)
	}

	// Every crawled page landed in the cache.
	for url := range byURL {
		body, err := cache.Get(context.Background(), url)
		require.NoError(t, err, url)
		assert.NotEmpty(t, body)
	}
}

func TestBuildFailsWhenRootUnreachable(t *testing.T) {
	store := storage.NewMemory()
	cache := pagecache.New(store, time.Hour)
	res := newWebsiteResource(t, store, "https://unreachable.example/")

	rootErr := &fetch.Error{
		URL:        "https://unreachable.example/",
		StatusCode: http.StatusInternalServerError,
		Err:        fetch.ErrBadStatus,
	}
	b := crawler.New(store, &failingFetcher{err: rootErr}, cache,
		crawler.WithWorkers(1), crawler.WithDeadline(5*time.Second))

	report, err := b.Build(context.Background(), res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, 0, report.PagesCrawled)

	idx, err := store.GetSiteIndexByResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusFailed, idx.Status)
	assert.Contains(t, idx.LastError, "status 500")

	entries, err := store.ListEntries(context.Background(), idx.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildRespectsPageLimit(t *testing.T) {
	srv := newSite(t)
	store := storage.NewMemory()
	res := newWebsiteResource(t, store, srv.URL)

	b := crawler.New(store, fetch.New(fetch.WithRateLimit(1000)), pagecache.New(store, time.Hour),
		crawler.WithLimits(2, 3), crawler.WithWorkers(1), crawler.WithDeadline(30*time.Second))

	report, err := b.Build(context.Background(), res)
	require.NoError(t, err)
	assert.LessOrEqual(t, report.PagesCrawled, 2)
}

func TestBuildHonorsRobots(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		case "/":
			fmt.Fprint(w, page("Home", "Open part.", `<a href="/private">Secret</a> <a href="/about">About</a>`))
		case "/about":
			fmt.Fprint(w, page("About", "Still open.", ""))
		case "/private":
			fmt.Fprint(w, page("Private", "Should never be fetched.", ""))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := storage.NewMemory()
	res := newWebsiteResource(t, store, srv.URL)

	b := crawler.New(store, fetch.New(fetch.WithRateLimit(1000)), pagecache.New(store, time.Hour),
		crawler.WithWorkers(1), crawler.WithDeadline(30*time.Second))

	report, err := b.Build(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, 2, report.PagesCrawled)

	idx, err := store.GetSiteIndexByResource(context.Background(), res.ID)
	require.NoError(t, err)
	entries, err := store.ListEntries(context.Background(), idx.ID)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.URL, "/private")
	}
}

func TestBuildReindexReusesSiteIndex(t *testing.T) {
	srv := newSite(t)
	store := storage.NewMemory()
	res := newWebsiteResource(t, store, srv.URL)

	b := crawler.New(store, fetch.New(fetch.WithRateLimit(1000)), pagecache.New(store, time.Hour),
		crawler.WithWorkers(2), crawler.WithDeadline(30*time.Second))

	first, err := b.Build(context.Background(), res)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), res)
	require.NoError(t, err)

	// Same site index, entries replaced in place rather than duplicated.
	assert.Equal(t, first.SiteIndexID, second.SiteIndexID)
	entries, err := store.ListEntries(context.Background(), first.SiteIndexID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestBuildFromHTML(t *testing.T) {
	store := storage.NewMemory()
	res := &resource.Resource{
		ID:       "res-raw",
		TenantID: "tenant-1",
		Kind:     resource.KindRawHTML,
		Source:   "https://example.org/pasted",
		Status:   resource.StatusProcessing,
	}
	require.NoError(t, store.CreateResource(context.Background(), res))

	b := crawler.New(store, &failingFetcher{err: fetch.ErrBadURL}, pagecache.New(store, time.Hour))

	report, err := b.BuildFromHTML(context.Background(), res, []byte(page("Pasted Page", "Hand-delivered HTML.", "<p>content</p>")))
	require.NoError(t, err)
	assert.Equal(t, 1, report.PagesCrawled)
	assert.Contains(t, report.Keywords, "pasted")

	idx, err := store.GetSiteIndexByResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusCompleted, idx.Status)

	entries, err := store.ListEntries(context.Background(), idx.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Pasted Page", entries[0].Title)
}
