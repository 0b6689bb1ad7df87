package worker

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
	"github.com/sitewise-ai/sitewise/pkg/queue"
	"github.com/sitewise-ai/sitewise/pkg/resource"
	"github.com/sitewise-ai/sitewise/pkg/storage"
)

type mapBlobs map[string][]byte

func (b mapBlobs) Get(key string) ([]byte, error) {
	data, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("no blob %q", key)
	}
	return data, nil
}

type noJobs struct{}

func (noJobs) Claim(ctx context.Context) (*queue.Job, error) { return nil, queue.ErrEmpty }
func (noJobs) Complete(ctx context.Context, jobID int64) error { return nil }
func (noJobs) Fail(ctx context.Context, jobID int64, errMsg string) error { return nil }
func (noJobs) RequeueStuck(ctx context.Context, horizon time.Duration, maxAttempts int) ([]queue.Job, []queue.Job, error) {
	return nil, nil, nil
}

type noWait struct{}

func (noWait) Wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
}

type fetchErr struct{ err error }

func (f fetchErr) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	return nil, f.err
}

func newTestWorker(t *testing.T, fetcher crawler.Fetcher, blobs mapBlobs) (*Worker, *resource.Registry, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	registry := resource.NewRegistry(store)
	builder := crawler.New(store, fetcher, pagecache.New(store, time.Hour),
		crawler.WithWorkers(1), crawler.WithDeadline(10*time.Second))
	w := New(noJobs{}, noWait{}, registry, builder, blobs, store, Config{})
	return w, registry, store
}

func processingResource(t *testing.T, registry *resource.Registry, kind resource.Kind, source string) *resource.Resource {
	t.Helper()
	ctx := context.Background()
	r, err := registry.CreateResource(ctx, resource.CreateResourceInput{
		TenantID: "tenant-1", Kind: kind, Source: source,
	})
	require.NoError(t, err)
	_, err = registry.MarkStatus(ctx, r.ID, resource.StatusProcessing, "")
	require.NoError(t, err)
	return r
}

func TestDispatchCrawlsWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Acme Docs</title><meta name="description" content="All the docs."></head><body><p>docs</p></body></html>`)
	}))
	defer srv.Close()

	w, registry, _ := newTestWorker(t, fetch.New(fetch.WithRateLimit(1000)), mapBlobs{})
	r := processingResource(t, registry, resource.KindWebsiteURL, srv.URL)

	err := w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: r.ID, Kind: resource.KindWebsiteURL})
	require.NoError(t, err)

	updated, err := registry.Get(context.Background(), "tenant-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusCompleted, updated.Status)
	assert.Equal(t, 1, updated.PagesCrawled)
	assert.Contains(t, updated.Keywords, "docs")
	assert.Greater(t, updated.ContentSize, int64(0))
}

func TestDispatchCrawlFailureMarksResourceFailed(t *testing.T) {
	rootErr := &fetch.Error{URL: "https://down.example/", StatusCode: 503, Err: fetch.ErrBadStatus}
	w, registry, _ := newTestWorker(t, fetchErr{err: rootErr}, mapBlobs{})
	r := processingResource(t, registry, resource.KindWebsiteURL, "https://down.example/")

	err := w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: r.ID, Kind: resource.KindWebsiteURL})
	require.Error(t, err)

	updated, err := registry.Get(context.Background(), "tenant-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusFailed, updated.Status)
	assert.Contains(t, updated.Error, "status 503")
}

func TestDispatchIndexesRawHTML(t *testing.T) {
	blobs := mapBlobs{"tenant-1/raw/x.html": []byte(`<html><head><title>Pasted</title></head><body><p>Raw content.</p></body></html>`)}
	w, registry, _ := newTestWorker(t, fetchErr{err: fetch.ErrBadURL}, blobs)
	r := processingResource(t, registry, resource.KindRawHTML, "tenant-1/raw/x.html")

	err := w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: r.ID, Kind: resource.KindRawHTML})
	require.NoError(t, err)

	updated, err := registry.Get(context.Background(), "tenant-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusCompleted, updated.Status)
	assert.Equal(t, 1, updated.PagesCrawled)
}

func TestDispatchRawHTMLMissingBlob(t *testing.T) {
	w, registry, _ := newTestWorker(t, fetchErr{err: fetch.ErrBadURL}, mapBlobs{})
	r := processingResource(t, registry, resource.KindRawHTML, "tenant-1/raw/missing.html")

	err := w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: r.ID, Kind: resource.KindRawHTML})
	require.Error(t, err)

	updated, err := registry.Get(context.Background(), "tenant-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusFailed, updated.Status)
}

func TestDispatchCompletesScreenshot(t *testing.T) {
	w, registry, _ := newTestWorker(t, fetchErr{err: fetch.ErrBadURL}, mapBlobs{})
	r := processingResource(t, registry, resource.KindScreenshot, "tenant-1/screenshots/x/shot.png")

	err := w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: r.ID, Kind: resource.KindScreenshot})
	require.NoError(t, err)

	updated, err := registry.Get(context.Background(), "tenant-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusCompleted, updated.Status)
}

func TestDispatchExtractsDocument(t *testing.T) {
	blobs := mapBlobs{"tenant-1/documents/x/handbook.txt": []byte("Employees get twenty vacation days.")}
	w, registry, _ := newTestWorker(t, fetchErr{err: fetch.ErrBadURL}, blobs)

	d, err := registry.CreateDocument(context.Background(), resource.CreateDocumentInput{
		TenantID: "tenant-1", Name: "handbook.txt",
		BlobKey: "tenant-1/documents/x/handbook.txt", MediaType: "text/plain",
	})
	require.NoError(t, err)

	err = w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: d.ID, Kind: resource.KindUploadedFile})
	require.NoError(t, err)

	updated, err := registry.GetDocument(context.Background(), "tenant-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusCompleted, updated.Status)
	require.NotNil(t, updated.Text)
	assert.Equal(t, "Employees get twenty vacation days.", *updated.Text)
	assert.Contains(t, updated.Keywords, "vacation")
	assert.Contains(t, updated.Keywords, "handbook")
}

func TestDispatchDocumentExtractionFailure(t *testing.T) {
	blobs := mapBlobs{"tenant-1/documents/x/report.pdf": []byte("%PDF-1.4")}
	w, registry, _ := newTestWorker(t, fetchErr{err: fetch.ErrBadURL}, blobs)

	d, err := registry.CreateDocument(context.Background(), resource.CreateDocumentInput{
		TenantID: "tenant-1", Name: "report.pdf",
		BlobKey: "tenant-1/documents/x/report.pdf", MediaType: "application/pdf",
	})
	require.NoError(t, err)

	err = w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: d.ID, Kind: resource.KindUploadedFile})
	require.Error(t, err)

	updated, err := registry.GetDocument(context.Background(), "tenant-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusFailed, updated.Status)
	assert.Contains(t, updated.Error, "unsupported media type")
	assert.Nil(t, updated.Text)

	// The original blob is still there for a later retry.
	_, err = blobs.Get(d.BlobKey)
	require.NoError(t, err)
}

func TestDispatchUnknownKind(t *testing.T) {
	w, _, _ := newTestWorker(t, fetchErr{err: fetch.ErrBadURL}, mapBlobs{})

	err := w.dispatch(context.Background(), &queue.Job{ID: 1, TargetID: "x", Kind: resource.Kind("mystery")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job kind")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	w, _, _ := newTestWorker(t, fetchErr{err: fetch.ErrBadURL}, mapBlobs{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
