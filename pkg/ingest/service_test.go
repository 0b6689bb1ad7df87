package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise-ai/sitewise/pkg/ingest"
	"github.com/sitewise-ai/sitewise/pkg/resource"
	"github.com/sitewise-ai/sitewise/pkg/storage"
)

// fakeQueue is an in-memory queue gateway for dispatch tests.
type fakeQueue struct {
	enqueued   []string
	enqueueErr error
	probeOK    bool
	probes     int
}

func (q *fakeQueue) Enqueue(ctx context.Context, targetID string, kind resource.Kind) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, targetID)
	return nil
}

func (q *fakeQueue) TestConnection(ctx context.Context) bool {
	q.probes++
	return q.probeOK
}

// fakeBlobs stores blobs in a map.
type fakeBlobs struct {
	data map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: make(map[string][]byte)}
}

func (b *fakeBlobs) Put(key string, data []byte) (string, error) {
	b.data[key] = data
	return "file:///" + key, nil
}

func (b *fakeBlobs) Delete(key string) error {
	delete(b.data, key)
	return nil
}

func newTestService(queue *fakeQueue) (*ingest.Service, *resource.Registry, *fakeBlobs) {
	registry := resource.NewRegistry(storage.NewMemory())
	blobs := newFakeBlobs()
	return ingest.NewService(registry, queue, blobs), registry, blobs
}

func TestAddWebsiteDispatches(t *testing.T) {
	queue := &fakeQueue{probeOK: true}
	svc, _, _ := newTestService(queue)

	r, err := svc.AddWebsite(context.Background(), "tenant-1", "https://acme.example/")
	require.NoError(t, err)
	assert.Equal(t, resource.StatusProcessing, r.Status)
	assert.Equal(t, []string{r.ID}, queue.enqueued)
}

func TestAddWebsiteEnqueueFailureMarksFailed(t *testing.T) {
	queue := &fakeQueue{probeOK: true, enqueueErr: errors.New("connection refused")}
	svc, _, _ := newTestService(queue)

	r, err := svc.AddWebsite(context.Background(), "tenant-1", "https://acme.example/")
	require.NoError(t, err)
	assert.Equal(t, resource.StatusFailed, r.Status)
	assert.Contains(t, r.Error, "queue dispatch failed")
	assert.Contains(t, r.Error, "connection refused")
}

func TestFailedProbeDoesNotBlockEnqueue(t *testing.T) {
	queue := &fakeQueue{probeOK: false}
	svc, _, _ := newTestService(queue)

	r, err := svc.AddWebsite(context.Background(), "tenant-1", "https://acme.example/")
	require.NoError(t, err)
	assert.Equal(t, resource.StatusProcessing, r.Status)
	assert.Equal(t, 1, queue.probes)
	assert.Len(t, queue.enqueued, 1)
}

func TestAddRawHTMLStoresBlob(t *testing.T) {
	queue := &fakeQueue{probeOK: true}
	svc, _, blobs := newTestService(queue)

	r, err := svc.AddRawHTML(context.Background(), "tenant-1", []byte("<html>pasted</html>"))
	require.NoError(t, err)
	assert.Equal(t, resource.KindRawHTML, r.Kind)
	assert.Equal(t, resource.StatusProcessing, r.Status)
	require.Contains(t, blobs.data, r.Source)
	assert.Equal(t, []byte("<html>pasted</html>"), blobs.data[r.Source])
}

func TestUploadDocumentDispatches(t *testing.T) {
	queue := &fakeQueue{probeOK: true}
	svc, _, blobs := newTestService(queue)

	d, err := svc.UploadDocument(context.Background(), "tenant-1", "handbook.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, resource.StatusProcessing, d.Status)
	assert.Equal(t, []string{d.ID}, queue.enqueued)
	require.Contains(t, blobs.data, d.BlobKey)
}

func TestUploadDocumentEnqueueFailure(t *testing.T) {
	queue := &fakeQueue{probeOK: true, enqueueErr: errors.New("queue gone")}
	svc, _, blobs := newTestService(queue)

	d, err := svc.UploadDocument(context.Background(), "tenant-1", "handbook.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, resource.StatusFailed, d.Status)
	assert.Contains(t, d.Error, "queue gone")
	// The blob is kept for a later retry.
	require.Contains(t, blobs.data, d.BlobKey)
}

func TestRequestReindexDispatchesAgain(t *testing.T) {
	queue := &fakeQueue{probeOK: true}
	svc, registry, _ := newTestService(queue)
	ctx := context.Background()

	r, err := svc.AddWebsite(ctx, "tenant-1", "https://acme.example/")
	require.NoError(t, err)

	// The worker finishes the first pass.
	_, err = registry.MarkStatus(ctx, r.ID, resource.StatusCrawling, "")
	require.NoError(t, err)
	_, err = registry.MarkStatus(ctx, r.ID, resource.StatusCompleted, "")
	require.NoError(t, err)

	again, err := svc.RequestReindex(ctx, "tenant-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, resource.StatusProcessing, again.Status)
	assert.Equal(t, []string{r.ID, r.ID}, queue.enqueued)
}

func TestRequestReindexRejectedWhileProcessing(t *testing.T) {
	queue := &fakeQueue{probeOK: true}
	svc, _, _ := newTestService(queue)
	ctx := context.Background()

	r, err := svc.AddWebsite(ctx, "tenant-1", "https://acme.example/")
	require.NoError(t, err)
	require.Equal(t, resource.StatusProcessing, r.Status)

	_, err = svc.RequestReindex(ctx, "tenant-1", r.ID)
	require.ErrorIs(t, err, resource.ErrIngestInFlight)
	// No second job was queued by the rejected request.
	assert.Len(t, queue.enqueued, 1)
}

func TestDeleteResourceRemovesBlob(t *testing.T) {
	queue := &fakeQueue{probeOK: true}
	svc, _, blobs := newTestService(queue)
	ctx := context.Background()

	r, err := svc.AddRawHTML(ctx, "tenant-1", []byte("<html></html>"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteResource(ctx, "tenant-1", r.ID))
	assert.NotContains(t, blobs.data, r.Source)
}
