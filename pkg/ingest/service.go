package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/sitewise-ai/sitewise/pkg/resource"
)

// Queue is the dispatch side of the ingestion queue gateway.
type Queue interface {
	Enqueue(ctx context.Context, targetID string, kind resource.Kind) error
	TestConnection(ctx context.Context) bool
}

// Blobs holds uploaded bytes before the worker processes them.
type Blobs interface {
	Put(key string, data []byte) (string, error)
	Delete(key string) error
}

// Service owns the synchronous half of ingestion: registering a target,
// walking it to processing, and handing it to the queue. The crawl or
// extraction itself happens in the worker process.
type Service struct {
	registry *resource.Registry
	queue    Queue
	blobs    Blobs
}

func NewService(registry *resource.Registry, queue Queue, blobs Blobs) *Service {
	return &Service{registry: registry, queue: queue, blobs: blobs}
}

// AddWebsite registers a website URL and dispatches its first crawl.
func (s *Service) AddWebsite(ctx context.Context, tenantID, url string) (*resource.Resource, error) {
	r, err := s.registry.CreateResource(ctx, resource.CreateResourceInput{
		TenantID: tenantID,
		Kind:     resource.KindWebsiteURL,
		Source:   url,
	})
	if err != nil {
		return nil, err
	}
	return s.dispatchResource(ctx, r)
}

// AddRawHTML registers a raw HTML snippet: the markup goes to blob storage
// and the worker indexes it without crawling.
func (s *Service) AddRawHTML(ctx context.Context, tenantID string, html []byte) (*resource.Resource, error) {
	key := path.Join(tenantID, "raw", uuid.New().String()+".html")
	if _, err := s.blobs.Put(key, html); err != nil {
		return nil, fmt.Errorf("store raw html: %w", err)
	}

	r, err := s.registry.CreateResource(ctx, resource.CreateResourceInput{
		TenantID: tenantID,
		Kind:     resource.KindRawHTML,
		Source:   key,
	})
	if err != nil {
		return nil, err
	}
	return s.dispatchResource(ctx, r)
}

// AddScreenshot stores an uploaded screenshot. There is no OCR collaborator,
// so the worker completes it without extracted text.
func (s *Service) AddScreenshot(ctx context.Context, tenantID, name string, data []byte) (*resource.Resource, error) {
	key := path.Join(tenantID, "screenshots", uuid.New().String(), name)
	if _, err := s.blobs.Put(key, data); err != nil {
		return nil, fmt.Errorf("store screenshot: %w", err)
	}

	r, err := s.registry.CreateResource(ctx, resource.CreateResourceInput{
		TenantID: tenantID,
		Kind:     resource.KindScreenshot,
		Source:   key,
	})
	if err != nil {
		return nil, err
	}
	return s.dispatchResource(ctx, r)
}

// UploadDocument stores the file and dispatches extraction.
func (s *Service) UploadDocument(ctx context.Context, tenantID, name, mediaType string, data []byte) (*resource.Document, error) {
	key := path.Join(tenantID, "documents", uuid.New().String(), name)
	if _, err := s.blobs.Put(key, data); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	d, err := s.registry.CreateDocument(ctx, resource.CreateDocumentInput{
		TenantID:  tenantID,
		Name:      name,
		BlobKey:   key,
		MediaType: mediaType,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.registry.MarkDocumentStatus(ctx, d.ID, resource.StatusProcessing, ""); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, d.ID, resource.KindUploadedFile); err != nil {
		failed, ferr := s.registry.MarkDocumentStatus(ctx, d.ID, resource.StatusFailed, err.Error())
		if ferr != nil {
			slog.Error("could not mark document failed after enqueue error", slog.String("id", d.ID), slog.Any("err", ferr))
			return nil, err
		}
		return failed, nil
	}
	return s.registry.GetDocument(ctx, tenantID, d.ID)
}

// RequestReindex re-dispatches a settled resource. In-flight resources are
// rejected by the registry before anything is queued.
func (s *Service) RequestReindex(ctx context.Context, tenantID, id string) (*resource.Resource, error) {
	r, err := s.registry.RequestReindex(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.dispatchQueued(ctx, r)
}

// DeleteResource removes a resource and its derived artifacts. Blob removal
// is best-effort: an orphaned blob is shrinkage, not corruption.
func (s *Service) DeleteResource(ctx context.Context, tenantID, id string) error {
	r, err := s.registry.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.registry.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	if r.Kind == resource.KindRawHTML || r.Kind == resource.KindScreenshot {
		if err := s.blobs.Delete(r.Source); err != nil {
			slog.Warn("failed to delete resource blob", slog.String("key", r.Source), slog.Any("err", err))
		}
	}
	return nil
}

func (s *Service) DeleteDocument(ctx context.Context, tenantID, id string) error {
	d, err := s.registry.GetDocument(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.registry.DeleteDocument(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(d.BlobKey); err != nil {
		slog.Warn("failed to delete document blob", slog.String("key", d.BlobKey), slog.Any("err", err))
	}
	return nil
}

// dispatchResource walks a fresh pending resource through queued and
// processing, then enqueues it.
func (s *Service) dispatchResource(ctx context.Context, r *resource.Resource) (*resource.Resource, error) {
	r, err := s.registry.MarkStatus(ctx, r.ID, resource.StatusQueued, "")
	if err != nil {
		return nil, err
	}
	return s.dispatchQueued(ctx, r)
}

// dispatchQueued moves a queued resource to processing *before* the enqueue,
// closing the race where two dispatchers both observe a dispatchable status.
func (s *Service) dispatchQueued(ctx context.Context, r *resource.Resource) (*resource.Resource, error) {
	r, err := s.registry.MarkStatus(ctx, r.ID, resource.StatusProcessing, "")
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, r.ID, r.Kind); err != nil {
		failed, ferr := s.registry.MarkStatus(ctx, r.ID, resource.StatusFailed, fmt.Sprintf("queue dispatch failed: %s", err))
		if ferr != nil {
			slog.Error("could not mark resource failed after enqueue error", slog.String("id", r.ID), slog.Any("err", ferr))
			return nil, err
		}
		return failed, nil
	}
	return s.registry.Get(ctx, r.TenantID, r.ID)
}

func (s *Service) enqueue(ctx context.Context, targetID string, kind resource.Kind) error {
	// The probe is advisory only: a failing queue is logged and the enqueue
	// still attempted, so ingestion never blocks on a false negative.
	if !s.queue.TestConnection(ctx) {
		slog.Warn("queue connectivity self-test failed, attempting enqueue anyway", slog.String("target", targetID))
	}
	return s.queue.Enqueue(ctx, targetID, kind)
}
