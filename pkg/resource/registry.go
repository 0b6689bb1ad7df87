package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrIngestInFlight rejects a re-index while a crawl or extraction for
	// the same target is already underway (the debounce guarantee).
	ErrIngestInFlight = errors.New("ingestion already in flight")

	// ErrInvalidTransition is returned when a status change loses its
	// compare-and-swap against the stored row and the stored status is not
	// the requested one.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the persistence the registry needs. Implemented by
// storage.Postgres and storage.Memory.
type Store interface {
	CreateResource(ctx context.Context, r *Resource) error
	GetResource(ctx context.Context, tenantID, id string) (*Resource, error)
	GetResourceAny(ctx context.Context, id string) (*Resource, error)
	ListResources(ctx context.Context, tenantID string) ([]*Resource, error)
	CompareAndSwapResourceStatus(ctx context.Context, id string, from []Status, to Status, errMsg string) (bool, error)
	SetResourceCrawlStats(ctx context.Context, id string, pagesCrawled int, contentSize int64, keywords []string) error
	DeleteResource(ctx context.Context, tenantID, id string) error

	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, tenantID, id string) (*Document, error)
	GetDocumentAny(ctx context.Context, id string) (*Document, error)
	CompareAndSwapDocumentStatus(ctx context.Context, id string, from []Status, to Status, errMsg string) (bool, error)
	SetDocumentText(ctx context.Context, id, text string, keywords []string) error
	DeleteDocument(ctx context.Context, tenantID, id string) error
}

// allowedPrior maps a target status to the statuses it may be entered from
// via MarkStatus. The completed -> queued edge is reserved for
// RequestReindex and deliberately absent here.
var allowedPrior = map[Status][]Status{
	StatusQueued:     {StatusPending},
	StatusProcessing: {StatusPending, StatusQueued},
	StatusCrawling:   {StatusQueued, StatusProcessing},
	StatusCompleted:  {StatusProcessing, StatusCrawling},
	StatusFailed:     {StatusPending, StatusQueued, StatusProcessing, StatusCrawling},
	StatusUnknown:    {StatusPending, StatusQueued, StatusProcessing, StatusCrawling},
}

// reindexablePrior are the statuses a user-triggered re-index may start from.
var reindexablePrior = []Status{StatusCompleted, StatusFailed, StatusUnknown, StatusPending}

// Registry owns every status mutation of resources and documents. All
// transitions go through conditional updates on the stored row, so multiple
// server and worker processes stay consistent without shared memory.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

type CreateResourceInput struct {
	TenantID string
	Kind     Kind
	Source   string
}

func (g *Registry) CreateResource(ctx context.Context, input CreateResourceInput) (*Resource, error) {
	now := time.Now().UTC()
	r := &Resource{
		ID:        uuid.New().String(),
		TenantID:  input.TenantID,
		Kind:      input.Kind,
		Source:    input.Source,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.CreateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	slog.Info("resource created",
		slog.String("id", r.ID),
		slog.String("tenant", r.TenantID),
		slog.String("kind", string(r.Kind)),
	)
	return r, nil
}

// MarkStatus moves a resource to the given status. Setting the status it
// already has is a no-op success. An errMsg is stored only alongside failed
// and unknown.
func (g *Registry) MarkStatus(ctx context.Context, id string, to Status, errMsg string) (*Resource, error) {
	current, err := g.store.GetResourceAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}

	prior, ok := allowedPrior[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	swapped, err := g.store.CompareAndSwapResourceStatus(ctx, id, prior, to, errMsg)
	if err != nil {
		return nil, fmt.Errorf("mark status: %w", err)
	}
	if !swapped {
		// Lost the race. If someone else already set the same status the
		// call is still an idempotent success.
		current, err = g.store.GetResourceAny(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status != to {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		return current, nil
	}

	slog.Info("resource status changed",
		slog.String("id", id),
		slog.String("status", string(to)),
		slog.String("error", errMsg),
	)
	return g.store.GetResourceAny(ctx, id)
}

// RequestReindex moves a settled resource back to queued. Returns
// ErrIngestInFlight, without mutating anything, while a prior run is still
// queued, processing or crawling.
func (g *Registry) RequestReindex(ctx context.Context, tenantID, id string) (*Resource, error) {
	r, err := g.store.GetResource(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if r.Status.InFlight() {
		return nil, ErrIngestInFlight
	}

	swapped, err := g.store.CompareAndSwapResourceStatus(ctx, id, reindexablePrior, StatusQueued, "")
	if err != nil {
		return nil, fmt.Errorf("request reindex: %w", err)
	}
	if !swapped {
		// A concurrent request won; whatever it started counts as in flight.
		return nil, ErrIngestInFlight
	}

	slog.Info("reindex requested", slog.String("id", id), slog.String("tenant", tenantID))
	return g.store.GetResourceAny(ctx, id)
}

func (g *Registry) Get(ctx context.Context, tenantID, id string) (*Resource, error) {
	return g.store.GetResource(ctx, tenantID, id)
}

func (g *Registry) List(ctx context.Context, tenantID string) ([]*Resource, error) {
	return g.store.ListResources(ctx, tenantID)
}

// Delete removes the resource and, through the store, its site index and
// entries. Shared page cache rows stay: they belong to no one.
func (g *Registry) Delete(ctx context.Context, tenantID, id string) error {
	return g.store.DeleteResource(ctx, tenantID, id)
}

// SetCrawlStats records the outcome of a finished crawl pass.
func (g *Registry) SetCrawlStats(ctx context.Context, id string, pagesCrawled int, contentSize int64, keywords []string) error {
	return g.store.SetResourceCrawlStats(ctx, id, pagesCrawled, contentSize, keywords)
}

type CreateDocumentInput struct {
	TenantID  string
	Name      string
	BlobKey   string
	MediaType string
}

func (g *Registry) CreateDocument(ctx context.Context, input CreateDocumentInput) (*Document, error) {
	now := time.Now().UTC()
	d := &Document{
		ID:        uuid.New().String(),
		TenantID:  input.TenantID,
		Name:      input.Name,
		BlobKey:   input.BlobKey,
		MediaType: input.MediaType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.CreateDocument(ctx, d); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	slog.Info("document created", slog.String("id", d.ID), slog.String("tenant", d.TenantID), slog.String("name", d.Name))
	return d, nil
}

// MarkDocumentStatus mirrors MarkStatus for uploaded documents, which only
// pass through pending -> processing -> completed|failed.
func (g *Registry) MarkDocumentStatus(ctx context.Context, id string, to Status, errMsg string) (*Document, error) {
	current, err := g.store.GetDocumentAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}

	prior, ok := allowedPrior[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	swapped, err := g.store.CompareAndSwapDocumentStatus(ctx, id, prior, to, errMsg)
	if err != nil {
		return nil, fmt.Errorf("mark document status: %w", err)
	}
	if !swapped {
		current, err = g.store.GetDocumentAny(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status != to {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
	}
	return g.store.GetDocumentAny(ctx, id)
}

func (g *Registry) GetDocument(ctx context.Context, tenantID, id string) (*Document, error) {
	return g.store.GetDocument(ctx, tenantID, id)
}

func (g *Registry) SetDocumentText(ctx context.Context, id, text string, keywords []string) error {
	return g.store.SetDocumentText(ctx, id, text, keywords)
}

func (g *Registry) DeleteDocument(ctx context.Context, tenantID, id string) error {
	return g.store.DeleteDocument(ctx, tenantID, id)
}
