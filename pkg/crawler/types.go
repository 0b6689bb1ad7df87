package crawler

import (
	"context"
	"time"

	"github.com/sitewise-ai/sitewise/pkg/fetch"
	"github.com/sitewise-ai/sitewise/pkg/resource"
)

// Store is the slice of persistence a crawl pass writes to.
type Store interface {
	CreateSiteIndex(ctx context.Context, idx *resource.SiteIndex) error
	GetSiteIndexByResource(ctx context.Context, resourceID string) (*resource.SiteIndex, error)
	UpdateSiteIndexStatus(ctx context.Context, id string, status resource.Status, pagesCrawled int, lastError string) error
	UpsertEntry(ctx context.Context, e *resource.Entry) error
	SetResourceSiteIndex(ctx context.Context, id, siteIndexID string) error
}

// PageCache receives every fetched body so retrieval can serve it later
// without refetching.
type PageCache interface {
	Put(ctx context.Context, url string, body []byte) error
}

// Fetcher is the single-page fetch contract, satisfied by fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Report summarizes a finished crawl pass.
type Report struct {
	SiteIndexID  string
	PagesCrawled int
	PagesSkipped int
	ContentSize  int64
	Keywords     []string
	Elapsed      time.Duration
}

type pageResult struct {
	url      string
	depth    int
	err      error
	entry    *resource.Entry
	body     []byte
	outlinks []string
}
