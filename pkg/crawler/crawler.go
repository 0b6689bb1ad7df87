package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise-ai/sitewise/pkg/process"
	"github.com/sitewise-ai/sitewise/pkg/resource"
)

// Builder runs one crawl pass for one website resource, producing its site
// index. Crawls are breadth-first, same-origin, robots-respecting and
// bounded by page count, depth and an overall deadline.
type Builder struct {
	store     Store
	fetcher   Fetcher
	cache     PageCache
	userAgent string
	maxPages  int
	maxDepth  int
	workers   int
	deadline  time.Duration
}

type Option func(*Builder)

func WithLimits(maxPages, maxDepth int) Option {
	return func(b *Builder) {
		b.maxPages = maxPages
		b.maxDepth = maxDepth
	}
}

func WithWorkers(n int) Option {
	return func(b *Builder) {
		b.workers = n
	}
}

func WithUserAgent(agent string) Option {
	return func(b *Builder) {
		b.userAgent = agent
	}
}

func WithDeadline(d time.Duration) Option {
	return func(b *Builder) {
		b.deadline = d
	}
}

func New(store Store, fetcher Fetcher, cache PageCache, opts ...Option) *Builder {
	b := &Builder{
		store:     store,
		fetcher:   fetcher,
		cache:     cache,
		userAgent: "SitewiseBot/1.0",
		maxPages:  100,
		maxDepth:  3,
		workers:   4,
		deadline:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build crawls the resource's base URL and upserts an entry per accepted
// page. A root fetch failure fails the whole pass; secondary page failures
// are logged and skipped, leaving a partial index.
func (b *Builder) Build(ctx context.Context, res *resource.Resource) (*Report, error) {
	start := time.Now()

	base, err := process.Normalize(res.Source)
	if err != nil {
		return nil, fmt.Errorf("normalize base url: %w", err)
	}

	idx, err := b.ensureSiteIndex(ctx, res, base)
	if err != nil {
		return nil, err
	}

	// The crawl itself runs under the deadline; final status writes use the
	// caller's context so a timed-out pass can still be recorded.
	crawlCtx, cancel := context.WithTimeout(ctx, b.deadline)
	defer cancel()

	robotsCache := make(process.RobotsCache)
	report := &Report{SiteIndexID: idx.ID}

	f := newFrontier()
	f.Push(base, 0)

	jobs := make(chan candidate, b.workers)
	results := make(chan pageResult, b.workers)
	for i := 0; i < b.workers; i++ {
		go b.worker(crawlCtx, base, jobs, results)
	}

	rootFailed := b.coordinate(crawlCtx, f, robotsCache, jobs, results, report)
	close(jobs)

	if rootFailed != nil {
		if err := b.store.UpdateSiteIndexStatus(ctx, idx.ID, resource.StatusFailed, report.PagesCrawled, rootFailed.Error()); err != nil {
			slog.Error("failed to record site index failure", slog.String("site_index", idx.ID), slog.Any("err", err))
		}
		return report, fmt.Errorf("crawl root %s: %w", base, rootFailed)
	}

	report.Elapsed = time.Since(start)
	if err := b.store.UpdateSiteIndexStatus(ctx, idx.ID, resource.StatusCompleted, report.PagesCrawled, ""); err != nil {
		return report, err
	}

	slog.Info("crawl complete",
		slog.String("resource", res.ID),
		slog.String("base_url", base),
		slog.Int("processed", report.PagesCrawled),
		slog.Int("skipped", report.PagesSkipped),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// coordinate dispatches frontier candidates to workers and folds results
// back in, keeping at most one queue slot per worker busy. Returns the root
// fetch error, if any.
func (b *Builder) coordinate(ctx context.Context, f *frontier, robotsCache process.RobotsCache, jobs chan<- candidate, results <-chan pageResult, report *Report) error {
	active := 0
	var keywords []string
	var rootErr error

	// After cancellation workers stop sending, so drain must not block
	// forever on a result that will never arrive.
	drain := func() {
		for active > 0 {
			select {
			case res := <-results:
				active--
				b.fold(ctx, res, f, report, &keywords, &rootErr)
			case <-time.After(100 * time.Millisecond):
				if ctx.Err() != nil {
					return
				}
			}
		}
	}

	var held *candidate
	for {
		if ctx.Err() != nil || rootErr != nil || report.PagesCrawled >= b.maxPages {
			drain()
			break
		}

		if held == nil {
			cand, ok := f.Pop()
			if !ok {
				if active == 0 {
					break
				}
				res := <-results
				active--
				b.fold(ctx, res, f, report, &keywords, &rootErr)
				continue
			}

			if cand.depth > b.maxDepth {
				report.PagesSkipped++
				continue
			}
			if !process.Allowed(cand.url, b.userAgent, robotsCache) {
				slog.Info("robots.txt disallowed", slog.String("url", cand.url))
				report.PagesSkipped++
				continue
			}
			held = &cand
		}

		select {
		case jobs <- *held:
			active++
			held = nil
		case res := <-results:
			active--
			b.fold(ctx, res, f, report, &keywords, &rootErr)
		case <-ctx.Done():
		}
	}

	sort.Strings(keywords)
	report.Keywords = dedupe(keywords)
	return rootErr
}

func (b *Builder) fold(ctx context.Context, res pageResult, f *frontier, report *Report, keywords *[]string, rootErr *error) {
	if res.err != nil {
		if res.depth == 0 {
			*rootErr = res.err
			return
		}
		report.PagesSkipped++
		slog.Warn("page skipped", slog.String("url", res.url), slog.Any("err", res.err))
		return
	}

	report.PagesCrawled++
	report.ContentSize += int64(len(res.body))
	*keywords = append(*keywords, res.entry.Keywords...)

	res.entry.SiteIndexID = report.SiteIndexID
	if err := b.store.UpsertEntry(ctx, res.entry); err != nil {
		slog.Error("failed to save entry", slog.String("url", res.url), slog.Any("err", err))
	}
	if err := b.cache.Put(ctx, res.url, res.body); err != nil {
		slog.Warn("failed to cache page", slog.String("url", res.url), slog.Any("err", err))
	}

	for _, link := range res.outlinks {
		if report.PagesCrawled+f.Len() >= b.maxPages {
			break
		}
		f.Push(link, res.depth+1)
	}
}

func (b *Builder) ensureSiteIndex(ctx context.Context, res *resource.Resource, base string) (*resource.SiteIndex, error) {
	idx, err := b.store.GetSiteIndexByResource(ctx, res.ID)
	if err == nil {
		if uerr := b.store.UpdateSiteIndexStatus(ctx, idx.ID, resource.StatusCrawling, idx.PagesCrawled, ""); uerr != nil {
			return nil, uerr
		}
		return idx, nil
	}

	idx = &resource.SiteIndex{
		ID:            uuid.New().String(),
		ResourceID:    res.ID,
		BaseURL:       base,
		Status:        resource.StatusCrawling,
		RobotsHonored: true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := b.store.CreateSiteIndex(ctx, idx); err != nil {
		return nil, fmt.Errorf("create site index: %w", err)
	}
	if err := b.store.SetResourceSiteIndex(ctx, res.ID, idx.ID); err != nil {
		return nil, err
	}
	return idx, nil
}

// BuildFromHTML indexes a raw-html resource without any network traffic:
// one entry derived from the supplied document.
func (b *Builder) BuildFromHTML(ctx context.Context, res *resource.Resource, htmlBody []byte) (*Report, error) {
	idx, err := b.ensureSiteIndex(ctx, res, res.Source)
	if err != nil {
		return nil, err
	}

	entry, _, err := buildEntry(res.Source, htmlBody, nil)
	if err != nil {
		if uerr := b.store.UpdateSiteIndexStatus(ctx, idx.ID, resource.StatusFailed, 0, err.Error()); uerr != nil {
			slog.Error("failed to record site index failure", slog.String("site_index", idx.ID), slog.Any("err", uerr))
		}
		return nil, err
	}
	entry.SiteIndexID = idx.ID
	if err := b.store.UpsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := b.store.UpdateSiteIndexStatus(ctx, idx.ID, resource.StatusCompleted, 1, ""); err != nil {
		return nil, err
	}

	return &Report{
		SiteIndexID:  idx.ID,
		PagesCrawled: 1,
		ContentSize:  int64(len(htmlBody)),
		Keywords:     entry.Keywords,
	}, nil
}

func dedupe(sorted []string) []string {
	if len(sorted) == 0 {
		return nil
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

var (
	errNoBody  = errors.New("empty response body")
	errNotHTML = errors.New("not an html page")
)
