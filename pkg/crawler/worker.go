package crawler

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise-ai/sitewise/pkg/process"
	"github.com/sitewise-ai/sitewise/pkg/resource"
)

func (b *Builder) worker(ctx context.Context, base string, jobs <-chan candidate, results chan<- pageResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case cand, ok := <-jobs:
			if !ok {
				return
			}
			res := b.crawlPage(ctx, base, cand)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Builder) crawlPage(ctx context.Context, base string, cand candidate) pageResult {
	res := pageResult{url: cand.url, depth: cand.depth}

	fetched, err := b.fetcher.Fetch(ctx, cand.url)
	if err != nil {
		res.err = err
		return res
	}
	if len(fetched.Body) == 0 {
		res.err = errNoBody
		return res
	}

	entry, outlinks, err := buildEntry(cand.url, fetched.Body, nil)
	if err != nil {
		res.err = err
		return res
	}

	res.entry = entry
	res.body = fetched.Body
	for _, link := range outlinks {
		normalized, err := process.Normalize(link)
		if err != nil {
			continue
		}
		if process.SameOrigin(base, normalized) {
			res.outlinks = append(res.outlinks, normalized)
		}
	}
	return res
}

// buildEntry derives a site index entry from a page body. Keywords come
// from title plus description only, so the derivation is deterministic for
// unchanged content.
func buildEntry(url string, body []byte, lastModified *time.Time) (*resource.Entry, []string, error) {
	if !bytes.HasPrefix([]byte(http.DetectContentType(body)), []byte("text/html")) {
		return nil, nil, errNotHTML
	}

	meta, err := process.ExtractMeta(body)
	if err != nil {
		return nil, nil, err
	}

	outlinks, err := process.ExtractLinks(bytes.NewReader(body), url)
	if err != nil {
		return nil, nil, err
	}

	entry := &resource.Entry{
		ID:           uuid.New().String(),
		URL:          url,
		Title:        meta.Title,
		Description:  meta.Description,
		Keywords:     process.Keywords(meta.Title, meta.Description),
		CrawledAt:    time.Now().UTC(),
		LastModified: lastModified,
	}
	return entry, outlinks, nil
}
