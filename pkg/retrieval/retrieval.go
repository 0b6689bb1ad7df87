package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sitewise-ai/sitewise/pkg/fetch"
	"github.com/sitewise-ai/sitewise/pkg/pagecache"
	"github.com/sitewise-ai/sitewise/pkg/process"
	"github.com/sitewise-ai/sitewise/pkg/resource"
)

// Store is the read side the engine scores over.
type Store interface {
	ListTenantEntries(ctx context.Context, tenantID string) ([]*resource.Entry, error)
	ListDocuments(ctx context.Context, tenantID string) ([]*resource.Document, error)
}

// Cache resolves page bodies without refetching; satisfied by
// pagecache.Cache.
type Cache interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Put(ctx context.Context, url string, body []byte) error
}

// Fetcher is the live fallback for a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Excerpt is one scored piece of the assembled context.
type Excerpt struct {
	Source string `json:"source"` // URL or document name
	Title  string `json:"title,omitempty"`
	Text   string `json:"text"`
	Score  int    `json:"score"`
}

// ContextBlob is the size-bounded, most-relevant-first assembly of indexed
// content for one query. Empty is a valid answer, not an error.
type ContextBlob struct {
	Excerpts []Excerpt `json:"excerpts"`
}

func (b *ContextBlob) Empty() bool {
	return len(b.Excerpts) == 0
}

// Text renders the blob for the generation collaborator.
func (b *ContextBlob) Text() string {
	var sb strings.Builder
	for _, e := range b.Excerpts {
		if e.Title != "" {
			fmt.Fprintf(&sb, "## %s (%s)\n", e.Title, e.Source)
		} else {
			fmt.Fprintf(&sb, "## %s\n", e.Source)
		}
		sb.WriteString(e.Text)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// Engine selects and assembles indexed content for a chat query. Scoring is
// keyword-set intersection over stored keyword sets.
type Engine struct {
	store   Store
	cache   Cache
	fetcher Fetcher
	topN    int
}

func New(store Store, cache Cache, fetcher Fetcher, topN int) *Engine {
	if topN <= 0 {
		topN = 5
	}
	return &Engine{store: store, cache: cache, fetcher: fetcher, topN: topN}
}

type candidate struct {
	score int
	order int

	// exactly one of entry/doc is set
	entry *resource.Entry
	doc   *resource.Document
}

// RetrieveContext scores every site index entry and document the tenant
// owns against the query's keywords and assembles the top candidates into a
// context blob no larger than maxChars.
func (e *Engine) RetrieveContext(ctx context.Context, tenantID, query string, maxChars int) (*ContextBlob, error) {
	queryKeywords := process.Keywords(query)
	blob := &ContextBlob{}
	if len(queryKeywords) == 0 {
		return blob, nil
	}

	entries, err := e.store.ListTenantEntries(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	docs, err := e.store.ListDocuments(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var candidates []candidate
	for i, entry := range entries {
		if score := overlap(queryKeywords, entry.Keywords); score > 0 {
			candidates = append(candidates, candidate{score: score, order: i, entry: entry})
		}
	}
	for i, doc := range docs {
		if doc.Status != resource.StatusCompleted || doc.Text == nil {
			continue
		}
		if score := overlap(queryKeywords, doc.Keywords); score > 0 {
			candidates = append(candidates, candidate{score: score, order: len(entries) + i, doc: doc})
		}
	}

	if len(candidates) == 0 {
		return blob, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})
	if len(candidates) > e.topN {
		candidates = candidates[:e.topN]
	}

	remaining := maxChars
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		ex, ok := e.materialize(ctx, c, remaining)
		if !ok {
			continue
		}
		remaining -= len(ex.Text)
		blob.Excerpts = append(blob.Excerpts, ex)
	}

	slog.Debug("context assembled",
		slog.String("tenant", tenantID),
		slog.Int("candidates", len(candidates)),
		slog.Int("excerpts", len(blob.Excerpts)),
	)
	return blob, nil
}

// materialize resolves a candidate's body text, budgeted to at most max
// characters. Entry bodies come from the page cache with a live fetch
// fallback; a failed resolution drops the candidate rather than failing the
// chat turn.
func (e *Engine) materialize(ctx context.Context, c candidate, max int) (Excerpt, bool) {
	if c.doc != nil {
		return Excerpt{
			Source: c.doc.Name,
			Text:   process.Excerpt(*c.doc.Text, max),
			Score:  c.score,
		}, true
	}

	body, err := e.resolveBody(ctx, c.entry.URL)
	text := ""
	if err != nil {
		slog.Warn("could not resolve entry body, using description",
			slog.String("url", c.entry.URL), slog.Any("err", err))
		text = c.entry.Description
	} else {
		text, err = process.ExtractText(strings.NewReader(string(body)))
		if err != nil || text == "" {
			text = c.entry.Description
		}
	}

	if text == "" {
		return Excerpt{}, false
	}
	return Excerpt{
		Source: c.entry.URL,
		Title:  c.entry.Title,
		Text:   process.Excerpt(text, max),
		Score:  c.score,
	}, true
}

func (e *Engine) resolveBody(ctx context.Context, url string) ([]byte, error) {
	body, err := e.cache.Get(ctx, url)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, pagecache.ErrMiss) {
		return nil, err
	}

	res, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Put(ctx, url, res.Body); err != nil {
		slog.Warn("failed to cache fetched page", slog.String("url", url), slog.Any("err", err))
	}
	return res.Body, nil
}

func overlap(query, keywords []string) int {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[k] = struct{}{}
	}
	n := 0
	for _, q := range query {
		if _, ok := set[q]; ok {
			n++
		}
	}
	return n
}
