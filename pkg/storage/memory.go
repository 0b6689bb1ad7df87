package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sitewise-ai/sitewise/pkg/resource"
)

// Memory is an in-memory store implementing the same operations as Postgres.
// It backs tests and local experiments; nothing about it is durable.
type Memory struct {
	mu            sync.Mutex
	resources     map[string]*resource.Resource
	documents     map[string]*resource.Document
	siteIndexes   map[string]*resource.SiteIndex // by resource id
	entries       map[string]map[string]*resource.Entry
	pages         map[string]*resource.CachedPage
	conversations map[string]string // id -> tenant
	messages      map[string][]ConversationMessage
	nextMessageID int64
}

func NewMemory() *Memory {
	return &Memory{
		resources:     make(map[string]*resource.Resource),
		documents:     make(map[string]*resource.Document),
		siteIndexes:   make(map[string]*resource.SiteIndex),
		entries:       make(map[string]map[string]*resource.Entry),
		pages:         make(map[string]*resource.CachedPage),
		conversations: make(map[string]string),
		messages:      make(map[string][]ConversationMessage),
	}
}

func (s *Memory) Ping(ctx context.Context) error { return nil }
func (s *Memory) Close() error                   { return nil }

func (s *Memory) CreateResource(ctx context.Context, r *resource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.resources[r.ID] = &cp
	return nil
}

func (s *Memory) GetResource(ctx context.Context, tenantID, id string) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok || r.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Memory) GetResourceAny(ctx context.Context, id string) (*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Memory) ListResources(ctx context.Context, tenantID string) ([]*resource.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*resource.Resource
	for _, r := range s.resources {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) CompareAndSwapResourceStatus(ctx context.Context, id string, from []resource.Status, to resource.Status, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if r.Status == st {
			r.Status = to
			r.Error = errMsg
			r.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *Memory) SetResourceCrawlStats(ctx context.Context, id string, pagesCrawled int, contentSize int64, keywords []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resources[id]; ok {
		r.PagesCrawled = pagesCrawled
		r.ContentSize = contentSize
		r.Keywords = keywords
		r.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Memory) SetResourceSiteIndex(ctx context.Context, id, siteIndexID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resources[id]; ok {
		r.SiteIndexID = siteIndexID
	}
	return nil
}

func (s *Memory) DeleteResource(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok || r.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.resources, id)
	if idx, ok := s.siteIndexes[id]; ok {
		delete(s.entries, idx.ID)
		delete(s.siteIndexes, id)
	}
	return nil
}

func (s *Memory) CreateDocument(ctx context.Context, d *resource.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

func (s *Memory) GetDocument(ctx context.Context, tenantID, id string) (*resource.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok || d.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Memory) GetDocumentAny(ctx context.Context, id string) (*resource.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Memory) ListDocuments(ctx context.Context, tenantID string) ([]*resource.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*resource.Document
	for _, d := range s.documents {
		if d.TenantID == tenantID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) CompareAndSwapDocumentStatus(ctx context.Context, id string, from []resource.Status, to resource.Status, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if d.Status == st {
			d.Status = to
			d.Error = errMsg
			d.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *Memory) SetDocumentText(ctx context.Context, id, text string, keywords []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.documents[id]; ok {
		d.Text = &text
		d.Keywords = keywords
		d.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Memory) DeleteDocument(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *Memory) CreateSiteIndex(ctx context.Context, idx *resource.SiteIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *idx
	s.siteIndexes[idx.ResourceID] = &cp
	if _, ok := s.entries[idx.ID]; !ok {
		s.entries[idx.ID] = make(map[string]*resource.Entry)
	}
	return nil
}

func (s *Memory) GetSiteIndexByResource(ctx context.Context, resourceID string) (*resource.SiteIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.siteIndexes[resourceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *idx
	return &cp, nil
}

func (s *Memory) UpdateSiteIndexStatus(ctx context.Context, id string, status resource.Status, pagesCrawled int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range s.siteIndexes {
		if idx.ID == id {
			idx.Status = status
			idx.PagesCrawled = pagesCrawled
			idx.LastError = lastError
			idx.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *Memory) UpsertEntry(ctx context.Context, e *resource.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byURL, ok := s.entries[e.SiteIndexID]
	if !ok {
		byURL = make(map[string]*resource.Entry)
		s.entries[e.SiteIndexID] = byURL
	}
	cp := *e
	byURL[e.URL] = &cp
	return nil
}

func (s *Memory) ListEntries(ctx context.Context, siteIndexID string) ([]*resource.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedEntries(s.entries[siteIndexID]), nil
}

func (s *Memory) ListTenantEntries(ctx context.Context, tenantID string) ([]*resource.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*resource.Entry
	for resourceID, idx := range s.siteIndexes {
		r, ok := s.resources[resourceID]
		if !ok || r.TenantID != tenantID {
			continue
		}
		out = append(out, sortedEntries(s.entries[idx.ID])...)
	}
	return out, nil
}

func sortedEntries(byURL map[string]*resource.Entry) []*resource.Entry {
	var out []*resource.Entry
	for _, e := range byURL {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CrawledAt.Equal(out[j].CrawledAt) {
			return out[i].URL < out[j].URL
		}
		return out[i].CrawledAt.Before(out[j].CrawledAt)
	})
	return out
}

func (s *Memory) GetPage(ctx context.Context, url string) (*resource.CachedPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[url]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Memory) PutPage(ctx context.Context, p *resource.CachedPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.pages[p.URL] = &cp
	return nil
}

func (s *Memory) DeletePage(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, url)
	return nil
}

func (s *Memory) PurgeExpiredPages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for url, p := range s.pages {
		if p.Expired(now) {
			delete(s.pages, url)
			n++
		}
	}
	return n, nil
}

func (s *Memory) CreateConversation(ctx context.Context, id, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		s.conversations[id] = tenantID
	}
	return nil
}

func (s *Memory) GetConversationTenant(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.conversations[id]
	if !ok {
		return "", ErrNotFound
	}
	return tenant, nil
}

func (s *Memory) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMessageID++
	s.messages[conversationID] = append(s.messages[conversationID], ConversationMessage{
		ID:        s.nextMessageID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *Memory) ListMessages(ctx context.Context, conversationID string) ([]ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationMessage, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}
