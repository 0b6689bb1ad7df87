package resource

import "time"

// Kind identifies what a resource points at.
type Kind string

const (
	KindWebsiteURL   Kind = "website-url"
	KindUploadedFile Kind = "uploaded-file"
	KindRawHTML      Kind = "raw-html"
	KindScreenshot   Kind = "screenshot"
)

// Status is the ingestion state of a resource or document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCrawling   Status = "crawling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// InFlight reports whether an ingestion run is (or may be) underway, in which
// case a new crawl request for the same resource must be rejected.
func (s Status) InFlight() bool {
	return s == StatusQueued || s == StatusProcessing || s == StatusCrawling
}

// Terminal reports whether the status ends an ingestion attempt.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Resource is the unit of ingestion: a registered website URL or uploaded
// artifact, carrying the status state machine.
type Resource struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Kind         Kind      `json:"kind"`
	Source       string    `json:"source"` // URL or blob reference
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	PagesCrawled int       `json:"pages_crawled"`
	ContentSize  int64     `json:"content_size"`
	Keywords     []string  `json:"keywords,omitempty"`
	SiteIndexID  string    `json:"site_index_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SiteIndex is the crawled-page index derived from one website resource.
type SiteIndex struct {
	ID            string    `json:"id"`
	ResourceID    string    `json:"resource_id"`
	BaseURL       string    `json:"base_url"`
	Status        Status    `json:"status"`
	PagesCrawled  int       `json:"pages_crawled"`
	RobotsHonored bool      `json:"robots_honored"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Entry is one crawled page within a site index. URL is unique per index.
// Keywords are derived deterministically from title, description and body
// text at crawl time.
type Entry struct {
	ID           string     `json:"id"`
	SiteIndexID  string     `json:"site_index_id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Keywords     []string   `json:"keywords"`
	CrawledAt    time.Time  `json:"crawled_at"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Document is an uploaded file registered for ingestion. ExtractedText stays
// nil until processing completes.
type Document struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	BlobKey   string    `json:"blob_key"`
	MediaType string    `json:"media_type"`
	Text      *string   `json:"text,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CachedPage is a TTL-bounded copy of a fetched page body, shared across
// tenants and keyed purely by normalized URL.
type CachedPage struct {
	URL       string    `json:"url"`
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the cached copy must be treated as absent.
func (p *CachedPage) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
