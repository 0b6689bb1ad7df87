package fetch

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const maxAttempts = 3

// userAgents rotates per attempt so a block on one identity does not doom
// the whole fetch.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// Result is a successfully fetched page body.
type Result struct {
	Body       []byte
	StatusCode int
}

// Fetcher performs single-page HTTP GETs with retry, backoff and identity
// rotation. One Fetcher is shared by crawl-time and retrieval-time callers;
// its rate limiter spans both.
type Fetcher struct {
	client         *http.Client
	limiter        *rate.Limiter
	baseWait       time.Duration
	deniedCooldown time.Duration
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

func WithRateLimit(perSec float64) Option {
	return func(f *Fetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(perSec), int(perSec)+1)
	}
}

func WithDeniedCooldown(d time.Duration) Option {
	return func(f *Fetcher) {
		f.deniedCooldown = d
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:        rate.NewLimiter(rate.Limit(5), 10),
		baseWait:       time.Second,
		deniedCooldown: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs url, retrying transient failures up to 3 attempts with linearly
// increasing delay. An access-denied response adds a fixed cooldown before
// the next attempt. The last error is returned once attempts are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &Error{URL: rawURL, Err: ErrBadURL}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * f.baseWait
			if fe, ok := lastErr.(*Error); ok && fe.AccessDenied() {
				wait += f.deniedCooldown
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := f.attempt(ctx, rawURL)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if fe, ok := err.(*Error); ok && !fe.IsRecoverable() {
			return nil, err
		}
		slog.Debug("fetch attempt failed",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Any("err", err),
		)
	}
	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.google.com/")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrBadStatus}
	}

	return &Result{Body: body, StatusCode: resp.StatusCode}, nil
}
