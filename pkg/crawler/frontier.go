package crawler

import "sync"

type candidate struct {
	url   string
	depth int
}

// frontier is the breadth-first queue of a single crawl pass. URLs are
// normalized before Push; a URL is only ever visited once per pass.
type frontier struct {
	mu    sync.Mutex
	queue []candidate
	seen  map[string]struct{}
}

func newFrontier() *frontier {
	return &frontier{seen: make(map[string]struct{})}
}

func (f *frontier) Push(url string, depth int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[url]; ok {
		return
	}
	f.seen[url] = struct{}{}
	f.queue = append(f.queue, candidate{url: url, depth: depth})
}

func (f *frontier) Pop() (candidate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return candidate{}, false
	}
	c := f.queue[0]
	f.queue = f.queue[1:]
	return c, true
}

func (f *frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
