package web

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
)

var (
	// ErrNotHTML is returned for responses whose Content-Type is not HTML.
	ErrNotHTML = errors.New("response is not HTML")
	// ErrFetch wraps transport failures while retrieving a page.
	ErrFetch = errors.New("fetch failed")
)

// VisitedSet records every URL the crawler attempted. Membership means the
// fetch was attempted or is in flight; each URL appears at most once.
type VisitedSet struct {
	mu    sync.Mutex
	urls  map[string]struct{}
	limit int
}

// NewVisitedSet creates an empty set. A positive limit caps its size.
func NewVisitedSet(limit int) *VisitedSet {
	return &VisitedSet{
		urls:  make(map[string]struct{}),
		limit: limit,
	}
}

// Add inserts u and reports whether it was new. Check and insert happen
// under one lock, so concurrent callers never both win for the same URL.
func (v *VisitedSet) Add(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.urls[u]; ok {
		return false
	}
	if v.limit > 0 && len(v.urls) >= v.limit {
		return false
	}
	v.urls[u] = struct{}{}
	return true
}

func (v *VisitedSet) Contains(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.urls[u]
	return ok
}

func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}

// URLs returns a sorted copy of the set.
func (v *VisitedSet) URLs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]string, 0, len(v.urls))
	for u := range v.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Crawler performs the depth-bounded, prefix-scoped discovery walk.
type Crawler struct {
	fetcher   core.Fetcher
	extractor core.LinkExtractor
	logger    *logger.Logger
	maxPages  int
}

type CrawlerOption func(*Crawler)

// WithMaxPages caps how many URLs a crawl may visit (0 = unlimited).
func WithMaxPages(n int) CrawlerOption {
	return func(c *Crawler) { c.maxPages = n }
}

func NewCrawler(fetcher core.Fetcher, extractor core.LinkExtractor, log *logger.Logger, opts ...CrawlerOption) *Crawler {
	if extractor == nil {
		extractor = NewLinkExtractor()
	}
	if log == nil {
		log = logger.NewNop()
	}
	c := &Crawler{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    log.WithComponent("crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// walk is the state of one crawl. It is owned by a single goroutine.
type walk struct {
	visited  *VisitedSet
	maxDepth int
	// depth is the shallowest depth each visited URL was reached at
	depth map[string]int
	// links caches extracted links so a shallower re-discovery never refetches
	links map[string][]string
}

// Crawl walks depth-first from seed, visiting pages at depth 0..maxDepth.
// A link is followed only when it begins with the URL of the page it was
// found on. Per-page failures are logged and never stop the walk; if the
// seed itself is unreachable the returned set is empty.
func (c *Crawler) Crawl(ctx context.Context, seed string, maxDepth int) *VisitedSet {
	start := time.Now()
	w := &walk{
		visited:  NewVisitedSet(c.maxPages),
		maxDepth: maxDepth,
		depth:    make(map[string]int),
		links:    make(map[string][]string),
	}

	ctx, span := c.logger.StartOperation(ctx, "crawler.Crawl", "seed", seed, "max_depth", maxDepth)

	if err := c.visit(ctx, w, seed, 0); errors.Is(err, ErrFetch) {
		c.logger.Warnw("Seed URL unreachable, nothing to scan", "seed", seed, "error", err)
		w.visited = NewVisitedSet(c.maxPages)
	}

	c.logger.FinishOperation(ctx, span, "crawler.Crawl", start, nil,
		"seed", seed,
		"urls_visited", w.visited.Len(),
	)
	return w.visited
}

// visit returns the error for pageURL itself; failures further down the
// walk are logged and swallowed.
func (c *Crawler) visit(ctx context.Context, w *walk, pageURL string, depth int) error {
	if depth > w.maxDepth || ctx.Err() != nil {
		return nil
	}

	if best, seen := w.depth[pageURL]; seen {
		// Reached again through a shorter path: expand its cached links with
		// the extra depth budget, without fetching it a second time.
		if depth < best {
			w.depth[pageURL] = depth
			c.follow(ctx, w, pageURL, depth)
		}
		return nil
	}

	if !w.visited.Add(pageURL) {
		return nil
	}
	w.depth[pageURL] = depth

	links, err := c.discover(ctx, pageURL)
	if err != nil {
		if errors.Is(err, ErrNotHTML) {
			c.logger.Debugw("Skipping link extraction", "url", pageURL, "reason", err.Error())
		} else {
			c.logger.LogWarning(ctx, err, "crawler.visit", "url", pageURL, "depth", depth)
		}
		return err
	}
	w.links[pageURL] = links

	c.follow(ctx, w, pageURL, depth)
	return nil
}

func (c *Crawler) follow(ctx context.Context, w *walk, pageURL string, depth int) {
	for _, link := range w.links[pageURL] {
		if strings.HasPrefix(link, pageURL) {
			_ = c.visit(ctx, w, link, depth+1)
		}
	}
}

func (c *Crawler) discover(ctx context.Context, pageURL string) ([]string, error) {
	resp, err := c.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "html") {
		return nil, fmt.Errorf("%s: %w (%s)", pageURL, ErrNotHTML, ct)
	}

	links, err := c.extractor.Extract(pageURL, resp.Body)
	if err != nil {
		return nil, err
	}
	return links, nil
}
