package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	probehttp "github.com/CodeMonkeyCybersecurity/siteprobe/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	links       []string
	contentType string
	err         error
}

// graphFetcher serves anchor-only pages from an in-memory link graph.
type graphFetcher struct {
	mu    sync.Mutex
	pages map[string]page
	calls map[string]int
}

func newGraphFetcher(pages map[string]page) *graphFetcher {
	return &graphFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *graphFetcher) Get(ctx context.Context, rawURL string) (*core.Response, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	f.mu.Unlock()

	p, ok := f.pages[rawURL]
	if !ok {
		return nil, errors.New("connection refused")
	}
	if p.err != nil {
		return nil, p.err
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range p.links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")

	ct := p.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &core.Response{
		URL:        rawURL,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {ct}},
		Body:       b.String(),
	}, nil
}

func (f *graphFetcher) Post(ctx context.Context, rawURL string, form url.Values) (*core.Response, error) {
	return nil, errors.New("not used")
}

func (f *graphFetcher) callCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

const root = "http://t.test/"

func siteGraph() map[string]page {
	return map[string]page{
		root: {links: []string{
			"/a",
			"/b",
			"/a", // duplicate discovery
			"http://other.test/x",
			"#top",
			"mailto:admin@t.test",
		}},
		root + "a":              {links: []string{"/a/deep", "/b", "/a"}},
		root + "a/deep":         {links: []string{"/a/deep/er"}},
		root + "a/deep/er":      {links: []string{"/a/deep/er/most"}},
		root + "a/deep/er/most": {},
		root + "b":              {links: []string{"/b/child", root}},
		root + "b/child":        {},
		"http://other.test/x":   {},
	}
}

func TestCrawl_PrefixContainmentAndDedup(t *testing.T) {
	fetcher := newGraphFetcher(siteGraph())
	crawler := NewCrawler(fetcher, nil, logger.NewNop())

	visited := crawler.Crawl(context.Background(), root, 3)

	assert.Equal(t, []string{
		root,
		root + "a",
		root + "a/deep",
		root + "a/deep/er",
		root + "b",
		root + "b/child",
	}, visited.URLs())

	assert.False(t, visited.Contains("http://other.test/x"), "cross-origin links are not followed")
	for _, u := range visited.URLs() {
		assert.Equal(t, 1, fetcher.callCount(u), "each URL fetched exactly once: %s", u)
	}
}

func TestCrawl_DepthBound(t *testing.T) {
	tests := []struct {
		depth int
		want  int
	}{
		{depth: 0, want: 1},
		{depth: 1, want: 3},
		{depth: 2, want: 5},
		{depth: 3, want: 6},
		{depth: 4, want: 7},
		{depth: 10, want: 7},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth_%d", tt.depth), func(t *testing.T) {
			crawler := NewCrawler(newGraphFetcher(siteGraph()), nil, logger.NewNop())
			visited := crawler.Crawl(context.Background(), root, tt.depth)
			assert.Equal(t, tt.want, visited.Len())
		})
	}
}

func TestCrawl_MonotonicInDepth(t *testing.T) {
	var previous []string
	for depth := 0; depth <= 5; depth++ {
		crawler := NewCrawler(newGraphFetcher(siteGraph()), nil, logger.NewNop())
		visited := crawler.Crawl(context.Background(), root, depth)

		for _, u := range previous {
			assert.True(t, visited.Contains(u), "depth %d lost %s", depth, u)
		}
		previous = visited.URLs()
	}
}

func TestCrawl_PrefixRuleIsLiteral(t *testing.T) {
	// /a links to /b, which is same-origin but not under /a, so it is only
	// reachable through the root page.
	graph := map[string]page{
		root + "a":       {links: []string{"/b", "/a/child"}},
		root + "a/child": {},
		root + "b":       {},
	}
	crawler := NewCrawler(newGraphFetcher(graph), nil, logger.NewNop())

	visited := crawler.Crawl(context.Background(), root+"a", 3)

	assert.Equal(t, []string{root + "a", root + "a/child"}, visited.URLs())
}

func TestCrawl_ShallowerRediscoveryExpands(t *testing.T) {
	// Depth-first order reaches /a/b at depth 2 first; the root's direct
	// link to it must still let /a/b/c in at max depth 2.
	graph := map[string]page{
		root:           {links: []string{"/a", "/a/b"}},
		root + "a":     {links: []string{"/a/b"}},
		root + "a/b":   {links: []string{"/a/b/c"}},
		root + "a/b/c": {},
	}
	fetcher := newGraphFetcher(graph)
	crawler := NewCrawler(fetcher, nil, logger.NewNop())

	visited := crawler.Crawl(context.Background(), root, 2)

	assert.Equal(t, []string{root, root + "a", root + "a/b", root + "a/b/c"}, visited.URLs())
	assert.Equal(t, 1, fetcher.callCount(root+"a/b"))
}

func TestCrawl_FailuresStayVisited(t *testing.T) {
	graph := map[string]page{
		root:               {links: []string{"/broken", "/data.json", "/ok"}},
		root + "broken":    {err: errors.New("connection reset")},
		root + "data.json": {contentType: "application/json", links: []string{"/data.json/hidden"}},
		root + "ok":        {},
	}
	fetcher := newGraphFetcher(graph)
	crawler := NewCrawler(fetcher, nil, logger.NewNop())

	visited := crawler.Crawl(context.Background(), root, 3)

	assert.Equal(t, []string{root, root + "broken", root + "data.json", root + "ok"}, visited.URLs())
	assert.False(t, visited.Contains(root+"data.json/hidden"), "links in non-HTML bodies are not extracted")
	assert.Equal(t, 1, fetcher.callCount(root+"broken"), "failed URL is not retried")
}

func TestCrawl_UnreachableSeed(t *testing.T) {
	crawler := NewCrawler(newGraphFetcher(map[string]page{}), nil, logger.NewNop())

	visited := crawler.Crawl(context.Background(), "http://unreachable.test/", 3)

	assert.Equal(t, 0, visited.Len())
}

func TestCrawl_NonHTMLSeedIsKept(t *testing.T) {
	graph := map[string]page{
		root: {contentType: "application/json"},
	}
	crawler := NewCrawler(newGraphFetcher(graph), nil, logger.NewNop())

	visited := crawler.Crawl(context.Background(), root, 3)

	assert.Equal(t, []string{root}, visited.URLs())
}

func TestCrawl_MaxPages(t *testing.T) {
	crawler := NewCrawler(newGraphFetcher(siteGraph()), nil, logger.NewNop(), WithMaxPages(3))

	visited := crawler.Crawl(context.Background(), root, 10)

	assert.Equal(t, 3, visited.Len())
}

func TestCrawl_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	crawler := NewCrawler(newGraphFetcher(siteGraph()), nil, logger.NewNop())
	visited := crawler.Crawl(ctx, root, 3)

	assert.Equal(t, 0, visited.Len())
}

func TestVisitedSet_ConcurrentAdd(t *testing.T) {
	set := NewVisitedSet(0)

	var wg sync.WaitGroup
	wins := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- set.Add("http://t.test/same")
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for won := range wins {
		if won {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, set.Len())
}

func TestCrawl_HTTPServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = io.WriteString(w, `<a href="/search?q=1">search</a><a href="/about">about</a>`)
		case "/search":
			_, _ = io.WriteString(w, `<p>results</p>`)
		case "/about":
			_, _ = io.WriteString(w, `<a href="/about/team">team</a>`)
		case "/about/team":
			_, _ = io.WriteString(w, `<p>team</p>`)
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := probehttp.NewClient(nil, logger.NewNop())
	crawler := NewCrawler(client, NewLinkExtractor(), logger.NewNop())

	visited := crawler.Crawl(context.Background(), server.URL+"/", 2)

	require.Equal(t, 4, visited.Len())
	assert.True(t, visited.Contains(server.URL+"/search?q=1"))
	assert.True(t, visited.Contains(server.URL+"/about/team"))
}
