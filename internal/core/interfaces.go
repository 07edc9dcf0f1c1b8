package core

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

// RequestView is the outgoing request exactly as it was sent.
type RequestView struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       string
	Duration   time.Duration
	Request    RequestView
}

// Fetcher performs HTTP requests against scan targets. Implementations must
// be safe for concurrent use.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
	Post(ctx context.Context, rawURL string, form url.Values) (*Response, error)
}

// LinkExtractor returns the absolute anchor targets found in an HTML body.
type LinkExtractor interface {
	Extract(baseURL string, body string) ([]string, error)
}

// Detector probes a single URL. Transport failures are handled inside the
// detector and never surface to the caller.
type Detector interface {
	Name() string
	Kind() types.FindingKind
	Detect(ctx context.Context, target string) []types.Finding
}

type FindingsSink interface {
	Add(ctx context.Context, finding types.Finding)
	Findings() []types.Finding
	Len() int
}

type Telemetry interface {
	RecordScan(duration float64, success bool)
	RecordURLsVisited(count int)
	RecordFinding(kind types.FindingKind, severity types.Severity)
	Close() error
}
