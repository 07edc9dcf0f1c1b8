package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/ratelimit"
)

// TransportError wraps a network, DNS or TLS failure for a single request.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is the Fetcher shared by the crawler and every detector. It holds
// no per-request state, so one instance serves all workers.
type Client struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	logger    *logger.Logger
	userAgent string
	maxBody   int64
}

type Option func(*Client)

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// NewClient wraps an *http.Client. A nil client gets the scanner defaults.
func NewClient(client *http.Client, log *logger.Logger, opts ...Option) *Client {
	if client == nil {
		client = httpclient.NewScannerClient(httpclient.DefaultConfig())
	}
	if log == nil {
		log = logger.NewNop()
	}
	c := &Client{
		client:    client,
		logger:    log.WithComponent("fetcher"),
		userAgent: "siteprobe/1.0",
		maxBody:   10 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds the fetcher from the http and rate_limit sections.
func NewClientFromConfig(cfg *config.Config, log *logger.Logger) *Client {
	return NewClient(
		httpclient.NewScannerClient(httpclient.FromConfig(cfg.HTTP)),
		log,
		WithLimiter(ratelimit.NewLimiter(ratelimit.FromConfig(cfg.RateLimit))),
		WithUserAgent(cfg.HTTP.UserAgent),
		WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)
}

var _ core.Fetcher = (*Client)(nil)

func (c *Client) Get(ctx context.Context, rawURL string) (*core.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{Op: http.MethodGet, URL: rawURL, Err: err}
	}
	return c.do(ctx, req, "")
}

// Post submits form as application/x-www-form-urlencoded.
func (c *Client) Post(ctx context.Context, rawURL string, form url.Values) (*core.Response, error) {
	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: rawURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, req, body)
}

func (c *Client) do(ctx context.Context, req *http.Request, sentBody string) (*core.Response, error) {
	rawURL := req.URL.String()

	if c.limiter != nil {
		if err := c.limiter.WaitForURL(ctx, rawURL); err != nil {
			return nil, &TransportError{Op: req.Method, URL: rawURL, Err: err}
		}
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")

	start := time.Now()
	resp, err := httpclient.DoWithContext(ctx, c.client, req)
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: rawURL, Err: err}
	}
	defer httpclient.CloseBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: rawURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	duration := time.Since(start)

	c.logger.LogHTTPRequest(ctx, req.Method, rawURL, resp.StatusCode, duration)

	return &core.Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
		Duration:   duration,
		Request:    requestView(req, resp.Request, sentBody),
	}, nil
}

// requestView describes the last request on the wire. After a redirect that
// downgraded the method to GET the body was not resent.
func requestView(orig, final *http.Request, sentBody string) core.RequestView {
	if final == nil {
		final = orig
	}
	body := sentBody
	if final.Method != orig.Method && final.Method == http.MethodGet {
		body = ""
	}
	return core.RequestView{
		Method: final.Method,
		URL:    final.URL.String(),
		Header: final.Header.Clone(),
		Body:   body,
	}
}

// LimiterStats reports the rate limiter state; zero when no limiter is set.
func (c *Client) LimiterStats() ratelimit.Stats {
	if c.limiter == nil {
		return ratelimit.Stats{}
	}
	return c.limiter.GetStats()
}

// Close releases idle connections held by the transport
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
