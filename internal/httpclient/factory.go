// Package httpclient builds the HTTP clients used against scan targets
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
)

// ClientConfig configures the scanner HTTP client
type ClientConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool // scan targets often use self-signed certificates
	FollowRedirects    bool
	MaxRedirects       int
	Cookies            bool // replay cookies the target sets
}

// DefaultConfig returns the scanner defaults
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:            10 * time.Second,
		InsecureSkipVerify: true,
		FollowRedirects:    true,
		MaxRedirects:       10,
	}
}

// FromConfig maps the http section of the application config
func FromConfig(cfg config.HTTPConfig) ClientConfig {
	return ClientConfig{
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		FollowRedirects:    cfg.FollowRedirects,
		MaxRedirects:       cfg.MaxRedirects,
		Cookies:            cfg.Cookies,
	}
}

// NewScannerClient creates an HTTP client for probing targets
// - Timeout enforcement (a hung target cannot stall the scan)
// - Optional TLS verification bypass
// - Configurable redirect following
func NewScannerClient(cfg ClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // security testing tool
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	if cfg.Cookies {
		// cookiejar.New never returns an error
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		client.Jar = jar
	}

	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if cfg.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	}

	return client
}

// DoWithContext performs an HTTP request with context enforcement
func DoWithContext(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, err
	}

	return resp, nil
}

// CloseBody drains and closes a response body so the connection can be reused.
//
// Usage:
//
//	defer httpclient.CloseBody(resp)
func CloseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	if err := resp.Body.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close HTTP response body: %v\n", err)
	}
}
