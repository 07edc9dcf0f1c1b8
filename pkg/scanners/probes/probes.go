// Package probes implements the fixed battery of passive and active checks
// run against every URL the crawler discovered.
package probes

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
)

// All returns one instance of every detector, sharing fetcher.
func All(fetcher core.Fetcher, log *logger.Logger) []core.Detector {
	return []core.Detector{
		NewSQLInjection(fetcher, log),
		NewXSS(fetcher, log),
		NewSensitiveInfo(fetcher, log),
		NewCSRF(fetcher, log),
	}
}

// probe carries what every detector needs.
type probe struct {
	name    string
	fetcher core.Fetcher
	logger  *logger.Logger
}

func newProbe(name string, fetcher core.Fetcher, log *logger.Logger) probe {
	if log == nil {
		log = logger.NewNop()
	}
	return probe{
		name:    name,
		fetcher: fetcher,
		logger:  log.WithDetector(name),
	}
}

func (p probe) Name() string { return p.name }

// guard runs one payload or pattern evaluation. A panic is logged and
// confined to that evaluation.
func (p probe) guard(ctx context.Context, fn func(), fields ...interface{}) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.LogPanic(ctx, r, p.name, fields...)
		}
	}()
	fn()
}

// queryParams returns the names of the query parameters of rawURL in
// sorted order, or nil when it has none.
func queryParams(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	q := u.Query()
	if len(q) == 0 {
		return nil
	}
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// withParam returns rawURL with param replaced by value, leaving every
// other parameter untouched. value is query-encoded.
func withParam(rawURL, param, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}
	q := u.Query()
	q.Set(param, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
