package probes

import (
	"context"
	"strings"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

var sqlPayloads = []string{
	"'",
	"1' OR '1'='1",
	"' OR 1=1--",
	"' UNION SELECT NULL--",
}

// sqlErrorMarkers are matched against the lower-cased response body.
var sqlErrorMarkers = []string{"sql", "mysql", "sqlite", "postgresql", "oracle"}

// SQLInjection substitutes each payload into each query parameter and looks
// for database error text in the response.
type SQLInjection struct {
	probe
}

func NewSQLInjection(fetcher core.Fetcher, log *logger.Logger) *SQLInjection {
	return &SQLInjection{probe: newProbe("sql_injection", fetcher, log)}
}

var _ core.Detector = (*SQLInjection)(nil)

func (d *SQLInjection) Kind() types.FindingKind { return types.KindSQLInjection }

func (d *SQLInjection) Detect(ctx context.Context, target string) []types.Finding {
	params := queryParams(target)
	if len(params) == 0 {
		return nil
	}

	var found []types.Finding
	for _, payload := range sqlPayloads {
		for _, param := range params {
			if ctx.Err() != nil {
				return found
			}
			d.guard(ctx, func() {
				if f, ok := d.try(ctx, target, param, payload); ok {
					found = append(found, f)
				}
			}, "url", target, "parameter", param, "payload", payload)
		}
	}
	return found
}

func (d *SQLInjection) try(ctx context.Context, target, param, payload string) (types.Finding, bool) {
	testURL, err := withParam(target, param, payload)
	if err != nil {
		d.logger.LogWarning(ctx, err, "probes.sqli", "url", target, "parameter", param, "payload", payload)
		return types.Finding{}, false
	}

	resp, err := d.fetcher.Get(ctx, testURL)
	if err != nil {
		d.logger.LogWarning(ctx, err, "probes.sqli", "url", target, "parameter", param, "payload", payload)
		return types.Finding{}, false
	}

	body := strings.ToLower(resp.Body)
	for _, marker := range sqlErrorMarkers {
		if strings.Contains(body, marker) {
			return types.NewFinding(types.KindSQLInjection, target, d.Name(), types.SeverityHigh, map[string]string{
				types.DetailParameter:   param,
				types.DetailPayload:     payload,
				types.DetailFingerprint: marker,
			}), true
		}
	}
	return types.Finding{}, false
}
