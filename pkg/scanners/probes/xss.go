package probes

import (
	"context"
	"strings"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

var xssPayloads = []string{
	"<script>alert('XSS')</script>",
	"<img src=x onerror=alert('XSS')>",
	"javascript:alert('XSS')",
}

// XSS reports query parameters whose value is reflected into the response
// body without encoding.
type XSS struct {
	probe
}

func NewXSS(fetcher core.Fetcher, log *logger.Logger) *XSS {
	return &XSS{probe: newProbe("xss", fetcher, log)}
}

var _ core.Detector = (*XSS)(nil)

func (d *XSS) Kind() types.FindingKind { return types.KindXSS }

func (d *XSS) Detect(ctx context.Context, target string) []types.Finding {
	params := queryParams(target)
	if len(params) == 0 {
		return nil
	}

	var found []types.Finding
	for _, payload := range xssPayloads {
		for _, param := range params {
			if ctx.Err() != nil {
				return found
			}
			d.guard(ctx, func() {
				if d.reflected(ctx, target, param, payload) {
					found = append(found, types.NewFinding(types.KindXSS, target, d.Name(), types.SeverityHigh, map[string]string{
						types.DetailParameter: param,
						types.DetailPayload:   payload,
					}))
				}
			}, "url", target, "parameter", param, "payload", payload)
		}
	}
	return found
}

func (d *XSS) reflected(ctx context.Context, target, param, payload string) bool {
	testURL, err := withParam(target, param, payload)
	if err != nil {
		d.logger.LogWarning(ctx, err, "probes.xss", "url", target, "parameter", param, "payload", payload)
		return false
	}

	resp, err := d.fetcher.Get(ctx, testURL)
	if err != nil {
		d.logger.LogWarning(ctx, err, "probes.xss", "url", target, "parameter", param, "payload", payload)
		return false
	}
	return strings.Contains(resp.Body, payload)
}
