package probes

import (
	"context"
	"regexp"
	"strings"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

type sensitivePattern struct {
	name     string
	re       *regexp.Regexp
	severity types.Severity
	redact   bool
}

const apiKeyValue = `([a-zA-Z0-9]{32,45})`

// sensitivePatterns are evaluated in this order against every body. The
// api_key expression allows an optional ':' or '=' before the quoted value
// and spells out each quote pair because RE2 has no back-references.
var sensitivePatterns = []sensitivePattern{
	{
		name:     "email",
		re:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		severity: types.SeverityMedium,
	},
	{
		name:     "phone",
		re:       regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
		severity: types.SeverityMedium,
	},
	{
		name:     "ssn",
		re:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		severity: types.SeverityHigh,
		redact:   true,
	},
	{
		name: "api_key",
		re: regexp.MustCompile(`api[_-]?key[_-]?\s*[:=]?\s*(?:'` + apiKeyValue + `'|"` + apiKeyValue + `"|` +
			"`" + apiKeyValue + "`" + `|\|` + apiKeyValue + `\|)`),
		severity: types.SeverityHigh,
		redact:   true,
	},
}

// SensitiveInfo fetches a page once and reports every match of every
// pattern. Repeated matches are all reported.
type SensitiveInfo struct {
	probe
}

func NewSensitiveInfo(fetcher core.Fetcher, log *logger.Logger) *SensitiveInfo {
	return &SensitiveInfo{probe: newProbe("sensitive_info", fetcher, log)}
}

var _ core.Detector = (*SensitiveInfo)(nil)

func (d *SensitiveInfo) Kind() types.FindingKind { return types.KindSensitiveInfo }

func (d *SensitiveInfo) Detect(ctx context.Context, target string) []types.Finding {
	resp, err := d.fetcher.Get(ctx, target)
	if err != nil {
		d.logger.LogWarning(ctx, err, "probes.sensitive_info", "url", target)
		return nil
	}

	var found []types.Finding
	for _, p := range sensitivePatterns {
		d.guard(ctx, func() {
			for _, match := range p.re.FindAllString(resp.Body, -1) {
				if p.redact {
					match = redact(match)
				}
				found = append(found, types.NewFinding(types.KindSensitiveInfo, target, d.Name(), p.severity, map[string]string{
					types.DetailInfoType: p.name,
					types.DetailPattern:  p.re.String(),
					types.DetailMatch:    match,
				}))
			}
		}, "url", target, "pattern", p.name)
	}
	return found
}

// redact keeps the last four characters.
func redact(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
