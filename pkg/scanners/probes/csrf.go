package probes

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

const (
	statusMissing = "Missing"
	statusPresent = "Present"
	statusValid   = "Valid"
)

// csrfHeaders must both be on a protected state-changing request.
var csrfHeaders = []string{"X-CSRF-Token", "X-Requested-With"}

// tokenMethods are the methods whose body must carry an anti-CSRF token.
var tokenMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodDelete: true,
}

// CSRF submits a trivial form and inspects the request that actually went
// out for anti-forgery protections.
type CSRF struct {
	probe
}

func NewCSRF(fetcher core.Fetcher, log *logger.Logger) *CSRF {
	return &CSRF{probe: newProbe("csrf", fetcher, log)}
}

var _ core.Detector = (*CSRF)(nil)

func (d *CSRF) Kind() types.FindingKind { return types.KindCSRFMissing }

func (d *CSRF) Detect(ctx context.Context, target string) []types.Finding {
	resp, err := d.fetcher.Post(ctx, target, url.Values{"test": {"test"}})
	if err != nil {
		d.logger.LogWarning(ctx, err, "probes.csrf", "url", target)
		return nil
	}

	sent := resp.Request
	token := hasCSRFToken(sent)
	headers := hasCSRFHeaders(sent)
	origin := hasOrigin(sent)
	if token && headers && origin {
		return nil
	}

	return []types.Finding{
		types.NewFinding(types.KindCSRFMissing, target, d.Name(), types.SeverityMedium, map[string]string{
			types.DetailCSRFToken:       status(token, statusPresent),
			types.DetailRequiredHeaders: status(headers, statusValid),
			types.DetailRefererHeader:   status(origin, statusPresent),
		}),
	}
}

func hasCSRFToken(req core.RequestView) bool {
	if !tokenMethods[req.Method] {
		return true
	}
	body := strings.ToLower(req.Body)
	return strings.Contains(body, "csrf") || strings.Contains(body, "token")
}

func hasCSRFHeaders(req core.RequestView) bool {
	for _, h := range csrfHeaders {
		if len(req.Header.Values(h)) == 0 {
			return false
		}
	}
	return true
}

func hasOrigin(req core.RequestView) bool {
	return len(req.Header.Values("Origin")) > 0 || len(req.Header.Values("Referer")) > 0
}

func status(ok bool, good string) string {
	if ok {
		return good
	}
	return statusMissing
}
