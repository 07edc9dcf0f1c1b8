package types

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/twmb/murmur3"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// FindingKind is the closed set of weaknesses the probe battery reports.
type FindingKind string

const (
	KindSQLInjection  FindingKind = "SQL Injection"
	KindXSS           FindingKind = "Cross-Site-Scripting"
	KindSensitiveInfo FindingKind = "Sensitive Info Found"
	KindCSRFMissing   FindingKind = "CSRF Found"
)

// AllKinds lists every FindingKind in report order.
var AllKinds = []FindingKind{KindSQLInjection, KindXSS, KindSensitiveInfo, KindCSRFMissing}

// Detail keys used by the detectors.
const (
	DetailParameter       = "parameter"
	DetailPayload         = "payload"
	DetailFingerprint     = "fingerprint"
	DetailInfoType        = "info_type"
	DetailPattern         = "pattern"
	DetailMatch           = "match"
	DetailCSRFToken       = "csrf_token"
	DetailRequiredHeaders = "required_headers"
	DetailRefererHeader   = "referer_header"
)

// Finding is a single candidate vulnerability observation. Findings are
// built once by a detector and never mutated afterwards.
type Finding struct {
	Kind       FindingKind       `json:"type" yaml:"type"`
	URL        string            `json:"url" yaml:"url"`
	Detector   string            `json:"detector" yaml:"detector"`
	Severity   Severity          `json:"severity" yaml:"severity"`
	Details    map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
	DetectedAt time.Time         `json:"detected_at" yaml:"detected_at"`
}

// NewFinding copies details so the caller cannot mutate the finding later.
func NewFinding(kind FindingKind, url, detector string, severity Severity, details map[string]string) Finding {
	copied := make(map[string]string, len(details))
	for k, v := range details {
		copied[k] = v
	}
	return Finding{
		Kind:       kind,
		URL:        url,
		Detector:   detector,
		Severity:   severity,
		Details:    copied,
		DetectedAt: time.Now().UTC(),
	}
}

// DetailKeys returns the detail keys in stable order.
func (f Finding) DetailKeys() []string {
	keys := make([]string, 0, len(f.Details))
	for k := range f.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fingerprint identifies a finding by kind, url and details. Two findings
// with the same evidence share a fingerprint regardless of detection time.
func (f Finding) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	b.WriteByte(0)
	b.WriteString(f.URL)
	for _, k := range f.DetailKeys() {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(f.Details[k])
	}

	h1, h2 := murmur3.Sum128([]byte(b.String()))
	var sum [16]byte
	binary.BigEndian.PutUint64(sum[:8], h1)
	binary.BigEndian.PutUint64(sum[8:], h2)
	return fmt.Sprintf("%x", sum)
}

type ScanResult struct {
	ScanID      string    `json:"scan_id" yaml:"scan_id"`
	Target      string    `json:"target" yaml:"target"`
	MaxDepth    int       `json:"max_depth" yaml:"max_depth"`
	VisitedURLs []string  `json:"visited_urls" yaml:"visited_urls"`
	Findings    []Finding `json:"findings" yaml:"findings"`
	Summary     Summary   `json:"summary" yaml:"summary"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
	Cancelled   bool      `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

type Summary struct {
	URLsVisited int                 `json:"urls_visited" yaml:"urls_visited"`
	Total       int                 `json:"total" yaml:"total"`
	ByKind      map[FindingKind]int `json:"by_kind" yaml:"by_kind"`
	BySeverity  map[Severity]int    `json:"by_severity" yaml:"by_severity"`
}

// Summarize counts findings by kind and severity.
func Summarize(visited int, findings []Finding) Summary {
	s := Summary{
		URLsVisited: visited,
		Total:       len(findings),
		ByKind:      make(map[FindingKind]int),
		BySeverity:  make(map[Severity]int),
	}
	for _, f := range findings {
		s.ByKind[f.Kind]++
		s.BySeverity[f.Severity]++
	}
	return s
}
