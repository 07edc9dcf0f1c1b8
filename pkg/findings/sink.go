// Package findings holds the scan-wide, append-only record of detector results.
package findings

import (
	"context"
	"sync"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

// Reporter is invoked once per finding, in append order.
type Reporter func(types.Finding)

// Sink is safe for concurrent use by every worker in the probe phase.
type Sink struct {
	mu        sync.Mutex
	findings  []types.Finding
	reporter  Reporter
	logger    *logger.Logger
	telemetry core.Telemetry
}

type Option func(*Sink)

// WithReporter sets the hook that renders each finding as it arrives.
func WithReporter(r Reporter) Option {
	return func(s *Sink) { s.reporter = r }
}

func WithTelemetry(t core.Telemetry) Option {
	return func(s *Sink) { s.telemetry = t }
}

func NewSink(log *logger.Logger, opts ...Option) *Sink {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Sink{
		findings: make([]types.Finding, 0),
		logger:   log.WithComponent("findings"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ core.FindingsSink = (*Sink)(nil)

// Add appends f and reports it. The reporter runs under the same lock as the
// append so console blocks from different workers never interleave.
func (s *Sink) Add(ctx context.Context, f types.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findings = append(s.findings, f)
	if s.reporter != nil {
		s.reporter(f)
	}

	s.logger.LogVulnerability(ctx, string(f.Kind), f.URL, string(f.Severity), f.Details)
	if s.telemetry != nil {
		s.telemetry.RecordFinding(f.Kind, f.Severity)
	}
}

// Findings returns a copy in insertion order.
func (s *Sink) Findings() []types.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Finding, len(s.findings))
	copy(out, s.findings)
	return out
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.findings)
}
