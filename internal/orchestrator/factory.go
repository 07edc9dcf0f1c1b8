package orchestrator

import (
	"fmt"
	"io"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/progress"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/worker"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/discovery/web"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/findings"
	probehttp "github.com/CodeMonkeyCybersecurity/siteprobe/pkg/http"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/scanners/probes"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

// SessionFactory builds ScanSessions from configuration, wiring the shared
// fetcher into the crawler and every detector.
type SessionFactory struct {
	config    *config.Config
	telemetry core.Telemetry
	logger    *logger.Logger
	reporter  findings.Reporter
	fetcher   core.Fetcher
	progress  io.Writer
}

type FactoryOption func(*SessionFactory)

// WithReporter renders each finding as the sink records it.
func WithReporter(r findings.Reporter) FactoryOption {
	return func(f *SessionFactory) { f.reporter = r }
}

// WithFetcher replaces the HTTP fetcher built from config.
func WithFetcher(fetcher core.Fetcher) FactoryOption {
	return func(f *SessionFactory) { f.fetcher = fetcher }
}

// WithProgress renders a progress bar to w when output.progress is enabled.
func WithProgress(w io.Writer) FactoryOption {
	return func(f *SessionFactory) { f.progress = w }
}

func NewSessionFactory(cfg *config.Config, tel core.Telemetry, log *logger.Logger, opts ...FactoryOption) *SessionFactory {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	f := &SessionFactory{
		config:    cfg,
		telemetry: tel,
		logger:    log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build constructs a session for target.
func (f *SessionFactory) Build(target string) (*ScanSession, error) {
	if err := f.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	fetcher := f.buildFetcher()
	crawler := f.buildCrawler(fetcher)
	detectors := probes.All(fetcher, f.logger)
	tracker := progress.New(f.progress, f.config.Output.Progress && f.progress != nil)
	sink := f.buildSink(tracker)
	pool := worker.NewPool(f.config.Worker.Count, f.logger)

	f.logger.Debugw("Scan session components built",
		"component", "factory",
		"detectors", len(detectors),
		"workers", f.config.Worker.Count,
		"max_depth", f.config.Crawler.MaxDepth,
	)

	return NewScanSession(target, f.config.Crawler.MaxDepth, Dependencies{
		Crawler:   crawler,
		Fetcher:   fetcher,
		Detectors: detectors,
		Sink:      sink,
		Pool:      pool,
		Telemetry: f.telemetry,
		Progress:  tracker,
	}, f.logger)
}

func (f *SessionFactory) buildFetcher() core.Fetcher {
	if f.fetcher != nil {
		return f.fetcher
	}
	return probehttp.NewClientFromConfig(f.config, f.logger)
}

func (f *SessionFactory) buildCrawler(fetcher core.Fetcher) *web.Crawler {
	return web.NewCrawler(fetcher, web.NewLinkExtractor(), f.logger,
		web.WithMaxPages(f.config.Crawler.MaxPages),
	)
}

// buildSink routes the reporter through the tracker so a finding printed to
// the terminal never splits a progress bar redraw.
func (f *SessionFactory) buildSink(tracker *progress.Tracker) *findings.Sink {
	opts := []findings.Option{findings.WithTelemetry(f.telemetry)}
	if report := f.reporter; report != nil {
		opts = append(opts, findings.WithReporter(func(finding types.Finding) {
			tracker.Interrupt(func() { report(finding) })
		}))
	}
	return findings.NewSink(f.logger, opts...)
}
