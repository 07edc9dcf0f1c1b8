package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/progress"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/worker"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/discovery/web"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

// ErrAlreadyScanned is returned by a second Scan on the same session.
var ErrAlreadyScanned = errors.New("scan session already used")

// ScanSession is one scanner invocation: a target, a crawl depth, and the
// collaborators that crawl it and probe what was found. A session runs
// exactly one Scan.
type ScanSession struct {
	id       string
	target   string
	maxDepth int

	crawler   *web.Crawler
	fetcher   core.Fetcher
	detectors []core.Detector
	sink      core.FindingsSink
	pool      *worker.Pool
	telemetry core.Telemetry
	progress  *progress.Tracker
	logger    *logger.Logger

	mu      sync.Mutex
	scanned bool
}

// Dependencies are the collaborators a session drives.
type Dependencies struct {
	Crawler   *web.Crawler
	Fetcher   core.Fetcher // closed after the scan when it is an io.Closer
	Detectors []core.Detector
	Sink      core.FindingsSink
	Pool      *worker.Pool
	Telemetry core.Telemetry
	Progress  *progress.Tracker // optional, silent when nil
}

const (
	phaseCrawl = "crawl"
	phaseProbe = "probe"
)

func NewScanSession(target string, maxDepth int, deps Dependencies, log *logger.Logger) (*ScanSession, error) {
	if deps.Crawler == nil {
		return nil, fmt.Errorf("crawler is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("findings sink is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("worker pool is required")
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth must be non-negative, got %d", maxDepth)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.NewNoop()
	}
	if deps.Progress == nil {
		deps.Progress = progress.New(nil, false)
	}
	deps.Progress.AddPhase(phaseCrawl, "Crawling target")
	deps.Progress.AddPhase(phaseProbe, "Probing discovered URLs")
	if log == nil {
		log = logger.NewNop()
	}

	id := uuid.New().String()
	return &ScanSession{
		id:        id,
		target:    target,
		maxDepth:  maxDepth,
		crawler:   deps.Crawler,
		fetcher:   deps.Fetcher,
		detectors: deps.Detectors,
		sink:      deps.Sink,
		pool:      deps.Pool,
		telemetry: deps.Telemetry,
		progress:  deps.Progress,
		logger:    log.WithComponent("orchestrator").WithScanID(id).WithTarget(target),
	}, nil
}

func (s *ScanSession) ID() string     { return s.id }
func (s *ScanSession) Target() string { return s.target }

// Scan crawls the target, then runs every detector against every visited
// URL on the worker pool and waits for all of them. Per-URL and per-payload
// failures never surface here; the only errors are misuse of the session.
// A cancelled context yields the partial result with Cancelled set.
func (s *ScanSession) Scan(ctx context.Context) (*types.ScanResult, error) {
	s.mu.Lock()
	if s.scanned {
		s.mu.Unlock()
		return nil, ErrAlreadyScanned
	}
	s.scanned = true
	s.mu.Unlock()

	start := time.Now()
	ctx, span := s.logger.StartOperation(ctx, "orchestrator.Scan",
		"max_depth", s.maxDepth,
		"detectors", len(s.detectors),
	)

	s.progress.StartPhase(phaseCrawl)
	visited := s.crawler.Crawl(ctx, s.target, s.maxDepth)
	urls := visited.URLs()
	s.progress.CompletePhase(phaseCrawl)
	s.telemetry.RecordURLsVisited(len(urls))
	s.logger.Infow("Crawl finished", "urls_visited", len(urls))

	s.progress.StartPhase(phaseProbe)
	err := s.probe(ctx, urls)
	s.release()
	if err != nil {
		s.progress.FailPhase(phaseProbe, err)
		s.logger.FinishOperation(ctx, span, "orchestrator.Scan", start, err)
		s.telemetry.RecordScan(time.Since(start).Seconds(), false)
		return nil, err
	}

	s.progress.CompletePhase(phaseProbe)
	s.progress.Complete()

	found := s.sink.Findings()
	result := &types.ScanResult{
		ScanID:      s.id,
		Target:      s.target,
		MaxDepth:    s.maxDepth,
		VisitedURLs: urls,
		Findings:    found,
		Summary:     types.Summarize(len(urls), found),
		StartedAt:   start.UTC(),
		CompletedAt: time.Now().UTC(),
		Cancelled:   ctx.Err() != nil,
	}

	s.telemetry.RecordScan(time.Since(start).Seconds(), !result.Cancelled)
	status := s.pool.Status()
	s.logger.FinishOperation(ctx, span, "orchestrator.Scan", start, nil,
		"urls_visited", len(urls),
		"findings", len(found),
		"cancelled", result.Cancelled,
		"probes_submitted", status.Submitted,
		"probes_completed", status.Completed,
		"probes_panicked", status.Panicked,
	)
	return result, nil
}

// limiterStats is implemented by fetchers that pace their requests.
type limiterStats interface {
	LimiterStats() ratelimit.Stats
}

// release drops idle connections once no more requests will be made.
func (s *ScanSession) release() {
	if ls, ok := s.fetcher.(limiterStats); ok {
		stats := ls.LimiterStats()
		s.logger.Debugw("Rate limiter state at end of scan",
			"tracked_hosts", stats.TrackedHosts,
			"request_delay", stats.RequestDelay,
		)
	}

	c, ok := s.fetcher.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		s.logger.Debugw("Failed to release fetcher", "error", err)
	}
}

// probe fans every (url, detector) pair out to the pool and joins it.
func (s *ScanSession) probe(ctx context.Context, urls []string) error {
	if err := s.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	total := len(urls) * len(s.detectors)
	var completed atomic.Int64

	submitted := 0
	interrupted := false
submit:
	for _, u := range urls {
		for _, d := range s.detectors {
			err := s.pool.Submit(d.Name()+" "+u, func(ctx context.Context) {
				defer func() {
					done := completed.Add(1)
					s.progress.UpdateProgress(phaseProbe, int(done*100/int64(total)))
				}()
				for _, f := range d.Detect(ctx, u) {
					s.sink.Add(ctx, f)
				}
			})
			if err != nil {
				s.logger.Warnw("Probe phase interrupted, remaining probes skipped",
					"submitted", submitted,
					"total", total,
					"error", err,
				)
				interrupted = true
				break submit
			}
			submitted++
		}
	}

	// An interrupted scan cancels whatever is still running instead of
	// letting it finish.
	join := s.pool.Wait
	if interrupted {
		join = s.pool.Stop
	}
	if err := join(); err != nil {
		return fmt.Errorf("failed waiting for probes: %w", err)
	}
	return nil
}
