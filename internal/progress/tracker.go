package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Tracker provides simple progress tracking for multi-phase operations
type Tracker struct {
	phases       []Phase
	currentPhase int
	startTime    time.Time
	mu           sync.Mutex
	enabled      bool
	out          io.Writer
}

// Phase represents a single phase of work
type Phase struct {
	Name        string
	Description string
	Status      PhaseStatus
	StartTime   time.Time
	EndTime     time.Time
	Progress    int // 0-100 percentage
}

// clearLine returns the cursor to column 0 and erases the line.
const clearLine = "\r\033[K"

type PhaseStatus int

const (
	StatusPending PhaseStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s PhaseStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// New creates a tracker that renders to out. A disabled tracker still
// records phase state but never writes.
func New(out io.Writer, enabled bool) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{
		phases:    []Phase{},
		startTime: time.Now(),
		enabled:   enabled,
		out:       out,
	}
}

// AddPhase adds a new phase to track
func (t *Tracker) AddPhase(name, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phases = append(t.phases, Phase{
		Name:        name,
		Description: description,
		Status:      StatusPending,
	})
}

// StartPhase marks a phase as started
func (t *Tracker) StartPhase(name string) {
	t.update(name, func(i int) {
		t.phases[i].Status = StatusRunning
		t.phases[i].StartTime = time.Now()
		t.currentPhase = i
	})
}

// UpdateProgress sets the completion percentage of a phase, clamped to 0-100.
func (t *Tracker) UpdateProgress(name string, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.update(name, func(i int) {
		t.phases[i].Progress = progress
	})
}

// CompletePhase marks a phase as completed
func (t *Tracker) CompletePhase(name string) {
	t.update(name, func(i int) {
		t.phases[i].Status = StatusCompleted
		t.phases[i].EndTime = time.Now()
		t.phases[i].Progress = 100
	})
}

// FailPhase marks a phase as failed
func (t *Tracker) FailPhase(name string, err error) {
	t.update(name, func(i int) {
		t.phases[i].Status = StatusFailed
		t.phases[i].EndTime = time.Now()
	})
	if t.enabled {
		t.mu.Lock()
		fmt.Fprintf(t.out, "\nPhase %s failed: %v\n", name, err)
		t.mu.Unlock()
	}
}

// Interrupt clears the progress line, runs fn and redraws the bar. Output
// written by fn therefore never lands in the middle of a bar update.
func (t *Tracker) Interrupt(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		fmt.Fprint(t.out, clearLine)
	}
	fn()
	t.render()
}

// Phases returns a snapshot of every phase.
func (t *Tracker) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Phase, len(t.phases))
	copy(out, t.phases)
	return out
}

func (t *Tracker) update(name string, fn func(i int)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, phase := range t.phases {
		if phase.Name == name {
			fn(i)
			t.render()
			return
		}
	}
}

// render displays the current progress state. Callers hold t.mu.
func (t *Tracker) render() {
	if !t.enabled {
		return
	}

	fmt.Fprint(t.out, clearLine)

	overallProgress := t.overall()

	barWidth := 30
	filled := (overallProgress * barWidth) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	currentPhaseInfo := ""
	if t.currentPhase < len(t.phases) {
		phase := t.phases[t.currentPhase]
		currentPhaseInfo = fmt.Sprintf("%s (%d%%)", phase.Description, phase.Progress)
	}

	elapsed := time.Since(t.startTime)
	eta := "calculating..."
	if overallProgress > 0 && overallProgress < 100 {
		totalEstimated := (elapsed * 100) / time.Duration(overallProgress)
		eta = formatDuration(totalEstimated - elapsed)
	}

	fmt.Fprintf(t.out, "[%s] %d%% | %s | ETA: %s", bar, overallProgress, currentPhaseInfo, eta)
}

func (t *Tracker) overall() int {
	total := len(t.phases)
	if total == 0 {
		return 0
	}

	completed := 0
	for _, phase := range t.phases {
		if phase.Status == StatusCompleted {
			completed++
		}
	}
	overall := (completed * 100) / total
	if t.currentPhase < total && t.phases[t.currentPhase].Status == StatusRunning {
		overall += t.phases[t.currentPhase].Progress / total
	}
	return overall
}

// Complete clears the progress line and prints the phase breakdown.
func (t *Tracker) Complete() {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprint(t.out, clearLine)
	fmt.Fprintf(t.out, "Finished in %s\n", formatDuration(time.Since(t.startTime)))
	for _, phase := range t.phases {
		duration := ""
		if !phase.EndTime.IsZero() {
			duration = fmt.Sprintf(" (%s)", formatDuration(phase.EndTime.Sub(phase.StartTime)))
		}
		fmt.Fprintf(t.out, "  %-10s %s%s\n", phase.Status, phase.Name, duration)
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
