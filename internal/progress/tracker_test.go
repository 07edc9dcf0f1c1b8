package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_PhaseLifecycle(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf, true)
	tr.AddPhase("crawl", "Crawling target")
	tr.AddPhase("probe", "Running probes")

	tr.StartPhase("crawl")
	tr.CompletePhase("crawl")
	tr.StartPhase("probe")
	tr.UpdateProgress("probe", 50)

	phases := tr.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, StatusCompleted, phases[0].Status)
	assert.Equal(t, 100, phases[0].Progress)
	assert.Equal(t, StatusRunning, phases[1].Status)
	assert.Equal(t, 50, phases[1].Progress)
	assert.Contains(t, buf.String(), "Running probes (50%)")
	assert.Contains(t, buf.String(), "] 75% |")

	tr.CompletePhase("probe")
	tr.Complete()
	assert.Contains(t, buf.String(), "completed  probe")
}

func TestTracker_DisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf, false)
	tr.AddPhase("crawl", "Crawling target")
	tr.StartPhase("crawl")
	tr.FailPhase("crawl", errors.New("boom"))
	tr.Complete()

	assert.Empty(t, buf.String())
	assert.Equal(t, StatusFailed, tr.Phases()[0].Status)
}

func TestTracker_UnknownPhaseAndClamping(t *testing.T) {
	tr := New(nil, false)
	tr.AddPhase("probe", "Running probes")

	tr.StartPhase("missing")
	tr.UpdateProgress("probe", 250)
	assert.Equal(t, 100, tr.Phases()[0].Progress)
	tr.UpdateProgress("probe", -3)
	assert.Equal(t, 0, tr.Phases()[0].Progress)
	assert.Equal(t, StatusPending, tr.Phases()[0].Status)
}

func TestTracker_InterruptClearsAndRedraws(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf, true)
	tr.AddPhase("probe", "Running probes")
	tr.StartPhase("probe")
	buf.Reset()

	tr.Interrupt(func() { buf.WriteString("FINDING\n") })

	out := buf.String()
	require.True(t, strings.HasPrefix(out, clearLine+"FINDING\n"), "line cleared before output: %q", out)
	assert.Contains(t, strings.TrimPrefix(out, clearLine+"FINDING\n"), "Running probes (0%)", "bar redrawn after output")
}

func TestTracker_InterruptDisabled(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf, false)

	ran := false
	tr.Interrupt(func() { ran = true })

	assert.True(t, ran)
	assert.Empty(t, buf.String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "< 1s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 10*time.Minute, "2h 10m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
