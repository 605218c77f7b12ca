// Package progress tracks how far a build run has come.
package progress

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maxkimambo/assetpipe/internal/dag"
)

// Info is a snapshot of run progress
type Info struct {
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	SkippedTasks   int
	RunningTasks   []string
	Elapsed        time.Duration
	EstimatedLeft  time.Duration
}

// Done reports whether every task has finished
func (i Info) Done() bool {
	return i.CompletedTasks+i.FailedTasks+i.SkippedTasks >= i.TotalTasks
}

// Tracker records task starts and outcomes for one run. It is safe for
// concurrent use.
type Tracker struct {
	mu             sync.Mutex
	start          time.Time
	total          int
	running        map[string]time.Time
	completed      int
	failed         int
	skipped        int
	lastReport     time.Time
	reportInterval time.Duration
}

// NewTracker creates a tracker for a run of total tasks
func NewTracker(total int) *Tracker {
	now := time.Now()
	return &Tracker{
		start:          now,
		total:          total,
		running:        make(map[string]time.Time),
		lastReport:     now,
		reportInterval: 5 * time.Second,
	}
}

// WithInterval sets the minimum time between periodic reports
func (t *Tracker) WithInterval(d time.Duration) *Tracker {
	t.reportInterval = d
	return t
}

func (t *Tracker) Started(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[name] = time.Now()
}

func (t *Tracker) Finished(name string, status dag.NodeStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, name)
	switch status {
	case dag.StatusSucceeded:
		t.completed++
	case dag.StatusFailed:
		t.failed++
	case dag.StatusSkipped:
		t.skipped++
	}
}

// Info returns the current progress
func (t *Tracker) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	running := make([]string, 0, len(t.running))
	for name := range t.running {
		running = append(running, name)
	}
	sort.Strings(running)

	elapsed := time.Since(t.start)
	finished := t.completed + t.failed + t.skipped
	return Info{
		TotalTasks:     t.total,
		CompletedTasks: t.completed,
		FailedTasks:    t.failed,
		SkippedTasks:   t.skipped,
		RunningTasks:   running,
		Elapsed:        elapsed,
		EstimatedLeft:  CalculateETA(finished, t.total, elapsed),
	}
}

// ShouldReport returns true if it's time to report progress, and marks the
// report as made
func (t *Tracker) ShouldReport() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastReport) < t.reportInterval {
		return false
	}
	t.lastReport = time.Now()
	return true
}

// Format renders a one-line progress report
func Format(info Info) string {
	finished := info.CompletedTasks + info.FailedTasks + info.SkippedTasks
	percentage := 0.0
	if info.TotalTasks > 0 {
		percentage = float64(finished) / float64(info.TotalTasks) * 100
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Progress: %d/%d tasks finished (%.1f%%)", finished, info.TotalTasks, percentage))
	if info.FailedTasks > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", info.FailedTasks))
	}
	if info.SkippedTasks > 0 {
		sb.WriteString(fmt.Sprintf(", %d skipped", info.SkippedTasks))
	}
	sb.WriteString(fmt.Sprintf(" | Elapsed: %s", FormatDuration(info.Elapsed)))
	if info.EstimatedLeft > 0 {
		sb.WriteString(fmt.Sprintf(" | ETA: %s", FormatDuration(info.EstimatedLeft)))
	}
	if len(info.RunningTasks) > 0 {
		sb.WriteString(fmt.Sprintf(" | Running: %s", strings.Join(info.RunningTasks, ", ")))
	}
	return sb.String()
}

// CalculateETA estimates time remaining based on current progress
func CalculateETA(finished, total int, elapsed time.Duration) time.Duration {
	if finished <= 0 || total <= 0 || finished >= total {
		return 0
	}
	perTask := elapsed / time.Duration(finished)
	return perTask * time.Duration(total-finished)
}

// FormatDuration formats a duration in a user-friendly way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
