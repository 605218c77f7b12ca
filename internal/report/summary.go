// Package report renders build results for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/maxkimambo/assetpipe/internal/dag"
	"github.com/maxkimambo/assetpipe/internal/journal"
	"github.com/maxkimambo/assetpipe/internal/runner"
)

// Tasks renders one row per task of a run
func Tasks(r *runner.Report) *Table {
	t := NewTable("TASK", "TRANSFORM", "STATUS", "INPUTS", "DURATION")
	for _, res := range r.Results {
		t.AddRow(res.TaskName, res.Transform, string(res.Status), fmt.Sprint(res.Inputs), formatDuration(res.Duration))
	}
	return t
}

// Summary renders the outcome of a run as a box, listing failures
func Summary(r *runner.Report) *Box {
	succeeded, failed, skipped := r.Counts()

	if failed == 0 {
		return NewBox(SuccessBox, fmt.Sprintf("Build succeeded in %s", formatDuration(r.Duration))).
			AddLine(fmt.Sprintf("%d task(s) completed", succeeded))
	}

	box := NewBox(ErrorBox, fmt.Sprintf("Build failed: %d failed, %d skipped, %d succeeded", failed, skipped, succeeded))
	for _, res := range r.Results {
		if res.Err == nil || res.Status == dag.StatusSkipped {
			continue
		}
		box.AddBullet(fmt.Sprintf("%s: %s", res.TaskName, firstLine(res.Err.Error())))
	}
	return box
}

// History renders recorded runs, newest first
func History(runs []journal.RunSummary) *Table {
	t := NewTable("RUN", "COMMAND", "STARTED", "DURATION", "OK", "FAILED", "SKIPPED")
	for _, run := range runs {
		id := run.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		t.AddRow(id, run.Command, run.Started.Local().Format("2006-01-02 15:04:05"),
			formatDuration(run.Duration), fmt.Sprint(run.Succeeded), fmt.Sprint(run.Failed), fmt.Sprint(run.Skipped))
	}
	return t
}

// RunTasks renders the recorded task results of one run
func RunTasks(tasks []journal.TaskRecord) *Table {
	t := NewTable("TASK", "TRANSFORM", "STATUS", "INPUTS", "DURATION", "ERROR")
	for _, rec := range tasks {
		t.AddRow(rec.Task, rec.Transform, rec.Status, fmt.Sprint(rec.Inputs), formatDuration(rec.Duration), firstLine(rec.Error))
	}
	return t
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "<1ms"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
