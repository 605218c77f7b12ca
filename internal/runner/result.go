package runner

import (
	"time"

	"github.com/maxkimambo/assetpipe/internal/dag"
)

// BuildResult is the outcome of one task in one run
type BuildResult struct {
	TaskName  string
	Transform string
	Status    dag.NodeStatus
	Duration  time.Duration
	// Inputs is the number of resolved input files
	Inputs int
	// Output is the absolute output path, empty for check-only tasks
	Output string
	Err    error
}

// Succeeded reports whether the task ran to completion
func (r BuildResult) Succeeded() bool {
	return r.Status == dag.StatusSucceeded
}

// Report is the ordered result set of a single run
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	// Results holds one entry per task in the run set, in topological order
	Results []BuildResult
}

// Failed reports whether any task failed
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status == dag.StatusFailed {
			return true
		}
	}
	return false
}

// Err returns the error of the first failed task in topological order
func (r *Report) Err() error {
	for _, res := range r.Results {
		if res.Status == dag.StatusFailed {
			return res.Err
		}
	}
	return nil
}

// Result returns the result recorded for name
func (r *Report) Result(name string) (BuildResult, bool) {
	for _, res := range r.Results {
		if res.TaskName == name {
			return res, true
		}
	}
	return BuildResult{}, false
}

// Counts returns the number of succeeded, failed and skipped tasks
func (r *Report) Counts() (succeeded, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case dag.StatusSucceeded:
			succeeded++
		case dag.StatusFailed:
			failed++
		case dag.StatusSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}

// Outputs returns the output paths of tasks that succeeded
func (r *Report) Outputs() []string {
	var outputs []string
	for _, res := range r.Results {
		if res.Succeeded() && res.Output != "" {
			outputs = append(outputs, res.Output)
		}
	}
	return outputs
}

// States converts the report for graph rendering
func (r *Report) States() map[string]dag.NodeState {
	states := make(map[string]dag.NodeState, len(r.Results))
	for _, res := range r.Results {
		states[res.TaskName] = dag.NodeState{
			Status:   res.Status,
			Duration: res.Duration,
			Err:      res.Err,
		}
	}
	return states
}
