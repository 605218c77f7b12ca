// Package runner executes a task graph on a bounded worker pool.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxkimambo/assetpipe/internal/dag"
	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/logger"
	"github.com/maxkimambo/assetpipe/internal/progress"
	"github.com/maxkimambo/assetpipe/internal/transform"
)

// Config contains configuration for the runner
type Config struct {
	// MaxParallelTasks is the maximum number of transforms running at once
	MaxParallelTasks int

	// TaskTimeout applies to tasks without their own timeout; zero disables it
	TaskTimeout time.Duration
}

// DefaultConfig returns a configuration using one worker per CPU and no timeout
func DefaultConfig() *Config {
	return &Config{
		MaxParallelTasks: runtime.NumCPU(),
	}
}

// Runner executes tasks of a graph. It remembers which tasks succeeded during
// its lifetime so that RunSubset can skip dependencies that are already
// up to date. Only one run executes at a time.
type Runner struct {
	graph    *dag.TaskGraph
	resolver *fileset.Resolver
	config   *Config

	// runMu serializes runs
	runMu sync.Mutex

	mu        sync.Mutex
	satisfied map[string]bool
}

// New creates a runner for graph resolving inputs with resolver
func New(graph *dag.TaskGraph, resolver *fileset.Resolver, config *Config) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxParallelTasks <= 0 {
		config.MaxParallelTasks = runtime.NumCPU()
	}
	return &Runner{
		graph:     graph,
		resolver:  resolver,
		config:    config,
		satisfied: make(map[string]bool),
	}
}

// RunAll runs every task of the graph
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	return r.run(ctx, r.graph.TopologicalOrder()), nil
}

// RunSubset runs the named tasks plus every transitive dependency that has
// not succeeded earlier in this runner's lifetime
func (r *Runner) RunSubset(ctx context.Context, names []string) (*Report, error) {
	for _, name := range names {
		if _, ok := r.graph.Task(name); !ok {
			return nil, apperrors.NewUnknownTaskError(name)
		}
	}

	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.Lock()
	set := make(map[string]bool)
	var visit func(name string, requested bool)
	visit = func(name string, requested bool) {
		if set[name] {
			return
		}
		if requested || !r.satisfied[name] {
			set[name] = true
		}
		for _, dep := range r.graph.Dependencies(name) {
			visit(dep, false)
		}
	}
	for _, name := range names {
		visit(name, true)
	}
	r.mu.Unlock()

	return r.run(ctx, r.graph.Restrict(set)), nil
}

// Satisfied reports whether name succeeded in its most recent run
func (r *Runner) Satisfied(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.satisfied[name]
}

// execution holds the state of a single run
type execution struct {
	runner  *Runner
	ctx     context.Context
	inRun   map[string]bool
	done    map[string]chan struct{}
	workers chan struct{}
	tracker *progress.Tracker

	mutex   sync.Mutex
	results map[string]*BuildResult
	wg      sync.WaitGroup
}

func (r *Runner) run(ctx context.Context, names []string) *Report {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}

	e := &execution{
		runner:  r,
		ctx:     ctx,
		inRun:   make(map[string]bool, len(names)),
		done:    make(map[string]chan struct{}, len(names)),
		workers: make(chan struct{}, r.config.MaxParallelTasks),
		results: make(map[string]*BuildResult, len(names)),
		tracker: progress.NewTracker(len(names)),
	}

	// Re-running a task clears its satisfied mark until it succeeds again
	r.mu.Lock()
	for _, name := range names {
		e.inRun[name] = true
		e.done[name] = make(chan struct{})
		delete(r.satisfied, name)
	}
	r.mu.Unlock()

	if logger.User != nil && len(names) > 0 {
		logger.User.Startingf("Starting build of %d tasks (max %d parallel)", len(names), r.config.MaxParallelTasks)
	}
	if logger.Op != nil {
		logger.Op.WithFields(map[string]interface{}{
			"run_id": report.RunID,
			"tasks":  names,
		}).Debug("Run started")
	}

	for _, name := range names {
		e.wg.Add(1)
		go e.executeTask(name)
	}

	// Wait for all tasks to complete
	e.wg.Wait()

	report.Duration = time.Since(report.Started)
	for _, name := range names {
		report.Results = append(report.Results, *e.results[name])
	}
	return report
}

// executeTask waits for the task's dependencies, then runs it on a worker slot
func (e *execution) executeTask(name string) {
	defer e.wg.Done()
	defer close(e.done[name])

	task, _ := e.runner.graph.Task(name)
	result := &BuildResult{
		TaskName:  name,
		Transform: task.TransformName(),
		Output:    e.outputPath(task),
	}

	if blocked := e.waitForDependencies(name); blocked != nil {
		result.Status = dag.StatusSkipped
		result.Err = blocked
		e.finish(result)
		return
	}

	// Acquire worker slot
	select {
	case e.workers <- struct{}{}:
		defer func() { <-e.workers }()
	case <-e.ctx.Done():
		result.Status = dag.StatusSkipped
		result.Err = e.ctx.Err()
		e.finish(result)
		return
	}

	e.tracker.Started(name)
	start := time.Now()
	err := e.invoke(task, result)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = dag.StatusFailed
		result.Err = err
	} else {
		result.Status = dag.StatusSucceeded
	}
	e.finish(result)
}

// waitForDependencies blocks until every dependency inside the run set has
// finished. It returns a non-nil error when one of them did not succeed or
// the run was cancelled.
func (e *execution) waitForDependencies(name string) error {
	for _, dep := range e.runner.graph.Dependencies(name) {
		if !e.inRun[dep] {
			continue
		}
		select {
		case <-e.done[dep]:
		case <-e.ctx.Done():
			return e.ctx.Err()
		}

		e.mutex.Lock()
		status := e.results[dep].Status
		e.mutex.Unlock()
		if status != dag.StatusSucceeded {
			return fmt.Errorf("dependency %s %s", dep, status)
		}
	}
	return e.ctx.Err()
}

// invoke resolves the inputs and runs the transform under the task timeout
func (e *execution) invoke(task *dag.Task, result *BuildResult) error {
	inputs, err := e.runner.resolver.Resolve(task.Inputs)
	if err != nil {
		return err
	}
	result.Inputs = len(inputs)

	if logger.Op != nil {
		logger.Op.WithFields(map[string]interface{}{
			"task":      task.Name,
			"transform": task.TransformName(),
			"inputs":    len(inputs),
		}).Debug("Invoking transform")
	}

	timeout := task.Timeout
	if timeout == 0 {
		timeout = e.runner.config.TaskTimeout
	}

	var taskCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(e.ctx, timeout)
	} else {
		taskCtx, cancel = context.WithCancel(e.ctx)
	}
	defer cancel()

	req := transform.Request{
		Task:    task.Name,
		Root:    e.runner.resolver.Root(),
		Inputs:  inputs,
		Output:  result.Output,
		Options: task.Options,
	}

	// Buffered so a transform that ignores cancellation can still exit
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				errCh <- fmt.Errorf("transform panicked: %v", p)
			}
		}()
		errCh <- task.Transform.Run(taskCtx, req)
	}()

	select {
	case err = <-errCh:
	case <-taskCtx.Done():
		err = taskCtx.Err()
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && e.ctx.Err() == nil:
		return apperrors.NewTimeoutError(task.Name, timeout)
	default:
		return apperrors.NewTransformFailedError(task.Name, task.TransformName(), err)
	}
}

func (e *execution) outputPath(task *dag.Task) string {
	if task.Output == "" || filepath.IsAbs(task.Output) {
		return task.Output
	}
	return e.runner.resolver.Abs(task.Output)
}

// finish records the result and updates the session memory
func (e *execution) finish(result *BuildResult) {
	e.mutex.Lock()
	e.results[result.TaskName] = result
	e.mutex.Unlock()
	e.tracker.Finished(result.TaskName, result.Status)

	if result.Status == dag.StatusSucceeded {
		e.runner.mu.Lock()
		e.runner.satisfied[result.TaskName] = true
		e.runner.mu.Unlock()
	}

	if logger.Op != nil {
		if info := e.tracker.Info(); info.Done() || e.tracker.ShouldReport() {
			logger.Op.Info(progress.Format(info))
		}
	}

	if logger.User == nil {
		return
	}
	switch result.Status {
	case dag.StatusSucceeded:
		logger.User.Successf("Task %s completed (%s, %d files) in %s",
			result.TaskName, result.Transform, result.Inputs, result.Duration.Round(time.Millisecond))
	case dag.StatusFailed:
		logger.User.Errorf("Task %s failed: %v", result.TaskName, result.Err)
	case dag.StatusSkipped:
		logger.User.Skippedf("Task %s skipped: %v", result.TaskName, result.Err)
	}
}
