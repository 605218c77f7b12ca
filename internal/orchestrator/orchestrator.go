// Package orchestrator connects file change batches to incremental builds and
// browser reloads.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maxkimambo/assetpipe/internal/dag"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/logger"
	"github.com/maxkimambo/assetpipe/internal/runner"
	"github.com/maxkimambo/assetpipe/internal/watcher"
)

// Builder runs a subset of the graph
type Builder interface {
	RunSubset(ctx context.Context, names []string) (*runner.Report, error)
}

// Reloader tells browsers which paths changed
type Reloader interface {
	NotifyReload(paths []string) int
}

// Orchestrator queues change batches and runs at most one build at a time.
// Batches arriving while a build runs are merged into the next build.
type Orchestrator struct {
	graph    *dag.TaskGraph
	builder  Builder
	reloader Reloader
	root     string

	// OnReport, when set, receives every finished report
	OnReport func(*runner.Report)
	// Reload matches files that no task consumes but that should still
	// reload browsers when they change
	Reload fileset.FileSet

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
}

// New creates an orchestrator. reloader may be nil when no server runs.
// root is used to express task outputs relative to the source root.
func New(graph *dag.TaskGraph, builder Builder, reloader Reloader, root string) *Orchestrator {
	return &Orchestrator{
		graph:    graph,
		builder:  builder,
		reloader: reloader,
		root:     root,
		pending:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// HandleEvents enqueues a batch of changes. It never blocks on a build.
func (o *Orchestrator) HandleEvents(events []watcher.Event) {
	if len(events) == 0 {
		return
	}

	o.mu.Lock()
	for _, ev := range events {
		o.pending[ev.Path] = struct{}{}
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.wake:
			o.buildPending(ctx)
		}
	}
}

func (o *Orchestrator) takePending() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	paths := make([]string, 0, len(o.pending))
	for p := range o.pending {
		paths = append(paths, p)
	}
	o.pending = make(map[string]struct{})
	sort.Strings(paths)
	return paths
}

func (o *Orchestrator) buildPending(ctx context.Context) {
	changed := o.takePending()
	if len(changed) == 0 {
		return
	}

	affected := o.graph.AffectedBy(changed)
	if logger.Op != nil {
		logger.Op.WithFields(map[string]interface{}{
			"changed":  changed,
			"affected": affected,
		}).Debug("Change batch received")
	}
	if len(affected) == 0 {
		o.reloadOnly(changed)
		return
	}

	if logger.User != nil {
		logger.User.Watchf("%d file(s) changed, rebuilding %s", len(changed), strings.Join(affected, ", "))
	}

	report, err := o.builder.RunSubset(ctx, affected)
	if err != nil {
		if logger.User != nil {
			logger.User.Errorf("Rebuild failed: %v", err)
		}
		return
	}
	if o.OnReport != nil {
		o.OnReport(report)
	}

	LogSummary(report)
	if report.Failed() {
		return
	}

	if o.reloader != nil {
		o.reloader.NotifyReload(o.reloadPaths(changed, report))
	}
}

// reloadOnly notifies browsers about changed files matched by the reload set
func (o *Orchestrator) reloadOnly(changed []string) {
	if o.reloader == nil || o.Reload.IsEmpty() {
		return
	}
	var paths []string
	for _, p := range changed {
		if o.Reload.Matches(p) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return
	}
	if logger.User != nil {
		logger.User.Watchf("%d file(s) changed, reloading without a rebuild", len(paths))
	}
	o.reloader.NotifyReload(paths)
}

func (o *Orchestrator) reloadPaths(changed []string, report *runner.Report) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, p := range changed {
		add(p)
	}
	for _, out := range report.Outputs() {
		// Directory outputs say nothing about which assets changed
		if info, err := os.Stat(out); err == nil && info.IsDir() {
			continue
		}
		if rel, err := filepath.Rel(o.root, out); err == nil && !strings.HasPrefix(rel, "..") {
			add(filepath.ToSlash(rel))
		} else {
			add(filepath.ToSlash(out))
		}
	}
	return paths
}

// LogSummary reports the outcome of a run to the user
func LogSummary(report *runner.Report) {
	if logger.User == nil || report == nil {
		return
	}
	succeeded, failed, skipped := report.Counts()
	if failed == 0 {
		logger.User.Successf("Build completed: %d tasks succeeded in %s", succeeded, report.Duration.Round(time.Millisecond))
		return
	}
	logger.User.Errorf("Build completed with errors: %d succeeded, %d failed, %d skipped", succeeded, failed, skipped)
}
