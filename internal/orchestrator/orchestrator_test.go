package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/assetpipe/internal/dag"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/runner"
	"github.com/maxkimambo/assetpipe/internal/transform"
	"github.com/maxkimambo/assetpipe/internal/watcher"
)

var noop = transform.Func{
	TransformName: "noop",
	Fn:            func(context.Context, transform.Request) error { return nil },
}

type fakeBuilder struct {
	mu      sync.Mutex
	calls   [][]string
	block   chan struct{}
	started chan struct{}
	status  dag.NodeStatus
	output  string
}

func (b *fakeBuilder) RunSubset(ctx context.Context, names []string) (*runner.Report, error) {
	b.mu.Lock()
	b.calls = append(b.calls, names)
	b.mu.Unlock()

	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.block != nil {
		<-b.block
	}

	status := b.status
	if status == "" {
		status = dag.StatusSucceeded
	}
	report := &runner.Report{RunID: "test"}
	for _, n := range names {
		report.Results = append(report.Results, runner.BuildResult{TaskName: n, Status: status, Output: b.output})
	}
	return report, nil
}

func (b *fakeBuilder) Calls() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.calls...)
}

type fakeReloader struct {
	mu    sync.Mutex
	paths [][]string
}

func (r *fakeReloader) NotifyReload(paths []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, paths)
	return 1
}

func (r *fakeReloader) Paths() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.paths...)
}

func graph(t *testing.T) *dag.TaskGraph {
	t.Helper()
	g, err := dag.Build([]dag.Task{
		{Name: "lint", Inputs: fileset.New([]string{"app/**/*.js"}, nil), Transform: noop},
		{Name: "minify", Inputs: fileset.New([]string{"app/**/*.js"}, nil), Output: "dist/js", DependsOn: []string{"lint"}, Transform: noop},
		{Name: "styles", Inputs: fileset.New([]string{"app/**/*.css"}, nil), Output: "dist/css", Transform: noop},
	})
	require.NoError(t, err)
	return g
}

func events(paths ...string) []watcher.Event {
	var out []watcher.Event
	for _, p := range paths {
		out = append(out, watcher.Event{Path: p, Kind: watcher.Modified, Timestamp: time.Now()})
	}
	return out
}

func start(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestHandleEvents_RebuildsAffectedTasks(t *testing.T) {
	b := &fakeBuilder{}
	r := &fakeReloader{}
	o := New(graph(t), b, r, "/site")
	start(t, o)

	o.HandleEvents(events("app/main.js"))

	require.Eventually(t, func() bool { return len(r.Paths()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]string{{"lint", "minify"}}, b.Calls())
}

func TestHandleEvents_UnrelatedChangeDoesNothing(t *testing.T) {
	b := &fakeBuilder{}
	r := &fakeReloader{}
	o := New(graph(t), b, r, "/site")
	start(t, o)

	o.HandleEvents(events("README.md"))
	o.HandleEvents(events("app/theme.css"))

	require.Eventually(t, func() bool { return len(b.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"styles"}, b.Calls()[0])
}

func TestHandleEvents_ReloadOnlyChange(t *testing.T) {
	b := &fakeBuilder{}
	r := &fakeReloader{}
	o := New(graph(t), b, r, "/site")
	o.Reload = fileset.New([]string{"**/*.html"}, nil)
	start(t, o)

	o.HandleEvents(events("index.html", "README.md"))

	require.Eventually(t, func() bool { return len(r.Paths()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"index.html"}, r.Paths()[0])
	assert.Empty(t, b.Calls())
}

func TestHandleEvents_ReloadOnlyWithoutServer(t *testing.T) {
	b := &fakeBuilder{}
	o := New(graph(t), b, nil, "/site")
	o.Reload = fileset.New([]string{"**/*.html"}, nil)
	start(t, o)

	o.HandleEvents(events("index.html"))
	o.HandleEvents(events("app/theme.css"))

	require.Eventually(t, func() bool { return len(b.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"styles"}, b.Calls()[0])
}

func TestWatchedBurstBuildsOnce(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0755))

	g := graph(t)
	var sets []fileset.FileSet
	for _, task := range g.Tasks() {
		sets = append(sets, task.Inputs)
	}

	b := &fakeBuilder{}
	o := New(g, b, nil, root)
	start(t, o)

	w := watcher.New(root, sets, 200*time.Millisecond)
	require.NoError(t, w.Start(context.Background(), o.HandleEvents))
	t.Cleanup(w.Stop)

	for i := 1; i <= 5; i++ {
		name := filepath.Join(root, "app", fmt.Sprintf("part%d.js", i))
		require.NoError(t, os.WriteFile(name, []byte("var x = 1"), 0644))
	}

	require.Eventually(t, func() bool { return len(b.Calls()) >= 1 }, 3*time.Second, 10*time.Millisecond)
	// Leave room for a second flush to show up
	time.Sleep(400 * time.Millisecond)
	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"lint", "minify"}, calls[0])
}

func TestHandleEvents_BatchesDuringBuildAreMerged(t *testing.T) {
	b := &fakeBuilder{block: make(chan struct{}), started: make(chan struct{}, 4)}
	o := New(graph(t), b, nil, "/site")
	start(t, o)

	o.HandleEvents(events("app/theme.css"))
	<-b.started

	o.HandleEvents(events("app/a.js"))
	o.HandleEvents(events("app/b.js", "app/other.css"))
	b.block <- struct{}{}

	<-b.started
	b.block <- struct{}{}

	calls := b.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"styles"}, calls[0])
	assert.Equal(t, []string{"lint", "minify", "styles"}, calls[1])
}

func TestHandleEvents_FailedBuildDoesNotReload(t *testing.T) {
	b := &fakeBuilder{status: dag.StatusFailed}
	r := &fakeReloader{}
	o := New(graph(t), b, r, "/site")

	var mu sync.Mutex
	var reports int
	o.OnReport = func(*runner.Report) {
		mu.Lock()
		reports++
		mu.Unlock()
	}
	start(t, o)

	o.HandleEvents(events("app/main.js"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reports == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, r.Paths())
}

func TestReloadPaths_IncludesOutputsRelativeToRoot(t *testing.T) {
	root := filepath.FromSlash("/site")
	b := &fakeBuilder{output: filepath.Join(root, "dist", "css", "theme.css")}
	r := &fakeReloader{}
	o := New(graph(t), b, r, root)
	start(t, o)

	o.HandleEvents(events("app/theme.css"))

	require.Eventually(t, func() bool { return len(r.Paths()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"app/theme.css", "dist/css/theme.css"}, r.Paths()[0])
}

func TestHandleEvents_EmptyBatchIgnored(t *testing.T) {
	o := New(graph(t), &fakeBuilder{}, nil, "/site")
	o.HandleEvents(nil)
	assert.Empty(t, o.takePending())
}

func TestReloadPaths_SkipsDirectoryOutputs(t *testing.T) {
	root := t.TempDir()
	o := New(graph(t), &fakeBuilder{}, nil, root)
	report := &runner.Report{Results: []runner.BuildResult{
		{TaskName: "styles", Status: dag.StatusSucceeded, Output: root},
	}}

	assert.Equal(t, []string{"app/theme.css"}, o.reloadPaths([]string{"app/theme.css"}, report))
}
