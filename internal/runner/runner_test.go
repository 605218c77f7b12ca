package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/assetpipe/internal/dag"
	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/transform"
)

// recorder is a fake transform that logs invocations in completion order
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	delay time.Duration
	reqs  map[string]transform.Request
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]error{}, reqs: map[string]transform.Request{}}
}

func (r *recorder) Name() string { return "fake" }

func (r *recorder) Run(ctx context.Context, req transform.Request) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req.Task)
	r.reqs[req.Task] = req
	return r.fail[req.Task]
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func newRunner(t *testing.T, tasks []dag.Task, config *Config) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/app.js":      "var app = 1;",
		"app/util.js":     "var util = 2;",
		"app/index.html":  "<html><body></body></html>",
		"app/img/logo.gi": "x",
	})
	g, err := dag.Build(tasks)
	require.NoError(t, err)
	resolver, err := fileset.NewResolver(root)
	require.NoError(t, err)
	return New(g, resolver, config), root
}

func frontEndTasks(tr transform.Transform) []dag.Task {
	js := fileset.New([]string{"app/**/*.js"}, nil)
	return []dag.Task{
		{Name: "lint", Inputs: js, Transform: tr},
		{Name: "annotate", Inputs: js, Output: "build", DependsOn: []string{"lint"}, Transform: tr},
		{Name: "minify", Inputs: fileset.New([]string{"build/**/*.js"}, nil), Output: "dist/js", DependsOn: []string{"annotate"}, Transform: tr},
		{Name: "bundle", Inputs: fileset.New([]string{"dist/js/*.js"}, nil), Output: "dist/app.js", DependsOn: []string{"minify"}, Transform: tr},
		{Name: "copyAssets", Inputs: fileset.New([]string{"app/**/*.html"}, nil), Output: "dist", Transform: tr},
	}
}

func statuses(report *Report) map[string]dag.NodeStatus {
	out := map[string]dag.NodeStatus{}
	for _, res := range report.Results {
		out[res.TaskName] = res.Status
	}
	return out
}

func TestRunAll_FailureSkipsDependentsOnly(t *testing.T) {
	rec := newRecorder()
	rec.fail["lint"] = errors.New("3 warnings")
	r, _ := newRunner(t, frontEndTasks(rec), nil)

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]dag.NodeStatus{
		"lint":       dag.StatusFailed,
		"annotate":   dag.StatusSkipped,
		"minify":     dag.StatusSkipped,
		"bundle":     dag.StatusSkipped,
		"copyAssets": dag.StatusSucceeded,
	}, statuses(report))
	assert.ElementsMatch(t, []string{"lint", "copyAssets"}, rec.Calls())

	assert.True(t, report.Failed())
	assert.True(t, apperrors.IsTransformFailure(report.Err()))
	assert.Contains(t, report.Err().Error(), "3 warnings")

	succeeded, failed, skipped := report.Counts()
	assert.Equal(t, []int{1, 1, 3}, []int{succeeded, failed, skipped})
}

func TestRunAll_ResultsInTopologicalOrder(t *testing.T) {
	r, _ := newRunner(t, frontEndTasks(newRecorder()), nil)

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)

	var names []string
	for _, res := range report.Results {
		names = append(names, res.TaskName)
		assert.Equal(t, dag.StatusSucceeded, res.Status)
	}
	assert.Equal(t, r.graph.TopologicalOrder(), names)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Failed())
	assert.NoError(t, report.Err())
}

func TestRunAll_DependenciesCompleteFirst(t *testing.T) {
	rec := newRecorder()
	rec.delay = 5 * time.Millisecond
	r, _ := newRunner(t, frontEndTasks(rec), &Config{MaxParallelTasks: 4})

	_, err := r.RunAll(context.Background())
	require.NoError(t, err)

	pos := map[string]int{}
	for i, name := range rec.Calls() {
		pos[name] = i
	}
	assert.Less(t, pos["lint"], pos["annotate"])
	assert.Less(t, pos["annotate"], pos["minify"])
	assert.Less(t, pos["minify"], pos["bundle"])
}

func TestRunAll_PassesResolvedRequest(t *testing.T) {
	rec := newRecorder()
	r, root := newRunner(t, frontEndTasks(rec), nil)

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)

	req := rec.reqs["annotate"]
	assert.Equal(t, root, req.Root)
	assert.Equal(t, filepath.Join(root, "build"), req.Output)
	assert.Equal(t, []string{filepath.Join(root, "app", "app.js"), filepath.Join(root, "app", "util.js")}, req.Inputs)

	res, ok := report.Result("annotate")
	require.True(t, ok)
	assert.Equal(t, 2, res.Inputs)
	assert.Contains(t, report.Outputs(), filepath.Join(root, "dist", "app.js"))
}

func TestRunAll_IndependentTasksRunInParallel(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	barrier := transform.Func{TransformName: "barrier", Fn: func(ctx context.Context, req transform.Request) error {
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("sibling never started")
		}
	}}
	r, _ := newRunner(t, []dag.Task{
		{Name: "a", Transform: barrier},
		{Name: "b", Transform: barrier},
	}, &Config{MaxParallelTasks: 2})

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Failed(), "%v", report.Err())
}

func TestRunAll_RespectsMaxParallelTasks(t *testing.T) {
	var running, peak int32
	tr := transform.Func{TransformName: "slow", Fn: func(ctx context.Context, req transform.Request) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}}

	var tasks []dag.Task
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		tasks = append(tasks, dag.Task{Name: name, Transform: tr})
	}
	r, _ := newRunner(t, tasks, &Config{MaxParallelTasks: 2})

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunAll_TimeoutFailsTaskWithoutWaiting(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := transform.Func{TransformName: "stuck", Fn: func(ctx context.Context, req transform.Request) error {
		// Ignores cancellation on purpose
		<-release
		return nil
	}}
	r, _ := newRunner(t, []dag.Task{
		{Name: "stuck", Transform: stuck, Timeout: 50 * time.Millisecond},
		{Name: "after", Transform: newRecorder(), DependsOn: []string{"stuck"}},
	}, nil)

	start := time.Now()
	report, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	res, _ := report.Result("stuck")
	assert.Equal(t, dag.StatusFailed, res.Status)
	assert.True(t, apperrors.IsCategory(res.Err, apperrors.ErrorCategoryTimeout))
	assert.True(t, apperrors.IsTransformFailure(res.Err))

	after, _ := report.Result("after")
	assert.Equal(t, dag.StatusSkipped, after.Status)
}

func TestRunAll_DefaultTimeoutFromConfig(t *testing.T) {
	slow := transform.Func{TransformName: "slow", Fn: func(ctx context.Context, req transform.Request) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	r, _ := newRunner(t, []dag.Task{{Name: "slow", Transform: slow}}, &Config{MaxParallelTasks: 1, TaskTimeout: 30 * time.Millisecond})

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.True(t, apperrors.IsCategory(report.Err(), apperrors.ErrorCategoryTimeout))
}

func TestRunAll_PanicFailsTask(t *testing.T) {
	boom := transform.Func{TransformName: "boom", Fn: func(ctx context.Context, req transform.Request) error {
		panic("kaboom")
	}}
	r, _ := newRunner(t, []dag.Task{{Name: "boom", Transform: boom}}, nil)

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)
	require.True(t, report.Failed())
	assert.Contains(t, report.Err().Error(), "kaboom")
}

func TestRunAll_CancelledContextSkipsEverything(t *testing.T) {
	rec := newRecorder()
	r, _ := newRunner(t, frontEndTasks(rec), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.RunAll(ctx)
	require.NoError(t, err)

	for _, res := range report.Results {
		assert.Equal(t, dag.StatusSkipped, res.Status, res.TaskName)
	}
	assert.Empty(t, rec.Calls())
}

func TestRunSubset_SkipsSatisfiedDependencies(t *testing.T) {
	rec := newRecorder()
	r, _ := newRunner(t, frontEndTasks(rec), nil)

	_, err := r.RunAll(context.Background())
	require.NoError(t, err)
	rec.calls = nil

	report, err := r.RunSubset(context.Background(), []string{"minify", "bundle"})
	require.NoError(t, err)
	assert.Equal(t, []string{"minify", "bundle"}, rec.Calls())
	assert.Len(t, report.Results, 2)
}

func TestRunSubset_RerunsUnsatisfiedDependencies(t *testing.T) {
	rec := newRecorder()
	rec.fail["annotate"] = errors.New("parse error")
	r, _ := newRunner(t, frontEndTasks(rec), nil)

	_, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Satisfied("lint"))
	assert.False(t, r.Satisfied("annotate"))

	delete(rec.fail, "annotate")
	rec.calls = nil

	report, err := r.RunSubset(context.Background(), []string{"bundle"})
	require.NoError(t, err)
	assert.Equal(t, []string{"annotate", "minify", "bundle"}, rec.Calls())
	assert.False(t, report.Failed())
	assert.True(t, r.Satisfied("bundle"))
}

func TestRunSubset_UnknownTask(t *testing.T) {
	r, _ := newRunner(t, frontEndTasks(newRecorder()), nil)

	report, err := r.RunSubset(context.Background(), []string{"deploy"})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, apperrors.IsConfigurationFailure(err))
}

func TestRunAll_RerunProducesIdenticalOutput(t *testing.T) {
	tasks := []dag.Task{
		{Name: "minify", Inputs: fileset.New([]string{"app/**/*.js"}, nil), Output: "dist", Transform: transform.NewMinify(), Options: transform.Options{"strip": "app"}},
		{Name: "copy", Inputs: fileset.New([]string{"app/**/*.html"}, nil), Output: "dist", Transform: transform.NewCopy(), Options: transform.Options{"strip": "app"}},
	}
	r, root := newRunner(t, tasks, nil)

	snapshot := func() map[string]string {
		out := map[string]string{}
		err := filepath.Walk(filepath.Join(root, "dist"), func(p string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			data, err := os.ReadFile(p)
			out[p] = string(data)
			return err
		})
		require.NoError(t, err)
		return out
	}

	first, err := r.RunAll(context.Background())
	require.NoError(t, err)
	require.False(t, first.Failed(), "%v", first.Err())
	before := snapshot()

	second, err := r.RunAll(context.Background())
	require.NoError(t, err)
	require.False(t, second.Failed())
	assert.Equal(t, before, snapshot())
	assert.Len(t, before, 3)
}

func TestRunAll_RootRemovedAfterLoadFailsTasks(t *testing.T) {
	rec := newRecorder()
	r, root := newRunner(t, []dag.Task{{Name: "copy", Inputs: fileset.New([]string{"**/*"}, nil), Transform: rec}}, nil)
	require.NoError(t, os.RemoveAll(root))

	report, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.True(t, apperrors.IsConfigurationFailure(report.Err()))
	assert.Empty(t, rec.Calls())
}
