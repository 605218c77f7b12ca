package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/maxkimambo/assetpipe/internal/config"
	"github.com/maxkimambo/assetpipe/internal/dag"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/journal"
	"github.com/maxkimambo/assetpipe/internal/logger"
	"github.com/maxkimambo/assetpipe/internal/report"
	"github.com/maxkimambo/assetpipe/internal/runner"
	"github.com/maxkimambo/assetpipe/internal/transform"
)

// project is a loaded configuration with its validated graph
type project struct {
	cfg      *config.Config
	graph    *dag.TaskGraph
	resolver *fileset.Resolver
}

func loadProject() (*project, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Op.WithFields(map[string]interface{}{
		"config": cfg.Path,
		"root":   cfg.Root,
		"tasks":  len(cfg.Tasks),
	}).Debug("Configuration loaded")

	graph, err := cfg.Graph(transform.DefaultRegistry())
	if err != nil {
		return nil, err
	}
	resolver, err := fileset.NewResolver(cfg.Root)
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, graph: graph, resolver: resolver}, nil
}

// newRunner applies flag overrides to the configured concurrency
func (p *project) newRunner(concurrency int, timeout time.Duration) *runner.Runner {
	rc := runner.DefaultConfig()
	if p.cfg.Concurrency > 0 {
		rc.MaxParallelTasks = p.cfg.Concurrency
	}
	if concurrency > 0 {
		rc.MaxParallelTasks = concurrency
	}
	rc.TaskTimeout = timeout
	return runner.New(p.graph, p.resolver, rc)
}

// journalPath prefers the flag over the configuration
func (p *project) journalPath(flag string) string {
	if flag != "" {
		return flag
	}
	return p.cfg.Journal
}

// recordRun stores a report in the journal when one is configured. Journal
// failures are logged and never fail the build.
func recordRun(ctx context.Context, path, command string, r *runner.Report) {
	if path == "" {
		return
	}
	j, err := journal.Open(path)
	if err != nil {
		logger.User.Warnf("Build history unavailable: %v", err)
		return
	}
	defer j.Close()

	if err := j.Record(ctx, command, r); err != nil {
		logger.User.Warnf("Failed to record build history: %v", err)
	}
}

func printReport(w io.Writer, r *runner.Report) {
	if quiet {
		return
	}
	fmt.Fprint(w, report.Tasks(r).String())
	fmt.Fprintln(w, report.Summary(r).Render())
}
