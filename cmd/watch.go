package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/logger"
	"github.com/maxkimambo/assetpipe/internal/notify"
	"github.com/maxkimambo/assetpipe/internal/orchestrator"
	"github.com/maxkimambo/assetpipe/internal/runner"
	"github.com/maxkimambo/assetpipe/internal/server"
	"github.com/maxkimambo/assetpipe/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

func newWatchCmd() *cobra.Command {
	var (
		port        int
		noServe     bool
		open        bool
		debounce    time.Duration
		concurrency int
		journalPath string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build, serve and rebuild affected tasks on change",
		Long: `Runs every task once, starts the development server and watches the
source root. Each batch of changes rebuilds the tasks whose inputs changed
plus their dependents, then tells connected browsers to reload. Stylesheet
and image changes are swapped in place; scripts and pages reload the page.

Files matched by the watch block's reload patterns reload browsers without
a rebuild. With --open, or when the server block names an open page, the
default browser is pointed at the server once it is listening.

Task failures are reported and watching continues. Press Ctrl+C to stop.

Example:
assetpipe watch
assetpipe watch --port 9000 --debounce 250ms --open
assetpipe watch --no-serve
`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if port < 0 || port > 65535 {
				return apperrors.NewUsageError(apperrors.NewInvalidValueError("port", fmt.Sprint(port), "must be between 0 and 65535"))
			}

			p, err := loadProject()
			if err != nil {
				return err
			}
			// A missing root is a configuration error, not a task failure
			if err := p.resolver.CheckRoot(); err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				p.cfg.Server.Port = port
			}
			if debounce > 0 {
				p.cfg.Watch.Debounce = debounce
			}
			jpath := p.journalPath(journalPath)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := p.newRunner(concurrency, 0)
			logger.User.Startingf("Initial build of %d task(s)", p.graph.Size())
			initial, err := r.RunAll(ctx)
			if err != nil {
				return err
			}
			recordRun(ctx, jpath, "watch", initial)
			orchestrator.LogSummary(initial)

			notifier := notify.New()
			var reloader orchestrator.Reloader
			var srv *server.Server
			if !noServe {
				srv = server.New(p.cfg.Server, notifier)
				addr := fmt.Sprintf(":%d", p.cfg.Server.Port)
				if err := srv.Start(addr); err != nil {
					return apperrors.NewServerStartError(addr, err)
				}
				reloader = notifier

				if open || p.cfg.Server.Open != "" {
					if err := srv.Open(p.cfg.Server.Open); err != nil {
						logger.User.Warnf("Cannot open a browser: %v", err)
					}
				}
			} else if open {
				logger.User.Warn("--open has no effect with --no-serve")
			}

			orch := orchestrator.New(p.graph, r, reloader, p.cfg.Root)
			orch.Reload = p.cfg.Watch.Reload
			orch.OnReport = func(rep *runner.Report) {
				recordRun(ctx, jpath, "watch", rep)
			}

			w := watcher.New(p.cfg.Root, p.cfg.FileSets(), p.cfg.Watch.Debounce)
			if err := w.Start(ctx, orch.HandleEvents); err != nil {
				shutdown(srv, notifier)
				return err
			}
			logger.User.Watchf("Watching %s for changes", p.cfg.Root)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return orch.Run(gctx)
			})
			g.Go(func() error {
				select {
				case <-gctx.Done():
				case <-w.Done():
				}
				w.Stop()
				shutdown(srv, notifier)
				if ctx.Err() == nil && gctx.Err() == nil {
					return apperrors.NewWatchError(apperrors.CodeWatchUnavailable, "Watcher stopped unexpectedly", "Watching")
				}
				return nil
			})

			err = g.Wait()
			logger.User.Info("Stopped watching")
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 8000, "Development server port (overrides the configuration)")
	cmd.Flags().BoolVar(&noServe, "no-serve", false, "Watch and rebuild without starting the development server")
	cmd.Flags().BoolVar(&open, "open", false, "Open the served site in the default browser")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period that coalesces bursts of changes (default: configuration or 100ms)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum number of transforms running at once")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Record every rebuild in this build history database")
	return cmd
}

func shutdown(srv *server.Server, notifier *notify.Notifier) {
	notifier.Close()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Op.Warnf("Dev server shutdown: %v", err)
	}
}
