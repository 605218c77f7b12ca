package cmd

import (
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/logger"
	"github.com/maxkimambo/assetpipe/internal/runner"
)

func newBuildCmd() *cobra.Command {
	var (
		concurrency int
		timeout     time.Duration
		journalPath string
	)

	cmd := &cobra.Command{
		Use:   "build [task...]",
		Short: "Run every task, or the named tasks and their dependencies",
		Long: `Runs the task graph once in dependency order.

With no arguments every task runs. Named tasks run together with their
transitive dependencies. A failing task marks its dependents skipped while
independent tasks still complete.

Example:
assetpipe build
assetpipe build minify copyAssets --concurrency 2 --timeout 30s
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 0 {
				return apperrors.NewUsageError(apperrors.NewInvalidValueError("concurrency", cmd.Flag("concurrency").Value.String(), "must not be negative"))
			}
			if timeout < 0 {
				return apperrors.NewUsageError(apperrors.NewInvalidValueError("timeout", timeout.String(), "must not be negative"))
			}

			p, err := loadProject()
			if err != nil {
				return err
			}
			// A missing root is a configuration error, not a task failure
			if err := p.resolver.CheckRoot(); err != nil {
				return err
			}
			r := p.newRunner(concurrency, timeout)

			logger.User.Startingf("Building %d task(s) from %s", p.graph.Size(), p.cfg.Path)

			var rep *runner.Report
			if len(args) == 0 {
				rep, err = r.RunAll(cmd.Context())
			} else {
				rep, err = r.RunSubset(cmd.Context(), args)
			}
			if err != nil {
				return err
			}

			recordRun(cmd.Context(), p.journalPath(journalPath), "build", rep)
			printReport(cmd.OutOrStdout(), rep)
			return rep.Err()
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum number of transforms running at once (default: configuration or one per CPU)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Timeout for tasks without their own timeout (0 disables)")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Record the run in this build history database")
	return cmd
}
