package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/journal"
	"github.com/maxkimambo/assetpipe/internal/report"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit       int
		runID       string
		journalPath string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently recorded builds",
		Long: `Lists recorded runs newest first. With --run, shows the task results of
one run; the id may be the short prefix printed by the listing.

Example:
assetpipe history --limit 5
assetpipe history --run 3f2a9c1e
`,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return apperrors.NewUsageError(fmt.Errorf("--limit must be positive, got %d", limit))
			}

			p, err := loadProject()
			if err != nil {
				return err
			}
			path := p.journalPath(journalPath)
			if path == "" {
				return apperrors.NewInvalidValueError("journal", "", "no build history database is configured").
					WithTroubleshooting("Set 'journal' in the configuration file or pass --journal")
			}

			j, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer j.Close()

			if runID != "" {
				id, err := j.FindRun(cmd.Context(), runID)
				if err != nil {
					return apperrors.NewUsageError(err)
				}
				if id == "" {
					return apperrors.NewUsageError(fmt.Errorf("no recorded run matches %q", runID))
				}
				tasks, err := j.Tasks(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s\n", id)
				fmt.Fprint(cmd.OutOrStdout(), report.RunTasks(tasks).String())
				return nil
			}

			runs, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded builds")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), report.History(runs).String())
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the task results of this run")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Build history database (default: configuration)")
	return cmd
}
