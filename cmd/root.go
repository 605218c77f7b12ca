package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/logger"
)

var (
	configPath string
	debug      bool
	verbose    bool
	jsonLogs   bool
	quiet      bool
	version    = "v0.1.0"

	rootCmd = newRootCmd()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assetpipe",
		Short: "A dependency-ordered build pipeline for front-end assets",
		Long: `Builds a front-end asset tree from a declarative task graph.

Tasks select source files with glob patterns, run a transform over them
(lint, annotate, minify, concat, copy, image, exec) and write into an output
tree. Dependencies between tasks decide the order; independent tasks run in
parallel. The watch command rebuilds affected tasks on change and reloads
connected browsers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(verbose || debug, jsonLogs, quiet)
		},
	}
	root.Version = version

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "assetpipe.hcl", "Path to the build configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperrors.NewUsageError(err)
	})

	root.AddCommand(newBuildCmd(), newWatchCmd(), newCleanCmd(), newGraphCmd(), newHistoryCmd())
	return root
}

// Execute runs the CLI and prints any error with its troubleshooting hints
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		err = apperrors.NewUsageError(err)
	}
	logger.Op.WithFields(map[string]interface{}{
		"exit_code": apperrors.ExitCode(err),
	}).Debug(apperrors.DisplayErrorSummary(err))
	fmt.Fprint(os.Stderr, apperrors.FormatForCLI(err))
	return err
}

// usageArgs marks argument validation failures as invalid invocations
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return apperrors.NewUsageError(validate(cmd, args))
	}
}
