package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/logger"
)

func newCleanCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete the output tree",
		Long: `Deletes the directory named by the configuration's 'output' attribute.

The output must lie strictly inside the source root; clean refuses to delete
the root itself or anything outside it.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			target, err := cleanTarget(p.cfg.Root, p.cfg.Output)
			if err != nil {
				return err
			}

			if _, err := os.Stat(target); os.IsNotExist(err) {
				logger.User.Infof("Nothing to clean, %s does not exist", target)
				return nil
			}
			if dryRun {
				logger.User.Infof("Would remove %s", target)
				return nil
			}
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("failed to remove %s: %w", target, err)
			}
			logger.User.Cleanf("Removed %s", target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the directory that would be removed")
	return cmd
}

// cleanTarget validates that output lies strictly inside root
func cleanTarget(root, output string) (string, error) {
	if output == "" {
		return "", apperrors.NewInvalidValueError("output", "", "no output directory is configured")
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target, err := filepath.Abs(output)
	if err != nil {
		return "", err
	}
	// Symlinks are resolved only when both paths exist
	if r, err := filepath.EvalSymlinks(root); err == nil {
		if t, err := filepath.EvalSymlinks(target); err == nil {
			root, target = r, t
		}
	}

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", apperrors.NewInvalidValueError("output", output, "must be inside the source root")
	}
	switch {
	case rel == ".":
		return "", apperrors.NewInvalidValueError("output", output, "refusing to delete the source root")
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", apperrors.NewInvalidValueError("output", output, "refusing to delete a path outside the source root")
	}
	return target, nil
}
