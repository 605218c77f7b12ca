package main

import (
	"os"

	"github.com/maxkimambo/assetpipe/cmd"
	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(apperrors.ExitCode(err))
	}
}
