// Package transform defines the capability every build task delegates to and
// the concrete variants shipped with assetpipe.
package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Request is everything a transform receives for one task invocation.
type Request struct {
	// Task is the name of the invoking task, used in errors and logs.
	Task string
	// Root is the absolute source root; Inputs are located beneath it.
	Root string
	// Inputs are the resolved absolute input paths in resolution order.
	Inputs []string
	// Output is the absolute output file or directory declared by the task.
	Output string
	// Options holds transform-specific configuration.
	Options Options
}

// Transform converts a set of input files into output artifacts.
//
// Implementations must be idempotent and must observe ctx cancellation where
// they block on I/O or external processes.
type Transform interface {
	Name() string
	Run(ctx context.Context, req Request) error
}

// Func adapts a plain function to the Transform interface.
type Func struct {
	TransformName string
	Fn            func(ctx context.Context, req Request) error
}

// Name returns the transform name.
func (f Func) Name() string { return f.TransformName }

// Run invokes the wrapped function.
func (f Func) Run(ctx context.Context, req Request) error { return f.Fn(ctx, req) }

// relPath returns the slash path of p relative to root, with strip removed
// from the front when present.
func relPath(root, p, strip string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("input %s is outside root %s: %w", p, root, err)
	}
	rel = filepath.ToSlash(rel)
	if strip != "" {
		strip = strings.TrimSuffix(filepath.ToSlash(strip), "/") + "/"
		rel = strings.TrimPrefix(rel, strip)
	}
	return rel, nil
}

// destination maps an input onto the output directory.
func destination(req Request, input string) (string, error) {
	rel, err := relPath(req.Root, input, req.Options.String("strip", ""))
	if err != nil {
		return "", err
	}
	return filepath.Join(req.Output, filepath.FromSlash(rel)), nil
}

// writeFile writes data to path, creating parent directories and replacing
// the file atomically so readers never observe a partial artifact.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func requireOutput(req Request) error {
	if req.Output == "" {
		return fmt.Errorf("task %s: transform requires an output", req.Task)
	}
	return nil
}
