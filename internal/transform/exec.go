package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Exec runs an external command once with every input appended to its
// arguments. Occurrences of "{output}" and "{root}" in args are substituted.
// The command runs in the source root.
type Exec struct {
	name           string
	defaultCommand string
	defaultArgs    []string
}

// NewExec creates the generic exec transform.
func NewExec() *Exec { return &Exec{name: "exec"} }

// NewLint creates the lint transform, an exec transform defaulting to jshint.
// A linter writes nothing; a non-zero exit fails the task with its output.
func NewLint() *Exec {
	return &Exec{name: "lint", defaultCommand: "jshint"}
}

// Name returns the configured transform name.
func (e *Exec) Name() string { return e.name }

// Run executes the command.
func (e *Exec) Run(ctx context.Context, req Request) error {
	command := req.Options.String("command", e.defaultCommand)
	if command == "" {
		return fmt.Errorf("task %s: %s transform requires a 'command' option", req.Task, e.name)
	}
	if len(req.Inputs) == 0 && !req.Options.Bool("run_without_inputs", false) {
		return nil
	}
	if req.Output != "" && req.Options.Bool("mkdir_output", false) {
		if err := os.MkdirAll(req.Output, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", req.Output, err)
		}
	}

	args := substitute(req.Options.Strings("args", e.defaultArgs), req)
	args = append(args, req.Inputs...)
	return runCommand(ctx, req.Root, command, args)
}

// Annotate runs an external annotator on each input separately, writing
// "<basename><ext>" into the output directory. Defaults mirror ng-annotate:
// command "ng-annotate", args ["-a"], ext ".annotated.js".
type Annotate struct{}

// NewAnnotate creates the annotate transform.
func NewAnnotate() *Annotate { return &Annotate{} }

// Name returns "annotate".
func (a *Annotate) Name() string { return "annotate" }

// Run annotates every input.
func (a *Annotate) Run(ctx context.Context, req Request) error {
	if err := requireOutput(req); err != nil {
		return err
	}
	command := req.Options.String("command", "ng-annotate")
	ext := req.Options.String("ext", ".annotated.js")

	for _, in := range req.Inputs {
		dst, err := destination(req, in)
		if err != nil {
			return err
		}
		dst = strings.TrimSuffix(dst, filepath.Ext(dst)) + ext
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", dst, err)
		}

		args := req.Options.Strings("args", []string{"-a"})
		args = append(args, "-o", dst, in)
		if err := runCommand(ctx, req.Root, command, args); err != nil {
			return err
		}
	}
	return nil
}

func substitute(args []string, req Request) []string {
	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, "{output}", req.Output)
		out[i] = strings.ReplaceAll(a, "{root}", req.Root)
	}
	return out
}

func runCommand(ctx context.Context, dir, command string, args []string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(output.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", command, err)
		}
		return fmt.Errorf("%s: %w\n%s", command, err, msg)
	}
	return nil
}
