package dag

import (
	"time"

	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/transform"
)

// Task is a named unit of work in the asset build. Its identity is its Name.
type Task struct {
	// Name must be unique within a graph
	Name string

	// Inputs selects the files handed to the transform
	Inputs fileset.FileSet

	// Output is the file or directory the transform writes, relative to the root
	// unless absolute. Empty for tasks that only check their inputs.
	Output string

	// DependsOn names the tasks that must succeed before this one runs
	DependsOn []string

	// Transform performs the work
	Transform transform.Transform

	// Options is passed to the transform unchanged
	Options transform.Options

	// Timeout bounds a single invocation; zero uses the runner default
	Timeout time.Duration
}

// TransformName returns the name of the task's transform, or "" when unset.
func (t *Task) TransformName() string {
	if t.Transform == nil {
		return ""
	}
	return t.Transform.Name()
}
