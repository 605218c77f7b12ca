package config

import (
	"github.com/maxkimambo/assetpipe/internal/dag"
	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/transform"
)

// BuildTasks binds every task declaration to its transform and validates its
// input patterns.
func (c *Config) BuildTasks(registry *transform.Registry) ([]dag.Task, error) {
	tasks := make([]dag.Task, 0, len(c.Tasks))
	for _, tc := range c.Tasks {
		tr, ok := registry.Lookup(tc.Transform)
		if !ok {
			return nil, apperrors.NewUnknownTransformError(tc.Name, tc.Transform, registry.Names())
		}

		inputs := fileset.New(tc.Include, tc.Exclude)
		if err := inputs.Validate(); err != nil {
			if buildErr, ok := apperrors.AsBuildError(err); ok {
				return nil, buildErr.WithContext("task", tc.Name)
			}
			return nil, err
		}

		tasks = append(tasks, dag.Task{
			Name:      tc.Name,
			Inputs:    inputs,
			Output:    tc.Output,
			DependsOn: tc.DependsOn,
			Transform: tr,
			Options:   tc.Options,
			Timeout:   tc.Timeout,
		})
	}
	return tasks, nil
}

// Graph builds and validates the task graph of the configuration.
func (c *Config) Graph(registry *transform.Registry) (*dag.TaskGraph, error) {
	tasks, err := c.BuildTasks(registry)
	if err != nil {
		return nil, err
	}
	return dag.Build(tasks)
}

// FileSets returns the input sets of every task plus the reload-only set,
// used to filter watch events.
func (c *Config) FileSets() []fileset.FileSet {
	sets := make([]fileset.FileSet, 0, len(c.Tasks)+1)
	for _, tc := range c.Tasks {
		sets = append(sets, fileset.New(tc.Include, tc.Exclude))
	}
	if !c.Watch.Reload.IsEmpty() {
		sets = append(sets, c.Watch.Reload)
	}
	return sets
}
