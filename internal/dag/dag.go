package dag

import (
	"sort"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
)

// TaskGraph is an immutable, validated set of tasks and their dependency edges.
// It is safe for concurrent reads.
type TaskGraph struct {
	tasks map[string]*Task
	// index holds the declaration position of each task
	index map[string]int
	order []string
	// deps maps a task to the tasks it depends on
	deps map[string][]string
	// dependents maps a task to the tasks depending on it, in declaration order
	dependents map[string][]string
	topo       []string
}

// Build validates tasks and constructs the graph. Tasks keep their
// declaration order, which breaks ties in the topological order.
func Build(tasks []Task) (*TaskGraph, error) {
	g := &TaskGraph{
		tasks:      make(map[string]*Task, len(tasks)),
		index:      make(map[string]int, len(tasks)),
		order:      make([]string, 0, len(tasks)),
		deps:       make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
	}

	for i := range tasks {
		t := tasks[i]
		if t.Name == "" {
			return nil, apperrors.NewInvalidTaskError("", "task name cannot be empty")
		}
		if t.Transform == nil {
			return nil, apperrors.NewInvalidTaskError(t.Name, "task has no transform")
		}
		if _, exists := g.tasks[t.Name]; exists {
			return nil, apperrors.NewDuplicateNameError(t.Name)
		}
		t.DependsOn = append([]string(nil), t.DependsOn...)
		g.tasks[t.Name] = &t
		g.index[t.Name] = i
		g.order = append(g.order, t.Name)
	}

	for _, name := range g.order {
		seen := make(map[string]bool)
		for _, dep := range g.tasks[name].DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				return nil, apperrors.NewUnknownDependencyError(name, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.deps[name] = append(g.deps[name], dep)
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}
	for name := range g.dependents {
		g.sortByIndex(g.dependents[name])
	}

	topo, remaining := g.kahn()
	if len(remaining) > 0 {
		return nil, apperrors.NewCycleError(g.findCycle(remaining))
	}
	g.topo = topo
	return g, nil
}

// kahn computes the topological order, taking ready tasks by declaration
// index. Tasks left over are on or behind a cycle.
func (g *TaskGraph) kahn() ([]string, map[string]bool) {
	inDegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		inDegree[name] = len(g.deps[name])
	}

	var ready []int
	for _, name := range g.order {
		if inDegree[name] == 0 {
			ready = append(ready, g.index[name])
		}
	}

	topo := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		sort.Ints(ready)
		next := g.order[ready[0]]
		ready = ready[1:]
		topo = append(topo, next)

		for _, dependent := range g.dependents[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, g.index[dependent])
			}
		}
	}

	remaining := make(map[string]bool)
	for _, name := range g.order {
		if inDegree[name] > 0 {
			remaining[name] = true
		}
	}
	return topo, remaining
}

// findCycle walks dependency edges from the earliest declared remaining task.
// Every remaining task has a remaining dependency, so the walk must repeat a
// task; the path from that task's first visit is the cycle.
func (g *TaskGraph) findCycle(remaining map[string]bool) []string {
	var start string
	for _, name := range g.order {
		if remaining[name] {
			start = name
			break
		}
	}

	visited := make(map[string]int)
	var path []string
	current := start
	for {
		if pos, ok := visited[current]; ok {
			cycle := append([]string(nil), path[pos:]...)
			return append(cycle, current)
		}
		visited[current] = len(path)
		path = append(path, current)

		for _, dep := range g.deps[current] {
			if remaining[dep] {
				current = dep
				break
			}
		}
	}
}

func (g *TaskGraph) sortByIndex(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return g.index[names[i]] < g.index[names[j]]
	})
}

// TopologicalOrder returns every task name such that each task follows all of
// its dependencies. The order is deterministic for a given declaration.
func (g *TaskGraph) TopologicalOrder() []string {
	return append([]string(nil), g.topo...)
}

// Task returns the task with the given name.
func (g *TaskGraph) Task(name string) (*Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Tasks returns the tasks in declaration order.
func (g *TaskGraph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.tasks[name])
	}
	return out
}

// Size returns the number of tasks.
func (g *TaskGraph) Size() int {
	return len(g.order)
}

// Dependencies returns the direct dependencies of name.
func (g *TaskGraph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns the tasks that directly depend on name.
func (g *TaskGraph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Roots returns the tasks without dependencies in declaration order.
func (g *TaskGraph) Roots() []string {
	var roots []string
	for _, name := range g.order {
		if len(g.deps[name]) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}

// Closure returns names plus all of their transitive dependencies, in
// topological order. Unknown names fail with a configuration error.
func (g *TaskGraph) Closure(names []string) ([]string, error) {
	set := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		if set[name] {
			return
		}
		set[name] = true
		for _, dep := range g.deps[name] {
			visit(dep)
		}
	}
	for _, name := range names {
		if _, ok := g.tasks[name]; !ok {
			return nil, apperrors.NewUnknownTaskError(name)
		}
		visit(name)
	}
	return g.Restrict(set), nil
}

// AffectedBy returns the tasks whose inputs match any of the changed
// root-relative paths, plus all of their transitive dependents, in
// topological order.
func (g *TaskGraph) AffectedBy(changed []string) []string {
	set := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		if set[name] {
			return
		}
		set[name] = true
		for _, dependent := range g.dependents[name] {
			visit(dependent)
		}
	}

	for _, name := range g.order {
		inputs := g.tasks[name].Inputs
		for _, path := range changed {
			if inputs.Matches(path) {
				visit(name)
				break
			}
		}
	}
	return g.Restrict(set)
}

// Restrict returns the members of set in topological order.
func (g *TaskGraph) Restrict(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for _, name := range g.topo {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}
