package dag

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NodeStatus is the outcome of a task within one run
type NodeStatus string

const (
	StatusPending   NodeStatus = "pending"
	StatusSucceeded NodeStatus = "succeeded"
	StatusFailed    NodeStatus = "failed"
	StatusSkipped   NodeStatus = "skipped"
)

// NodeState is the run state of a single task used for rendering
type NodeState struct {
	Status   NodeStatus
	Duration time.Duration
	Err      error
}

// NodeInfo contains information about a task for visualization
type NodeInfo struct {
	ID        string     `json:"id"`
	Transform string     `json:"transform"`
	Output    string     `json:"output,omitempty"`
	Inputs    string     `json:"inputs"`
	Status    NodeStatus `json:"status"`
	Duration  string     `json:"duration,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// EdgeInfo is a dependency edge, From must finish before To
type EdgeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphInfo contains the full graph structure for visualization
type GraphInfo struct {
	Order []string   `json:"order"`
	Roots []string   `json:"roots"`
	Nodes []NodeInfo `json:"nodes"`
	Edges []EdgeInfo `json:"edges"`
	Stats GraphStats `json:"stats"`
}

// GraphStats counts tasks by status
type GraphStats struct {
	TotalNodes     int `json:"totalNodes"`
	SucceededNodes int `json:"succeededNodes"`
	FailedNodes    int `json:"failedNodes"`
	SkippedNodes   int `json:"skippedNodes"`
	PendingNodes   int `json:"pendingNodes"`
}

// Describe builds the visualization model in topological order. states may be
// nil, in which case every task is pending.
func (g *TaskGraph) Describe(states map[string]NodeState) *GraphInfo {
	info := &GraphInfo{
		Order: g.TopologicalOrder(),
		Roots: g.Roots(),
		Nodes: make([]NodeInfo, 0, len(g.topo)),
		Edges: []EdgeInfo{},
	}
	info.Stats.TotalNodes = len(g.topo)

	for _, name := range g.topo {
		task := g.tasks[name]
		state, ok := states[name]
		if !ok || state.Status == "" {
			state.Status = StatusPending
		}

		node := NodeInfo{
			ID:        name,
			Transform: task.TransformName(),
			Output:    task.Output,
			Inputs:    task.Inputs.String(),
			Status:    state.Status,
		}
		if state.Duration > 0 {
			node.Duration = state.Duration.Round(time.Millisecond).String()
		}
		if state.Err != nil {
			node.Error = state.Err.Error()
		}
		info.Nodes = append(info.Nodes, node)

		switch state.Status {
		case StatusSucceeded:
			info.Stats.SucceededNodes++
		case StatusFailed:
			info.Stats.FailedNodes++
		case StatusSkipped:
			info.Stats.SkippedNodes++
		default:
			info.Stats.PendingNodes++
		}

		for _, dep := range g.deps[name] {
			info.Edges = append(info.Edges, EdgeInfo{From: dep, To: name})
		}
	}

	return info
}

// RenderJSON renders the graph as indented JSON.
func (g *TaskGraph) RenderJSON(states map[string]NodeState) ([]byte, error) {
	return json.MarshalIndent(g.Describe(states), "", "  ")
}

// RenderDOT renders the graph in Graphviz DOT format, coloring tasks by status.
func (g *TaskGraph) RenderDOT(states map[string]NodeState) string {
	info := g.Describe(states)

	var sb strings.Builder
	sb.WriteString("digraph assetpipe {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=filled];\n\n")

	for _, node := range info.Nodes {
		color := "lightgrey"
		switch node.Status {
		case StatusSucceeded:
			color = "lightgreen"
		case StatusFailed:
			color = "salmon"
		case StatusSkipped:
			color = "orange"
		}

		label := fmt.Sprintf("%s\\n%s", node.ID, node.Transform)
		if node.Duration != "" {
			label += fmt.Sprintf("\\n%s", node.Duration)
		}
		if node.Error != "" {
			// Truncate long error messages
			errorMsg := node.Error
			if len(errorMsg) > 50 {
				errorMsg = errorMsg[:47] + "..."
			}
			label += fmt.Sprintf("\\nError: %s", strings.ReplaceAll(errorMsg, `"`, `\"`))
		}

		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\", fillcolor=\"%s\"];\n", node.ID, label, color))
	}

	if len(info.Edges) > 0 {
		sb.WriteString("\n")
	}
	for _, edge := range info.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// RenderText renders the topological order, one task per line with its
// transform and dependencies.
func (g *TaskGraph) RenderText(states map[string]NodeState) string {
	info := g.Describe(states)

	var sb strings.Builder
	for i, node := range info.Nodes {
		sb.WriteString(fmt.Sprintf("%2d. %s (%s)", i+1, node.ID, node.Transform))
		if deps := g.deps[node.ID]; len(deps) > 0 {
			sb.WriteString(fmt.Sprintf(" <- %s", strings.Join(deps, ", ")))
		}
		if states != nil {
			sb.WriteString(fmt.Sprintf(" [%s]", node.Status))
			if node.Duration != "" {
				sb.WriteString(" " + node.Duration)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
