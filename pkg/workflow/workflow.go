// Package workflow defines the Workflow/Node/Edge data model (spec §3)
// and its JSON and YAML on-disk representations. Grounded on the
// teacher's pkg/types.Payload/Node/Edge shape, generalized from the
// teacher's fixed NodeType enum to a free-form module-type token since
// executors here are a dynamically registered plug-in set (spec §4.3).
package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Node is one vertex in the graph: an id, a registry token naming its
// executor, its raw (unresolved) config, and optional grouping/display
// metadata.
type Node struct {
	ID         string                 `json:"id" yaml:"id"`
	ModuleType string                 `json:"module_type" yaml:"module_type"`
	Config     map[string]interface{} `json:"config" yaml:"config"`
	GroupID    string                 `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Name       string                 `json:"name,omitempty" yaml:"name,omitempty"`
}

// Edge connects two nodes. A nil/empty Label marks the default edge;
// any other value is a branch or loop-body label matched against a
// ModuleResult.Branch.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// IsDefault reports whether e is an unlabeled (default) edge.
func (e Edge) IsDefault() bool { return e.Label == "" }

// Workflow is the immutable-during-one-run graph definition: nodes,
// edges, the start node id, and named subflow groups (spec §3's
// "designated start node and designated subflow-group nodes").
type Workflow struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name,omitempty" yaml:"name,omitempty"`
	StartNodeID   string          `json:"start_node_id" yaml:"start_node_id"`
	Nodes         []Node          `json:"nodes" yaml:"nodes"`
	Edges         []Edge          `json:"edges" yaml:"edges"`
	SubflowGroups map[string]string `json:"subflow_groups,omitempty" yaml:"subflow_groups,omitempty"` // name -> group_id
}

// Graph is a Workflow indexed for O(1) lookups during scheduling.
type Graph struct {
	workflow Workflow
	nodeByID map[string]*Node
	outEdges map[string][]Edge
}

// Index builds a Graph from w, validating no duplicate node ids exist.
func Index(w Workflow) (*Graph, error) {
	g := &Graph{
		workflow: w,
		nodeByID: make(map[string]*Node, len(w.Nodes)),
		outEdges: make(map[string][]Edge, len(w.Nodes)),
	}
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if _, exists := g.nodeByID[n.ID]; exists {
			return nil, fmt.Errorf("workflow: duplicate node id %q", n.ID)
		}
		g.nodeByID[n.ID] = n
	}
	for _, e := range w.Edges {
		g.outEdges[e.Source] = append(g.outEdges[e.Source], e)
	}
	return g, nil
}

// Workflow returns the underlying definition.
func (g *Graph) Workflow() Workflow { return g.workflow }

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodeByID[id]
	return n, ok
}

// OutEdges returns every edge leaving nodeID, in definition order.
func (g *Graph) OutEdges(nodeID string) []Edge {
	return g.outEdges[nodeID]
}

// SubflowStart resolves a subflow reference to its start node id. Per
// spec §4.4, a subflow may be addressed by human-readable name (which
// takes precedence) or by group id directly; it returns the first node
// in the graph carrying that group id as its entry point.
func (g *Graph) SubflowStart(nameOrGroupID string) (string, bool) {
	groupID := nameOrGroupID
	if resolved, ok := g.workflow.SubflowGroups[nameOrGroupID]; ok {
		groupID = resolved
	}
	for _, n := range g.workflow.Nodes {
		if n.GroupID == groupID {
			return n.ID, true
		}
	}
	return "", false
}

// LoadJSON reads a JSON-encoded Workflow from path.
func LoadJSON(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: reading %s: %w", path, err)
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("workflow: parsing %s as JSON: %w", path, err)
	}
	return &w, nil
}

// LoadYAML reads a YAML-encoded Workflow from path — an alternate
// authoring format alongside the canonical JSON one (spec §6).
func LoadYAML(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: reading %s: %w", path, err)
	}
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("workflow: parsing %s as YAML: %w", path, err)
	}
	return &w, nil
}
