package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleWorkflow() Workflow {
	return Workflow{
		ID:          "wf-1",
		StartNodeID: "n1",
		Nodes: []Node{
			{ID: "n1", ModuleType: "set_variable", Config: map[string]interface{}{"name": "x"}},
			{ID: "n2", ModuleType: "print_log", GroupID: "grp-a"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "n1", Target: "n2"},
		},
		SubflowGroups: map[string]string{"cleanup": "grp-a"},
	}
}

func TestIndexRejectsDuplicateNodeIDs(t *testing.T) {
	w := sampleWorkflow()
	w.Nodes = append(w.Nodes, Node{ID: "n1", ModuleType: "set_variable"})
	if _, err := Index(w); err == nil {
		t.Fatalf("expected an error for duplicate node ids")
	}
}

func TestGraphNodeAndOutEdges(t *testing.T) {
	g, err := Index(sampleWorkflow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := g.Node("n1")
	if !ok || n.ModuleType != "set_variable" {
		t.Fatalf("unexpected node lookup: %+v, %v", n, ok)
	}
	edges := g.OutEdges("n1")
	if len(edges) != 1 || edges[0].Target != "n2" {
		t.Fatalf("unexpected out edges: %+v", edges)
	}
	if len(g.OutEdges("n2")) != 0 {
		t.Fatalf("expected no outgoing edges from n2")
	}
}

func TestEdgeIsDefault(t *testing.T) {
	if !(Edge{}).IsDefault() {
		t.Fatalf("an edge with no label should be the default edge")
	}
	if (Edge{Label: "true"}).IsDefault() {
		t.Fatalf("a labeled edge should not report as default")
	}
}

func TestSubflowStartByNameAndByGroupID(t *testing.T) {
	g, err := Index(sampleWorkflow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, ok := g.SubflowStart("cleanup"); !ok || id != "n2" {
		t.Fatalf("SubflowStart(name) = (%q, %v), want (n2, true)", id, ok)
	}
	if id, ok := g.SubflowStart("grp-a"); !ok || id != "n2" {
		t.Fatalf("SubflowStart(group id) = (%q, %v), want (n2, true)", id, ok)
	}
	if _, ok := g.SubflowStart("does-not-exist"); ok {
		t.Fatalf("expected no match for an unknown subflow reference")
	}
}

func TestLoadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.json")
	if err := os.WriteFile(path, []byte(`{
		"id": "wf-1",
		"start_node_id": "n1",
		"nodes": [{"id":"n1","module_type":"set_variable","config":{"name":"x"}}],
		"edges": []
	}`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	w, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.StartNodeID != "n1" || len(w.Nodes) != 1 {
		t.Fatalf("unexpected parsed workflow: %+v", w)
	}
}

func TestLoadYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	content := "id: wf-1\nstart_node_id: n1\nnodes:\n  - id: n1\n    module_type: set_variable\n    config:\n      name: x\nedges: []\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	w, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.StartNodeID != "n1" || len(w.Nodes) != 1 {
		t.Fatalf("unexpected parsed workflow: %+v", w)
	}
}

func TestLoadJSONMissingFileErrors(t *testing.T) {
	if _, err := LoadJSON(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
