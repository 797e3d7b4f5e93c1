// Package tree implements the task-tree model: parent/leaf nodes,
// dependency edges, computed execution order, and ready-leaf selection.
// Trees are produced once by an external planner, serialized to JSON, and
// thereafter treated as read-only; this package validates and queries them.
package tree

// TestType is the acceptance-test category attached to a TaskNode or phase.
type TestType string

const (
	TestUnit        TestType = "unit"
	TestIntegration TestType = "integration"
	TestE2E         TestType = "e2e"
)

// TestCommand is one acceptance check declared on a node.
type TestCommand struct {
	Type        TestType `json:"type"`
	Command     string   `json:"command"`
	Description string   `json:"description,omitempty"`
}

// TaskNode is a single node in the tree, immutable once the tree is built.
type TaskNode struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Parent       string        `json:"parent,omitempty"`
	Children     []string      `json:"children"`
	DependsOn    []string      `json:"depends_on"`
	IsLeaf       bool          `json:"is_leaf"`
	TestCommands []TestCommand `json:"test_commands"`
}

// Tree is the full validated task hierarchy.
type Tree struct {
	SpecID         string               `json:"spec_id"`
	Namespace      string               `json:"namespace"`
	RootIDs        []string             `json:"root_ids"`
	ExecutionOrder []string             `json:"execution_order"`
	Nodes          map[string]*TaskNode `json:"nodes"`
}

// Leaves returns all leaf nodes in declaration order (the order they were
// encountered during the left-to-right depth-first walk used to build
// ExecutionOrder), not ExecutionOrder itself.
func (t *Tree) Leaves() []*TaskNode {
	order := t.declarationOrder()
	leaves := make([]*TaskNode, 0, len(order))
	for _, id := range order {
		if n := t.Nodes[id]; n != nil && n.IsLeaf {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// ReadyLeaves returns every leaf whose DependsOn is a subset of completed,
// that is not itself in completed, ordered per ExecutionOrder.
func (t *Tree) ReadyLeaves(completed map[string]bool) []*TaskNode {
	var ready []*TaskNode
	for _, id := range t.ExecutionOrder {
		if completed[id] {
			continue
		}
		node := t.Nodes[id]
		if node == nil {
			continue
		}
		if dependsSatisfied(node, completed) {
			ready = append(ready, node)
		}
	}
	return ready
}

func dependsSatisfied(node *TaskNode, completed map[string]bool) bool {
	for _, dep := range node.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// BranchName returns the canonical branch path for a node:
// {namespace}/{spec_id}/{pathFromRoot joined by "/"}.
func (t *Tree) BranchName(nodeID string) string {
	path := t.pathFromRoot(nodeID)
	segments := append([]string{t.Namespace, t.SpecID}, path...)
	out := segments[0]
	for _, s := range segments[1:] {
		out += "/" + s
	}
	return out
}

func (t *Tree) pathFromRoot(nodeID string) []string {
	var reversed []string
	id := nodeID
	for id != "" {
		node := t.Nodes[id]
		if node == nil {
			break
		}
		reversed = append(reversed, id)
		id = node.Parent
	}
	out := make([]string, len(reversed))
	for i, v := range reversed {
		out[len(reversed)-1-i] = v
	}
	return out
}

// Phase returns the root node that nodeID descends from, or nil.
func (t *Tree) Phase(nodeID string) *TaskNode {
	path := t.pathFromRoot(nodeID)
	if len(path) == 0 {
		return nil
	}
	return t.Nodes[path[0]]
}

// PhaseLeaves returns every leaf descending from the given root/phase id,
// in declaration order.
func (t *Tree) PhaseLeaves(phaseID string) []*TaskNode {
	var out []*TaskNode
	for _, leaf := range t.Leaves() {
		if p := t.Phase(leaf.ID); p != nil && p.ID == phaseID {
			out = append(out, leaf)
		}
	}
	return out
}

// declarationOrder performs the left-to-right depth-first walk used both to
// break ties while computing ExecutionOrder and to answer Leaves().
func (t *Tree) declarationOrder() []string {
	var order []string
	visited := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		node := t.Nodes[id]
		if node == nil {
			return
		}
		for _, child := range node.Children {
			visit(child)
		}
	}
	for _, root := range t.RootIDs {
		visit(root)
	}
	return order
}
