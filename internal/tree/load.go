package tree

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

const supportedVersion = "1"

// wireTree mirrors the on-disk JSON format (spec §6.1).
type wireTree struct {
	Version        string                   `json:"version"`
	SpecID         string                   `json:"spec_id"`
	Namespace      string                   `json:"namespace"`
	RootIDs        []string                 `json:"root_ids"`
	ExecutionOrder []string                 `json:"execution_order"`
	Nodes          map[string]*wireTaskNode `json:"nodes"`
}

type wireTaskNode struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Parent       string        `json:"parent,omitempty"`
	Children     []string      `json:"children"`
	DependsOn    []string      `json:"depends_on"`
	IsLeaf       bool          `json:"is_leaf"`
	TestCommands []TestCommand `json:"test_commands"`
}

// LoadTree parses the JSON file at path, validates every invariant in
// spec §3.1, and returns a Tree with a freshly computed ExecutionOrder
// (the on-disk value, if present, is not trusted — it is always
// recomputed so that hand-edited artifacts re-derive a correct order
// rather than silently carrying a stale one).
func LoadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tree: read %s: %w", path, err)
	}
	return ParseTree(data)
}

// ParseTree parses and validates tree JSON already read into memory.
func ParseTree(data []byte) (*Tree, error) {
	var w wireTree
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("tree: parse JSON: %w", err)
	}

	if w.Version != supportedVersion {
		return nil, &ValidationError{Path: "version", Reason: fmt.Sprintf("unsupported version %q (expected %q)", w.Version, supportedVersion)}
	}
	if w.SpecID == "" {
		return nil, &ValidationError{Path: "spec_id", Reason: "must not be empty"}
	}
	if w.Namespace == "" {
		return nil, &ValidationError{Path: "namespace", Reason: "must not be empty"}
	}
	if len(w.RootIDs) == 0 {
		return nil, &ValidationError{Path: "root_ids", Reason: "must contain at least one root"}
	}

	nodes := make(map[string]*TaskNode, len(w.Nodes))
	for id, wn := range w.Nodes {
		if wn.ID != id {
			return nil, &ValidationError{Path: fmt.Sprintf("nodes.%s.id", id), Reason: fmt.Sprintf("key/id mismatch: key %q, id %q", id, wn.ID)}
		}
		isLeaf := len(wn.Children) == 0
		if wn.IsLeaf != isLeaf {
			return nil, &ValidationError{Path: fmt.Sprintf("nodes.%s.is_leaf", id), Reason: fmt.Sprintf("is_leaf=%v but children has %d entries", wn.IsLeaf, len(wn.Children))}
		}
		nodes[id] = &TaskNode{
			ID:           wn.ID,
			Name:         wn.Name,
			Description:  wn.Description,
			Parent:       wn.Parent,
			Children:     append([]string(nil), wn.Children...),
			DependsOn:    append([]string(nil), wn.DependsOn...),
			IsLeaf:       isLeaf,
			TestCommands: append([]TestCommand(nil), wn.TestCommands...),
		}
	}

	t := &Tree{
		SpecID:    w.SpecID,
		Namespace: w.Namespace,
		RootIDs:   append([]string(nil), w.RootIDs...),
		Nodes:     nodes,
	}

	if err := validateReferences(t); err != nil {
		return nil, err
	}
	if err := validateParentChildConsistency(t); err != nil {
		return nil, err
	}
	if err := detectParentCycles(t); err != nil {
		return nil, err
	}

	order, err := computeExecutionOrder(t)
	if err != nil {
		return nil, err
	}
	t.ExecutionOrder = order

	return t, nil
}

func validateReferences(t *Tree) error {
	for _, root := range t.RootIDs {
		if _, ok := t.Nodes[root]; !ok {
			return &ValidationError{Path: "root_ids", Reason: fmt.Sprintf("root id %q not found in nodes", root)}
		}
	}
	for id, n := range t.Nodes {
		if n.Parent != "" {
			if _, ok := t.Nodes[n.Parent]; !ok {
				return &ValidationError{Path: fmt.Sprintf("nodes.%s.parent", id), Reason: fmt.Sprintf("parent id %q not found", n.Parent)}
			}
		}
		for _, c := range n.Children {
			if _, ok := t.Nodes[c]; !ok {
				return &ValidationError{Path: fmt.Sprintf("nodes.%s.children", id), Reason: fmt.Sprintf("child id %q not found", c)}
			}
		}
		for _, d := range n.DependsOn {
			if _, ok := t.Nodes[d]; !ok {
				return &ValidationError{Path: fmt.Sprintf("nodes.%s.depends_on", id), Reason: fmt.Sprintf("dependency id %q not found", d)}
			}
		}
	}
	return nil
}

// validateParentChildConsistency ensures no node is listed as a child by
// two different nodes and that child->parent pointers agree. It does not
// check that every node is reachable from root_ids.
func validateParentChildConsistency(t *Tree) error {
	parentOf := make(map[string]string)
	for id, n := range t.Nodes {
		for _, c := range n.Children {
			if existing, ok := parentOf[c]; ok && existing != id {
				return &ValidationError{Path: fmt.Sprintf("nodes.%s.children", id), Reason: fmt.Sprintf("child %q already has parent %q", c, existing)}
			}
			parentOf[c] = id
		}
	}
	for id, n := range t.Nodes {
		expectedParent, isChild := parentOf[id]
		if isChild && n.Parent != expectedParent {
			return &ValidationError{Path: fmt.Sprintf("nodes.%s.parent", id), Reason: fmt.Sprintf("parent %q does not match declaring node %q", n.Parent, expectedParent)}
		}
		if !isChild && n.Parent != "" {
			return &ValidationError{Path: fmt.Sprintf("nodes.%s.parent", id), Reason: fmt.Sprintf("declares parent %q but no node lists it as a child", n.Parent)}
		}
	}
	return nil
}

func detectParentCycles(t *Tree) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(t.Nodes))
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var chain []string
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		chain = append(chain, id)
		node := t.Nodes[id]
		for _, c := range node.Children {
			switch color[c] {
			case gray:
				return &CycleError{Kind: "parent", Chain: append(append([]string(nil), chain...), c)}
			case white:
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		chain = chain[:len(chain)-1]
		color[id] = black
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeExecutionOrder runs Kahn's algorithm over leaves only, using
// depends_on as edges, ties broken by the left-to-right depth-first
// declaration order. Returns a CycleError if depends_on forms a cycle.
func computeExecutionOrder(t *Tree) ([]string, error) {
	declOrder := t.declarationOrder()
	declIndex := make(map[string]int, len(declOrder))
	for i, id := range declOrder {
		declIndex[id] = i
	}

	var leaves []string
	for _, id := range declOrder {
		if n := t.Nodes[id]; n != nil && n.IsLeaf {
			leaves = append(leaves, id)
		}
	}
	leafSet := make(map[string]bool, len(leaves))
	for _, id := range leaves {
		leafSet[id] = true
	}

	indegree := make(map[string]int, len(leaves))
	dependents := make(map[string][]string, len(leaves))
	for _, id := range leaves {
		indegree[id] = 0
	}
	for _, id := range leaves {
		for _, dep := range t.Nodes[id].DependsOn {
			if !leafSet[dep] {
				// Dependency on a non-leaf (parent/phase) node is not an
				// execution-order edge; only leaf-to-leaf edges gate order.
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	// Ready set ordered by declaration order, using a slice as a priority
	// queue so ties are broken deterministically.
	ready := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sortByDecl := func(ids []string) {
		sort.SliceStable(ids, func(i, j int) bool { return declIndex[ids[i]] < declIndex[ids[j]] })
	}
	sortByDecl(ready)

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		var newlyReady []string
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sortByDecl(newlyReady)
		ready = append(ready, newlyReady...)
		sortByDecl(ready)
	}

	if len(order) != len(leaves) {
		var stuck []string
		for _, id := range leaves {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{Kind: "depends_on", Chain: stuck}
	}

	return order, nil
}
