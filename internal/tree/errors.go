package tree

import "fmt"

// ValidationError reports an invariant violation discovered while loading
// or validating a tree, with a path into the tree pinpointing the offender.
type ValidationError struct {
	Path   string // e.g. "nodes.T001.depends_on[2]"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tree: validation failed at %s: %s", e.Path, e.Reason)
}

// CycleError reports a cycle found in parent or depends_on edges. For a
// parent cycle, Chain is the offending path in the order it was discovered;
// for a depends_on cycle, it lists every leaf left unscheduled, sorted by id.
type CycleError struct {
	Chain []string
	Kind  string // "parent" or "depends_on"
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("tree: cycle detected in %s edges: %v", e.Kind, e.Chain)
}
