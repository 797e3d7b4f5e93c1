package main

import (
	"context"
	"fmt"

	"github.com/pennyworth-tech/arborist/internal/gitops"
	"github.com/pennyworth-tech/arborist/internal/tree"
)

// resolveBranch returns explicitBranch if set, otherwise derives the
// canonical branch name for t's single root phase (spec §3.1's
// Tree.BranchName). A multi-root tree has no unambiguous default and must
// be run with an explicit --branch.
func resolveBranch(t *tree.Tree, explicitBranch string) (string, error) {
	if explicitBranch != "" {
		return explicitBranch, nil
	}
	if len(t.RootIDs) != 1 {
		return "", fmt.Errorf("tree has %d root phases; pass --branch explicitly", len(t.RootIDs))
	}
	return t.BranchName(t.RootIDs[0]), nil
}

// ensureBranchCheckedOut checks out branch in dir, creating it from
// baseBranch if it does not already exist locally.
func ensureBranchCheckedOut(ctx context.Context, dir, branch, baseBranch string) error {
	exists, err := gitops.BranchExists(ctx, dir, branch)
	if err != nil {
		return fmt.Errorf("check branch %q: %w", branch, err)
	}
	if exists {
		return gitops.Checkout(ctx, dir, branch, false, "")
	}
	return gitops.Checkout(ctx, dir, branch, true, baseBranch)
}
