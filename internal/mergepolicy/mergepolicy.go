// Package mergepolicy implements the phase gate: when every leaf under a
// root phase is complete, it runs the phase's integration/e2e test
// commands and, if they pass, merges the run branch into the base branch
// with --no-ff semantics.
package mergepolicy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pennyworth-tech/arborist/internal/gitops"
	"github.com/pennyworth-tech/arborist/internal/protocol"
	"github.com/pennyworth-tech/arborist/internal/testexec"
	"github.com/pennyworth-tech/arborist/internal/tree"
)

// PhaseGateFailed is returned (as a value, not wrapped in error) when the
// phase's integration/e2e checks fail. The gardener treats this as a halt.
type PhaseGateFailed struct {
	PhaseID string
	Reason  string
}

func (f PhaseGateFailed) Error() string {
	return fmt.Sprintf("phase gate failed for %s: %s", f.PhaseID, f.Reason)
}

// CheckAndMerge runs after a leaf completes. If every other leaf under the
// same root phase is also complete, it runs the phase's integration and e2e
// test commands and, on success, merges branch into baseBranch with --no-ff. If the
// phase has unfinished siblings it is a no-op (merged=false, nil error).
func CheckAndMerge(
	ctx context.Context,
	dir, branch, baseBranch string,
	t *tree.Tree,
	completedLeaf *tree.TaskNode,
	completed map[string]bool,
	testTimeout time.Duration,
	workDir string,
	log *slog.Logger,
) (merged bool, err error) {
	if log == nil {
		log = slog.Default()
	}

	phase := t.Phase(completedLeaf.ID)
	if phase == nil {
		return false, fmt.Errorf("mergepolicy: %s has no phase ancestor", completedLeaf.ID)
	}

	for _, leaf := range t.PhaseLeaves(phase.ID) {
		if !completed[leaf.ID] {
			return false, nil
		}
	}

	log.Info("mergepolicy: phase complete, running gate", "phase_id", phase.ID)
	var gate []tree.TestCommand
	for _, tc := range phase.TestCommands {
		if tc.Type == tree.TestIntegration || tc.Type == tree.TestE2E {
			gate = append(gate, tc)
		}
	}
	res, err := testexec.Run(ctx, workDir, gate, testTimeout)
	if err != nil {
		return false, fmt.Errorf("mergepolicy: phase gate executor for %s: %w", phase.ID, err)
	}

	if !res.Pass {
		body := "phase gate tests failed"
		writeErr := protocol.Write(ctx, dir, protocol.WriteRequest{
			Branch: branch, TaskID: phase.ID, Status: protocol.StatusTestFail,
			FreeText: fmt.Sprintf("phase %s gate failed", phase.ID),
			Body:     body,
			Trailers: protocol.Trailers{
				protocol.KeyStep: protocol.StepTest,
				protocol.KeyTest: protocol.ResultFail,
			},
		})
		if writeErr != nil {
			return false, fmt.Errorf("mergepolicy: record phase gate failure for %s: %w", phase.ID, writeErr)
		}
		return false, PhaseGateFailed{PhaseID: phase.ID, Reason: "phase-level integration/e2e tests failed"}
	}

	log.Info("mergepolicy: phase gate passed, merging", "phase_id", phase.ID, "branch", branch, "base", baseBranch)
	if err := gitops.Checkout(ctx, dir, baseBranch, false, ""); err != nil {
		return false, fmt.Errorf("mergepolicy: checkout base branch %s: %w", baseBranch, err)
	}
	msg := fmt.Sprintf("merge %s into %s (phase %s complete)", branch, baseBranch, phase.ID)
	if err := gitops.MergeNoFF(ctx, dir, branch, msg); err != nil {
		return false, fmt.Errorf("mergepolicy: merge %s into %s: %w", branch, baseBranch, err)
	}

	// Return the working tree to the run branch: callers (the gardener
	// loop) keep operating on branch for any remaining phases, and must
	// never be left with baseBranch checked out after a gate passes.
	if err := gitops.Checkout(ctx, dir, branch, false, ""); err != nil {
		return false, fmt.Errorf("mergepolicy: checkout back to run branch %s after merge: %w", branch, err)
	}
	return true, nil
}
