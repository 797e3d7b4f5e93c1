// Package gardener implements the outer scheduling loop: repeatedly pick
// the next ready leaf and run garden() on it until every leaf is complete,
// a task fails terminally, a phase gate fails, or the tree stalls.
package gardener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pennyworth-tech/arborist/internal/clock"
	"github.com/pennyworth-tech/arborist/internal/garden"
	"github.com/pennyworth-tech/arborist/internal/mergepolicy"
	"github.com/pennyworth-tech/arborist/internal/runner"
	"github.com/pennyworth-tech/arborist/internal/state"
	"github.com/pennyworth-tech/arborist/internal/tree"
)

// Outcome is the terminal result of a full gardener run.
type Outcome struct {
	Success       bool
	OrderExecuted []string
	FailedTaskID  string
	Reason        string
}

// Config bundles everything one gardener run needs.
type Config struct {
	Dir             string
	Branch          string
	BaseBranch      string
	WorkDir         string
	ImplementRunner runner.Runner
	ReviewRunner    runner.Runner
	Policy          garden.Policy
	Clock           clock.Clock
}

// Run executes the gardener loop described in spec §4.7 to completion.
func Run(ctx context.Context, t *tree.Tree, cfg Config, log *slog.Logger) (Outcome, error) {
	if log == nil {
		log = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	reader := state.NewReader(cfg.Dir)

	var orderExecuted []string
	for {
		completed, err := reader.CompletedTasks(ctx, t, cfg.Branch)
		if err != nil {
			return Outcome{}, fmt.Errorf("gardener: read completed tasks: %w", err)
		}

		if allComplete(t, completed) {
			log.Info("gardener: all leaves complete", "tasks", len(completed))
			return Outcome{Success: true, OrderExecuted: orderExecuted}, nil
		}

		ready := t.ReadyLeaves(completed)
		if len(ready) == 0 {
			log.Warn("gardener: stalled, no ready leaves remain", "completed", len(completed))
			return Outcome{Success: false, OrderExecuted: orderExecuted, Reason: "stalled: no ready leaves but unfinished work remains"}, nil
		}

		next := ready[0]
		log.Info("gardener: gardening next task", "task_id", next.ID)
		out, err := garden.Garden(ctx, cfg.Dir, cfg.Branch, next, cfg.ImplementRunner, cfg.ReviewRunner, cfg.Policy, clk, log)
		if err != nil {
			return Outcome{}, fmt.Errorf("gardener: garden(%s): %w", next.ID, err)
		}

		orderExecuted = append(orderExecuted, next.ID)

		if !out.Success {
			log.Warn("gardener: task failed terminally", "task_id", next.ID)
			return Outcome{Success: false, OrderExecuted: orderExecuted, FailedTaskID: next.ID, Reason: "task failed after exhausting retries"}, nil
		}

		completed[next.ID] = true
		merged, err := mergepolicy.CheckAndMerge(ctx, cfg.Dir, cfg.Branch, cfg.BaseBranch, t, next, completed, cfg.Policy.TestTimeout, cfg.WorkDir, log)
		if err != nil {
			var gateErr mergepolicy.PhaseGateFailed
			if asPhaseGateFailed(err, &gateErr) {
				return Outcome{Success: false, OrderExecuted: orderExecuted, FailedTaskID: gateErr.PhaseID, Reason: gateErr.Error()}, nil
			}
			return Outcome{}, fmt.Errorf("gardener: phase gate for %s: %w", next.ID, err)
		}
		if merged {
			log.Info("gardener: phase merged into base", "base", cfg.BaseBranch)
		}
	}
}

func allComplete(t *tree.Tree, completed map[string]bool) bool {
	for _, leaf := range t.Leaves() {
		if !completed[leaf.ID] {
			return false
		}
	}
	return true
}

func asPhaseGateFailed(err error, target *mergepolicy.PhaseGateFailed) bool {
	if pf, ok := err.(mergepolicy.PhaseGateFailed); ok {
		*target = pf
		return true
	}
	return false
}
