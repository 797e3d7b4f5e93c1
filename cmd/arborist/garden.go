package main

import (
	"fmt"

	"github.com/pennyworth-tech/arborist/internal/clock"
	"github.com/pennyworth-tech/arborist/internal/garden"
	"github.com/pennyworth-tech/arborist/internal/state"
	"github.com/spf13/cobra"
)

// newGardenCmd wires `arborist garden`: run exactly one garden() pass on
// the next ready leaf, then exit. Meant to be driven externally (cron,
// a CI step) rather than looped in-process — see `gardener` for that.
func newGardenCmd() *cobra.Command {
	var (
		configPath string
		treePath   string
		dir        string
		branch     string
	)

	cmd := &cobra.Command{
		Use:   "garden",
		Short: "Run one IMPLEMENT->TEST->REVIEW pass on the next ready task",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openEngineSession(configPath, treePath)
			if err != nil {
				return withExitCode(2, err)
			}
			defer sess.close()

			resolvedBranch, err := resolveBranch(sess.tree, branch)
			if err != nil {
				return withExitCode(2, err)
			}
			if err := ensureBranchCheckedOut(cmd.Context(), dir, resolvedBranch, sess.cfg.Merge.BaseBranch); err != nil {
				return withExitCode(1, fmt.Errorf("garden: %w", err))
			}

			reader := state.NewReader(dir)
			completed, err := reader.CompletedTasks(cmd.Context(), sess.tree, resolvedBranch)
			if err != nil {
				return withExitCode(1, fmt.Errorf("garden: %w", err))
			}
			ready := sess.tree.ReadyLeaves(completed)
			if len(ready) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to do: no ready leaves remain")
				return nil
			}
			next := ready[0]

			policy := garden.Policy{
				MaxRetries:       sess.cfg.General.MaxRetries,
				ImplementTimeout: sess.cfg.General.ImplementTimeout.Duration,
				TestTimeout:      sess.cfg.General.TestTimeout.Duration,
				ReviewTimeout:    sess.cfg.General.ReviewTimeout.Duration,
				WorkDir:          dir,
				Artifacts:        sess.store,
			}

			out, err := garden.Garden(cmd.Context(), dir, resolvedBranch, next, sess.implementRunner, sess.reviewRunner, policy, clock.Real{}, sess.log)
			if err != nil {
				return withExitCode(1, fmt.Errorf("garden: %w", err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "task %s: success=%v attempts=%d\n", out.TaskID, out.Success, out.Attempts)
			if !out.Success {
				return withExitCode(1, fmt.Errorf("task %s did not complete", out.TaskID))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "arborist.toml", "path to the arborist config file")
	cmd.Flags().StringVar(&treePath, "tree", "task-tree.json", "path to the task tree JSON")
	cmd.Flags().StringVar(&dir, "dir", ".", "repository working directory")
	cmd.Flags().StringVar(&branch, "branch", "", "run branch (defaults to the tree's single root phase's canonical branch)")
	return cmd
}
