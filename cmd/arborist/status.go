package main

import (
	"fmt"

	"github.com/pennyworth-tech/arborist/internal/artifacts"
	"github.com/pennyworth-tech/arborist/internal/state"
	"github.com/pennyworth-tech/arborist/internal/tree"
	"github.com/spf13/cobra"
)

// newStatusCmd wires `arborist status`: print every leaf's git-derived
// state, newest-commit-wins, without touching the working tree. Retry
// counts come from the rebuilt artifact index, which exists purely to
// make this fast across large trees — state itself is always git's.
func newStatusCmd() *cobra.Command {
	var (
		treePath     string
		dir          string
		branch       string
		artifactRoot string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every task's current state on a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tree.LoadTree(treePath)
			if err != nil {
				return withExitCode(2, fmt.Errorf("status: %w", err))
			}
			resolvedBranch, err := resolveBranch(t, branch)
			if err != nil {
				return withExitCode(2, err)
			}

			idx, err := rebuiltIndex(cmd.Context(), artifactRoot)
			if err != nil {
				return withExitCode(1, fmt.Errorf("status: %w", err))
			}
			defer idx.Close()

			summaries, err := idx.List(cmd.Context())
			if err != nil {
				return withExitCode(1, fmt.Errorf("status: %w", err))
			}
			retries := make(map[string]artifacts.Summary, len(summaries))
			for _, s := range summaries {
				retries[s.TaskID] = s
			}

			reader := state.NewReader(dir)
			for _, id := range t.ExecutionOrder {
				n := t.Nodes[id]
				if n == nil || !n.IsLeaf {
					continue
				}
				s, err := reader.For(cmd.Context(), resolvedBranch, id)
				if err != nil {
					return withExitCode(1, fmt.Errorf("status: %w", err))
				}
				if sum, ok := retries[id]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s  %s  (retries=%d)\n", s, id, n.Name, sum.Retries)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s  %s\n", s, id, n.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&treePath, "tree", "task-tree.json", "path to the task tree JSON")
	cmd.Flags().StringVar(&dir, "dir", ".", "repository working directory")
	cmd.Flags().StringVar(&branch, "branch", "", "run branch (defaults to the tree's single root phase's canonical branch)")
	cmd.Flags().StringVar(&artifactRoot, "artifact-root", ".arborist", "artifact store root (rebuilt index is used to show retry counts)")
	return cmd
}
