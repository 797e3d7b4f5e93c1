package main

import (
	"fmt"
	"strings"

	"github.com/pennyworth-tech/arborist/internal/protocol"
	"github.com/spf13/cobra"
)

// newInspectCmd wires `arborist inspect`: dump a task's full protocol-commit
// history (newest first) so an operator can see every attempt's trailers
// without hand-grepping `git log`.
func newInspectCmd() *cobra.Command {
	var (
		dir          string
		branch       string
		artifactRoot string
	)

	cmd := &cobra.Command{
		Use:   "inspect <task-id>",
		Short: "Print a task's protocol commit history on a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			if branch == "" {
				return withExitCode(2, fmt.Errorf("inspect: --branch is required"))
			}

			idx, err := rebuiltIndex(cmd.Context(), artifactRoot)
			if err != nil {
				return withExitCode(1, fmt.Errorf("inspect: %w", err))
			}
			defer idx.Close()
			summaries, err := idx.List(cmd.Context())
			if err != nil {
				return withExitCode(1, fmt.Errorf("inspect: %w", err))
			}
			for _, s := range summaries {
				if s.TaskID == taskID {
					fmt.Fprintf(cmd.OutOrStdout(), "indexed: result=%s retries=%d\n", s.Result, s.Retries)
					break
				}
			}

			commits, err := protocol.LogForTask(cmd.Context(), dir, branch, taskID)
			if err != nil {
				return withExitCode(1, fmt.Errorf("inspect: %w", err))
			}
			if len(commits) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no protocol commits found for %s on %s\n", taskID, branch)
				return nil
			}

			out := cmd.OutOrStdout()
			for _, c := range commits {
				fmt.Fprintf(out, "%s  %s  %s\n", c.Hash[:shortHashLen(c.Hash)], c.Date.Format("2006-01-02T15:04:05Z07:00"), c.Subject.Status)
				for _, line := range strings.Split(c.Trailers.Render(), "\n") {
					if line == "" {
						continue
					}
					fmt.Fprintf(out, "    %s\n", line)
				}
				if c.Body != "" {
					fmt.Fprintf(out, "    %s\n", c.Body)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "repository working directory")
	cmd.Flags().StringVar(&branch, "branch", "", "branch to read the protocol log from")
	cmd.Flags().StringVar(&artifactRoot, "artifact-root", ".arborist", "artifact store root (rebuilt index is used for the indexed result/retries line)")
	return cmd
}

func shortHashLen(hash string) int {
	if len(hash) < 12 {
		return len(hash)
	}
	return 12
}
