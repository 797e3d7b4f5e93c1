package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pennyworth-tech/arborist/internal/planner"
	"github.com/spf13/cobra"
)

// newBuildCmd wires the external, out-of-core planner: it shells out to a
// configured command and writes the validated task-tree.json it produces.
// This subcommand exists only to drive the core; planning itself is never
// part of the engine.
func newBuildCmd() *cobra.Command {
	var (
		treePath       string
		plannerCmd     string
		plannerArgs    []string
		plannerDir     string
		plannerTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate task-tree.json by invoking an external planner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if plannerCmd == "" {
				return withExitCode(2, fmt.Errorf("--planner-command is required"))
			}
			p, err := planner.New(planner.Config{Command: plannerCmd, Args: plannerArgs, Timeout: plannerTimeout})
			if err != nil {
				return withExitCode(2, err)
			}

			_, data, err := p.Generate(cmd.Context(), plannerDir)
			if err != nil {
				return withExitCode(1, fmt.Errorf("build: %w", err))
			}
			if err := os.WriteFile(treePath, data, 0644); err != nil {
				return withExitCode(1, fmt.Errorf("build: write %s: %w", treePath, err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", treePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&treePath, "tree", "task-tree.json", "output path for the generated tree")
	cmd.Flags().StringVar(&plannerCmd, "planner-command", "", "external planner command to invoke")
	cmd.Flags().StringArrayVar(&plannerArgs, "planner-arg", nil, "argument for the planner command (repeatable); may reference {output_file}")
	cmd.Flags().StringVar(&plannerDir, "dir", ".", "working directory to run the planner in")
	cmd.Flags().DurationVar(&plannerTimeout, "timeout", 5*time.Minute, "planner invocation timeout")
	return cmd
}
