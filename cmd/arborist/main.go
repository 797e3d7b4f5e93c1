// Command arborist drives the git-native task-tree engine: build a tree
// from an external planner, garden one task or run the gardener loop to
// completion, and inspect a tree's state from its branch's commit log.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitError, attached to an error via withExitCode, drives process exit codes
// per spec §6.4: 0 success, 1 stalled/task failure, 2 invalid input.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "arborist",
		Short:         "Git-native task-tree orchestrator for agentic code generation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		newBuildCmd(),
		newGardenCmd(),
		newGardenerCmd(),
		newStatusCmd(),
		newInspectCmd(),
	)
	return cmd
}
