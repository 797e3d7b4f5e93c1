package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/pennyworth-tech/arborist/internal/artifacts"
	"github.com/pennyworth-tech/arborist/internal/config"
	"github.com/pennyworth-tech/arborist/internal/gardener"
	"github.com/pennyworth-tech/arborist/internal/lock"
	"github.com/pennyworth-tech/arborist/internal/tree"
	"github.com/spf13/cobra"
)

// newGardenerCmd wires `arborist gardener`: drive the scheduling loop to
// completion, stalling, or the first terminal task/phase-gate failure,
// reacting to SIGINT/SIGTERM by cancelling the in-flight step rather than
// killing the process mid-commit. With --watch, a stall (no ready leaves,
// unfinished work remains) is not terminal: the run re-polls the tree file
// and config every general.tick_interval instead of exiting, picking up
// config edits (e.g. a runner swapped out) via ConfigManager.Reload on
// each tick.
func newGardenerCmd() *cobra.Command {
	var (
		configPath string
		treePath   string
		dir        string
		branch     string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "gardener",
		Short: "Run the scheduling loop to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return runGardenerWatch(cmd, configPath, treePath, dir, branch)
			}
			return runGardenerOnce(cmd, configPath, treePath, dir, branch)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "arborist.toml", "path to the arborist config file")
	cmd.Flags().StringVar(&treePath, "tree", "task-tree.json", "path to the task tree JSON")
	cmd.Flags().StringVar(&dir, "dir", ".", "repository working directory")
	cmd.Flags().StringVar(&branch, "branch", "", "run branch (defaults to the tree's single root phase's canonical branch)")
	cmd.Flags().BoolVar(&watch, "watch", false, "on a stall, re-poll every general.tick_interval instead of exiting")
	return cmd
}

func runGardenerOnce(cmd *cobra.Command, configPath, treePath, dir, branch string) error {
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
		return withExitCode(1, fmt.Errorf("gardener: %w", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gcfg := gardenerConfigFor(sess.cfg, dir, resolvedBranch, sess.implementRunner, sess.reviewRunner, sess.store)

	out, err := gardener.Run(ctx, sess.tree, gcfg, sess.log)
	if err != nil {
		if ctx.Err() != nil {
			return withExitCode(1, fmt.Errorf("gardener: interrupted: %w", context.Cause(ctx)))
		}
		return withExitCode(1, fmt.Errorf("gardener: %w", err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "executed %d task(s): success=%v\n", len(out.OrderExecuted), out.Success)
	if !out.Success {
		fmt.Fprintf(cmd.OutOrStdout(), "reason: %s\n", out.Reason)
		return withExitCode(1, fmt.Errorf("gardener: %s", out.Reason))
	}
	return nil
}

// runGardenerWatch holds the lock and artifact store for the lifetime of
// the whole watch loop, but reloads config and re-reads the tree file on
// every re-poll so on-disk edits between ticks take effect.
func runGardenerWatch(cmd *cobra.Command, configPath, treePath, dir, branch string) error {
	manager, err := config.LoadManager(configPath)
	if err != nil {
		return withExitCode(2, fmt.Errorf("gardener: %w", err))
	}
	initial := manager.Get()
	log := configureLogger(initial.General.LogLevel)

	l, err := lock.Acquire(initial.General.LockFile)
	if err != nil {
		return withExitCode(2, err)
	}
	defer l.Release()

	store, err := artifacts.NewStore(initial.General.ArtifactRoot)
	if err != nil {
		return withExitCode(2, fmt.Errorf("gardener: open artifact store: %w", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		cfg := manager.Get()

		t, err := tree.LoadTree(treePath)
		if err != nil {
			return withExitCode(1, fmt.Errorf("gardener: %w", err))
		}
		resolvedBranch, err := resolveBranch(t, branch)
		if err != nil {
			return withExitCode(2, err)
		}
		if err := ensureBranchCheckedOut(ctx, dir, resolvedBranch, cfg.Merge.BaseBranch); err != nil {
			return withExitCode(1, fmt.Errorf("gardener: %w", err))
		}

		implementRunner, reviewRunner, err := buildRunners(cfg)
		if err != nil {
			return withExitCode(2, fmt.Errorf("gardener: %w", err))
		}
		gcfg := gardenerConfigFor(cfg, dir, resolvedBranch, implementRunner, reviewRunner, store)

		out, err := gardener.Run(ctx, t, gcfg, log)
		if err != nil {
			if ctx.Err() != nil {
				return withExitCode(1, fmt.Errorf("gardener: interrupted: %w", context.Cause(ctx)))
			}
			return withExitCode(1, fmt.Errorf("gardener: %w", err))
		}

		if out.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "executed %d task(s): success=true\n", len(out.OrderExecuted))
			return nil
		}
		if !isStalled(out) {
			fmt.Fprintf(cmd.OutOrStdout(), "executed %d task(s): success=false\n", len(out.OrderExecuted))
			fmt.Fprintf(cmd.OutOrStdout(), "reason: %s\n", out.Reason)
			return withExitCode(1, fmt.Errorf("gardener: %s", out.Reason))
		}

		log.Info("gardener: stalled, waiting to re-poll", "tick_interval", cfg.General.TickInterval.Duration)
		select {
		case <-ctx.Done():
			return withExitCode(1, fmt.Errorf("gardener: interrupted while waiting to re-poll: %w", context.Cause(ctx)))
		case <-time.After(cfg.General.TickInterval.Duration):
		}
		if err := manager.Reload(configPath); err != nil {
			log.Warn("gardener: config reload failed, keeping previous config", "error", err)
		}
	}
}
