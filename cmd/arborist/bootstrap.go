package main

import (
	"fmt"
	"log/slog"

	"github.com/pennyworth-tech/arborist/internal/artifacts"
	"github.com/pennyworth-tech/arborist/internal/clock"
	"github.com/pennyworth-tech/arborist/internal/config"
	"github.com/pennyworth-tech/arborist/internal/garden"
	"github.com/pennyworth-tech/arborist/internal/gardener"
	"github.com/pennyworth-tech/arborist/internal/lock"
	"github.com/pennyworth-tech/arborist/internal/runner"
	"github.com/pennyworth-tech/arborist/internal/tree"
)

// engineSession bundles everything a garden/gardener invocation needs,
// built once from the config file and command-line flags.
type engineSession struct {
	cfg             *config.Config
	tree            *tree.Tree
	lock            *lock.Lock
	implementRunner runner.Runner
	reviewRunner    runner.Runner
	store           *artifacts.Store
	log             *slog.Logger
}

// openEngineSession loads config and tree, acquires the single-instance
// lock, and constructs the runners and artifact store every garden-family
// subcommand needs. Callers must call close() when done, even on error
// paths after the lock is acquired.
func openEngineSession(configPath, treePath string) (*engineSession, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := configureLogger(cfg.General.LogLevel)

	t, err := tree.LoadTree(treePath)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}

	l, err := lock.Acquire(cfg.General.LockFile)
	if err != nil {
		return nil, err
	}

	implementRunner, reviewRunner, err := buildRunners(cfg)
	if err != nil {
		l.Release()
		return nil, err
	}

	store, err := artifacts.NewStore(cfg.General.ArtifactRoot)
	if err != nil {
		l.Release()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	return &engineSession{
		cfg:             cfg,
		tree:            t,
		lock:            l,
		implementRunner: implementRunner,
		reviewRunner:    reviewRunner,
		store:           store,
		log:             log,
	}, nil
}

func (s *engineSession) close() {
	if s == nil {
		return
	}
	s.lock.Release()
}

// gardenerConfigFor builds a gardener.Config from cfg and the already
// constructed runners/store, so the plain `gardener` run and the
// `gardener --watch` loop (which rebuilds this on every re-poll after a
// config reload) share the exact same translation.
func gardenerConfigFor(cfg *config.Config, dir, branch string, implementRunner, reviewRunner runner.Runner, store *artifacts.Store) gardener.Config {
	return gardener.Config{
		Dir:             dir,
		Branch:          branch,
		BaseBranch:      cfg.Merge.BaseBranch,
		WorkDir:         dir,
		ImplementRunner: implementRunner,
		ReviewRunner:    reviewRunner,
		Policy: garden.Policy{
			MaxRetries:       cfg.General.MaxRetries,
			ImplementTimeout: cfg.General.ImplementTimeout.Duration,
			TestTimeout:      cfg.General.TestTimeout.Duration,
			ReviewTimeout:    cfg.General.ReviewTimeout.Duration,
			WorkDir:          dir,
			Artifacts:        store,
		},
		Clock: clock.Real{},
	}
}

// isStalled reports whether a gardener.Outcome represents a retryable
// stall (no ready leaves, but unfinished work remains) rather than a
// terminal task or phase-gate failure. Only the former is worth
// re-polling for in `gardener --watch`.
func isStalled(out gardener.Outcome) bool {
	return !out.Success && out.FailedTaskID == ""
}
