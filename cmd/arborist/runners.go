package main

import (
	"fmt"

	"github.com/pennyworth-tech/arborist/internal/config"
	"github.com/pennyworth-tech/arborist/internal/runner"
)

// buildRunners resolves the implement and review Runner from cfg. When the
// sandbox is enabled, both steps share one DevcontainerRunner; otherwise
// each step gets its own CommandRunner per general.implement_runner /
// general.review_runner.
func buildRunners(cfg *config.Config) (implement, review runner.Runner, err error) {
	if cfg.Sandbox.Enabled {
		r, err := runner.NewDevcontainerRunner(runner.DevcontainerConfig{
			Image:          cfg.Sandbox.Image,
			Cmd:            cfg.Sandbox.Cmd,
			EnvPassthrough: cfg.Sandbox.EnvPassthrough,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("sandbox runner: %w", err)
		}
		return r, r, nil
	}

	implement, err = buildCommandRunner(cfg, cfg.General.ImplementRunner)
	if err != nil {
		return nil, nil, fmt.Errorf("implement runner %q: %w", cfg.General.ImplementRunner, err)
	}
	review, err = buildCommandRunner(cfg, cfg.General.ReviewRunner)
	if err != nil {
		return nil, nil, fmt.Errorf("review runner %q: %w", cfg.General.ReviewRunner, err)
	}
	return implement, review, nil
}

func buildCommandRunner(cfg *config.Config, name string) (runner.Runner, error) {
	rc, ok := cfg.Runner[name]
	if !ok {
		return nil, fmt.Errorf("runner %q is not configured", name)
	}
	return runner.NewCommandRunner(runner.CommandConfig{
		Command: rc.Command,
		Args:    rc.Args,
		Model:   rc.Model,
	})
}
