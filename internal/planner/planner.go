// Package planner adapts an external task-tree generator behind one thin
// command wrapper. Arborist's core (tree, garden, gardener, state) never
// depends on how a tree is produced — planner exists only to let the
// `build` subcommand turn "some external program" into a validated
// task-tree.json without the core knowing anything about AI planning.
package planner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pennyworth-tech/arborist/internal/tree"
)

// Config describes the external planner command. Args may reference the
// {output_file} placeholder; when absent, the command's stdout is taken
// as the tree JSON instead.
type Config struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Planner runs a configured external command and validates whatever tree
// JSON it produces.
type Planner struct {
	cfg Config
}

// New validates cfg eagerly so a misconfigured planner fails at startup.
func New(cfg Config) (*Planner, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("planner: command is required")
	}
	return &Planner{cfg: cfg}, nil
}

// Generate runs the external planner in cwd and returns the validated
// tree it produced. The raw JSON bytes are returned alongside the parsed
// tree so the caller can persist them verbatim to task-tree.json.
func (p *Planner) Generate(ctx context.Context, cwd string) (*tree.Tree, []byte, error) {
	usesOutputFile := false
	for _, a := range p.cfg.Args {
		if strings.Contains(a, "{output_file}") {
			usesOutputFile = true
			break
		}
	}

	var outputFile string
	if usesOutputFile {
		f, err := os.CreateTemp("", "arborist-tree-*.json")
		if err != nil {
			return nil, nil, fmt.Errorf("planner: create output file: %w", err)
		}
		outputFile = f.Name()
		f.Close()
		defer os.Remove(outputFile)
	}

	argv := make([]string, 0, len(p.cfg.Args))
	for _, a := range p.cfg.Args {
		argv = append(argv, strings.ReplaceAll(a, "{output_file}", outputFile))
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, p.cfg.Command, argv...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, nil, fmt.Errorf("planner: run %s: %w (stderr: %s)", p.cfg.Command, err, stderr.String())
	}

	var data []byte
	if usesOutputFile {
		raw, err := os.ReadFile(outputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("planner: read output file: %w", err)
		}
		data = raw
	} else {
		data = stdout.Bytes()
	}

	t, err := tree.ParseTree(data)
	if err != nil {
		return nil, nil, fmt.Errorf("planner: produced tree failed validation: %w", err)
	}
	return t, data, nil
}
