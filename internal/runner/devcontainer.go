package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// DevcontainerConfig describes the sandbox image and CLI invocation used to
// run an agent inside a short-lived container.
type DevcontainerConfig struct {
	Image      string
	Cmd        []string // argv run inside the container, may reference {prompt_file}
	EnvPassthrough []string // env var names forwarded from the host, e.g. ANTHROPIC_API_KEY
}

// DevcontainerRunner runs the agent inside a disposable container,
// bind-mounting cwd at /workspace. Grounded in the same create/start/logs/
// remove lifecycle as a plain command runner, just routed through the
// Docker API instead of a local subprocess.
type DevcontainerRunner struct {
	cfg DevcontainerConfig
	cli *client.Client
}

func NewDevcontainerRunner(cfg DevcontainerConfig) (*DevcontainerRunner, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("runner: devcontainer image is required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runner: init docker client: %w", err)
	}
	return &DevcontainerRunner{cfg: cfg, cli: cli}, nil
}

func (r *DevcontainerRunner) Run(ctx context.Context, prompt, cwd string, timeout time.Duration) (RunResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	name := fmt.Sprintf("arborist-run-%s", uuid.New().String())

	promptFile, err := writePromptFile(prompt)
	if err != nil {
		return RunResult{}, fmt.Errorf("runner: write prompt file: %w", err)
	}
	defer os.Remove(promptFile)

	env := make([]string, 0, len(r.cfg.EnvPassthrough))
	for _, envName := range r.cfg.EnvPassthrough {
		env = append(env, envName+"="+os.Getenv(envName))
	}

	containerCmd := make([]string, len(r.cfg.Cmd))
	for i, a := range r.cfg.Cmd {
		if a == "{prompt_file}" {
			containerCmd[i] = "/arborist/prompt.txt"
		} else {
			containerCmd[i] = a
		}
	}

	cfg := &container.Config{
		Image:      r.cfg.Image,
		Cmd:        containerCmd,
		WorkingDir: "/workspace",
		Env:        env,
		Tty:        false,
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: promptFile, Target: "/arborist/prompt.txt", ReadOnly: true},
			{Type: mount.TypeBind, Source: cwd, Target: "/workspace"},
		},
		AutoRemove: false,
	}

	resp, err := r.cli.ContainerCreate(runCtx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return RunResult{}, fmt.Errorf("runner: create container: %w", err)
	}
	defer r.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := r.cli.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("runner: start container: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	timedOut := false
	select {
	case err := <-errCh:
		if err != nil && runCtx.Err() != nil {
			timedOut = true
			_ = r.cli.ContainerStop(context.Background(), resp.ID, container.StopOptions{})
		} else if err != nil {
			return RunResult{}, fmt.Errorf("runner: wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := r.cli.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	var output string
	if err == nil {
		var stdout, stderr bytes.Buffer
		_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)
		logs.Close()
		output = stdout.String() + stderr.String()
	}

	if timedOut {
		return RunResult{Success: false, Output: output, Error: "devcontainer run timed out", TimedOut: true, ExitCode: -1}, nil
	}
	return RunResult{Success: exitCode == 0, Output: output, ExitCode: int(exitCode)}, nil
}
