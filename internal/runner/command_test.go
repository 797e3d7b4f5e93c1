package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommandRunner_RejectsUnsupportedPlaceholder(t *testing.T) {
	_, err := NewCommandRunner(CommandConfig{Command: "echo", Args: []string{"{unknown}"}})
	require.Error(t, err)
}

func TestCommandRunner_RunSuccess(t *testing.T) {
	r, err := NewCommandRunner(CommandConfig{Command: "sh", Args: []string{"-c", "cat {prompt_file}"}})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "hello agent", t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "hello agent", strings.TrimSpace(res.Output))
	require.Equal(t, 0, res.ExitCode)
}

func TestCommandRunner_NonZeroExit(t *testing.T) {
	r, err := NewCommandRunner(CommandConfig{Command: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "prompt", t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 3, res.ExitCode)
}

func TestCommandRunner_Timeout(t *testing.T) {
	r, err := NewCommandRunner(CommandConfig{Command: "sh", Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)

	start := time.Now()
	res, err := r.Run(context.Background(), "prompt", t.TempDir(), 200*time.Millisecond)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, res.TimedOut)
	require.False(t, res.Success)
}

func TestCommandRunner_ModelPlaceholderRequiredWhenConfigured(t *testing.T) {
	r, err := NewCommandRunner(CommandConfig{Command: "echo", Args: []string{"static"}, Model: "opus"})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), "prompt", t.TempDir(), time.Second)
	require.Error(t, err)
}

func TestCommandRunner_ModelPlaceholderSubstituted(t *testing.T) {
	r, err := NewCommandRunner(CommandConfig{Command: "echo", Args: []string{"{model}"}, Model: "opus"})
	require.NoError(t, err)
	res, err := r.Run(context.Background(), "prompt", t.TempDir(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "opus", strings.TrimSpace(res.Output))
}
