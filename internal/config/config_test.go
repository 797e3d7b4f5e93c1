package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "arborist.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
[general]
tick_interval = "45s"
max_retries = 2
implement_timeout = "20m"
test_timeout = "5m"
review_timeout = "5m"
log_level = "debug"
lock_file = "/tmp/arborist-test.lock"
artifact_root = "/tmp/arborist-test"
implement_runner = "claude"
review_runner = "gemini"

[runner.claude]
command = "claude"
args = ["-p", "{prompt}", "--model", "{model}"]
model = "claude-opus-4-6"

[runner.gemini]
command = "gemini"
args = ["--prompt-file", "{prompt_file}"]

[sandbox]
enabled = false

[merge]
base_branch = "main"
strategy = "no-ff"
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 45*time.Second, cfg.General.TickInterval.Duration)
	require.Equal(t, 2, cfg.General.MaxRetries)
	require.Equal(t, 20*time.Minute, cfg.General.ImplementTimeout.Duration)
	require.Equal(t, "debug", cfg.General.LogLevel)

	require.Len(t, cfg.Runner, 2)
	require.Equal(t, "claude", cfg.Runner["claude"].Command)
	require.Equal(t, []string{"-p", "{prompt}", "--model", "{model}"}, cfg.Runner["claude"].Args)

	require.Equal(t, "main", cfg.Merge.BaseBranch)
	require.Equal(t, "no-ff", cfg.Merge.Strategy)
	require.Equal(t, "claude", cfg.General.ImplementRunner)
	require.Equal(t, "gemini", cfg.General.ReviewRunner)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := `
[runner.claude]
command = "claude"
`
	path := writeTestConfig(t, cfg)
	loaded, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 30*time.Second, loaded.General.TickInterval.Duration)
	require.Equal(t, 3, loaded.General.MaxRetries)
	require.Equal(t, 15*time.Minute, loaded.General.ImplementTimeout.Duration)
	require.Equal(t, 10*time.Minute, loaded.General.TestTimeout.Duration)
	require.Equal(t, "info", loaded.General.LogLevel)
	require.Equal(t, ".arborist.lock", loaded.General.LockFile)
	require.Equal(t, ".arborist", loaded.General.ArtifactRoot)
	require.Equal(t, "main", loaded.Merge.BaseBranch)
	require.Equal(t, "no-ff", loaded.Merge.Strategy)
	// runner.claude has no explicit timeout, should fall back to the
	// (defaulted) implement timeout.
	require.Equal(t, 15*time.Minute, loaded.Runner["claude"].Timeout.Duration)
	// Sole configured runner is used for both steps by default.
	require.Equal(t, "claude", loaded.General.ImplementRunner)
	require.Equal(t, "claude", loaded.General.ReviewRunner)
}

func TestLoadAmbiguousRunnerSelectionRequiresExplicitChoice(t *testing.T) {
	cfg := `
[runner.claude]
command = "claude"

[runner.gemini]
command = "gemini"
`
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "implement_runner")
}

func TestLoadUnknownImplementRunnerRejected(t *testing.T) {
	cfg := strings.Replace(validConfig, `implement_runner = "claude"`, `implement_runner = "nonexistent"`, 1)
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a configured runner")
}

func TestLoadExplicitMaxRetriesZeroIsPreserved(t *testing.T) {
	cfg := `
max_retries_marker = true

[general]
max_retries = 0

[runner.claude]
command = "claude"
`
	path := writeTestConfig(t, cfg)
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.General.MaxRetries)
}

func TestLoadNoRunnersConfigured(t *testing.T) {
	cfg := `
[general]
log_level = "info"
`
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least one [runner.<name>]")
}

func TestLoadRunnerMissingCommand(t *testing.T) {
	cfg := `
[runner.claude]
args = ["{prompt}"]
`
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "command is required")
}

func TestLoadSandboxEnabledRequiresImage(t *testing.T) {
	cfg := strings.Replace(validConfig, "[sandbox]\nenabled = false", "[sandbox]\nenabled = true", 1)
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sandbox.image is empty")
}

func TestLoadSandboxEnabledWithImage(t *testing.T) {
	cfg := strings.Replace(validConfig, "[sandbox]\nenabled = false", `[sandbox]
enabled = true
image = "ghcr.io/example/sandbox:latest"
env_passthrough = ["HOME", "PATH"]`, 1)
	path := writeTestConfig(t, cfg)
	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Sandbox.Enabled)
	require.Equal(t, "ghcr.io/example/sandbox:latest", loaded.Sandbox.Image)
	require.Equal(t, []string{"HOME", "PATH"}, loaded.Sandbox.EnvPassthrough)
}

func TestLoadInvalidMergeStrategy(t *testing.T) {
	cfg := strings.Replace(validConfig, `strategy = "no-ff"`, `strategy = "squash"`, 1)
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not supported")
}

func TestLoadNegativeMaxRetries(t *testing.T) {
	cfg := strings.Replace(validConfig, "max_retries = 2", "max_retries = -1", 1)
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "max_retries must be >= 0")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadMalformedTOML(t *testing.T) {
	path := writeTestConfig(t, "this is not [valid toml")
	_, err := Load(path)
	require.Error(t, err)
}

func TestConfigCloneIsIndependent(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	clone := cfg.Clone()
	clone.Runner["claude"] = RunnerConfig{Command: "mutated"}
	clone.Sandbox.EnvPassthrough = append(clone.Sandbox.EnvPassthrough, "EXTRA")

	require.Equal(t, "claude", cfg.Runner["claude"].Command)
	require.NotContains(t, cfg.Sandbox.EnvPassthrough, "EXTRA")
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"60s", 60 * time.Second},
		{"2m", 2 * time.Minute},
		{"1h", time.Hour},
		{"500ms", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		var d Duration
		require.NoError(t, d.UnmarshalText([]byte(tt.input)))
		require.Equal(t, tt.want, d.Duration)
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	var d Duration
	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}

func TestDurationMarshalText(t *testing.T) {
	d := Duration{Duration: 90 * time.Second}
	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1m30s", string(text))
}

func TestReloadReReadsFile(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Reload(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.General.LogLevel)
}
