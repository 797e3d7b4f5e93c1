// Package config loads and validates the Arborist TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root arborist.toml shape.
type Config struct {
	General General                  `toml:"general"`
	Runner  map[string]RunnerConfig  `toml:"runner"`
	Sandbox SandboxConfig            `toml:"sandbox"`
	Merge   MergeConfig              `toml:"merge"`
}

// General holds tunables shared across garden/gardener runs.
type General struct {
	TickInterval     Duration `toml:"tick_interval"`      // used by `gardener --watch` re-poll cadence
	MaxRetries       int      `toml:"max_retries"`
	ImplementTimeout Duration `toml:"implement_timeout"`
	TestTimeout      Duration `toml:"test_timeout"`
	ReviewTimeout    Duration `toml:"review_timeout"`
	LogLevel         string   `toml:"log_level"`
	LockFile         string   `toml:"lock_file"`
	ArtifactRoot     string   `toml:"artifact_root"`
	ImplementRunner  string   `toml:"implement_runner"` // key into [runner.<name>] used for the IMPLEMENT step
	ReviewRunner     string   `toml:"review_runner"`    // key into [runner.<name>] used for the REVIEW step
}

// RunnerConfig configures one named coding-agent CLI (e.g. "claude",
// "gemini", "opencode"). Command/Args follow internal/runner's
// {prompt}/{prompt_file}/{model} placeholder grammar.
type RunnerConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`
}

// SandboxConfig configures the optional devcontainer runner adapter.
type SandboxConfig struct {
	Enabled        bool     `toml:"enabled"`
	Image          string   `toml:"image"`
	Cmd            []string `toml:"cmd"`
	EnvPassthrough []string `toml:"env_passthrough"`
}

// MergeConfig configures phase-gate merging.
type MergeConfig struct {
	BaseBranch string `toml:"base_branch"`
	Strategy   string `toml:"strategy"` // currently only "no-ff" is implemented
}

// Clone returns a deep copy so callers (ConfigManager.Get) never share
// mutable state across readers.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	cloned.Runner = cloneRunnerMap(cfg.Runner)
	cloned.Sandbox.Cmd = cloneStringSlice(cfg.Sandbox.Cmd)
	cloned.Sandbox.EnvPassthrough = cloneStringSlice(cfg.Sandbox.EnvPassthrough)
	return &cloned
}

func cloneRunnerMap(in map[string]RunnerConfig) map[string]RunnerConfig {
	if in == nil {
		return nil
	}
	out := make(map[string]RunnerConfig, len(in))
	for k, v := range in {
		v.Args = cloneStringSlice(v.Args)
		out[k] = v
	}
	return out
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Load reads and validates an arborist.toml configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg, md)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Reload re-reads and re-validates path. It mirrors Load but is named to
// reflect the gardener --watch refresh path.
func Reload(path string) (*Config, error) {
	return Load(path)
}

// LoadManager reads config from path and returns an RWMutex-backed
// thread-safe manager.
func LoadManager(path string) (ConfigManager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	cfg, err := Reload(path)
	if err != nil {
		return nil, err
	}
	return NewRWMutexManager(cfg), nil
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.General.TickInterval.Duration == 0 {
		cfg.General.TickInterval.Duration = 30 * time.Second
	}
	if cfg.General.MaxRetries == 0 && !md.IsDefined("general", "max_retries") {
		cfg.General.MaxRetries = 3
	}
	if cfg.General.ImplementTimeout.Duration == 0 {
		cfg.General.ImplementTimeout.Duration = 15 * time.Minute
	}
	if cfg.General.TestTimeout.Duration == 0 {
		cfg.General.TestTimeout.Duration = 10 * time.Minute
	}
	if cfg.General.ReviewTimeout.Duration == 0 {
		cfg.General.ReviewTimeout.Duration = 10 * time.Minute
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LockFile == "" {
		cfg.General.LockFile = ".arborist.lock"
	}
	if cfg.General.ArtifactRoot == "" {
		cfg.General.ArtifactRoot = ".arborist"
	}
	if cfg.Merge.BaseBranch == "" {
		cfg.Merge.BaseBranch = "main"
	}
	if cfg.Merge.Strategy == "" {
		cfg.Merge.Strategy = "no-ff"
	}
	for name, r := range cfg.Runner {
		if r.Timeout.Duration == 0 {
			r.Timeout = cfg.General.ImplementTimeout
			cfg.Runner[name] = r
		}
	}
	if len(cfg.Runner) == 1 {
		var only string
		for name := range cfg.Runner {
			only = name
		}
		if cfg.General.ImplementRunner == "" {
			cfg.General.ImplementRunner = only
		}
		if cfg.General.ReviewRunner == "" {
			cfg.General.ReviewRunner = only
		}
	}
}

func validate(cfg *Config) error {
	if cfg.General.MaxRetries < 0 {
		return fmt.Errorf("general.max_retries must be >= 0")
	}
	if len(cfg.Runner) == 0 {
		return fmt.Errorf("at least one [runner.<name>] must be configured")
	}
	for name, r := range cfg.Runner {
		if strings.TrimSpace(r.Command) == "" {
			return fmt.Errorf("runner %q: command is required", name)
		}
	}
	if cfg.Sandbox.Enabled && strings.TrimSpace(cfg.Sandbox.Image) == "" {
		return fmt.Errorf("sandbox.enabled is true but sandbox.image is empty")
	}
	if cfg.Merge.Strategy != "no-ff" {
		return fmt.Errorf("merge.strategy %q is not supported (only \"no-ff\")", cfg.Merge.Strategy)
	}
	if cfg.General.ImplementRunner == "" {
		return fmt.Errorf("general.implement_runner must name one of the configured [runner.<name>] (ambiguous with more than one runner configured)")
	}
	if _, ok := cfg.Runner[cfg.General.ImplementRunner]; !ok {
		return fmt.Errorf("general.implement_runner %q is not a configured runner", cfg.General.ImplementRunner)
	}
	if cfg.General.ReviewRunner == "" {
		return fmt.Errorf("general.review_runner must name one of the configured [runner.<name>] (ambiguous with more than one runner configured)")
	}
	if _, ok := cfg.Runner[cfg.General.ReviewRunner]; !ok {
		return fmt.Errorf("general.review_runner %q is not a configured runner", cfg.General.ReviewRunner)
	}
	return nil
}
