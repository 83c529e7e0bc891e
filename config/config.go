// Package config defines the Foreman application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// or plain integers interpreted as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level Foreman configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Executor ExecutorConfig `json:"executor" yaml:"executor"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Runner   RunnerConfig   `json:"runner" yaml:"runner"`
	Health   HealthConfig   `json:"health" yaml:"health"`
	DataDir  string         `json:"data_dir" yaml:"data_dir"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9191"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// ExecutorConfig controls the autonomous control loop.
type ExecutorConfig struct {
	TaskTimeout      Duration `json:"task_timeout" yaml:"task_timeout"`
	IterationDelay   Duration `json:"iteration_delay" yaml:"iteration_delay"`
	WatchdogInterval Duration `json:"watchdog_interval" yaml:"watchdog_interval"`
	HealthInterval   Duration `json:"health_interval" yaml:"health_interval"`
	TestGate         bool     `json:"test_gate" yaml:"test_gate"`
	BuildGate        bool     `json:"build_gate" yaml:"build_gate"`
	AutoRecovery     bool     `json:"auto_recovery" yaml:"auto_recovery"`
}

// ProviderConfig selects and configures the code-generation backend.
type ProviderConfig struct {
	Name   string `json:"name" yaml:"name"` // "mock" or "anthropic"
	APIKey string `json:"api_key,omitempty" yaml:"api_key"`
	Model  string `json:"model,omitempty" yaml:"model"`
}

// RunnerConfig controls where builds and tests execute.
type RunnerConfig struct {
	Mode         string `json:"mode" yaml:"mode"` // "local" or "docker"
	WorkDir      string `json:"work_dir" yaml:"work_dir"`
	BuildCommand string `json:"build_command" yaml:"build_command"`
	TestCommand  string `json:"test_command" yaml:"test_command"`
	Image        string `json:"image,omitempty" yaml:"image"` // docker mode only
}

// HealthConfig controls the health monitor.
type HealthConfig struct {
	Interval     Duration `json:"interval" yaml:"interval"`
	ProbeURL     string   `json:"probe_url,omitempty" yaml:"probe_url"`
	ProbeTimeout Duration `json:"probe_timeout" yaml:"probe_timeout"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9191",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		Executor: ExecutorConfig{
			TaskTimeout:      Duration(5 * time.Minute),
			IterationDelay:   Duration(2 * time.Second),
			WatchdogInterval: Duration(30 * time.Second),
			HealthInterval:   Duration(15 * time.Second),
			TestGate:         true,
			BuildGate:        true,
			AutoRecovery:     true,
		},
		Provider: ProviderConfig{
			Name: "mock",
		},
		Runner: RunnerConfig{
			Mode:         "local",
			WorkDir:      ".",
			BuildCommand: "go build ./...",
			TestCommand:  "go test ./...",
			Image:        "golang:1.24",
		},
		Health: HealthConfig{
			Interval:     Duration(30 * time.Second),
			ProbeTimeout: Duration(5 * time.Second),
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
