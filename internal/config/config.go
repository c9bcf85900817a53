// Package config handles application configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/alienxp03/oraculum/internal/gateway"
	"github.com/alienxp03/oraculum/internal/simulation"
	"github.com/alienxp03/oraculum/internal/skill"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: ORACULUM_BACKEND__TIMEOUT=15m sets backend.timeout.
const EnvPrefix = "ORACULUM_"

// Backend modes.
const (
	ModePipe = "pipe"
	ModeHTTP = "http"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Backend    BackendConfig    `koanf:"backend" yaml:"backend"`
	Simulation SimulationConfig `koanf:"simulation" yaml:"simulation"`
	Skills     SkillsConfig     `koanf:"skills" yaml:"skills"`
	Telemetry  TelemetryConfig  `koanf:"telemetry" yaml:"telemetry"`
	Log        LogConfig        `koanf:"log" yaml:"log"`
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Port int `koanf:"port" yaml:"port"`
}

// BackendConfig describes how to reach the inference backend.
type BackendConfig struct {
	Mode              string        `koanf:"mode" yaml:"mode"` // pipe or http
	Command           string        `koanf:"command" yaml:"command"`
	Args              []string      `koanf:"args" yaml:"args,omitempty"`
	URL               string        `koanf:"url" yaml:"url,omitempty"`
	HealthURL         string        `koanf:"health_url" yaml:"health_url,omitempty"`
	Timeout           time.Duration `koanf:"timeout" yaml:"timeout"`
	StartupTimeout    time.Duration `koanf:"startup_timeout" yaml:"startup_timeout"`
	HandshakeAttempts int           `koanf:"handshake_attempts" yaml:"handshake_attempts"`
}

// SimulationConfig tunes job execution.
type SimulationConfig struct {
	Workers          int           `koanf:"workers" yaml:"workers"`
	Rounds           int           `koanf:"rounds" yaml:"rounds"`
	MaxTokens        int           `koanf:"max_tokens" yaml:"max_tokens"`
	HistoryWindow    int           `koanf:"history_window" yaml:"history_window"`
	MaxHistoryTokens int           `koanf:"max_history_tokens" yaml:"max_history_tokens"`
	SnippetLength    int           `koanf:"snippet_length" yaml:"snippet_length"`
	MaxRetries       int           `koanf:"max_retries" yaml:"max_retries"`
	RetryBackoff     time.Duration `koanf:"retry_backoff" yaml:"retry_backoff"`
	DefaultAgents    int           `koanf:"default_agents" yaml:"default_agents"`
	Research         bool          `koanf:"research" yaml:"research"`
	RoundDelay       time.Duration `koanf:"round_delay" yaml:"round_delay"`
}

// SkillsConfig holds optional skill settings.
type SkillsConfig struct {
	WebScout WebScoutConfig `koanf:"web_scout" yaml:"web_scout"`
}

// WebScoutConfig points at the crawler service.
type WebScoutConfig struct {
	Enabled bool          `koanf:"enabled" yaml:"enabled"`
	URL     string        `koanf:"url" yaml:"url"`
	Target  string        `koanf:"target" yaml:"target"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled"`
	ServiceName string `koanf:"service_name" yaml:"service_name"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // json or text
}

// Default returns the default configuration.
func Default() *Config {
	sim := simulation.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Backend: BackendConfig{
			Mode:              ModePipe,
			Command:           "python3",
			Args:              []string{"python_bridge/server.py"},
			Timeout:           gateway.DefaultTimeout,
			StartupTimeout:    5 * time.Minute,
			HandshakeAttempts: 120,
		},
		Simulation: SimulationConfig{
			Workers:          sim.Workers,
			Rounds:           sim.Rounds,
			MaxTokens:        sim.MaxTokens,
			HistoryWindow:    sim.HistoryWindow,
			MaxHistoryTokens: sim.MaxHistoryTokens,
			SnippetLength:    sim.SnippetLength,
			MaxRetries:       sim.MaxRetries,
			RetryBackoff:     sim.RetryBackoff,
			DefaultAgents:    sim.DefaultAgents,
			Research:         sim.Research,
			RoundDelay:       sim.RoundDelay,
		},
		Skills: SkillsConfig{
			WebScout: WebScoutConfig{
				URL:     skill.DefaultScoutURL,
				Target:  skill.DefaultScoutTarget,
				Timeout: skill.DefaultScoutTimeout,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "oraculum",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom layers defaults, the YAML file at path (if any), a .env file in
// the working directory and ORACULUM_ environment variables, in that order.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Ignoring unreadable .env file", "error", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case ModePipe:
		if c.Backend.Command == "" {
			return fmt.Errorf("backend.command is required in pipe mode")
		}
	case ModeHTTP:
		if !gateway.IsHTTPURL(c.Backend.URL) {
			return fmt.Errorf("backend.url must be an http(s) url in http mode, got %q", c.Backend.URL)
		}
	default:
		return fmt.Errorf("unknown backend.mode %q (want %s or %s)", c.Backend.Mode, ModePipe, ModeHTTP)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// SimulationSettings converts the simulation section for the orchestrator.
func (c *Config) SimulationSettings() simulation.Config {
	s := c.Simulation
	return simulation.Config{
		Workers:          s.Workers,
		Rounds:           s.Rounds,
		MaxTokens:        s.MaxTokens,
		HistoryWindow:    s.HistoryWindow,
		MaxHistoryTokens: s.MaxHistoryTokens,
		SnippetLength:    s.SnippetLength,
		MaxRetries:       s.MaxRetries,
		RetryBackoff:     s.RetryBackoff,
		DefaultAgents:    s.DefaultAgents,
		Research:         s.Research,
		RoundDelay:       s.RoundDelay,
	}
}

// CreateSkills builds the skill registry, adding web_scout when enabled.
func (c *Config) CreateSkills(backend skill.Backend) *skill.Registry {
	var scout *skill.Scout
	if ws := c.Skills.WebScout; ws.Enabled {
		scout = skill.NewScout(skill.ScoutConfig{URL: ws.URL, Target: ws.Target, Timeout: ws.Timeout})
	}
	return skill.Defaults(backend, scout)
}

// OpenGateway starts or dials the configured backend and wraps it in a
// Gateway. The caller owns the result and must Close it.
func (c *Config) OpenGateway(ctx context.Context, logger *slog.Logger) (*gateway.Gateway, error) {
	var (
		t   gateway.Transport
		err error
	)
	switch c.Backend.Mode {
	case ModeHTTP:
		t, err = gateway.DialHTTP(ctx, gateway.HTTPConfig{
			URL:               c.Backend.URL,
			HealthURL:         c.Backend.HealthURL,
			HandshakeAttempts: c.Backend.HandshakeAttempts,
			Logger:            logger,
		})
	default:
		t, err = gateway.StartPipe(ctx, gateway.PipeConfig{
			Command:           c.Backend.Command,
			Args:              c.Backend.Args,
			StartupTimeout:    c.Backend.StartupTimeout,
			HandshakeAttempts: c.Backend.HandshakeAttempts,
			Logger:            logger,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start inference backend: %w", err)
	}
	return gateway.New(t, gateway.WithTimeout(c.Backend.Timeout), gateway.WithLogger(logger)), nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "oraculum.yaml"
	}
	return filepath.Join(home, ".oraculum", "config.yaml")
}

// GenerateExample generates an example configuration file.
func GenerateExample() string {
	example := `# oraculum configuration file
# Place this file at ~/.oraculum/config.yaml
# Every key can be overridden with ORACULUM_<SECTION>__<KEY>, e.g.
# ORACULUM_BACKEND__TIMEOUT=15m

server:
  port: 8080

backend:
  mode: pipe                # pipe (spawn a worker process) or http
  command: python3
  args: ["python_bridge/server.py"]
  url: ""                   # http mode, e.g. http://127.0.0.1:8001/infer
  health_url: ""            # http mode, polled until ready
  timeout: 10m              # per request round trip
  startup_timeout: 5m
  handshake_attempts: 120

simulation:
  workers: 8                # concurrent prompt workers per batch
  rounds: 3                 # focus group rounds
  max_tokens: 600           # per focus group turn
  history_window: 8         # transcript lines shown to each agent
  max_history_tokens: 1500
  snippet_length: 60        # characters quoted by the anti-echo directive
  max_retries: 0            # retries for timed-out calls only
  retry_backoff: 1s
  default_agents: 5
  research: true            # gather market voices and facts before a job
  round_delay: 1500ms

skills:
  web_scout:
    enabled: false
    url: http://127.0.0.1:8000/perceive
    target: https://scrapeme.live/shop
    timeout: 60s

telemetry:
  enabled: false            # print spans to stdout
  service_name: oraculum

log:
  level: info               # debug, info, warn, error
  format: json              # json or text
`
	return example
}
