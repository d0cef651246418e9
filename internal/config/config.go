// Package config loads decidersim settings from YAML and the environment.
// Order: defaults -> YAML file -> DECIDERSIM_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/decider/internal/logging"
	"github.com/talgya/decider/internal/overlay"
)

// DefaultFile is read by Load when no path is given and it exists.
const DefaultFile = "decidersim.yaml"

// Config holds every decidersim setting.
type Config struct {
	Simulation  SimulationConfig  `yaml:"simulation" json:"simulation"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	API         APIConfig         `yaml:"api" json:"api"`
}

// SimulationConfig sizes the village and paces the tick loop.
type SimulationConfig struct {
	Seed   int64 `yaml:"seed" json:"seed"`
	Agents int   `yaml:"agents" json:"agents"`
	// Radius of the hex world around the village centre.
	Radius int `yaml:"radius" json:"radius"`

	TickInterval Duration `yaml:"tick_interval" json:"tick_interval"`
	// Speed multiplies the tick rate; 0 starts paused.
	Speed float64 `yaml:"speed" json:"speed"`
	// DT is the sim time passed to every decider per tick.
	DT float64 `yaml:"dt" json:"dt"`
	// MaxTicks stops the run after that many ticks; 0 runs until signalled.
	MaxTicks uint64 `yaml:"max_ticks" json:"max_ticks"`

	// DebugDisplay is the overlay mode for villager deciders:
	// "none", "minimized" or "full".
	DebugDisplay string `yaml:"debug_display" json:"debug_display"`
}

// PersistenceConfig controls the SQLite save file.
type PersistenceConfig struct {
	Path           string `yaml:"path" json:"path"`
	SaveEveryTicks uint64 `yaml:"save_every_ticks" json:"save_every_ticks"`
}

// LoggingConfig controls operational logs and decision traces.
type LoggingConfig struct {
	// Level is "info", "debug" or "trace". Decision traces are written at
	// debug and trace.
	Level       string `yaml:"level" json:"level"`
	DecisionDir string `yaml:"decision_dir" json:"decision_dir"`
}

// APIConfig controls the HTTP API. Port 0 disables it.
type APIConfig struct {
	Port int `yaml:"port" json:"port"`
	// AdminKey enables POST endpoints. Supports ${VAR} syntax.
	AdminKey string `yaml:"admin_key,omitempty" json:"admin_key,omitempty"`
	// ForcesPerMinute limits admin force requests per client IP.
	ForcesPerMinute int `yaml:"forces_per_minute" json:"forces_per_minute"`
}

// RedactedAdminKey masks the admin key for display.
func (c APIConfig) RedactedAdminKey() string {
	if c.AdminKey == "" {
		return ""
	}
	return "(set)"
}

// Duration is a time.Duration that reads and writes YAML as "1s", "250ms".
type Duration time.Duration

// MarshalJSON writes the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:         42,
			Agents:       40,
			Radius:       8,
			TickInterval: Duration(time.Second),
			Speed:        1,
			DT:           1,
			DebugDisplay: "none",
		},
		Persistence: PersistenceConfig{
			Path:           "data/decidersim.db",
			SaveEveryTicks: 1440,
		},
		Logging: LoggingConfig{
			Level:       "info",
			DecisionDir: "data",
		},
		API: APIConfig{
			Port:            8080,
			ForcesPerMinute: 10,
		},
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists)
// over the defaults and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.API.AdminKey = expandEnvVars(cfg.API.AdminKey)
	return cfg, nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	s := c.Simulation
	if s.Agents < 0 {
		errs = append(errs, fmt.Errorf("agents must be non-negative, got %d", s.Agents))
	}
	if s.Radius < 0 {
		errs = append(errs, fmt.Errorf("radius must be non-negative, got %d", s.Radius))
	}
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %v", s.TickInterval.D()))
	}
	if s.Speed < 0 {
		errs = append(errs, fmt.Errorf("speed must be non-negative, got %g", s.Speed))
	}
	if s.DT <= 0 {
		errs = append(errs, fmt.Errorf("dt must be positive, got %g", s.DT))
	}
	if _, err := overlay.ParseDisplayMode(s.DebugDisplay); err != nil {
		errs = append(errs, err)
	}

	if c.Persistence.Path == "" {
		errs = append(errs, errors.New("persistence path must be set"))
	}

	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", c.Logging.Level))
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api port out of range: %d", c.API.Port))
	}
	if c.API.ForcesPerMinute < 0 {
		errs = append(errs, fmt.Errorf("forces_per_minute must be non-negative, got %d", c.API.ForcesPerMinute))
	}
	return errors.Join(errs...)
}

// DisplayMode returns the parsed overlay mode. Invalid values yield none;
// Validate reports them.
func (c *Config) DisplayMode() overlay.DisplayMode {
	m, _ := overlay.ParseDisplayMode(c.Simulation.DebugDisplay)
	return m
}

// DecisionLogger opens the decision trace configured by the logging section.
func (c *Config) DecisionLogger() *logging.DecisionLogger {
	return logging.NewDecisionLogger(c.Logging.DecisionDir, c.Logging.Level)
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	unsigned := func(key string, dst *uint64) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	if v := os.Getenv("DECIDERSIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DECIDERSIM_SEED: %w", err))
		} else {
			cfg.Simulation.Seed = n
		}
	}
	integer("DECIDERSIM_AGENTS", &cfg.Simulation.Agents)
	integer("DECIDERSIM_RADIUS", &cfg.Simulation.Radius)
	if v := os.Getenv("DECIDERSIM_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DECIDERSIM_TICK_INTERVAL: %w", err))
		} else {
			cfg.Simulation.TickInterval = Duration(d)
		}
	}
	float("DECIDERSIM_SPEED", &cfg.Simulation.Speed)
	float("DECIDERSIM_DT", &cfg.Simulation.DT)
	unsigned("DECIDERSIM_MAX_TICKS", &cfg.Simulation.MaxTicks)
	str("DECIDERSIM_DEBUG_DISPLAY", &cfg.Simulation.DebugDisplay)

	str("DECIDERSIM_DB_PATH", &cfg.Persistence.Path)
	unsigned("DECIDERSIM_SAVE_EVERY", &cfg.Persistence.SaveEveryTicks)

	str("DECIDERSIM_LOG_LEVEL", &cfg.Logging.Level)
	str("DECIDERSIM_DECISION_DIR", &cfg.Logging.DecisionDir)

	integer("DECIDERSIM_API_PORT", &cfg.API.Port)
	str("DECIDERSIM_ADMIN_KEY", &cfg.API.AdminKey)

	return errors.Join(errs...)
}

// expandEnvVars expands ${VAR} patterns with environment values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
