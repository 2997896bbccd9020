package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Backend defaults
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultAppName = "agent_manager"
	DefaultUserID  = "chaospilot_user"

	DefaultServerAddr = "127.0.0.1:8080"
)

// Duration is a time.Duration written as a string ("30s", "2m") in config files.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts a duration string or an integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var seconds float64
		if err := json.Unmarshal(data, &seconds); err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = Duration(seconds * float64(time.Second))
		return nil
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		return Duration(parsed), nil
	}
	var seconds int64
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return Duration(time.Duration(seconds) * time.Second), nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

// Config is the console configuration
type Config struct {
	Backend    BackendConfig  `yaml:"backend" json:"backend"`
	Workflow   WorkflowConfig `yaml:"workflow" json:"workflow"`
	Insights   InsightsConfig `yaml:"insights" json:"insights"`
	Server     ServerConfig   `yaml:"server" json:"server"`
	DataDir    string         `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
	LogLevel   string         `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Autonomous bool           `yaml:"autonomous" json:"autonomous"`
	Monitoring bool           `yaml:"monitoring" json:"monitoring"`
}

// BackendConfig describes the agent server
type BackendConfig struct {
	BaseURL   string   `yaml:"base_url" json:"base_url"`
	AppName   string   `yaml:"app_name" json:"app_name"`
	UserID    string   `yaml:"user_id" json:"user_id"`
	Streaming bool     `yaml:"streaming" json:"streaming"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
}

// WorkflowConfig tunes the autonomous workflow engine
type WorkflowConfig struct {
	// ExecutionScale is the wall time of one estimated minute.
	ExecutionScale         Duration `yaml:"execution_scale" json:"execution_scale"`
	RequireTerminalActions bool     `yaml:"require_terminal_actions" json:"require_terminal_actions"`
}

// InsightsConfig sets the background check intervals
type InsightsConfig struct {
	MonitorInterval Duration `yaml:"monitor_interval" json:"monitor_interval"`
	PatternInterval Duration `yaml:"pattern_interval" json:"pattern_interval"`
}

// ServerConfig configures the HTTP dashboard API
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	PushInterval   Duration `yaml:"push_interval" json:"push_interval"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: DefaultBaseURL,
			AppName: DefaultAppName,
			UserID:  DefaultUserID,
			Timeout: Duration(2 * time.Minute),
		},
		Workflow: WorkflowConfig{
			ExecutionScale: Duration(time.Second),
		},
		Insights: InsightsConfig{
			MonitorInterval: Duration(30 * time.Second),
			PatternInterval: Duration(time.Minute),
		},
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			PushInterval: Duration(time.Second),
		},
		LogLevel:   "info",
		Autonomous: true,
		Monitoring: true,
	}
}

// LoadConfig reads a YAML, JSON or JSONC config file over the defaults.
// The format is picked by extension; anything other than .json/.jsonc is
// parsed as YAML.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &ConfigError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, &ConfigError{Path: path, Err: fmt.Errorf("failed to parse config file: %w", err)}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to the
// defaults when it does not
func LoadConfigOrDefault(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// applyDefaults fills fields an explicit empty value in the file cleared.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = def.Backend.BaseURL
	}
	if c.Backend.AppName == "" {
		c.Backend.AppName = def.Backend.AppName
	}
	if c.Backend.UserID == "" {
		c.Backend.UserID = def.Backend.UserID
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = def.Backend.Timeout
	}
	if c.Workflow.ExecutionScale <= 0 {
		c.Workflow.ExecutionScale = def.Workflow.ExecutionScale
	}
	if c.Insights.MonitorInterval <= 0 {
		c.Insights.MonitorInterval = def.Insights.MonitorInterval
	}
	if c.Insights.PatternInterval <= 0 {
		c.Insights.PatternInterval = def.Insights.PatternInterval
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.PushInterval <= 0 {
		c.Server.PushInterval = def.Server.PushInterval
	}
}

// Validate checks values that cannot be defaulted
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Level maps the configured log level name to a LogLevel
func (c Config) Level() LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return LogLevelDebug
	case "warn":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// EngineOptions converts the workflow section for the engine
func (c Config) EngineOptions() WorkflowEngineOptions {
	return WorkflowEngineOptions{
		ExecutionScale:         c.Workflow.ExecutionScale.Std(),
		RequireTerminalActions: c.Workflow.RequireTerminalActions,
	}
}

// InsightOptions converts the insights section for the generator
func (c Config) InsightOptions() InsightOptions {
	return InsightOptions{
		MonitorInterval: c.Insights.MonitorInterval.Std(),
		PatternInterval: c.Insights.PatternInterval.Std(),
	}
}
