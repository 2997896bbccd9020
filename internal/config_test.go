package internal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chaospilot/incident-console/testutil"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig_YAML(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	path := testutil.WriteFile(t, dir, "config.yaml", []byte(`
backend:
  base_url: http://agents.internal:9000
  streaming: true
  timeout: 45s
workflow:
  execution_scale: 100ms
  require_terminal_actions: true
insights:
  monitor_interval: 10
monitoring: false
log_level: debug
`))

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Backend.BaseURL != "http://agents.internal:9000" || !cfg.Backend.Streaming {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Backend.AppName != DefaultAppName || cfg.Backend.UserID != DefaultUserID {
		t.Errorf("unset backend fields lost their defaults: %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout.Std() != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Backend.Timeout)
	}
	if opts := cfg.EngineOptions(); opts.ExecutionScale != 100*time.Millisecond || !opts.RequireTerminalActions {
		t.Errorf("EngineOptions() = %+v", opts)
	}
	if opts := cfg.InsightOptions(); opts.MonitorInterval != 10*time.Second || opts.PatternInterval != time.Minute {
		t.Errorf("InsightOptions() = %+v", opts)
	}
	if !cfg.Autonomous || cfg.Monitoring {
		t.Errorf("Autonomous/Monitoring = %v/%v", cfg.Autonomous, cfg.Monitoring)
	}
	if cfg.Level() != LogLevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
}

func TestLoadConfig_JSONC(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	path := testutil.WriteFile(t, dir, "config.jsonc", []byte(`{
  // local agent server
  "backend": {"base_url": "https://agents.example.com", "app_name": "triage"},
  "server": {"addr": ":9090", "push_interval": 2.5,},
  /* trailing commas and comments are fine */
  "monitoring": true,
}`))

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Backend.AppName != "triage" || cfg.Server.Addr != ":9090" || !cfg.Monitoring {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Server.PushInterval.Std() != 2500*time.Millisecond {
		t.Errorf("PushInterval = %v", cfg.Server.PushInterval)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad yaml", "bad.yaml", "backend: [unclosed"},
		{"bad duration", "dur.yaml", "backend:\n  timeout: soonish\n"},
		{"bad url", "url.yaml", "backend:\n  base_url: localhost:8000\n"},
		{"bad log level", "lvl.json", `{"log_level": "loud"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, dir, tt.file, []byte(tt.content))
			_, err := LoadConfig(path)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("LoadConfig() error = %v, want *ConfigError", err)
			}
			if cfgErr.Path != path {
				t.Errorf("ConfigError.Path = %q", cfgErr.Path)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadConfig() of a missing file should fail")
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	cfg, err := LoadConfigOrDefault(filepath.Join(testutil.CreateTempDir(t), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOrDefault() error = %v", err)
	}
	if cfg.Backend.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(InsightsConfig{MonitorInterval: Duration(90 * time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	var back InsightsConfig
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if back.MonitorInterval.Std() != 90*time.Second {
		t.Errorf("decoded %v from %s", back.MonitorInterval, out)
	}
}
