package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
service:
  name: runlet-test
history:
  path: ./runs.db
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "runlet-test" {
					t.Error("service.name not parsed")
				}
				if !strings.HasSuffix(cfg.History.Path, "runs.db") {
					t.Errorf("history.path not parsed: %q", cfg.History.Path)
				}
				if !filepath.IsAbs(cfg.History.Path) {
					t.Errorf("history.path not resolved relative to config: %q", cfg.History.Path)
				}
				// Defaults survive a partial file.
				if cfg.Service.LogLevel != "INFO" {
					t.Errorf("default log level lost: %q", cfg.Service.LogLevel)
				}
				if cfg.History.Retention != 30*24*time.Hour {
					t.Errorf("default retention lost: %v", cfg.History.Retention)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: runlet
  log_level: DEBUG
  log_format: text
engine:
  default_timeout: 90s
history:
  path: /var/lib/runlet/runs.db
  retention: 168h
api:
  enabled: true
  listen: 127.0.0.1:9000
  api_key: secret
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Engine.DefaultTimeout != 90*time.Second {
					t.Error("engine.default_timeout not parsed")
				}
				if cfg.History.Path != "/var/lib/runlet/runs.db" {
					t.Error("absolute history.path modified")
				}
				if !cfg.API.Enabled || cfg.API.Listen != "127.0.0.1:9000" || cfg.API.APIKey != "secret" {
					t.Errorf("api config not parsed: %+v", cfg.API)
				}
			},
		},
		{
			name: "env var expansion",
			yaml: `
service:
  name: runlet
history:
  path: ./runs.db
api:
  enabled: true
  listen: 127.0.0.1:9000
  api_key: ${RUNLET_TEST_API_KEY}
`,
			env: map[string]string{"RUNLET_TEST_API_KEY": "from-env"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.APIKey != "from-env" {
					t.Errorf("api_key = %q, want %q", cfg.API.APIKey, "from-env")
				}
			},
		},
		{
			name: "invalid log level rejected",
			yaml: `
service:
  name: runlet
  log_level: LOUD
history:
  path: ./runs.db
`,
			wantErr: true,
		},
		{
			name: "api enabled without listen rejected",
			yaml: `
service:
  name: runlet
history:
  path: ./runs.db
api:
  enabled: true
  listen: ""
`,
			wantErr: true,
		},
		{
			name: "negative timeout rejected",
			yaml: `
service:
  name: runlet
engine:
  default_timeout: -5s
history:
  path: ./runs.db
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
