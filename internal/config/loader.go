package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. When a checksum sidecar
// (<file>.checksum) exists next to the config file, the file is verified
// against it before parsing.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if err := VerifySidecar(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	data = expandEnvVars(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", absPath, err)
	}

	// History path is resolved relative to the config file, so a config
	// directory can be relocated as a unit.
	if cfg.History.Path != "" && !filepath.IsAbs(cfg.History.Path) {
		cfg.History.Path = filepath.Join(filepath.Dir(absPath), cfg.History.Path)
	}
	if cfg.Lock.Path != "" && !filepath.IsAbs(cfg.Lock.Path) {
		cfg.Lock.Path = filepath.Join(filepath.Dir(absPath), cfg.Lock.Path)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// expandEnvVars substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envVarPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}
