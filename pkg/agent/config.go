package agent

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/deckbridge/deckd/internal/catalog"
)

// Config is the CLI-level configuration of the agent.
type Config struct {
	DataDir    string
	ConfigFile string
}

// FileConfig is the on-disk configuration (deckd.yml). Every field has a
// working default; a missing file runs the agent with defaults.
type FileConfig struct {
	Host     HostConfig    `yaml:"host"`
	HID      HIDConfig     `yaml:"hid"`
	Sessions SessionConfig `yaml:"sessions"`
	// Overrides replaces the input-code layout of a variant, keyed by
	// model tag. Intended for validating the placeholder layouts of newer
	// hardware without rebuilding the agent.
	Overrides map[string]catalog.CodeMap `yaml:"overrides"`
}

type HostConfig struct {
	URL string `yaml:"url"`
}

type HIDConfig struct {
	PollInterval string `yaml:"pollInterval"`
}

type SessionConfig struct {
	ReadTimeout       string `yaml:"readTimeout"`
	ShutdownTimeout   string `yaml:"shutdownTimeout"`
	DefaultBrightness *int   `yaml:"defaultBrightness"`
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Host: HostConfig{URL: "ws://127.0.0.1:57116"},
	}
}

func loadFileConfig(path string) (FileConfig, error) {
	cfg := defaultFileConfig()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// applyOverrides folds the configured code-map overrides into the variant
// table, re-validating each one.
func applyOverrides(table *catalog.Table, overrides map[string]catalog.CodeMap) (*catalog.Table, error) {
	for model, codes := range overrides {
		next, err := table.WithCodeMap(catalog.Model(model), codes)
		if err != nil {
			return nil, fmt.Errorf("invalid code map override for %s: %w", model, err)
		}
		table = next
	}
	return table, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
