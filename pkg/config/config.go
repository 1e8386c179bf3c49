// Package config loads compiler settings from YAML or JSON documents.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/logger"
	"github.com/goliatone/go-tplc/pkg/optimize"
	"github.com/goliatone/go-tplc/pkg/optimize/passes"
)

// DefaultFile is the configuration file name looked up by the CLI.
const DefaultFile = "tplc.yaml"

// Config holds compiler, template and logging settings.
type Config struct {
	// Passes lists optimisation passes in execution order. An empty list
	// disables optimisation.
	Passes []string `json:"passes" yaml:"passes"`

	// Validate enables the region validator between front-end and passes.
	Validate bool `json:"validate" yaml:"validate"`

	Log       Log       `json:"log" yaml:"log"`
	Templates Templates `json:"templates" yaml:"templates"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Templates configures where units are loaded from.
type Templates struct {
	Root          string         `json:"root" yaml:"root"`
	CheckModified bool           `json:"check_modified" yaml:"check_modified"`
	Globals       map[string]any `json:"globals,omitempty" yaml:"globals,omitempty"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Passes:   passes.DefaultNames(),
		Validate: true,
		Log: Log{
			Level:  "info",
			Format: logger.FormatText,
		},
		Templates: Templates{
			Root: ".",
		},
	}
}

// Load reads and validates path from fsys.
func Load(fsys fs.FS, path string) (Config, error) {
	if fsys == nil {
		return Config{}, errors.New("config: filesystem is required")
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a JSON or YAML document on top of Default and validates the
// result. Keys absent from the document keep their default values.
func Parse(data []byte) (Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Config{}, errors.New("config: document is empty")
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		cfg = Default()
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: invalid JSON or YAML: %w", err)
		}
	}

	cfg.normalise()
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return data, nil
}

func (c *Config) normalise() {
	for i, name := range c.Passes {
		c.Passes[i] = strings.TrimSpace(name)
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Templates.Root = strings.TrimSpace(c.Templates.Root)
	if c.Templates.Root == "" {
		c.Templates.Root = "."
	}
}

// Check reports the first invalid setting.
func (c Config) Check() error {
	registry := passes.NewRegistry()
	seen := make(map[string]struct{}, len(c.Passes))
	for idx, name := range c.Passes {
		if name == "" {
			return fmt.Errorf("config: passes contains an empty entry at index %d", idx)
		}
		if !registry.Has(name) {
			return fmt.Errorf("config: unknown pass %q (available: %s)", name, strings.Join(registry.List(), ", "))
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("config: pass %q listed twice", name)
		}
		seen[name] = struct{}{}
	}

	if c.Log.Level != logger.LevelNone {
		if _, err := logger.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("config: log.level: %w", err)
		}
		if !logger.ValidFormat(c.Log.Format) {
			return fmt.Errorf("config: log.format %q must be %q or %q", c.Log.Format, logger.FormatJSON, logger.FormatText)
		}
	}
	return nil
}

// Chain resolves Passes against the built-in registry.
func (c Config) Chain() (optimize.Chain[command.Command], error) {
	chain, err := passes.NewRegistry().Resolve(c.Passes)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return chain, nil
}
