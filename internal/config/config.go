// Package config loads the simulation tuning file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// Config is the tuning for one run.
type Config struct {
	Resolution         [2]float64 `yaml:"resolution"`
	BatchCapacity      int        `yaml:"batch_capacity"`
	Workers            int        `yaml:"workers"`
	MaxFiringsPerTick  int        `yaml:"max_firings_per_tick"`
	SignedTiles        bool       `yaml:"signed_tiles"`
	Center             [2]int     `yaml:"center"`
	Ticks              int        `yaml:"ticks"`
	RulesField         string     `yaml:"rules_field"`
	SubscriptionsField string     `yaml:"subscriptions_field"`
}

// Default returns the built-in tuning.
func Default() Config {
	return Config{
		Resolution:         [2]float64{world.DefaultResolution.W, world.DefaultResolution.H},
		BatchCapacity:      world.DefaultBatchCapacity,
		Workers:            0,
		MaxFiringsPerTick:  engine.DefaultMaxFirings,
		Center:             [2]int{0, 0},
		Ticks:              1,
		RulesField:         entity.DefaultFields.Rules,
		SubscriptionsField: entity.DefaultFields.Subscriptions,
	}
}

// Load overlays the file at path on Default. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills blank field names with their defaults.
func (c *Config) Normalize() {
	c.RulesField = strings.TrimSpace(c.RulesField)
	c.SubscriptionsField = strings.TrimSpace(c.SubscriptionsField)
	if c.RulesField == "" {
		c.RulesField = entity.DefaultFields.Rules
	}
	if c.SubscriptionsField == "" {
		c.SubscriptionsField = entity.DefaultFields.Subscriptions
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if !(world.Resolution{W: c.Resolution[0], H: c.Resolution[1]}).Valid() {
		errs = append(errs, fmt.Errorf("resolution must be positive, got %gx%g", c.Resolution[0], c.Resolution[1]))
	}
	if c.BatchCapacity <= 0 {
		errs = append(errs, fmt.Errorf("batch_capacity must be positive, got %d", c.BatchCapacity))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Ticks < 0 {
		errs = append(errs, fmt.Errorf("ticks must not be negative, got %d", c.Ticks))
	}
	if c.RulesField == c.SubscriptionsField {
		errs = append(errs, fmt.Errorf("rules_field and subscriptions_field must differ, both are %q", c.RulesField))
	}
	return errors.Join(errs...)
}

// Fields returns the entity field layout.
func (c Config) Fields() entity.Fields {
	return entity.Fields{Rules: c.RulesField, Subscriptions: c.SubscriptionsField}
}

// EngineOptions returns the Sim options this tuning implies.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithMaxFirings(c.MaxFiringsPerTick),
		engine.WithFields(c.Fields()),
	}
}

// WorldOptions returns the Container options this tuning implies.
func (c Config) WorldOptions() []world.Option {
	return []world.Option{
		world.WithResolution(world.Resolution{W: c.Resolution[0], H: c.Resolution[1]}),
		world.WithBatchCapacity(c.BatchCapacity),
		world.WithWorkers(c.Workers),
		world.WithSignedTiles(c.SignedTiles),
	}
}
