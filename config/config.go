// Package config loads and validates the controller configuration from a
// JSON or YAML file, with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bvweerd/battery-controller/core/balancer"
	"github.com/bvweerd/battery-controller/core/battery"
	coremetrics "github.com/bvweerd/battery-controller/core/metrics"
	"github.com/bvweerd/battery-controller/core/model"
	"github.com/bvweerd/battery-controller/core/optimizer"
	"github.com/bvweerd/battery-controller/infra/mqtt"
)

// Config is the full controller configuration.
type Config struct {
	Battery   battery.Config     `json:"battery"`
	Optimizer optimizer.Config   `json:"optimizer"`
	Balancer  balancer.Config    `json:"balancer"`
	Control   ControlConfig      `json:"control"`
	MQTT      mqtt.Config        `json:"mqtt"`
	Metrics   coremetrics.Config `json:"metrics"`
	Forecast  ForecastConfig     `json:"forecast"`
	// StateFile is where the last SoC and schedule survive restarts.
	StateFile string `json:"state_file"`
}

// ControlConfig selects the control mode and the loop cadences.
type ControlConfig struct {
	Mode             string        `json:"mode"`
	PlanningInterval time.Duration `json:"planning_interval"`
	TacticalInterval time.Duration `json:"tactical_interval"`
}

// SetDefaults applies the standard cadences and the hybrid mode.
func (c *ControlConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = model.ControlHybrid.String()
	}
	if c.PlanningInterval == 0 {
		c.PlanningInterval = 15 * time.Minute
	}
	if c.TacticalInterval == 0 {
		c.TacticalInterval = 5 * time.Second
	}
}

// Validate checks the mode and the cadences.
func (c ControlConfig) Validate() error {
	if _, ok := model.ParseControlMode(c.Mode); !ok {
		return fmt.Errorf("%w: unknown control mode %q", model.ErrConfig, c.Mode)
	}
	if c.PlanningInterval <= 0 || c.TacticalInterval <= 0 {
		return fmt.Errorf("%w: loop intervals must be positive", model.ErrConfig)
	}
	if c.TacticalInterval >= c.PlanningInterval {
		return fmt.Errorf("%w: tactical interval %s must be shorter than planning interval %s",
			model.ErrConfig, c.TacticalInterval, c.PlanningInterval)
	}
	return nil
}

// ControlMode returns the parsed mode.
func (c ControlConfig) ControlMode() model.ControlMode {
	mode, _ := model.ParseControlMode(c.Mode)
	return mode
}

// ForecastConfig points at the horizon forecast document.
type ForecastConfig struct {
	File string `json:"file"`
	// StepMinutes resamples the document to this cadence when non-zero.
	StepMinutes int `json:"step_minutes"`
}

// Validate checks the forecast source.
func (c ForecastConfig) Validate() error {
	if c.File == "" {
		return fmt.Errorf("%w: forecast file is required", model.ErrConfig)
	}
	if c.StepMinutes < 0 {
		return fmt.Errorf("%w: forecast step_minutes must not be negative", model.ErrConfig)
	}
	return nil
}

// Load reads the configuration file at path. Environment variables with
// the BC_ prefix override file values, with __ as the section separator
// (BC_MQTT__BROKER overrides mqtt.broker).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("BC_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "bc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Battery.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Balancer.SetDefaults()
	c.Control.SetDefaults()
	c.MQTT.SetDefaults()
	if c.StateFile == "" {
		c.StateFile = "state.json"
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Battery.Validate(); err != nil {
		return err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}
	if err := c.Balancer.Validate(); err != nil {
		return err
	}
	if err := c.Control.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	return c.Forecast.Validate()
}
