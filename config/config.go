package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openride/devicesim/core/metrics"
	"github.com/openride/devicesim/core/sim"
	"github.com/openride/devicesim/infra/mqtt"
)

// Config is the root configuration of the simulator process.
type Config struct {
	MQTT       mqtt.Config    `json:"mqtt"`
	Fleet      FleetConfig    `json:"fleet"`
	Simulation sim.Config     `json:"simulation"`
	Metrics    metrics.Config `json:"metrics"`
}

// FleetConfig names the devices to simulate.
type FleetConfig struct {
	// Devices is a comma or space separated list of device identities.
	Devices string `json:"devices"`
}

// Validate checks that at least one device identity is configured.
func (c FleetConfig) Validate() error {
	if len(sim.ParseIdentities(c.Devices)) == 0 {
		return fmt.Errorf("at least one device identity is required")
	}
	return nil
}

// Load reads the configuration file (YAML or JSON) and applies DS_*
// environment overrides and section defaults. Validation is left to the
// caller so command-line overrides can be applied first.
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
	// Optional environment overrides
	if err := k.Load(env.Provider("DS_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ds_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Simulation.SetDefaults()
	return &cfg, nil
}

// Validate checks all sections.
func (c Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Fleet.Validate(); err != nil {
		return fmt.Errorf("fleet: %w", err)
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	return nil
}
