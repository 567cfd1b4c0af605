package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
mqtt:
  broker: tcp://broker:1883
  qos: 1
fleet:
  devices: "V1,V2"
simulation:
  interval_seconds: 2
  seed: 42
metrics:
  sinks:
    - type: nop
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "V1,V2", cfg.Fleet.Devices)
	assert.Equal(t, 2, cfg.Simulation.IntervalSeconds)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "nop", cfg.Metrics.Sinks[0].Type)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
fleet:
  devices: V1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, 5, cfg.Simulation.IntervalSeconds)
	assert.Equal(t, 2, cfg.Simulation.BatteryEveryTicks)
	assert.Equal(t, 20, cfg.Simulation.MaintenanceEveryTicks)
	assert.InDelta(t, -6.2088, cfg.Simulation.OriginLatitude, 1e-9)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"fleet":{"devices":"V1 V2 V3"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "V1 V2 V3", cfg.Fleet.Devices)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", `x = 1`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
mqtt:
  broker: tcp://file:1883
fleet:
  devices: V1
`)
	t.Setenv("DS_MQTT__BROKER", "tcp://env:1883")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
}

func TestValidateRequiresDevices(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
mqtt:
  broker: tcp://broker:1883
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidateCadence(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
fleet:
  devices: V1
simulation:
  interval_seconds: -1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
