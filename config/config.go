// Package config loads and validates the agent's settings and sensor
// definitions from a single JSON document.
//
// Configuration is deliberately forgiving: a missing file is replaced with
// a default document, a malformed file degrades to built-in defaults, and
// an invalid sensor entry is dropped on its own without invalidating the
// rest. Nothing in this package aborts startup.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AkitaEngineering/asnip/errors"
	"github.com/AkitaEngineering/asnip/sensor"
)

const (
	// EnvConfigPath names an explicit configuration file, overriding the
	// default search locations.
	EnvConfigPath = "ASNIP_CONFIG"

	// DefaultFileName is the configuration document looked for in the
	// working directory and next to the binary.
	DefaultFileName = "asnip.json"

	// DefaultLogFile is where telemetry records are persisted.
	DefaultLogFile = "sensor_log.json"

	// DefaultBroadcastInterval is the broadcast period in seconds.
	DefaultBroadcastInterval = 30

	// MinBroadcastInterval is the floor for the broadcast period;
	// shorter configured intervals are clamped up, never rejected.
	MinBroadcastInterval = 5
)

// Registry is the subset of the sensor registry the loader needs to
// validate sensor entries.
type Registry interface {
	Has(tag string) bool
	Available(tag string) bool
}

// Settings holds the agent-wide options.
type Settings struct {
	LogFile           string `json:"log_file"`
	BroadcastInterval int    `json:"broadcast_interval"` // seconds
}

// SensorConfig defines one named sensor instance.
type SensorConfig struct {
	Name    string        `json:"name"`
	Type    string        `json:"type"`
	Enabled bool          `json:"enabled"`
	Params  sensor.Params `json:"params,omitempty"`
}

// Config is the complete agent configuration.
type Config struct {
	Settings Settings       `json:"settings"`
	Sensors  []SensorConfig `json:"sensors"`
}

// Default returns the built-in configuration used when no document can be
// loaded. The sensor set mirrors the default document written by
// CreateDefault.
func Default() *Config {
	return &Config{
		Settings: Settings{
			LogFile:           DefaultLogFile,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Sensors: defaultSensors(),
	}
}

// defaultSensors is the illustrative sensor set for a fresh install.
// Hardware and script sensors ship disabled; they need host setup first.
func defaultSensors() []SensorConfig {
	return []SensorConfig{
		{
			Name:    "cpu_temp_sim",
			Type:    sensor.TypeSimulatedTemperature,
			Enabled: true,
			Params:  sensor.Params{"min_temp": 35.0, "max_temp": 65.0, "unit": "C"},
		},
		{
			Name:    "room_humidity_sim",
			Type:    sensor.TypeSimulatedHumidity,
			Enabled: true,
			Params:  sensor.Params{"min_hum": 40.0, "max_hum": 60.0, "unit": "%"},
		},
		{
			Name:    "random_metric",
			Type:    sensor.TypeRandomValue,
			Enabled: true,
			Params:  sensor.Params{"min_val": 0, "max_val": 100},
		},
		{
			Name:    "device_status",
			Type:    sensor.TypeStaticValue,
			Enabled: true,
			Params:  sensor.Params{"value": "online"},
		},
		{
			Name:    "custom_script_output",
			Type:    sensor.TypeCustomScript,
			Enabled: false,
			Params:  sensor.Params{"script": "echo 'hello_world'", "timeout": 5},
		},
		{
			Name:    "ambient_temp_bme280",
			Type:    sensor.TypeBME280Temperature,
			Enabled: false,
			Params:  sensor.Params{"unit": "C"},
		},
		{
			Name:    "ambient_humidity_bme280",
			Type:    sensor.TypeBME280Humidity,
			Enabled: false,
			Params:  sensor.Params{"unit": "%"},
		},
		{
			Name:    "barometric_pressure_bme280",
			Type:    sensor.TypeBME280Pressure,
			Enabled: false,
			Params:  sensor.Params{"unit": "hPa"},
		},
	}
}

// ResolvePath picks the configuration file to load: the ASNIP_CONFIG
// environment variable wins, then a default-named file in the working
// directory, then one colocated with the binary. The returned path may
// not exist yet; Load creates a default document there.
func ResolvePath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}

	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}

	if exe, err := os.Executable(); err == nil {
		colocated := filepath.Join(filepath.Dir(exe), DefaultFileName)
		if _, err := os.Stat(colocated); err == nil {
			return colocated
		}
	}

	return DefaultFileName
}

// Load reads the configuration document at path, creating a default
// document when none exists, and returns the validated configuration.
// Sensor entries that fail validation against the registry are dropped
// individually. Load never fails the whole system: any unrecoverable
// problem degrades to built-in defaults.
func Load(path string, registry Registry, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Warn("configuration file not found, creating default",
			"path", path)
		if err := CreateDefault(path); err != nil {
			logger.Error("could not create default configuration", "error", err)
		}
	case err != nil:
		logger.Error("could not read configuration, using defaults",
			"path", path, "error", err)
	default:
		// Decode into a zero value: decoding into the defaults would let
		// a user entry inherit fields from the default sensor occupying
		// the same slice slot.
		loaded := &Config{}
		if err := json.Unmarshal(data, loaded); err != nil {
			logger.Error("malformed configuration document, using defaults",
				"path", path, "error", err)
		} else {
			if loaded.Sensors == nil {
				logger.Error("configuration has no sensors list, running with none",
					"path", path)
				loaded.Sensors = []SensorConfig{}
			}
			cfg = loaded
		}
	}

	cfg.normalize(logger)
	cfg.Sensors = validateSensors(cfg.Sensors, registry, logger)

	logger.Info("configuration loaded",
		"path", path,
		"log_file", cfg.Settings.LogFile,
		"broadcast_interval_s", cfg.Settings.BroadcastInterval,
		"sensors", len(cfg.Sensors))

	return cfg
}

// normalize fills absent settings and clamps the broadcast interval. An
// interval of zero means the setting was absent and takes the default; a
// configured short interval is clamped, never rejected.
func (c *Config) normalize(logger *slog.Logger) {
	if c.Settings.LogFile == "" {
		c.Settings.LogFile = DefaultLogFile
	}
	if c.Settings.BroadcastInterval == 0 {
		c.Settings.BroadcastInterval = DefaultBroadcastInterval
	} else if c.Settings.BroadcastInterval < MinBroadcastInterval {
		logger.Warn("broadcast interval is very short, clamping",
			"configured_s", c.Settings.BroadcastInterval,
			"minimum_s", MinBroadcastInterval)
		c.Settings.BroadcastInterval = MinBroadcastInterval
	}
}

// validateSensors drops invalid entries one at a time; one bad entry never
// invalidates the rest.
func validateSensors(entries []SensorConfig, registry Registry, logger *slog.Logger) []SensorConfig {
	if registry == nil {
		return entries
	}

	valid := make([]SensorConfig, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		switch {
		case entry.Name == "":
			logger.Warn("sensor entry has no name, skipping", "type", entry.Type)
		case entry.Type == "":
			logger.Warn("sensor entry has no type, skipping", "name", entry.Name)
		case seen[entry.Name]:
			logger.Warn("duplicate sensor name, skipping", "name", entry.Name)
		case !registry.Has(entry.Type):
			logger.Warn("sensor has unknown type, skipping",
				"name", entry.Name, "type", entry.Type)
		case !registry.Available(entry.Type):
			logger.Warn("sensor type requires unavailable hardware, skipping",
				"name", entry.Name, "type", entry.Type)
		default:
			seen[entry.Name] = true
			valid = append(valid, entry)
		}
	}
	return valid
}

// CreateDefault writes the default configuration document to path.
func CreateDefault(path string) error {
	cfg := Default()
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return errors.Wrap(err, "config", "CreateDefault", "marshal defaults")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "config", "CreateDefault", "write default document")
	}
	return nil
}

// EnabledSensors returns the enabled subset of the loaded sensor set, in
// configured order.
func (c *Config) EnabledSensors() []SensorConfig {
	enabled := make([]SensorConfig, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// String returns a JSON rendering, useful in logs and debugging.
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("config{unprintable: %v}", err)
	}
	return string(data)
}
