package sensor

import (
	"fmt"
	"log/slog"
	"sort"
)

// Sensor type tags recognized by the default registry.
const (
	TypeSimulatedTemperature = "simulated_temperature"
	TypeSimulatedHumidity    = "simulated_humidity"
	TypeRandomValue          = "random_value"
	TypeStaticValue          = "static_value"
	TypeCustomScript         = "custom_script"
	TypeBME280Temperature    = "bme280_temperature"
	TypeBME280Humidity       = "bme280_humidity"
	TypeBME280Pressure       = "bme280_pressure"
)

// Registry maps sensor type tags to readers. It is built explicitly at
// startup and read-only afterward; the collector and the configuration
// loader only ever look readers up.
type Registry struct {
	readers map[string]Reader
	device  *Device
	logger  *slog.Logger
}

// RegistryDeps holds construction dependencies for a registry.
type RegistryDeps struct {
	// Device is the BME280 environmental sensor, nil when the host has
	// no hardware bus. The bme280_* readers stay registered either way
	// so the config loader can tell "unknown type" from "driver
	// unavailable".
	Device *Device
	Logger *slog.Logger
}

// NewRegistry builds a registry holding all built-in readers.
func NewRegistry(deps RegistryDeps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		readers: make(map[string]Reader),
		device:  deps.Device,
		logger:  logger,
	}

	r.readers[TypeSimulatedTemperature] = readSimulatedTemperature
	r.readers[TypeSimulatedHumidity] = readSimulatedHumidity
	r.readers[TypeRandomValue] = readRandomValue
	r.readers[TypeStaticValue] = readStaticValue
	r.readers[TypeCustomScript] = newScriptReader(logger)

	r.readers[TypeBME280Temperature] = newBME280TemperatureReader(deps.Device, logger)
	r.readers[TypeBME280Humidity] = newBME280HumidityReader(deps.Device, logger)
	r.readers[TypeBME280Pressure] = newBME280PressureReader(deps.Device, logger)

	return r
}

// Register adds a reader under a new type tag. Registration is only valid
// during startup, before the registry is shared with the collector.
func (r *Registry) Register(tag string, reader Reader) error {
	if tag == "" {
		return fmt.Errorf("sensor type tag cannot be empty")
	}
	if reader == nil {
		return fmt.Errorf("reader for %q cannot be nil", tag)
	}
	if _, exists := r.readers[tag]; exists {
		return fmt.Errorf("sensor type %q already registered", tag)
	}
	r.readers[tag] = reader
	return nil
}

// Lookup returns the reader for a type tag.
func (r *Registry) Lookup(tag string) (Reader, bool) {
	reader, ok := r.readers[tag]
	return reader, ok
}

// Has reports whether a type tag is registered.
func (r *Registry) Has(tag string) bool {
	_, ok := r.readers[tag]
	return ok
}

// Available reports whether a registered type can currently produce
// values. Hardware-backed types are unavailable until their driver is up;
// every other registered type is always available.
func (r *Registry) Available(tag string) bool {
	if !r.Has(tag) {
		return false
	}
	if isHardwareType(tag) {
		return r.device.Supported()
	}
	return true
}

// Device returns the hardware device backing the bme280_* readers, nil
// when the registry was built without one.
func (r *Registry) Device() *Device {
	return r.device
}

// Types returns all registered type tags, sorted.
func (r *Registry) Types() []string {
	tags := make([]string, 0, len(r.readers))
	for tag := range r.readers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// isHardwareType reports whether a tag names a hardware-backed reader.
func isHardwareType(tag string) bool {
	switch tag {
	case TypeBME280Temperature, TypeBME280Humidity, TypeBME280Pressure:
		return true
	}
	return false
}
