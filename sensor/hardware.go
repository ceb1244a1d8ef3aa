package sensor

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/AkitaEngineering/asnip/errors"
	"github.com/AkitaEngineering/asnip/pkg/retry"
)

// Driver is the contract for a BME280-class environmental sensor chip.
// The concrete implementation (an I2C/SPI driver) lives with the host
// process; this package only consumes readings through it.
type Driver interface {
	// Temperature returns the current reading in degrees Celsius.
	Temperature() (float64, error)
	// Humidity returns the current relative humidity in percent.
	Humidity() (float64, error)
	// Pressure returns the current pressure in hPa.
	Pressure() (float64, error)
}

// Opener constructs a Driver, typically by probing a hardware bus.
type Opener func() (Driver, error)

// Device wraps an optional hardware driver behind the reader contract.
// A Device with no opener, or whose opener keeps failing, is simply not
// ready: its readers report absent and the config loader drops
// hardware-backed sensor entries.
type Device struct {
	mu     sync.RWMutex
	opener Opener
	driver Driver
	logger *slog.Logger
}

// NewDevice creates a device that will open its driver on Init.
func NewDevice(opener Opener, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{opener: opener, logger: logger}
}

// Init (re)opens the underlying driver, retrying briefly; it is called
// from agent start so a config change can pick up newly attached
// hardware. Init on a device with no opener is a no-op.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opener == nil {
		return nil
	}
	if d.driver != nil {
		return nil
	}

	err := retry.Do(ctx, retry.Quick(), func() error {
		driver, err := d.opener()
		if err != nil {
			return err
		}
		d.driver = driver
		return nil
	})
	if err != nil {
		d.logger.Error("BME280 initialization failed", "error", err)
		return errors.Wrap(errors.ErrDriverUnavailable, "Device", "Init", "driver open")
	}

	d.logger.Info("BME280 sensor initialized")
	return nil
}

// Supported reports whether this device can ever produce readings: it
// either has an open driver or an opener to create one. The config loader
// uses this to drop hardware-backed sensor entries on hosts with no bus.
func (d *Device) Supported() bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.driver != nil || d.opener != nil
}

// Ready reports whether the driver is open.
func (d *Device) Ready() bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.driver != nil
}

// get returns the open driver, or nil.
func (d *Device) get() Driver {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.driver
}

// newBME280TemperatureReader reads temperature, converting to the unit
// named by the "unit" parameter (C, F, or K; default C).
func newBME280TemperatureReader(device *Device, logger *slog.Logger) Reader {
	return func(_ context.Context, params Params) (any, bool) {
		driver := device.get()
		if driver == nil {
			logger.Warn("BME280 temperature read attempted but sensor is not initialized")
			return nil, false
		}

		tempC, err := driver.Temperature()
		if err != nil {
			logger.Error("BME280 temperature read failed", "error", err)
			return nil, false
		}

		switch strings.ToUpper(params.String("unit", "C")) {
		case "F":
			return round2(tempC*9/5 + 32), true
		case "K":
			return round2(tempC + 273.15), true
		default:
			return round2(tempC), true
		}
	}
}

// newBME280HumidityReader reads relative humidity in percent.
func newBME280HumidityReader(device *Device, logger *slog.Logger) Reader {
	return func(_ context.Context, _ Params) (any, bool) {
		driver := device.get()
		if driver == nil {
			logger.Warn("BME280 humidity read attempted but sensor is not initialized")
			return nil, false
		}

		hum, err := driver.Humidity()
		if err != nil {
			logger.Error("BME280 humidity read failed", "error", err)
			return nil, false
		}
		return round2(hum), true
	}
}

// newBME280PressureReader reads barometric pressure in hPa.
func newBME280PressureReader(device *Device, logger *slog.Logger) Reader {
	return func(_ context.Context, _ Params) (any, bool) {
		driver := device.get()
		if driver == nil {
			logger.Warn("BME280 pressure read attempted but sensor is not initialized")
			return nil, false
		}

		press, err := driver.Pressure()
		if err != nil {
			logger.Error("BME280 pressure read failed", "error", err)
			return nil, false
		}
		return round2(press), true
	}
}
