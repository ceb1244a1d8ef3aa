// Package sensor provides the reader registry and the built-in sensor
// readers.
//
// A reader is a pure function of its configured parameters: it returns a
// value and true, or false when no value is available this cycle ("absent").
// Readers never return errors; a sensor that cannot produce a value is
// simply left out of the payload. The registry maps configuration type
// tags to readers and is fixed once built - adding a sensor type means
// registering a new reader at startup, not editing the config file.
package sensor

import (
	"context"
	"math"
	"time"
)

// Params holds one sensor's configuration parameters as decoded from JSON.
type Params map[string]any

// Float returns the named parameter as float64, or def when absent or not
// numeric. JSON numbers decode as float64; integers are accepted too.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// Int returns the named parameter as int, truncating float values.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

// String returns the named parameter as string, or def when absent or not
// a string.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Duration returns the named parameter, given in whole seconds, as a
// time.Duration.
func (p Params) Duration(key string, def time.Duration) time.Duration {
	if v, ok := p[key]; ok {
		switch n := v.(type) {
		case float64:
			return time.Duration(n * float64(time.Second))
		case int:
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Reader produces one sensor value. The boolean result is false when the
// reader has no value this cycle; such sensors are omitted from the
// payload rather than reported as errors.
type Reader func(ctx context.Context, params Params) (any, bool)

// round2 rounds to two decimal places, the precision all numeric readers
// report at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
