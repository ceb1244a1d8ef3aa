package sensor

import (
	"context"
	"math/rand"
)

// readSimulatedTemperature draws a uniform temperature in
// [min_temp, max_temp], rounded to two decimal places.
func readSimulatedTemperature(_ context.Context, params Params) (any, bool) {
	minTemp := params.Float("min_temp", 15.0)
	maxTemp := params.Float("max_temp", 30.0)
	if maxTemp < minTemp {
		minTemp, maxTemp = maxTemp, minTemp
	}
	return round2(minTemp + rand.Float64()*(maxTemp-minTemp)), true
}

// readSimulatedHumidity draws a uniform humidity in [min_hum, max_hum],
// rounded to two decimal places.
func readSimulatedHumidity(_ context.Context, params Params) (any, bool) {
	minHum := params.Float("min_hum", 30.0)
	maxHum := params.Float("max_hum", 70.0)
	if maxHum < minHum {
		minHum, maxHum = maxHum, minHum
	}
	return round2(minHum + rand.Float64()*(maxHum-minHum)), true
}

// readRandomValue draws a uniform integer in the inclusive range
// [min_val, max_val].
func readRandomValue(_ context.Context, params Params) (any, bool) {
	minVal := params.Int("min_val", 0)
	maxVal := params.Int("max_val", 100)
	if maxVal < minVal {
		minVal, maxVal = maxVal, minVal
	}
	return minVal + rand.Intn(maxVal-minVal+1), true
}

// readStaticValue returns the configured literal verbatim, absent when no
// value is configured.
func readStaticValue(_ context.Context, params Params) (any, bool) {
	v, ok := params["value"]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
