package sensor

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(RegistryDeps{Logger: slog.Default()})
}

func TestParams_Accessors(t *testing.T) {
	p := Params{
		"f":   12.5,
		"i":   float64(42), // JSON numbers decode as float64
		"s":   "hello",
		"sec": float64(3),
	}

	assert.Equal(t, 12.5, p.Float("f", 0))
	assert.Equal(t, 1.0, p.Float("missing", 1.0))
	assert.Equal(t, 42, p.Int("i", 0))
	assert.Equal(t, 7, p.Int("missing", 7))
	assert.Equal(t, "hello", p.String("s", ""))
	assert.Equal(t, "d", p.String("missing", "d"))
	assert.Equal(t, float64(3e9), float64(p.Duration("sec", 0)))
}

func TestSimulatedTemperature_Range(t *testing.T) {
	params := Params{"min_temp": 10.0, "max_temp": 20.0}

	for i := 0; i < 100; i++ {
		v, ok := readSimulatedTemperature(context.Background(), params)
		require.True(t, ok)
		temp := v.(float64)
		assert.GreaterOrEqual(t, temp, 10.0)
		assert.LessOrEqual(t, temp, 20.0)
		// Two decimal places
		assert.InDelta(t, temp, float64(int(temp*100))/100, 1e-9)
	}
}

func TestSimulatedHumidity_Defaults(t *testing.T) {
	v, ok := readSimulatedHumidity(context.Background(), Params{})
	require.True(t, ok)
	hum := v.(float64)
	assert.GreaterOrEqual(t, hum, 30.0)
	assert.LessOrEqual(t, hum, 70.0)
}

func TestRandomValue_InclusiveRange(t *testing.T) {
	params := Params{"min_val": float64(1), "max_val": float64(3)}

	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		v, ok := readRandomValue(context.Background(), params)
		require.True(t, ok)
		n := v.(int)
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, 3)
		seen[n] = true
	}
	// Both endpoints of the inclusive range should show up.
	assert.True(t, seen[1], "lower bound never drawn")
	assert.True(t, seen[3], "upper bound never drawn")
}

func TestStaticValue(t *testing.T) {
	v, ok := readStaticValue(context.Background(), Params{"value": "online"})
	require.True(t, ok)
	assert.Equal(t, "online", v)

	v, ok = readStaticValue(context.Background(), Params{"value": float64(17)})
	require.True(t, ok)
	assert.Equal(t, float64(17), v)

	_, ok = readStaticValue(context.Background(), Params{})
	assert.False(t, ok)

	_, ok = readStaticValue(context.Background(), Params{"value": nil})
	assert.False(t, ok)
}

func TestRegistry_BuiltinTypes(t *testing.T) {
	r := testRegistry(t)

	for _, tag := range []string{
		TypeSimulatedTemperature,
		TypeSimulatedHumidity,
		TypeRandomValue,
		TypeStaticValue,
		TypeCustomScript,
		TypeBME280Temperature,
		TypeBME280Humidity,
		TypeBME280Pressure,
	} {
		assert.True(t, r.Has(tag), "missing builtin %s", tag)
	}
	assert.False(t, r.Has("unknown_type"))
}

func TestRegistry_Register(t *testing.T) {
	r := testRegistry(t)

	custom := func(_ context.Context, _ Params) (any, bool) { return 1, true }
	require.NoError(t, r.Register("my_sensor", custom))
	assert.True(t, r.Has("my_sensor"))

	assert.Error(t, r.Register("my_sensor", custom), "duplicate tag must be rejected")
	assert.Error(t, r.Register("", custom))
	assert.Error(t, r.Register("nil_reader", nil))
}

func TestRegistry_HardwareAvailability(t *testing.T) {
	// No device: tags known, but unavailable.
	r := testRegistry(t)
	assert.True(t, r.Has(TypeBME280Temperature))
	assert.False(t, r.Available(TypeBME280Temperature))
	assert.True(t, r.Available(TypeSimulatedTemperature))
	assert.False(t, r.Available("unknown_type"))

	// Device with an opener: available even before Init.
	device := NewDevice(func() (Driver, error) { return &fakeDriver{}, nil }, slog.Default())
	r = NewRegistry(RegistryDeps{Device: device, Logger: slog.Default()})
	assert.True(t, r.Available(TypeBME280Pressure))
}
