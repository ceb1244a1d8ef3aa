// Package collector aggregates sensor readings into broadcast payloads.
//
// Each collection cycle walks the enabled sensor configurations in order,
// invokes each sensor's reader inside a failure boundary, and assembles
// one timestamped payload stamped with the local node identity. A reader
// that fails, panics, or reports absent only costs its own key; the cycle
// always completes and always yields a payload, possibly with empty data.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/AkitaEngineering/asnip/config"
	"github.com/AkitaEngineering/asnip/sensor"
	"github.com/AkitaEngineering/asnip/transport"
)

// Payload is one aggregated snapshot of all currently readable enabled
// sensors plus node identity and timestamp. The wire form is JSON.
type Payload struct {
	SourceNum  *uint32        `json:"source_node_num"`
	SourceName string         `json:"source_node_name"`
	Timestamp  float64        `json:"timestamp"` // seconds since epoch
	Data       map[string]any `json:"data"`
}

// IdentityProvider reports the local node identity; the transport
// satisfies this.
type IdentityProvider interface {
	Self() transport.Identity
}

// Deps holds construction dependencies for a Collector.
type Deps struct {
	Registry *sensor.Registry
	Identity IdentityProvider
	Logger   *slog.Logger
}

// Collector aggregates sensor readings.
type Collector struct {
	registry *sensor.Registry
	identity IdentityProvider
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a collector.
func New(deps Deps) *Collector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		registry: deps.Registry,
		identity: deps.Identity,
		logger:   logger,
		now:      time.Now,
	}
}

// Collect runs one collection cycle over the given sensor configurations.
// Disabled entries are skipped; a failing reader is logged and its sensor
// omitted. The returned payload is never nil-valued: downstream stages
// need no null checks.
func (c *Collector) Collect(ctx context.Context, sensors []config.SensorConfig) Payload {
	data := make(map[string]any)

	for _, conf := range sensors {
		if !conf.Enabled {
			continue
		}

		reader, ok := c.registry.Lookup(conf.Type)
		if !ok {
			// Unknown types are filtered at config load; seeing one
			// here means the caller bypassed the loader.
			c.logger.Warn("sensor with unregistered type reached collector, skipping",
				"name", conf.Name, "type", conf.Type)
			continue
		}

		value, present := c.read(ctx, conf, reader)
		if present {
			data[conf.Name] = value
			c.logger.Debug("read sensor", "name", conf.Name, "value", value)
		} else {
			c.logger.Debug("sensor returned no value this cycle",
				"name", conf.Name, "type", conf.Type)
		}
	}

	identity := c.selfIdentity()
	name := identity.LongName
	if name == "" {
		name = "unknown"
	}

	if len(data) == 0 && len(sensors) > 0 {
		c.logger.Info("no sensor data collected this cycle, broadcasting node info only")
	}

	return Payload{
		SourceNum:  identity.NodeNum,
		SourceName: name,
		Timestamp:  float64(c.now().UnixNano()) / float64(time.Second),
		Data:       data,
	}
}

// read invokes one reader inside a panic boundary so a misbehaving reader
// cannot abort the cycle.
func (c *Collector) read(ctx context.Context, conf config.SensorConfig, reader sensor.Reader) (value any, present bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sensor reader panicked",
				"name", conf.Name, "type", conf.Type, "panic", r)
			value, present = nil, false
		}
	}()
	return reader(ctx, conf.Params)
}

// selfIdentity fetches the node identity, tolerating a nil provider.
func (c *Collector) selfIdentity() transport.Identity {
	if c.identity == nil {
		return transport.Identity{}
	}
	return c.identity.Self()
}
