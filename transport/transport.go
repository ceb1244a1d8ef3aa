// Package transport defines the contract between the telemetry agent and
// the mesh network stack that actually moves bytes between nodes.
//
// The agent consumes a transport; it never implements radio framing,
// routing, or acknowledgment itself. Any implementation that can deliver
// application-port-addressed byte payloads and report the local node
// identity satisfies the contract. The package ships an in-memory
// Loopback for tests and local development; transport/natsbridge adapts
// a NATS connection for multi-process development setups.
package transport

import "context"

// PortTelemetry is the application port reserved for telemetry payloads.
// It sits in the private application range of the mesh port space; packets
// on any other port are not ours.
const PortTelemetry uint32 = 257

// Identity describes the local node as reported by the transport.
//
// This struct is the canonical identity contract: implementations populate
// it directly rather than exposing mapping-style lookups. A zero-value
// Identity is valid and means the transport does not know who it is yet;
// consumers fall back to name "unknown" and no node number.
type Identity struct {
	// NodeNum is the numeric node address, nil when unassigned.
	NodeNum *uint32
	// LongName is the human-readable node name, empty when unknown.
	LongName string
}

// Packet is one inbound delivery handed to receive handlers.
type Packet struct {
	// FromNum is the sender's numeric node address, nil when the
	// transport could not resolve it.
	FromNum *uint32
	// FromID is the sender's textual node id (e.g. "!a1b2c3d4").
	FromID string
	// Port is the application port the packet was addressed to.
	Port uint32
	// Payload is the raw application payload.
	Payload []byte
	// RSSI and SNR carry signal quality when the transport measured it.
	RSSI *int32
	SNR  *float64
}

// Handler observes one inbound packet. Every registered handler sees every
// packet; a handler must not assume exclusive ownership.
type Handler func(ctx context.Context, pkt *Packet)

// Transport moves application payloads between nodes.
type Transport interface {
	// Send transmits data to the mesh on the given application port.
	// wantAck requests link-level acknowledgment where the transport
	// supports it; the agent always passes false.
	Send(ctx context.Context, data []byte, port uint32, wantAck bool) error

	// OnReceive registers a handler invoked for every inbound packet,
	// on the transport's own calling context.
	OnReceive(h Handler)

	// Self reports the local node identity.
	Self() Identity
}
