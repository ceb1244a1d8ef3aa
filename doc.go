// Package asnip implements the Akita Sensor Network Integration Plugin:
// a telemetry agent that periodically samples a configurable set of named
// sensors, aggregates their values into timestamped payloads, queues those
// payloads for best-effort broadcast over a mesh transport, and durably
// logs both locally produced and remotely received telemetry records.
//
// # Architecture
//
// The agent is built from small, independently testable packages:
//
//	┌───────────────────────────────────────┐
//	│             agent.Agent               │  Lifecycle: start, stop,
//	│  (broadcast loop, queue processor,    │  cooperative shutdown
//	│   receive handler)                    │
//	└───────────────────────────────────────┘
//	          ↓ collects via                ↓ transmits via
//	┌──────────────────────┐   ┌──────────────────────────┐
//	│  collector + sensor  │   │   transport.Transport    │
//	│  (registry, readers) │   │  (mesh radio, loopback,  │
//	└──────────────────────┘   │   NATS bridge)           │
//	          ↓ records to     └──────────────────────────┘
//	┌──────────────────────┐
//	│   logstore.Store     │  JSON array on disk,
//	│                      │  atomic full-file rewrite
//	└──────────────────────┘
//
// Sensor readers are pure functions of their configured parameters and
// return a value or "absent"; a failing reader is isolated to its own
// sensor and never aborts a collection cycle. The transport is an external
// collaborator consumed through a narrow contract: the core never talks to
// radio hardware or a message broker directly.
//
// Delivery is at-most-once and best-effort: a send failure is logged and
// the payload dropped, with no retry, acknowledgment, or ordering
// guarantee across nodes.
package asnip
