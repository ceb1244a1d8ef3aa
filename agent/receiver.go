package agent

import (
	"context"
	"encoding/json"

	"github.com/AkitaEngineering/asnip/collector"
	"github.com/AkitaEngineering/asnip/transport"
)

// transportPort is the application port telemetry travels on; packets
// on any other port are not ours and pass through untouched.
const transportPort = transport.PortTelemetry

// handleReceive is the inbound packet handler registered with the
// transport. It decodes telemetry from peers and records it in the log
// store; malformed or foreign packets are dropped without side effects.
func (a *Agent) handleReceive(_ context.Context, pkt *transport.Packet) {
	if pkt == nil || pkt.Port != transportPort {
		return
	}

	// A mesh never delivers a node's own broadcast back to it, but a
	// loopback transport does. Self-originated packets are not remote
	// telemetry.
	if self := a.transport.Self(); self.NodeNum != nil && pkt.FromNum != nil &&
		*self.NodeNum == *pkt.FromNum {
		return
	}

	if len(pkt.Payload) == 0 {
		a.logger.Warn("empty telemetry payload received",
			"from", transport.FormatNodeID(pkt.FromNum))
		return
	}

	var payload collector.Payload
	if err := json.Unmarshal(pkt.Payload, &payload); err != nil {
		a.logger.Warn("undecodable telemetry payload dropped",
			"from", transport.FormatNodeID(pkt.FromNum),
			"bytes", len(pkt.Payload),
			"error", err)
		a.metrics.decodeError()
		return
	}

	if err := a.store.AppendRemote(payload, pkt.FromNum, pkt.FromID, pkt.RSSI, pkt.SNR); err != nil {
		a.logger.Warn("remote entry not persisted", "error", err)
	}
	a.metrics.remote()
	a.logger.Info("telemetry received",
		"from", pkt.FromID,
		"source", payload.SourceName,
		"values", len(payload.Data))
}
