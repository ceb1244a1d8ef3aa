package agent

import (
	"context"
	"encoding/json"
)

// processLoop drains the outbound queue, serializing each payload and
// handing it to the transport fire-and-forget. A failed send drops the
// payload; it is never requeued, so one unreachable peer cannot stall
// the queue behind a head-of-line payload.
func (a *Agent) processLoop(ctx context.Context) {
	a.logger.Debug("queue processor running")

	for {
		if a.stopping(ctx) {
			a.logger.Debug("queue processor exiting")
			return
		}

		payload, ok := a.outbound.Dequeue(dequeueWait)
		if !ok {
			continue
		}

		data, err := json.Marshal(payload)
		if err != nil {
			// Payload contains only JSON-safe sensor values; reaching
			// this means a custom reader returned something exotic.
			a.logger.Error("payload serialization failed, dropped", "error", err)
			a.metrics.sendError()
			continue
		}

		if err := a.transport.Send(ctx, data, transportPort, false); err != nil {
			a.logger.Error("payload send failed, dropped",
				"error", err,
				"bytes", len(data))
			a.metrics.sendError()
			continue
		}

		a.metrics.sent(a.outbound.Len())
		a.logger.Debug("payload sent", "bytes", len(data))
	}
}
