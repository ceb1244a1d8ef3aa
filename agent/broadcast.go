package agent

import (
	"context"
	"fmt"
)

// broadcastLoop runs the periodic collect-log-enqueue cycle until
// shutdown. Each cycle runs behind a panic boundary; a failed cycle
// triggers a short cooldown instead of the full interval so transient
// trouble does not silence the node for long.
func (a *Agent) broadcastLoop(ctx context.Context) {
	a.logger.Debug("broadcast loop running", "interval", a.interval)

	for {
		if a.stopping(ctx) {
			a.logger.Debug("broadcast loop exiting")
			return
		}

		if err := a.broadcastOnce(ctx); err != nil {
			a.logger.Error("broadcast cycle failed", "error", err)
			a.sleep(ctx, errorCooldown)
			continue
		}

		a.sleep(ctx, a.interval)
	}
}

// broadcastOnce runs a single cycle: collect all enabled sensors, log
// the payload locally, and enqueue it for transmission. A panic from a
// misbehaving dependency is converted to an error so the loop survives.
func (a *Agent) broadcastOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broadcast cycle panicked: %v", r)
		}
	}()

	payload := a.collector.Collect(ctx, a.sensors)
	a.metrics.tick()

	// A failed save is logged inside the store and must not delay the
	// broadcast; the entry stays in memory for the next save.
	if appendErr := a.store.AppendSelf(payload); appendErr != nil {
		a.logger.Warn("local log append not persisted", "error", appendErr)
	}

	a.outbound.Enqueue(payload)
	a.metrics.queued(a.outbound.Len())
	a.logger.Debug("payload queued",
		"sensors", len(payload.Data),
		"queue_depth", a.outbound.Len())
	return nil
}
