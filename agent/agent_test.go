package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkitaEngineering/asnip/collector"
	"github.com/AkitaEngineering/asnip/logstore"
	"github.com/AkitaEngineering/asnip/transport"
)

const stopTimeout = 3 * time.Second

// writeTestConfig writes a minimal config with one static sensor so the
// broadcast payload is deterministic.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	doc := fmt.Sprintf(`{
  "settings": {"log_file": %q, "broadcast_interval": 5},
  "sensors": [
    {"name": "status", "type": "static_value", "enabled": true, "params": {"value": "up"}}
  ]
}`, filepath.Join(dir, "log.json"))
	path := filepath.Join(dir, "asnip.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func newTestAgent(t *testing.T, tr transport.Transport) *Agent {
	t.Helper()
	cfgPath := writeTestConfig(t, t.TempDir())
	return New(Deps{ConfigPath: cfgPath, Transport: tr})
}

func remoteEntries(store *logstore.Store) []logstore.Entry {
	var out []logstore.Entry
	for _, e := range store.Entries() {
		if e.Type == logstore.TypeRemote {
			out = append(out, e)
		}
	}
	return out
}

func remotePayload(t *testing.T, name string) []byte {
	t.Helper()
	data, err := json.Marshal(collector.Payload{
		SourceName: name,
		Timestamp:  1700000000,
		Data:       map[string]any{"temp": 19.5},
	})
	require.NoError(t, err)
	return data
}

func TestAgent_BroadcastsOnStart(t *testing.T) {
	lo := transport.NewLoopback(0x11223344, "test-node")
	a := newTestAgent(t, lo)

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(stopTimeout)

	// The first broadcast cycle runs immediately, before the first sleep.
	require.Eventually(t, func() bool {
		return len(lo.Sent()) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	sent := lo.Sent()[0]
	assert.Equal(t, transport.PortTelemetry, sent.Port)
	assert.False(t, sent.WantAck)

	var payload collector.Payload
	require.NoError(t, json.Unmarshal(sent.Data, &payload))
	assert.Equal(t, "test-node", payload.SourceName)
	assert.Equal(t, "up", payload.Data["status"])

	// The same payload is logged locally before it is sent.
	entries := a.Store().Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, logstore.TypeSelf, entries[0].Type)
}

func TestAgent_StopJoinsWorkers(t *testing.T) {
	lo := transport.NewLoopback(1, "node")
	a := newTestAgent(t, lo)

	require.NoError(t, a.Start(context.Background()))
	require.True(t, a.Running())

	start := time.Now()
	require.NoError(t, a.Stop(stopTimeout))
	assert.Less(t, time.Since(start), stopTimeout, "stop must not exhaust the timeout")
	assert.False(t, a.Running())
}

func TestAgent_StopWhenNotRunning(t *testing.T) {
	a := newTestAgent(t, transport.NewLoopback(1, "node"))
	assert.NoError(t, a.Stop(stopTimeout))
}

func TestAgent_StartIsIdempotent(t *testing.T) {
	lo := transport.NewLoopback(1, "node")
	a := newTestAgent(t, lo)

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()), "second start is a no-op")
	require.NoError(t, a.Stop(stopTimeout))

	// Restart after stop works and resumes broadcasting.
	before := len(lo.Sent())
	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(lo.Sent()) > before
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Stop(stopTimeout))
}

func TestAgent_StartWithoutTransportIsNoOp(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())
	a := New(Deps{ConfigPath: cfgPath})

	assert.Error(t, a.Initialize())
	assert.NoError(t, a.Start(context.Background()))
	assert.False(t, a.Running())
}

func TestAgent_InitializeWithTransport(t *testing.T) {
	a := newTestAgent(t, transport.NewLoopback(1, "node"))
	assert.NoError(t, a.Initialize())
}

func TestAgent_ReceivesRemoteTelemetry(t *testing.T) {
	lo := transport.NewLoopback(1, "node")
	a := newTestAgent(t, lo)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(stopTimeout)

	from := uint32(0xcafe)
	rssi := int32(-80)
	snr := 5.5
	lo.Inject(context.Background(), &transport.Packet{
		FromNum: &from,
		FromID:  "!0000cafe",
		Port:    transport.PortTelemetry,
		Payload: remotePayload(t, "peer"),
		RSSI:    &rssi,
		SNR:     &snr,
	})

	remotes := remoteEntries(a.Store())
	require.Len(t, remotes, 1)
	assert.Equal(t, "peer", remotes[0].Payload.SourceName)
	assert.Equal(t, "!0000cafe", remotes[0].SourceHex)
	require.NotNil(t, remotes[0].RSSI)
	assert.Equal(t, int32(-80), *remotes[0].RSSI)
}

func TestAgent_IgnoresOtherPorts(t *testing.T) {
	lo := transport.NewLoopback(1, "node")
	a := newTestAgent(t, lo)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(stopTimeout)

	lo.Inject(context.Background(), &transport.Packet{
		Port:    42,
		Payload: remotePayload(t, "peer"),
	})

	assert.Empty(t, remoteEntries(a.Store()))
}

func TestAgent_IgnoresUndecodablePayload(t *testing.T) {
	lo := transport.NewLoopback(1, "node")
	a := newTestAgent(t, lo)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(stopTimeout)

	lo.Inject(context.Background(), &transport.Packet{
		Port:    transport.PortTelemetry,
		Payload: []byte("not json at all"),
	})
	lo.Inject(context.Background(), &transport.Packet{
		Port:    transport.PortTelemetry,
		Payload: nil,
	})

	assert.Empty(t, remoteEntries(a.Store()))
}

func TestAgent_FiltersOwnEcho(t *testing.T) {
	lo := transport.NewLoopback(0x11223344, "node")
	a := newTestAgent(t, lo)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(stopTimeout)

	// Loopback echoes sends back to the handler; none may land as remote.
	require.Eventually(t, func() bool {
		return len(lo.Sent()) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Empty(t, remoteEntries(a.Store()))
}

func TestAgent_SendFailureDropsPayload(t *testing.T) {
	lo := transport.NewLoopback(1, "node")
	lo.FailSends(fmt.Errorf("radio unavailable"))
	a := newTestAgent(t, lo)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(stopTimeout)

	// The payload is queued, attempted, and dropped; the agent keeps
	// running and the queue drains back to empty.
	require.Eventually(t, func() bool {
		return a.QueueDepth() == 0 && len(a.Store().Entries()) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, a.Running())
	assert.Empty(t, lo.Sent())
}

// gatedTransport blocks every Send until released, pinning the processor
// mid-send so stop behavior under a stuck worker can be observed.
type gatedTransport struct {
	entered chan struct{}
	release chan struct{}
	self    transport.Identity
}

func newGatedTransport(nodeNum uint32) *gatedTransport {
	num := nodeNum
	return &gatedTransport{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		self:    transport.Identity{NodeNum: &num, LongName: "gated"},
	}
}

func (g *gatedTransport) Send(_ context.Context, _ []byte, _ uint32, _ bool) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return nil
}

func (g *gatedTransport) OnReceive(_ transport.Handler) {}

func (g *gatedTransport) Self() transport.Identity { return g.self }

func TestAgent_StopDoesNotBlockInspection(t *testing.T) {
	tr := newGatedTransport(1)
	a := newTestAgent(t, tr)
	require.NoError(t, a.Start(context.Background()))

	// Wait until the processor is pinned inside Send.
	select {
	case <-tr.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("processor never reached Send")
	}

	stopErr := make(chan error, 1)
	go func() { stopErr <- a.Stop(stopTimeout) }()

	// While Stop waits for the stuck worker, inspection must still answer.
	depth := make(chan int, 1)
	go func() { depth <- a.QueueDepth() }()
	select {
	case <-depth:
	case <-time.After(time.Second):
		t.Fatal("QueueDepth blocked during stop")
	}

	close(tr.release)
	select {
	case err := <-stopErr:
		assert.NoError(t, err)
	case <-time.After(stopTimeout + time.Second):
		t.Fatal("stop did not return")
	}
	assert.False(t, a.Running())
}

func TestAgent_RestartWaitsForLateWorkers(t *testing.T) {
	tr := newGatedTransport(1)
	a := newTestAgent(t, tr)
	require.NoError(t, a.Start(context.Background()))

	select {
	case <-tr.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("processor never reached Send")
	}

	// The pinned worker outlives the short stop budget.
	err := a.Stop(50 * time.Millisecond)
	require.Error(t, err)
	assert.False(t, a.Running())

	// Restarting over the still-live worker is refused.
	assert.Error(t, a.Start(context.Background()))

	close(tr.release)

	// Once the worker drains, a fresh start is accepted again.
	require.Eventually(t, func() bool {
		return a.Start(context.Background()) == nil && a.Running()
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Stop(stopTimeout))
}

func TestAgent_StopPersistsLog(t *testing.T) {
	lo := transport.NewLoopback(1, "node")
	cfgDir := t.TempDir()
	cfgPath := writeTestConfig(t, cfgDir)
	a := New(Deps{ConfigPath: cfgPath, Transport: lo})

	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(a.Store().Entries()) >= 1
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Stop(stopTimeout))

	data, err := os.ReadFile(filepath.Join(cfgDir, "log.json"))
	require.NoError(t, err)
	var arr []map[string]any
	require.NoError(t, json.Unmarshal(data, &arr))
	assert.NotEmpty(t, arr)
}
