// Package agent wires the telemetry core together: it owns the broadcast
// scheduler, the outbound queue processor, and the inbound receive
// handler, and manages their shared lifecycle.
//
// The agent follows a cooperative shutdown model: both background workers
// poll a shared shutdown signal at sub-second granularity, so Stop
// latency is bounded regardless of the configured broadcast interval.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AkitaEngineering/asnip/collector"
	"github.com/AkitaEngineering/asnip/config"
	"github.com/AkitaEngineering/asnip/errors"
	"github.com/AkitaEngineering/asnip/logstore"
	"github.com/AkitaEngineering/asnip/metric"
	"github.com/AkitaEngineering/asnip/queue"
	"github.com/AkitaEngineering/asnip/sensor"
	"github.com/AkitaEngineering/asnip/transport"
)

const (
	// errorCooldown is how long the broadcast loop backs off after an
	// unexpected tick failure before resuming.
	errorCooldown = 5 * time.Second

	// dequeueWait bounds the processor's idle wait so it observes
	// shutdown promptly even with nothing to send.
	dequeueWait = 1 * time.Second

	// sleepStep is the granularity at which the broadcast loop
	// re-checks the shutdown signal while sleeping between ticks.
	sleepStep = 1 * time.Second
)

// Deps holds runtime dependencies for the agent.
type Deps struct {
	// ConfigPath is the configuration document reloaded on every start.
	ConfigPath string
	// Transport moves payloads between nodes. A nil transport leaves
	// the agent constructible but makes Start a logged no-op.
	Transport transport.Transport
	// Registry supplies sensor readers; a default registry (no
	// hardware device) is built when nil.
	Registry *sensor.Registry
	// MetricsRegistry enables prometheus metrics when non-nil.
	MetricsRegistry *metric.Registry
	Logger          *slog.Logger
}

// Agent is the telemetry agent core.
type Agent struct {
	cfgPath   string
	transport transport.Transport
	registry  *sensor.Registry
	collector *collector.Collector
	store     *logstore.Store
	logger    *slog.Logger

	// Per-run state, replaced on every Start while no workers run.
	sensors  []config.SensorConfig
	interval time.Duration
	outbound *queue.Queue[collector.Payload]

	// Lifecycle management
	lifecycleMu sync.Mutex
	shutdown    chan struct{}
	wg          sync.WaitGroup
	running     atomic.Bool
	handlerOnce sync.Once
	startTime   time.Time
	// workersDone is closed when the previous run's workers have fully
	// exited; a new Start must not run over a late worker.
	workersDone chan struct{}

	metrics *Metrics
}

// New constructs the agent: it loads the configuration (creating a
// default document when absent), opens the log store named by it, and
// prepares the collector. Nothing runs until Start.
func New(deps Deps) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "asnip-agent")
	}

	registry := deps.Registry
	if registry == nil {
		registry = sensor.NewRegistry(sensor.RegistryDeps{Logger: logger})
	}

	cfg := config.Load(deps.ConfigPath, registry, logger)
	store := logstore.Open(cfg.Settings.LogFile, logger)

	a := &Agent{
		cfgPath:   deps.ConfigPath,
		transport: deps.Transport,
		registry:  registry,
		store:     store,
		logger:    logger,
		sensors:   cfg.Sensors,
		interval:  time.Duration(cfg.Settings.BroadcastInterval) * time.Second,
		metrics:   newMetrics(deps.MetricsRegistry),
	}
	a.collector = collector.New(collector.Deps{
		Registry: registry,
		Identity: identityProvider(deps.Transport),
		Logger:   logger,
	})

	if deps.Transport == nil {
		logger.Error("agent constructed without a transport; start will be a no-op")
	}
	return a
}

// identityProvider adapts a possibly-nil transport for the collector.
func identityProvider(t transport.Transport) collector.IdentityProvider {
	if t == nil {
		return nil
	}
	return t
}

// Initialize validates the agent's wiring before the first Start. Safe
// to call more than once.
func (a *Agent) Initialize() error {
	if a.transport == nil {
		return errors.WrapInvalid(errors.ErrNoTransport, "Agent", "Initialize", "check transport")
	}
	return nil
}

// Store exposes the log store, mainly for inspection in tests and the
// host process.
func (a *Agent) Store() *logstore.Store {
	return a.store
}

// Running reports whether the background workers are active.
func (a *Agent) Running() bool {
	return a.running.Load()
}

// QueueDepth returns the number of payloads awaiting transmission.
func (a *Agent) QueueDepth() int {
	a.lifecycleMu.Lock()
	q := a.outbound
	a.lifecycleMu.Unlock()
	if q == nil {
		return 0
	}
	return q.Len()
}

// Start reloads configuration, reinitializes hardware readers, registers
// the receive handler, and spawns the broadcast and processor workers.
// Start without a bound transport logs and does nothing. Start on a
// running agent is idempotent.
func (a *Agent) Start(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if a.transport == nil {
		a.logger.Error("cannot start: no transport bound")
		return nil
	}
	if a.running.Load() {
		return nil
	}

	// A worker from a timed-out Stop may still be draining; starting a
	// fresh run over it would race the new queue.
	if a.workersDone != nil {
		select {
		case <-a.workersDone:
			a.workersDone = nil
		default:
			return errors.WrapTransient(
				fmt.Errorf("previous run still stopping"),
				"Agent", "Start", "await worker exit")
		}
	}

	a.logger.Info("agent starting")

	// Reload the sensor set and interval; the log file is fixed for the
	// process lifetime (changing it requires a restart).
	cfg := config.Load(a.cfgPath, a.registry, a.logger)
	a.sensors = cfg.Sensors
	a.interval = time.Duration(cfg.Settings.BroadcastInterval) * time.Second

	// Pick up hardware that appeared since the last run. Failure is not
	// fatal: the affected readers stay absent.
	if device := a.registry.Device(); device.Supported() {
		if err := device.Init(ctx); err != nil {
			a.logger.Warn("hardware reader initialization failed, readers stay absent",
				"error", err)
		}
	}

	// A closed queue stays closed, so each run gets a fresh one.
	a.outbound = queue.New[collector.Payload]()
	a.shutdown = make(chan struct{})

	a.handlerOnce.Do(func() {
		a.transport.OnReceive(a.handleReceive)
	})

	a.running.Store(true)
	a.startTime = time.Now()

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.broadcastLoop(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.processLoop(ctx)
	}()

	a.logger.Info("agent started",
		"sensors", len(a.sensors),
		"broadcast_interval", a.interval)
	return nil
}

// Stop signals both workers, joins them up to timeout, discards any
// residual queued payloads, and persists the log store's final state. A
// worker still alive after the timeout is logged, never killed.
func (a *Agent) Stop(timeout time.Duration) error {
	a.lifecycleMu.Lock()
	if !a.running.Load() {
		a.lifecycleMu.Unlock()
		return nil
	}

	a.logger.Info("agent stopping")
	a.running.Store(false)
	close(a.shutdown)

	// Wake the processor out of an idle dequeue wait.
	outbound := a.outbound
	outbound.Close()

	waitCh := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitCh)
	}()
	a.workersDone = waitCh
	started := a.startTime

	// The join happens outside the lock so inspection and a subsequent
	// Start stay responsive while workers wind down.
	a.lifecycleMu.Unlock()

	var timedOut bool
	select {
	case <-waitCh:
	case <-time.After(timeout):
		timedOut = true
		a.logger.Warn("workers did not stop within timeout", "timeout", timeout)
	}

	if dropped := len(outbound.Drain()); dropped > 0 {
		a.logger.Info("discarded queued payloads on shutdown", "count", dropped)
	}

	if err := a.store.Save(); err != nil {
		a.logger.Error("final log save failed", "error", err)
	}

	a.logger.Info("agent stopped", "uptime", time.Since(started).Round(time.Second))
	if timedOut {
		return errors.WrapTransient(
			fmt.Errorf("stop timeout after %v", timeout),
			"Agent", "Stop", "worker join")
	}
	return nil
}

// stopping reports whether shutdown has been signalled.
func (a *Agent) stopping(ctx context.Context) bool {
	select {
	case <-a.shutdown:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for d in sleepStep increments, returning early when
// shutdown is signalled. Shutdown latency stays bounded by one step no
// matter how long the broadcast interval is.
func (a *Agent) sleep(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		step := sleepStep
		if remaining < step {
			step = remaining
		}
		timer := time.NewTimer(step)
		select {
		case <-a.shutdown:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
