// Package natsbridge adapts a NATS connection to the transport contract,
// so multiple agent processes on one broker can exchange telemetry the
// way mesh nodes would. It is a development and integration transport:
// there is no radio link, so packets carry no signal quality.
package natsbridge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/AkitaEngineering/asnip/errors"
	"github.com/AkitaEngineering/asnip/pkg/retry"
	"github.com/AkitaEngineering/asnip/transport"
)

// DefaultSubjectPrefix namespaces all bridge traffic on the broker.
const DefaultSubjectPrefix = "asnip"

// envelope is the wire format carried in each NATS message. NATS has no
// sender addressing at the application level, so the sender stamps its
// own identity.
type envelope struct {
	FromNum uint32 `json:"from_num"`
	FromID  string `json:"from_id"`
	Port    uint32 `json:"port"`
	Payload []byte `json:"payload"`
}

// Bridge is a Transport backed by a NATS connection.
type Bridge struct {
	url           string
	subjectPrefix string
	identity      transport.Identity
	logger        *slog.Logger

	mu       sync.RWMutex
	conn     *nats.Conn
	sub      *nats.Subscription
	handlers []transport.Handler

	closed atomic.Bool
}

var _ transport.Transport = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithName sets the node's human-readable name; the hostname is used
// otherwise.
func WithName(name string) Option {
	return func(b *Bridge) {
		b.identity.LongName = name
	}
}

// WithNodeNum pins the node number instead of deriving a random one.
func WithNodeNum(num uint32) Option {
	return func(b *Bridge) {
		n := num
		b.identity.NodeNum = &n
	}
}

// WithSubjectPrefix overrides the broker subject namespace.
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bridge) {
		b.subjectPrefix = prefix
	}
}

// WithLogger sets the bridge's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a bridge for the given broker URL. The bridge is inert
// until Connect.
func New(url string, opts ...Option) *Bridge {
	b := &Bridge{
		url:           url,
		subjectPrefix: DefaultSubjectPrefix,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = slog.Default().With("component", "natsbridge")
	}
	if b.identity.NodeNum == nil {
		num := randomNodeNum()
		b.identity.NodeNum = &num
	}
	if b.identity.LongName == "" {
		if host, err := os.Hostname(); err == nil {
			b.identity.LongName = host
		} else {
			b.identity.LongName = transport.FormatNodeID(b.identity.NodeNum)
		}
	}
	return b
}

// randomNodeNum derives a node number from a fresh UUID. Collisions
// across a handful of dev processes are as unlikely as mesh address
// collisions.
func randomNodeNum() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[0:4])
}

// Connect dials the broker and subscribes to the telemetry namespace.
// The initial dial is retried with backoff; once up, reconnects are
// handled by the NATS client itself.
func (b *Bridge) Connect(ctx context.Context) error {
	natsOpts := []nats.Option{
		nats.Name(fmt.Sprintf("asnip-%s", transport.FormatNodeID(b.identity.NodeNum))),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn("broker connection lost, reconnecting", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info("broker connection restored", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if !b.closed.Load() {
				b.logger.Error("broker connection closed permanently")
			}
		}),
	}

	var conn *nats.Conn
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var dialErr error
		conn, dialErr = nats.Connect(b.url, natsOpts...)
		return dialErr
	})
	if err != nil {
		return errors.WrapTransient(err, "Bridge", "Connect", "dial broker")
	}

	sub, err := conn.Subscribe(b.subjectPrefix+".port.>", func(msg *nats.Msg) {
		b.dispatch(context.Background(), msg.Data)
	})
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "Bridge", "Connect", "subscribe telemetry namespace")
	}

	b.mu.Lock()
	b.conn = conn
	b.sub = sub
	b.mu.Unlock()

	b.logger.Info("connected to broker",
		"url", conn.ConnectedUrl(),
		"node", transport.FormatNodeID(b.identity.NodeNum),
		"name", b.identity.LongName)
	return nil
}

// Send publishes the payload to the port's subject. wantAck is ignored:
// NATS has no link-level acknowledgment to request.
func (b *Bridge) Send(_ context.Context, data []byte, port uint32, _ bool) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "Bridge", "Send", "check connection")
	}

	env := envelope{
		FromNum: *b.identity.NodeNum,
		FromID:  transport.FormatNodeID(b.identity.NodeNum),
		Port:    port,
		Payload: data,
	}
	wire, err := json.Marshal(env)
	if err != nil {
		return errors.WrapInvalid(err, "Bridge", "Send", "encode envelope")
	}

	subject := fmt.Sprintf("%s.port.%d", b.subjectPrefix, port)
	if err := conn.Publish(subject, wire); err != nil {
		return errors.WrapTransient(err, "Bridge", "Send", "publish")
	}
	return nil
}

// OnReceive registers a handler for inbound packets.
func (b *Bridge) OnReceive(h transport.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Self reports the bridge's node identity.
func (b *Bridge) Self() transport.Identity {
	return b.identity
}

// dispatch decodes one wire message and fans it out to handlers. The
// broker echoes our own publishes back on the wildcard subscription, so
// self-originated envelopes are dropped here.
func (b *Bridge) dispatch(ctx context.Context, wire []byte) {
	var env envelope
	if err := json.Unmarshal(wire, &env); err != nil {
		b.logger.Warn("undecodable broker message dropped",
			"bytes", len(wire), "error", err)
		return
	}
	if env.FromNum == *b.identity.NodeNum {
		return
	}

	fromNum := env.FromNum
	pkt := &transport.Packet{
		FromNum: &fromNum,
		FromID:  env.FromID,
		Port:    env.Port,
		Payload: env.Payload,
	}

	b.mu.RLock()
	handlers := make([]transport.Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, pkt)
	}
}

// Close drains the subscription and closes the connection, waiting up to
// timeout for in-flight messages.
func (b *Bridge) Close(timeout time.Duration) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	conn := b.conn
	sub := b.sub
	b.conn = nil
	b.sub = nil
	b.mu.Unlock()

	if conn == nil {
		return nil
	}

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn("unsubscribe failed during close", "error", err)
		}
	}

	drainDone := make(chan error, 1)
	go func() { drainDone <- conn.Drain() }()

	select {
	case err := <-drainDone:
		if err != nil {
			conn.Close()
			return errors.Wrap(err, "Bridge", "Close", "drain connection")
		}
	case <-time.After(timeout):
		conn.Close()
		return errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", timeout),
			"Bridge", "Close", "drain connection")
	}
	return nil
}
