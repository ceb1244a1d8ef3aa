package transport

import (
	"context"
	"fmt"
	"sync"
)

// Loopback is an in-memory transport for tests and single-process runs.
// Sent packets are delivered synchronously to every registered handler on
// the sending goroutine, mirroring how a mesh stack invokes handlers on
// its own context.
type Loopback struct {
	mu       sync.RWMutex
	handlers []Handler
	identity Identity
	sendErr  error

	sent []SentPacket
}

// SentPacket records one Send call for inspection by tests.
type SentPacket struct {
	Data    []byte
	Port    uint32
	WantAck bool
}

var _ Transport = (*Loopback)(nil)

// NewLoopback creates a loopback transport with the given node identity.
func NewLoopback(nodeNum uint32, longName string) *Loopback {
	num := nodeNum
	return &Loopback{
		identity: Identity{NodeNum: &num, LongName: longName},
	}
}

// Send records the packet and delivers it to all handlers as if it had
// arrived from this node.
func (l *Loopback) Send(ctx context.Context, data []byte, port uint32, wantAck bool) error {
	l.mu.Lock()
	if l.sendErr != nil {
		err := l.sendErr
		l.mu.Unlock()
		return err
	}
	l.sent = append(l.sent, SentPacket{Data: data, Port: port, WantAck: wantAck})
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	identity := l.identity
	l.mu.Unlock()

	pkt := &Packet{
		FromNum: identity.NodeNum,
		FromID:  FormatNodeID(identity.NodeNum),
		Port:    port,
		Payload: data,
	}
	for _, h := range handlers {
		h(ctx, pkt)
	}
	return nil
}

// OnReceive registers a handler.
func (l *Loopback) OnReceive(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Self reports the configured identity.
func (l *Loopback) Self() Identity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.identity
}

// Inject delivers a packet to all handlers as if received from the mesh.
func (l *Loopback) Inject(ctx context.Context, pkt *Packet) {
	l.mu.RLock()
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, pkt)
	}
}

// FailSends makes subsequent Send calls return err; nil restores normal
// operation.
func (l *Loopback) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// Sent returns a copy of all packets sent so far.
func (l *Loopback) Sent() []SentPacket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SentPacket, len(l.sent))
	copy(out, l.sent)
	return out
}

// FormatNodeID renders a node number in the conventional "!%08x" form,
// or "" when num is nil.
func FormatNodeID(num *uint32) string {
	if num == nil {
		return ""
	}
	return fmt.Sprintf("!%08x", *num)
}
