package comm

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/parsec/internal/logging"
)

// Handler processes one inbound envelope. It may write a reply on c (for
// request/reply kinds like FISH) or do nothing (for fire-and-forget kinds
// like HEARTBEAT).
type Handler func(c *Codec, kind Kind, raw []byte)

// Dispatcher is the inbound side of the comm layer: it accepts
// connections and routes each envelope to the handler registered for its
// kind. On the outbound side, Dial and Request are package functions that
// can be used without a Dispatcher; SendPersistent reuses the Dispatcher's
// cached per-peer connections.
type Dispatcher struct {
	nodeTag  string
	mu       sync.RWMutex
	handlers map[Kind]Handler

	connMu sync.Mutex
	conns  map[string]*Codec // address -> persistent outbound connection
}

// NewDispatcher creates a Dispatcher with no handlers registered.
func NewDispatcher(nodeTag string) *Dispatcher {
	return &Dispatcher{
		nodeTag:  nodeTag,
		handlers: make(map[Kind]Handler),
		conns:    make(map[string]*Codec),
	}
}

// Handle registers the handler for a message kind. Must be called before
// Serve starts accepting connections.
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Serve accepts connections on ln until it is closed, handling each on its
// own goroutine. One connection may carry many sequential envelopes (a
// persistent peer connection); Serve keeps reading from it until the peer
// closes it or a framing error occurs.
func (d *Dispatcher) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go d.handleConn(conn)
	}
}

func (d *Dispatcher) handleConn(conn net.Conn) {
	c := NewCodec(conn)
	defer c.Close()

	for {
		kind, raw, err := c.Receive()
		if err != nil {
			return
		}

		logging.DebugLine(logging.DebugInboundMessages, d.nodeTag, "received envelope", "kind", kind.String())

		d.mu.RLock()
		h, ok := d.handlers[kind]
		d.mu.RUnlock()
		if !ok {
			logging.DebugLine(logging.DebugInboundMessages, d.nodeTag, "no handler registered", "kind", kind.String())
			continue
		}
		h(c, kind, raw)
	}
}

// Dial opens a fresh connection to addr. Callers that need a
// request/reply round trip (FISH) should use Request instead, which
// manages the connection lifecycle.
func Dial(addr string, timeout time.Duration) (*Codec, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("comm: dial %s: %w", addr, err)
	}
	return NewCodec(conn), nil
}

// Request opens a short-lived connection to addr, sends one envelope, and
// waits for exactly one reply envelope before closing. This is the
// pattern FISH/SCHEDULE/NOWORK follows: a request deserves exactly one
// reply, and a new connection per request avoids having to multiplex
// replies against a shared connection's concurrent requests.
func Request(addr string, timeout time.Duration, kind Kind, payload any) (Kind, []byte, error) {
	reqID := uuid.NewString()
	logging.DebugLine(logging.DebugOutboundMessages, "", "request", "req_id", reqID, "kind", kind.String(), "addr", addr)

	if chaosDelayOrDrop() {
		return 0, nil, fmt.Errorf("comm: chaos monkey dropped request %s to %s", reqID, addr)
	}

	c, err := Dial(addr, timeout)
	if err != nil {
		return 0, nil, err
	}
	defer c.Close()

	if err := c.Send(kind, payload); err != nil {
		return 0, nil, err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, nil, err
	}
	return c.Receive()
}

// SendPersistent writes a fire-and-forget envelope (HEARTBEAT, EXECUTE,
// RPUT, SHUTDOWN) over a connection to addr that is kept open and reused
// across calls, redialing transparently if the previous connection died.
func (d *Dispatcher) SendPersistent(addr string, timeout time.Duration, kind Kind, payload any) error {
	reqID := uuid.NewString()
	logging.DebugLine(logging.DebugOutboundMessages, d.nodeTag, "send persistent", "req_id", reqID, "kind", kind.String(), "addr", addr)

	if chaosDelayOrDrop() {
		return fmt.Errorf("comm: chaos monkey dropped send %s to %s", reqID, addr)
	}

	d.connMu.Lock()
	c, ok := d.conns[addr]
	d.connMu.Unlock()

	if !ok {
		var err error
		c, err = Dial(addr, timeout)
		if err != nil {
			return err
		}
		d.connMu.Lock()
		d.conns[addr] = c
		d.connMu.Unlock()
	}

	if err := c.Send(kind, payload); err != nil {
		d.connMu.Lock()
		delete(d.conns, addr)
		d.connMu.Unlock()
		c.Close()

		c, err = Dial(addr, timeout)
		if err != nil {
			return err
		}
		d.connMu.Lock()
		d.conns[addr] = c
		d.connMu.Unlock()
		return c.Send(kind, payload)
	}
	return nil
}

// WarmConnections dials every address in addrs concurrently and keeps the
// resulting connections in the persistent pool, so the first real
// SendPersistent (a HEARTBEAT or EXECUTE) to each peer doesn't pay a
// fresh dial's latency. A peer that refuses the connection is skipped
// without failing the others; SendPersistent redials it lazily on first
// use regardless.
func (d *Dispatcher) WarmConnections(addrs []string, timeout time.Duration) error {
	g := new(errgroup.Group)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			c, err := Dial(addr, timeout)
			if err != nil {
				logging.DebugLine(logging.DebugOutboundMessages, d.nodeTag, "warm connect failed", "addr", addr, "error", err)
				return nil
			}
			d.connMu.Lock()
			if existing, ok := d.conns[addr]; ok {
				existing.Close()
			}
			d.conns[addr] = c
			d.connMu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// CloseAll closes every persistent outbound connection, used during
// shutdown.
func (d *Dispatcher) CloseAll() {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	for addr, c := range d.conns {
		c.Close()
		delete(d.conns, addr)
	}
}
