package pagi

import (
	"net"
	"sync"
	"sync/atomic"
)

// connectionKind classifies a `Connection` for the graceful-drain policy of
// spec.md §4.1: idle keep-alive connections and long-lived WebSocket/SSE
// connections are closed immediately on `Shutdown`; a connection with an
// in-flight plain HTTP request is allowed to finish first.
type connectionKind uint8

// Connection kinds.
const (
	connKindHTTP connectionKind = iota
	connKindWebSocket
	connKindSSE
)

// Connection is the server's object-identity-keyed handle on one accepted
// transport (spec.md §3.7 invariant: "every accepted transport maps to
// exactly one Connection"). It is registered with the `Server` at accept
// time through the `net/http.Server` `ConnContext` hook and unregistered
// through the `ConnState` hook when the underlying `net.Conn` closes or is
// hijacked.
type Connection struct {
	conn net.Conn
	kind connectionKind

	mu        sync.Mutex
	inFlight  int32
	workerNum int
}

// newConnection wraps conn for registration with s.
func newConnection(conn net.Conn, workerNum int) *Connection {
	return &Connection{conn: conn, workerNum: workerNum}
}

// setKind reclassifies c once its scope type is known (a WebSocket/SSE
// connection starts as plain HTTP during the upgrade handshake).
func (c *Connection) setKind(k connectionKind) {
	c.mu.Lock()
	c.kind = k
	c.mu.Unlock()
}

// beginRequest marks c as carrying an in-flight request.
func (c *Connection) beginRequest() {
	atomic.AddInt32(&c.inFlight, 1)
}

// endRequest clears c's in-flight marker.
func (c *Connection) endRequest() {
	atomic.AddInt32(&c.inFlight, -1)
}

// isIdleOrLongLived reports whether c is safe to close immediately during a
// graceful drain: either it is a WebSocket/SSE connection (long-lived, per
// spec.md §4.1 "close ... long-lived connections immediately"), or it is a
// plain HTTP connection with no in-flight request.
func (c *Connection) isIdleOrLongLived() bool {
	c.mu.Lock()
	kind := c.kind
	c.mu.Unlock()

	if kind == connKindWebSocket || kind == connKindSSE {
		return true
	}
	return atomic.LoadInt32(&c.inFlight) == 0
}

// Close closes the underlying transport.
func (c *Connection) Close() error {
	return c.conn.Close()
}
