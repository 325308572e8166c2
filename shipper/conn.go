package shipper

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/opentrail/trailship/transport"
)

// State is the connection lifecycle. Closed is terminal.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// ConnectError wraps a failed dial. Transient: the writer keeps retrying
// with backoff.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return "connect " + e.Addr + ": " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// SendError wraps a failed write. The connection is torn down and the record
// retried after reconnect.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "send: " + e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

// Conn owns the single outbound connection to the collector. It does not
// retry on its own; the writer loop decides when to reconnect so backoff and
// queue interaction live in one place.
type Conn struct {
	mu        sync.Mutex
	transport transport.Transport
	addr      string
	options   map[string]string
	timeout   time.Duration
	conn      net.Conn
	state     State
	backoff   *Backoff
}

func newConn(t transport.Transport, addr string, options map[string]string, timeout time.Duration, backoff *Backoff) *Conn {
	return &Conn{
		transport: t,
		addr:      addr,
		options:   options,
		timeout:   timeout,
		state:     Disconnected,
		backoff:   backoff,
	}
}

// Connect dials the collector. It is a no-op when already connected and an
// error after Close.
func (c *Conn) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Closed:
		return ErrClosed
	case Connected:
		return nil
	}
	c.state = Connecting
	conn, err := c.transport.Dial(c.addr, c.options)
	if err != nil {
		c.state = Disconnected
		return &ConnectError{Addr: c.addr, Err: err}
	}
	c.conn = conn
	c.state = Connected
	reconnectsTotal.Inc()
	return nil
}

// Send writes one frame. Any write error (reset, broken pipe, timeout,
// short write) tears the connection down and surfaces as a SendError.
//
// The write itself happens outside the state lock: there is a single
// sender, and Close must be able to reach the socket while a write is
// blocked.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Connected {
		c.mu.Unlock()
		return &SendError{Err: fmt.Errorf("not connected")}
	}
	conn := c.conn
	c.mu.Unlock()

	if c.timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	n, err := conn.Write(frame)
	if err == nil && n < len(frame) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	if err != nil {
		c.mu.Lock()
		// Close may have taken the conn away already.
		if c.conn == conn {
			c.conn.Close()
			c.conn = nil
			c.state = Disconnected
		}
		c.mu.Unlock()
		return &SendError{Err: err}
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the connection. Closing an already closed or disconnected
// Conn is a no-op.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = Closed
}

// Backoff produces reconnect delays: base doubling up to ceiling, with
// jitter. Every delay stays within [base, ceiling].
type Backoff struct {
	mu      sync.Mutex
	base    time.Duration
	ceiling time.Duration
	attempt uint
}

// NewBackoff returns a Backoff over [base, ceiling].
func NewBackoff(base, ceiling time.Duration) *Backoff {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if ceiling < base {
		ceiling = base
	}
	return &Backoff{base: base, ceiling: ceiling}
}

// Next returns the delay before the upcoming attempt and advances the
// schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.ceiling
	if shift := b.base << b.attempt; shift > 0 && shift < b.ceiling {
		d = shift
	}
	if b.attempt < 32 {
		b.attempt++
	}
	// Add up to 50% jitter, never past the ceiling.
	jittered := d + time.Duration(rand.Int63n(int64(d)/2+1))
	if jittered > b.ceiling {
		jittered = b.ceiling
	}
	return jittered
}

// Reset returns the schedule to the base delay. Called after a successful
// send.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}
