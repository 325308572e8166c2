// Package testutil provides fake connections and transports for exercising
// reconnect and retry behavior without real sockets, plus a minimal TCP
// collector for end-to-end tests.
package testutil

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Sink collects every frame written through the fake conns of one
// transport, across reconnects.
type Sink struct {
	mu     sync.Mutex
	frames [][]byte
}

// Frames returns a copy of everything written so far.
func (s *Sink) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *Sink) add(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := make([]byte, len(b))
	copy(frame, b)
	s.frames = append(s.frames, frame)
}

// WaitFrames blocks until n frames have arrived or the timeout expires.
func (s *Sink) WaitFrames(n int, timeout time.Duration) ([][]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		frames := s.Frames()
		if len(frames) >= n {
			return frames, nil
		}
		if time.Now().After(deadline) {
			return frames, fmt.Errorf("timed out with %d of %d frames", len(frames), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func brokenPipe() error {
	return &net.OpError{
		Op:  "write",
		Net: "tcp",
		Err: fmt.Errorf("write: broken pipe"),
	}
}

// Conn is an in-memory net.Conn whose writes land in a Sink. It can be
// scripted to start failing after a number of successful writes.
type Conn struct {
	sink *Sink

	mu        sync.Mutex
	writes    int
	failAfter int // -1: never fail
	closed    bool
}

func (c *Conn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, brokenPipe()
	}
	if c.failAfter >= 0 && c.writes >= c.failAfter {
		return 0, brokenPipe()
	}
	c.writes++
	c.sink.add(b)
	return len(b), nil
}

func (c *Conn) Read(b []byte) (int, error) { return 0, fmt.Errorf("read on write-only test conn") }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Addr is a fake network address.
type Addr struct{}

func (Addr) Network() string { return "tcp" }
func (Addr) String() string  { return "127.0.0.1" }

func (c *Conn) LocalAddr() net.Addr                { return Addr{} }
func (c *Conn) RemoteAddr() net.Addr               { return Addr{} }
func (c *Conn) SetDeadline(t time.Time) error      { return nil }
func (c *Conn) SetReadDeadline(t time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }

// Transport hands out scripted Conns. The zero value dials conns that never
// fail; FailDials makes the first dials error, FailWrites scripts the
// fail-after budget for each successive conn.
type Transport struct {
	Sink Sink

	// FailDials makes the first N Dial calls return an error.
	FailDials int
	// FailWrites[i] is the number of writes the i-th dialed conn accepts
	// before breaking. Conns beyond the script never fail.
	FailWrites []int

	mu    sync.Mutex
	dials int
}

// Dial returns the next scripted conn.
func (t *Transport) Dial(addr string, options map[string]string) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dials < t.FailDials {
		t.dials++
		return nil, fmt.Errorf("connection refused")
	}
	idx := t.dials - t.FailDials
	t.dials++
	failAfter := -1
	if idx < len(t.FailWrites) {
		failAfter = t.FailWrites[idx]
	}
	return &Conn{sink: &t.Sink, failAfter: failAfter}, nil
}

// Dials returns how many times Dial was called.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}
