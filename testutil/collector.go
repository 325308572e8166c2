package testutil

import (
	"bufio"
	"net"
	"sync"
)

// Collector is a bare-bones log collector: a TCP listener that scans
// LF-delimited frames off every accepted connection into one channel.
type Collector struct {
	Lines chan string

	listener net.Listener

	mu     sync.Mutex
	active net.Conn
	closed bool
}

// NewCollector starts a collector on an ephemeral local port.
func NewCollector() (*Collector, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	c := &Collector{
		Lines:    make(chan string, 128),
		listener: ln,
	}
	go c.accept()
	return c, nil
}

// Addr returns the listener address to dial.
func (c *Collector) Addr() string {
	return c.listener.Addr().String()
}

func (c *Collector) accept() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.active = conn
		c.mu.Unlock()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			c.Lines <- scanner.Text()
		}
		conn.Close()
	}
}

// KillConn tears down the active connection, simulating a collector crash.
// The listener keeps accepting, so the client can reconnect.
func (c *Collector) KillConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Close()
		c.active = nil
	}
}

// Teardown stops the listener and the active connection.
func (c *Collector) Teardown() {
	c.mu.Lock()
	c.closed = true
	if c.active != nil {
		c.active.Close()
	}
	c.mu.Unlock()
	c.listener.Close()
}
