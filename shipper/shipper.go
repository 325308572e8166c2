// Package shipper delivers log records to a remote collector over a single
// persistent connection, surviving collector restarts and network faults.
//
// Records flow Submit -> bounded queue -> writer loop -> encoder ->
// connection. Failures flow the other way: a dead connection pauses the
// writer, the queue fills, and Submit applies backpressure or rejects,
// depending on policy.
package shipper

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/opentrail/trailship/framing"
	"github.com/opentrail/trailship/queue"
	"github.com/opentrail/trailship/record"
	"github.com/opentrail/trailship/transport"
)

const (
	defaultQueueCapacity = 1024
	defaultRetryCap      = 3
	defaultBackoffBase   = 200 * time.Millisecond
	defaultBackoffCeil   = 30 * time.Second
	defaultSendTimeout   = 10 * time.Second
	defaultCloseTimeout  = 5 * time.Second
)

var (
	// ErrQueueFull is returned by Submit under the drop policy.
	ErrQueueFull = queue.ErrFull
	// ErrClosed is returned for operations after Close.
	ErrClosed = queue.ErrClosed
	// ErrFlushTimeout is returned by Flush when records remain pending.
	ErrFlushTimeout = errors.New("flush timeout")
)

func debug(v ...interface{}) {
	if os.Getenv("DEBUG") != "" {
		log.Println(v...)
	}
}

// Config describes a client. Address is the only required field.
type Config struct {
	// Address is the collector's host:port.
	Address string
	// Transport names a registered transport. Default "tcp".
	Transport string
	// TransportOptions is passed through to the transport's Dial.
	TransportOptions map[string]string
	// Framing names a registered framing: framing.Plain (default) or
	// framing.Syslog5424.
	Framing string
	// FramingOptions configures the encoder (policy, facility, SD-ID...).
	FramingOptions framing.Options
	// QueueCapacity bounds the delivery queue. Default 1024.
	QueueCapacity int
	// Policy is queue.Block (backpressure, default) or queue.Drop.
	Policy queue.Policy
	// RetryCap is how many times one record's send is retried across
	// reconnects before the record is dropped. Default 3.
	RetryCap int
	// BackoffBase and BackoffCeiling bound the reconnect delay.
	// Defaults 200ms and 30s.
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	// SendTimeout caps a single frame write. Default 10s.
	SendTimeout time.Duration
	// CloseTimeout bounds the best-effort drain in Close. Default 5s.
	CloseTimeout time.Duration
	// OnFailure is invoked for every record the client gives up on, with
	// the reason. When nil, failures are logged.
	OnFailure func(rec record.Record, err error)
}

func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	if c.Framing == "" {
		c.Framing = framing.Plain
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.Policy == "" {
		c.Policy = queue.Block
	}
	if c.RetryCap < 0 {
		c.RetryCap = 0
	} else if c.RetryCap == 0 {
		c.RetryCap = defaultRetryCap
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = defaultBackoffCeil
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = defaultCloseTimeout
	}
	return c
}

// Client is the public face of the shipper: Submit, Flush, Close.
type Client struct {
	cfg    Config
	queue  *queue.Queue
	conn   *Conn
	writer *writer

	closeOnce sync.Once
	closeErr  error
}

// New builds a client and starts its writer loop. The connection itself is
// dialed lazily on the first delivery.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Address == "" {
		return nil, errors.New("shipper: no collector address")
	}
	t, found := transport.Lookup(cfg.Transport)
	if !found {
		return nil, errors.New("shipper: bad transport: " + cfg.Transport)
	}
	enc, err := framing.New(cfg.Framing, cfg.FramingOptions)
	if err != nil {
		return nil, fmt.Errorf("shipper: %w", err)
	}

	backoff := NewBackoff(cfg.BackoffBase, cfg.BackoffCeiling)
	conn := newConn(t, cfg.Address, cfg.TransportOptions, cfg.SendTimeout, backoff)
	q := queue.New(cfg.QueueCapacity, cfg.Policy)

	c := &Client{
		cfg:    cfg,
		queue:  q,
		conn:   conn,
		writer: newWriter(q, conn, enc, cfg.RetryCap, cfg.OnFailure),
	}
	go c.writer.run()
	return c, nil
}

// Submit enqueues one record for delivery. Under the block policy it waits
// for queue room; under drop it returns ErrQueueFull instead. After Close it
// returns ErrClosed. A zero timestamp is stamped with the current time.
func (c *Client) Submit(rec record.Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	err := c.queue.Push(rec)
	if err == nil {
		submittedTotal.Inc()
		return nil
	}
	if errors.Is(err, ErrQueueFull) {
		droppedTotal.WithLabelValues("queue_full").Inc()
	}
	return err
}

// Flush waits until everything queued so far is on the wire or the timeout
// elapses. It reports how many records were delivered during the wait and
// how many remain pending; err is ErrFlushTimeout when pending > 0.
func (c *Client) Flush(timeout time.Duration) (delivered, pending int, err error) {
	start := c.writer.delivered.Load()
	deadline := time.Now().Add(timeout)
	for {
		pending = c.pending()
		if pending == 0 {
			return int(c.writer.delivered.Load() - start), 0, nil
		}
		if !time.Now().Before(deadline) {
			return int(c.writer.delivered.Load() - start), pending, ErrFlushTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (c *Client) pending() int {
	n := c.queue.Depth()
	if c.writer.inflight.Load() {
		n++
	}
	return n
}

// Close stops intake, drains what it can within CloseTimeout, then releases
// the connection. Blocked Submit and Flush callers are unblocked. Close is
// idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.queue.Close()
		select {
		case <-c.writer.done:
		case <-time.After(c.cfg.CloseTimeout):
			close(c.writer.stop)
			c.conn.Close() // unblock a write in flight
			<-c.writer.done
			c.closeErr = ErrFlushTimeout
		}
		c.conn.Close()
	})
	return c.closeErr
}

// State reports the connection lifecycle state.
func (c *Client) State() State { return c.conn.State() }

// Depth reports how many records are queued but not yet handed to the
// writer.
func (c *Client) Depth() int { return c.queue.Depth() }

// Delivered reports how many records reached the wire.
func (c *Client) Delivered() uint64 { return c.writer.delivered.Load() }

// Dropped reports how many records the client gave up on.
func (c *Client) Dropped() uint64 { return c.writer.dropped.Load() }
