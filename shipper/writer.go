package shipper

import (
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/opentrail/trailship/framing"
	"github.com/opentrail/trailship/queue"
	"github.com/opentrail/trailship/record"
)

// writer is the single worker that drains the queue, encodes records and
// pushes frames at the connection. Exactly one writer runs per Conn.
type writer struct {
	queue     *queue.Queue
	conn      *Conn
	enc       framing.Encoder
	retryCap  int
	onFailure func(record.Record, error)

	stop      chan struct{} // hard abort, closed by Client.Close on timeout
	done      chan struct{} // closed when run returns
	delivered atomic.Uint64
	dropped   atomic.Uint64
	inflight  atomic.Bool
}

func newWriter(q *queue.Queue, conn *Conn, enc framing.Encoder, retryCap int, onFailure func(record.Record, error)) *writer {
	return &writer{
		queue:     q,
		conn:      conn,
		enc:       enc,
		retryCap:  retryCap,
		onFailure: onFailure,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (w *writer) run() {
	defer close(w.done)
	for {
		// The in-flight flag is raised under the queue's lock so Flush
		// never observes the record gone from the queue but not yet
		// in flight.
		rec, ok := w.queue.PopWith(func() { w.inflight.Store(true) })
		if !ok {
			return
		}
		if w.stopped() {
			// Hard shutdown: signal instead of sending.
			w.fail(rec, ErrClosed)
		} else {
			w.ship(rec)
		}
		w.inflight.Store(false)
	}
}

// ship delivers one record, reconnecting as needed. The record stays at the
// front of the line until it is on the wire or its retry budget is spent;
// nothing behind it can overtake.
func (w *writer) ship(rec record.Record) {
	frame, err := w.enc.Encode(rec)
	if err != nil {
		debug("shipper: encode rejected:", err)
		droppedTotal.WithLabelValues("encode").Inc()
		w.fail(rec, err)
		return
	}

	attempts := 0
	for {
		if err := w.ensureConnected(); err != nil {
			droppedTotal.WithLabelValues("closed").Inc()
			w.fail(rec, err)
			return
		}
		err := w.conn.Send(frame)
		if err == nil {
			w.delivered.Add(1)
			deliveredTotal.Inc()
			w.conn.backoff.Reset()
			return
		}
		log.Println("shipper:", err)
		attempts++
		retriesTotal.Inc()
		if attempts > w.retryCap {
			droppedTotal.WithLabelValues("retry_exhausted").Inc()
			w.fail(rec, err)
			return
		}
	}
}

// ensureConnected blocks until the connection is up, sleeping the backoff
// schedule between dial attempts. Connect errors are transient and not
// charged against any record; only a hard stop or Close gets out of the
// loop without a connection.
func (w *writer) ensureConnected() error {
	for {
		err := w.conn.Connect()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		delay := w.conn.backoff.Next()
		debug("shipper: connect failed, retrying in", delay, ":", err)
		select {
		case <-w.stop:
			return ErrClosed
		case <-time.After(delay):
		}
	}
}

func (w *writer) fail(rec record.Record, err error) {
	w.dropped.Add(1)
	if w.onFailure != nil {
		w.onFailure(rec, err)
		return
	}
	log.Println("shipper: dropping record:", err)
}

func (w *writer) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}
