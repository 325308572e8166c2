package shipper

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opentrail/trailship/framing"
	"github.com/opentrail/trailship/queue"
	"github.com/opentrail/trailship/record"
	"github.com/opentrail/trailship/testutil"
)

type failureLog struct {
	mu     sync.Mutex
	events []failure
}

type failure struct {
	rec record.Record
	err error
}

func (l *failureLog) add(rec record.Record, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, failure{rec, err})
}

func (l *failureLog) all() []failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]failure(nil), l.events...)
}

type writerHarness struct {
	transport *testutil.Transport
	queue     *queue.Queue
	conn      *Conn
	writer    *writer
	failures  *failureLog
}

func newWriterHarness(t *testing.T, tr *testutil.Transport, retryCap int) *writerHarness {
	t.Helper()
	enc, err := framing.New(framing.Plain, framing.Options{})
	if err != nil {
		t.Fatal(err)
	}
	failures := &failureLog{}
	q := queue.New(64, queue.Block)
	conn := newConn(tr, "collector:2253", nil, time.Second, NewBackoff(time.Millisecond, 5*time.Millisecond))
	w := newWriter(q, conn, enc, retryCap, failures.add)
	go w.run()
	return &writerHarness{transport: tr, queue: q, conn: conn, writer: w, failures: failures}
}

func (h *writerHarness) teardown(t *testing.T) {
	t.Helper()
	h.queue.Close()
	select {
	case <-h.writer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
	h.conn.Close()
}

func submit(t *testing.T, q *queue.Queue, msgs ...string) {
	t.Helper()
	for _, msg := range msgs {
		err := q.Push(record.Record{
			Timestamp: time.Now(),
			Severity:  record.Info,
			Source:    "test",
			Message:   msg,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func messages(t *testing.T, frames [][]byte) []string {
	t.Helper()
	out := make([]string, len(frames))
	for i, frame := range frames {
		rec, err := framing.DecodePlain(string(frame))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		out[i] = rec.Message
	}
	return out
}

func TestWriterDeliversInOrder(t *testing.T) {
	h := newWriterHarness(t, &testutil.Transport{}, 3)
	defer h.teardown(t)

	submit(t, h.queue, "A", "B", "C")
	frames, err := h.transport.Sink.WaitFrames(3, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	got := messages(t, frames)
	for i, want := range []string{"A", "B", "C"} {
		if got[i] != want {
			t.Errorf("frame %d = %q, want %q", i, got[i], want)
		}
	}
	if len(h.failures.all()) != 0 {
		t.Errorf("unexpected failures: %v", h.failures.all())
	}
}

func TestWriterRedeliversAfterReconnect(t *testing.T) {
	// First conn dies after delivering A; B must be re-sent on the new
	// conn ahead of C, with no duplicates.
	tr := &testutil.Transport{FailWrites: []int{1}}
	h := newWriterHarness(t, tr, 3)
	defer h.teardown(t)

	submit(t, h.queue, "A", "B", "C")
	frames, err := tr.Sink.WaitFrames(3, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	got := messages(t, frames)
	for i, want := range []string{"A", "B", "C"} {
		if got[i] != want {
			t.Errorf("frame %d = %q, want %q", i, got[i], want)
		}
	}
	if dials := tr.Dials(); dials < 2 {
		t.Errorf("dials = %d, want a reconnect", dials)
	}
	if len(h.failures.all()) != 0 {
		t.Errorf("unexpected failures: %v", h.failures.all())
	}
}

func TestWriterConnectBackoffThenDelivery(t *testing.T) {
	tr := &testutil.Transport{FailDials: 2}
	h := newWriterHarness(t, tr, 3)
	defer h.teardown(t)

	submit(t, h.queue, "A")
	frames, err := tr.Sink.WaitFrames(1, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got := messages(t, frames); got[0] != "A" {
		t.Errorf("frame = %q", got[0])
	}
	if dials := tr.Dials(); dials != 3 {
		t.Errorf("dials = %d, want 3", dials)
	}
	if len(h.failures.all()) != 0 {
		t.Errorf("connect retries must not charge the record: %v", h.failures.all())
	}
}

func TestWriterRetryCapDropsRecord(t *testing.T) {
	// Every conn for the first record breaks before writing; retryCap=2
	// allows 3 attempts total, then the record is dropped with exactly
	// one failure event. The next record goes through untouched.
	tr := &testutil.Transport{FailWrites: []int{0, 0, 0}}
	h := newWriterHarness(t, tr, 2)
	defer h.teardown(t)

	submit(t, h.queue, "doomed", "survivor")
	frames, err := tr.Sink.WaitFrames(1, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got := messages(t, frames); got[0] != "survivor" {
		t.Errorf("frame = %q, want survivor", got[0])
	}
	events := h.failures.all()
	if len(events) != 1 {
		t.Fatalf("failure events = %d, want exactly 1", len(events))
	}
	if events[0].rec.Message != "doomed" {
		t.Errorf("failed record = %q", events[0].rec.Message)
	}
	var sendErr *SendError
	if !errors.As(events[0].err, &sendErr) {
		t.Errorf("failure reason = %v, want SendError", events[0].err)
	}
}

func TestWriterSkipsUnencodableRecord(t *testing.T) {
	h := newWriterHarness(t, &testutil.Transport{}, 3)
	defer h.teardown(t)

	bad := record.Record{Timestamp: time.Now(), Severity: record.Info, Source: "test"}
	if err := h.queue.Push(bad); err != nil {
		t.Fatal(err)
	}
	submit(t, h.queue, "good")

	frames, err := h.transport.Sink.WaitFrames(1, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got := messages(t, frames); got[0] != "good" {
		t.Errorf("frame = %q, want good", got[0])
	}
	events := h.failures.all()
	if len(events) != 1 {
		t.Fatalf("failure events = %d, want 1", len(events))
	}
	if !framing.IsEncodeError(events[0].err) {
		t.Errorf("failure reason = %v, want EncodeError", events[0].err)
	}
}
