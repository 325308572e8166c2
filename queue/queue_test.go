package queue

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/opentrail/trailship/record"
)

func rec(msg string) record.Record {
	return record.Record{
		Timestamp: time.Now(),
		Severity:  record.Info,
		Source:    "test",
		Message:   msg,
	}
}

func TestFIFO(t *testing.T) {
	q := New(16, Block)
	for i := 0; i < 10; i++ {
		if err := q.Push(rec(strconv.Itoa(i))); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 10; i++ {
		got, ok := q.Pop()
		if !ok {
			t.Fatal("queue closed unexpectedly")
		}
		if got.Message != strconv.Itoa(i) {
			t.Errorf("pop %d = %q", i, got.Message)
		}
	}
}

func TestBlockPolicyAppliesBackpressure(t *testing.T) {
	q := New(1, Block)
	if err := q.Push(rec("first")); err != nil {
		t.Fatal(err)
	}

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Push(rec("second"))
	}()

	select {
	case err := <-unblocked:
		t.Fatalf("second push returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := q.Pop(); !ok {
		t.Fatal("pop failed")
	}
	select {
	case err := <-unblocked:
		if err != nil {
			t.Fatalf("second push failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second push still blocked after pop")
	}
	if got, _ := q.Pop(); got.Message != "second" {
		t.Errorf("pop = %q, want second", got.Message)
	}
}

func TestDropPolicyRejectsImmediately(t *testing.T) {
	q := New(1, Drop)
	if err := q.Push(rec("first")); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	err := q.Push(rec("second"))
	if !errors.Is(err, ErrFull) {
		t.Fatalf("err = %v, want ErrFull", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("drop push blocked for %v", elapsed)
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(4, Block)
	got := make(chan record.Record, 1)
	go func() {
		r, _ := q.Pop()
		got <- r
	}()
	time.Sleep(20 * time.Millisecond)
	if err := q.Push(rec("wake")); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-got:
		if r.Message != "wake" {
			t.Errorf("pop = %q", r.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("pop never woke")
	}
}

func TestCloseUnblocksEveryone(t *testing.T) {
	q := New(1, Block)
	if err := q.Push(rec("fill")); err != nil {
		t.Fatal(err)
	}

	pushErr := make(chan error, 1)
	go func() { pushErr <- q.Push(rec("blocked")) }()
	time.Sleep(20 * time.Millisecond)

	q.Close()
	select {
	case err := <-pushErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("blocked push err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("push still blocked after close")
	}

	if err := q.Push(rec("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("push after close err = %v, want ErrClosed", err)
	}

	// Queued record stays poppable; then pop reports closed.
	if got, ok := q.Pop(); !ok || got.Message != "fill" {
		t.Errorf("pop after close = %q, %v", got.Message, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("pop on closed empty queue reported ok")
	}

	q.Close() // idempotent
}

func TestPopWithHandoffHook(t *testing.T) {
	q := New(4, Block)
	if err := q.Push(rec("one")); err != nil {
		t.Fatal(err)
	}
	calls := 0
	got, ok := q.PopWith(func() { calls++ })
	if !ok || got.Message != "one" {
		t.Fatalf("pop = %q, %v", got.Message, ok)
	}
	if calls != 1 {
		t.Errorf("take ran %d times, want 1", calls)
	}
	q.Close()
	if _, ok := q.PopWith(func() { calls++ }); ok {
		t.Error("pop on closed empty queue reported ok")
	}
	if calls != 1 {
		t.Errorf("take ran on closed empty queue: %d calls", calls)
	}
}

func TestDrain(t *testing.T) {
	q := New(8, Block)
	for i := 0; i < 3; i++ {
		if err := q.Push(rec(strconv.Itoa(i))); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := q.Drain(); err == nil {
		t.Fatal("drain before close did not error")
	}
	q.Close()
	rest, err := q.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 {
		t.Fatalf("drained %d records, want 3", len(rest))
	}
	for i, r := range rest {
		if r.Message != strconv.Itoa(i) {
			t.Errorf("drained[%d] = %q", i, r.Message)
		}
	}
	if q.Depth() != 0 {
		t.Errorf("depth after drain = %d", q.Depth())
	}
}
