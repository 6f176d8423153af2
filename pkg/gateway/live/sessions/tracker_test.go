package sessions

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("s2", Handle{})
	u2 := tr.Register("s1", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}
	if ids := tr.IDs(); !reflect.DeepEqual(ids, []string{"s1", "s2"}) {
		t.Fatalf("ids=%v", ids)
	}

	u1()
	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_WaitTimesOutWhileSessionsOpen(t *testing.T) {
	tr := NewTracker()
	tr.Register("s1", Handle{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); ok {
		t.Fatalf("expected Wait to time out")
	}
}

func TestTracker_ReRegisterReplaces(t *testing.T) {
	tr := NewTracker()
	var oldCanceled, newCanceled atomic.Int64
	tr.Register("s1", Handle{Cancel: func() { oldCanceled.Add(1) }})
	unregister := tr.Register("s1", Handle{Cancel: func() { newCanceled.Add(1) }})

	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	tr.CancelAll()
	if oldCanceled.Load() != 0 || newCanceled.Load() != 1 {
		t.Fatalf("cancel calls old=%d new=%d", oldCanceled.Load(), newCanceled.Load())
	}

	unregister()
	if ok := tr.Wait(context.Background()); !ok {
		t.Fatalf("expected Wait to return true")
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.Register("s1", Handle{Cancel: func() { c1.Add(1) }})
	tr.Register("s2", Handle{Cancel: func() { c2.Add(1) }})
	tr.Register("s3", Handle{})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_NotifyAll_BestEffort(t *testing.T) {
	tr := NewTracker()
	var got atomic.Value
	tr.Register("s1", Handle{Notify: func(message string) error {
		got.Store(message)
		return nil
	}})
	tr.Register("s2", Handle{Notify: func(string) error {
		return errors.New("outbound queue full")
	}})

	if sent := tr.NotifyAll("Server is restarting"); sent != 1 {
		t.Fatalf("sent=%d, want 1", sent)
	}
	if got.Load() != "Server is restarting" {
		t.Fatalf("message=%v", got.Load())
	}
}

func TestTracker_NilSafe(t *testing.T) {
	var tr *Tracker
	tr.Register("s1", Handle{})()
	if tr.Count() != 0 || tr.NotifyAll("x") != 0 || tr.CancelAll() != 0 || !tr.Wait(context.Background()) {
		t.Fatalf("nil tracker should be inert")
	}
}
