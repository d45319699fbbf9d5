package delayqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

type recorder struct {
	got []string
}

func (r *recorder) record(msg string) {
	r.got = append(r.got, msg)
}

func newTestQueue() (*Queue[string], *clockwork.FakeClock, *recorder) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New[string](Config{Clock: clock, TickInterval: DefaultTickInterval})
	rec := &recorder{}
	q.Listen(rec.record)
	return q, clock, rec
}

func TestNothingReleasedBeforeDelaySet(t *testing.T) {
	q, clock, rec := newTestQueue()

	q.Write("a")
	clock.Advance(time.Hour)
	q.Release()

	if len(rec.got) != 0 {
		t.Fatalf("expected no releases without a delay, got %v", rec.got)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 buffered entry, got %d", q.Len())
	}
	if _, ok := q.Delay(); ok {
		t.Fatalf("expected delay to be unset")
	}
}

func TestReleaseIsFIFO(t *testing.T) {
	q, clock, rec := newTestQueue()
	q.SetDelay(time.Second)

	for _, msg := range []string{"a", "b", "c", "d"} {
		q.Write(msg)
		clock.Advance(100 * time.Millisecond)
	}

	// a was written at t=0 and b at t=100ms; at t=1100ms both are due
	clock.Advance(700 * time.Millisecond)
	q.Release()
	if diff := cmp.Diff([]string{"a", "b"}, rec.got); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(time.Second)
	q.Release()
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, rec.got); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestHeadOfLineBlocksLaterEntries(t *testing.T) {
	q, clock, rec := newTestQueue()
	now := clock.Now()

	q.WriteAt("late", now)
	q.WriteAt("early", now.Add(-time.Minute))
	q.SetDelay(30 * time.Second)

	if len(rec.got) != 0 {
		t.Fatalf("expected head to block release, got %v", rec.got)
	}

	clock.Advance(30 * time.Second)
	q.Release()
	if diff := cmp.Diff([]string{"late", "early"}, rec.got); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicatesArePreserved(t *testing.T) {
	q, _, rec := newTestQueue()

	q.Write("x")
	q.Write("x")
	q.SetDelay(0)

	if diff := cmp.Diff([]string{"x", "x"}, rec.got); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
}

func TestLoweringDelayReleasesBurst(t *testing.T) {
	q, clock, rec := newTestQueue()
	q.SetDelay(20 * time.Second)

	q.Write("a")
	clock.Advance(2 * time.Second)
	q.Write("b")
	clock.Advance(2 * time.Second)
	q.Write("c")
	clock.Advance(time.Second)

	// now = 5s; with a 3s delay the cutoff is 2s, so a and b are due
	q.SetDelay(3 * time.Second)
	if diff := cmp.Diff([]string{"a", "b"}, rec.got); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
	if q.Len() != 1 {
		t.Fatalf("expected c to stay buffered, got %d entries", q.Len())
	}
}

func TestRaisingDelayDoesNotRetract(t *testing.T) {
	q, clock, rec := newTestQueue()
	q.SetDelay(time.Second)

	q.Write("a")
	clock.Advance(time.Second)
	q.Release()
	q.Write("b")

	q.SetDelay(time.Minute)
	clock.Advance(30 * time.Second)
	q.Release()

	if diff := cmp.Diff([]string{"a"}, rec.got); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
}

func TestNegativeDelayClampsToZero(t *testing.T) {
	q, _, rec := newTestQueue()
	q.Write("a")
	q.SetDelay(-5 * time.Second)

	if d, _ := q.Delay(); d != 0 {
		t.Errorf("expected delay 0, got %s", d)
	}
	if len(rec.got) != 1 {
		t.Errorf("expected a to be released, got %v", rec.got)
	}
}

func TestListenersInSubscriptionOrder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := New[int](Config{Clock: clock})

	var order []string
	first := q.Listen(func(n int) { order = append(order, "first") })
	q.Listen(func(n int) { order = append(order, "second") })

	q.Write(1)
	q.SetDelay(0)
	if diff := cmp.Diff([]string{"first", "second"}, order); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}

	q.Unlisten(first)
	q.Unlisten(ListenerID(999))
	q.Write(2)
	q.Release()
	if diff := cmp.Diff([]string{"first", "second", "second"}, order); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestListenerMayWrite(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := New[int](Config{Clock: clock})

	var got []int
	q.Listen(func(n int) {
		got = append(got, n)
		if n == 1 {
			q.Write(2)
		}
	})

	q.Write(1)
	q.SetDelay(0)

	if diff := cmp.Diff([]int{1}, got); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
	if q.Len() != 1 {
		t.Fatalf("expected the nested write to be buffered, got %d", q.Len())
	}
}

func TestRunReleasesOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := New[string](Config{Clock: clock, TickInterval: 300 * time.Millisecond})

	released := make(chan string, 1)
	q.Listen(func(msg string) { released <- msg })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker was never registered: %v", err)
	}

	q.SetDelay(time.Second)
	q.Write("a")
	clock.Advance(1200 * time.Millisecond)

	select {
	case msg := <-released:
		if msg != "a" {
			t.Errorf("expected a, got %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tick release")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error from Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReleaseAtExactDelayBoundary(t *testing.T) {
	q, clock, rec := newTestQueue()
	q.SetDelay(5 * time.Second)
	q.Write("board_state")

	clock.Advance(4999 * time.Millisecond)
	q.Release()
	if len(rec.got) != 0 || q.Len() != 1 {
		t.Fatalf("expected entry held at t=4999ms, released=%v len=%d", rec.got, q.Len())
	}

	clock.Advance(time.Millisecond)
	q.Release()
	if diff := cmp.Diff([]string{"board_state"}, rec.got); diff != "" {
		t.Fatalf("released mismatch at t=5000ms (-want +got):\n%s", diff)
	}
}
