package alarm

import (
	"errors"
	"sync"
	"testing"
	"time"
)

const delay = 300 * time.Millisecond

func newTestController(t *testing.T) (*Controller, *FakeSink, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	sink := NewFakeSink()
	return NewController(sink, WithClock(clock)), sink, clock
}

func TestController_InitialState(t *testing.T) {
	c, sink, clock := newTestController(t)

	if got := c.State(); got != Idle {
		t.Errorf("expected Idle, got %s", got)
	}
	if sink.Starts() != 0 || sink.Stops() != 0 {
		t.Error("new controller should not touch the sink")
	}
	if clock.Pending() != 0 {
		t.Error("new controller should not arm a timer")
	}
}

func TestController_SoundsAfterDelay(t *testing.T) {
	c, sink, clock := newTestController(t)

	if got := c.Update(false, true, delay); got != PendingClose {
		t.Fatalf("expected PendingClose, got %s", got)
	}
	if clock.Pending() != 1 {
		t.Fatalf("expected one timer, got %d", clock.Pending())
	}

	clock.Advance(299 * time.Millisecond)
	if sink.Playing() {
		t.Fatal("alarm must not sound before the delay elapses")
	}
	if got := c.State(); got != PendingClose {
		t.Fatalf("expected PendingClose before delay, got %s", got)
	}

	clock.Advance(1 * time.Millisecond)
	if !sink.Playing() {
		t.Fatal("alarm should sound once the delay elapses")
	}
	if got := c.State(); got != Sounding {
		t.Errorf("expected Sounding, got %s", got)
	}
	if sink.Starts() != 1 {
		t.Errorf("expected 1 start, got %d", sink.Starts())
	}
}

func TestController_ReopenBeforeDelayNeverSounds(t *testing.T) {
	c, sink, clock := newTestController(t)

	c.Update(false, true, delay)
	clock.Advance(100 * time.Millisecond)
	if got := c.Update(true, true, delay); got != Idle {
		t.Fatalf("expected Idle after reopening, got %s", got)
	}
	if clock.Pending() != 0 {
		t.Errorf("timer should be cancelled, %d pending", clock.Pending())
	}

	clock.Advance(10 * time.Second)
	if sink.Starts() != 0 {
		t.Errorf("alarm must never sound after a blink, got %d starts", sink.Starts())
	}
	if got := c.State(); got != Idle {
		t.Errorf("expected Idle, got %s", got)
	}
}

func TestController_ImmediateReopenNeverSounds(t *testing.T) {
	c, sink, clock := newTestController(t)

	c.Update(false, true, delay)
	c.Update(true, true, delay)

	clock.Advance(delay)
	if sink.Starts() != 0 {
		t.Errorf("expected no alarm, got %d starts", sink.Starts())
	}
}

func TestController_StaleTimerCallbackIsIgnored(t *testing.T) {
	c, sink, _ := newTestController(t)

	// Simulate a timer that was dispatched before being cancelled.
	c.Update(false, true, delay)
	c.mu.Lock()
	staleGen := c.gen
	c.mu.Unlock()
	c.Update(true, true, delay)

	c.fire(staleGen)
	if sink.Starts() != 0 {
		t.Error("a cancelled timer must not start the alarm")
	}
	if got := c.State(); got != Idle {
		t.Errorf("expected Idle, got %s", got)
	}

	// A new closure arms a fresh timer; the old generation still cannot fire it.
	c.Update(false, true, delay)
	c.fire(staleGen)
	if sink.Starts() != 0 {
		t.Error("stale generation fired the new pending timer")
	}
}

func TestController_RepeatedClosedKeepsOneTimer(t *testing.T) {
	c, sink, clock := newTestController(t)

	c.Update(false, true, delay)
	clock.Advance(150 * time.Millisecond)
	c.Update(false, true, delay)
	c.Update(false, true, delay)

	if clock.Pending() != 1 {
		t.Fatalf("expected exactly one timer, got %d", clock.Pending())
	}

	// 300ms from the first closed observation, not the last.
	clock.Advance(150 * time.Millisecond)
	if !sink.Playing() {
		t.Fatal("alarm should sound 300ms after the first closed observation")
	}

	clock.Advance(time.Second)
	if sink.Starts() != 1 {
		t.Errorf("expected exactly one start, got %d", sink.Starts())
	}
}

func TestController_SoundingContinuesWhileClosed(t *testing.T) {
	c, sink, clock := newTestController(t)

	c.Update(false, true, delay)
	clock.Advance(delay)

	for i := 0; i < 5; i++ {
		if got := c.Update(false, true, delay); got != Sounding {
			t.Fatalf("iteration %d: expected Sounding, got %s", i, got)
		}
		clock.Advance(50 * time.Millisecond)
	}

	if sink.Starts() != 1 {
		t.Errorf("expected 1 start, got %d", sink.Starts())
	}
	if sink.Overlapped() {
		t.Error("sink was started twice without a stop")
	}
}

func TestController_ReopenStopsAlarm(t *testing.T) {
	c, sink, clock := newTestController(t)

	c.Update(false, true, delay)
	clock.Advance(delay)

	if got := c.Update(true, true, delay); got != Idle {
		t.Fatalf("expected Idle, got %s", got)
	}
	if sink.Playing() {
		t.Error("alarm should stop when eyes open")
	}
	if sink.Stops() != 1 {
		t.Errorf("expected 1 stop, got %d", sink.Stops())
	}
}

func TestController_TrackingOffStopsSynchronously(t *testing.T) {
	t.Run("while sounding", func(t *testing.T) {
		c, sink, clock := newTestController(t)

		c.Update(false, true, delay)
		clock.Advance(delay)

		if got := c.Update(false, false, delay); got != Idle {
			t.Fatalf("expected Idle, got %s", got)
		}
		if sink.Playing() {
			t.Error("alarm should be stopped before Update returns")
		}
	})

	t.Run("while pending", func(t *testing.T) {
		c, sink, clock := newTestController(t)

		c.Update(false, true, delay)
		c.Stop()

		if clock.Pending() != 0 {
			t.Errorf("expected no pending timer, got %d", clock.Pending())
		}
		clock.Advance(time.Second)
		if sink.Starts() != 0 {
			t.Errorf("expected no alarm after tracking stopped, got %d starts", sink.Starts())
		}
	})

	t.Run("closed eyes while not tracking", func(t *testing.T) {
		c, sink, clock := newTestController(t)

		if got := c.Update(false, false, delay); got != Idle {
			t.Fatalf("expected Idle, got %s", got)
		}
		clock.Advance(time.Second)
		if sink.Starts() != 0 || clock.Pending() != 0 {
			t.Error("nothing should happen while tracking is off")
		}
	})
}

func TestController_OpenWhileIdleIsNoop(t *testing.T) {
	c, sink, clock := newTestController(t)

	var transitions int
	c.observers = append(c.observers, func(Transition) { transitions++ })

	for i := 0; i < 10; i++ {
		if got := c.Update(true, true, delay); got != Idle {
			t.Fatalf("iteration %d: expected Idle, got %s", i, got)
		}
	}

	if clock.Pending() != 0 {
		t.Errorf("expected no timers, got %d", clock.Pending())
	}
	if sink.Starts() != 0 || sink.Stops() != 0 {
		t.Error("expected no sink side effects")
	}
	if transitions != 0 {
		t.Errorf("expected no transitions, got %d", transitions)
	}
}

func TestController_ZeroDelaySoundsImmediately(t *testing.T) {
	c, sink, clock := newTestController(t)

	if got := c.Update(false, true, 0); got != Sounding {
		t.Fatalf("expected Sounding, got %s", got)
	}
	if !sink.Playing() {
		t.Error("alarm should sound immediately with zero delay")
	}
	if clock.Pending() != 0 {
		t.Errorf("zero delay should not arm a timer, got %d", clock.Pending())
	}
}

func TestController_SinkFailureKeepsBookkeeping(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	sink := NewFakeSink()
	sink.StartError = errors.New("no audio device")

	var got []Transition
	c := NewController(sink, WithClock(clock), WithObserver(func(t Transition) { got = append(got, t) }))

	c.Update(false, true, delay)
	clock.Advance(delay)

	if c.State() != Sounding {
		t.Fatalf("expected Sounding despite sink failure, got %s", c.State())
	}
	if len(got) != 2 || got[1].SinkErr == nil {
		t.Fatalf("expected the sink error on the PendingClose->Sounding transition, got %+v", got)
	}

	if s := c.Update(true, true, delay); s != Idle {
		t.Errorf("expected Idle after reopening, got %s", s)
	}
}

func TestController_NilSink(t *testing.T) {
	clock := NewFakeClock(time.Now())
	c := NewController(nil, WithClock(clock))

	c.Update(false, true, delay)
	clock.Advance(delay)
	if c.State() != Sounding {
		t.Errorf("expected Sounding, got %s", c.State())
	}
	c.Stop()
	if c.State() != Idle {
		t.Errorf("expected Idle, got %s", c.State())
	}
}

func TestController_Observer(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	var got []Transition
	c := NewController(NewFakeSink(), WithClock(clock), WithObserver(func(t Transition) { got = append(got, t) }))

	c.Update(false, true, delay)
	clock.Advance(delay)
	clock.Advance(700 * time.Millisecond)
	c.Update(true, true, delay)

	want := []struct{ from, to State }{
		{Idle, PendingClose},
		{PendingClose, Sounding},
		{Sounding, Idle},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].From != w.from || got[i].To != w.to {
			t.Errorf("transition %d = %s->%s, want %s->%s", i, got[i].From, got[i].To, w.from, w.to)
		}
	}
	if got[1].ClosedFor != delay {
		t.Errorf("alarm started after %v closed, want %v", got[1].ClosedFor, delay)
	}
	if got[2].ClosedFor != time.Second {
		t.Errorf("alarm stopped after %v closed, want 1s", got[2].ClosedFor)
	}
}

func TestController_ObserversSeeStateOrder(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	var (
		mu      sync.Mutex
		got     []string
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	observer := func(tr Transition) {
		mu.Lock()
		got = append(got, tr.From.String()+"->"+tr.To.String())
		mu.Unlock()
		if tr.To == Sounding {
			close(entered)
			<-release
		}
	}
	c := NewController(NewFakeSink(), WithClock(clock), WithObserver(observer))
	c.Update(false, true, delay)

	timerDone := make(chan struct{})
	go func() {
		defer close(timerDone)
		clock.Advance(delay)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never delivered the alarm start")
	}

	// Eyes reopen while the alarm start is still being delivered.
	frameDone := make(chan struct{})
	go func() {
		defer close(frameDone)
		c.Update(true, true, delay)
	}()

	select {
	case <-frameDone:
		t.Fatal("alarm stop delivered before alarm start finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	for _, ch := range []chan struct{}{timerDone, frameDone} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("notification never completed")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"idle->pending_close", "pending_close->sounding", "sounding->idle"}
	if len(got) != len(want) {
		t.Fatalf("observer order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("observer order = %v, want %v", got, want)
		}
	}
	if c.State() != Idle {
		t.Errorf("final state = %s, want idle", c.State())
	}
}

func TestController_Status(t *testing.T) {
	c, _, clock := newTestController(t)
	start := clock.Now()

	c.Update(false, true, delay)
	st := c.Status()
	if st.State != PendingClose {
		t.Errorf("expected PendingClose, got %s", st.State)
	}
	if !st.PendingSince.Equal(start) {
		t.Errorf("PendingSince = %v, want %v", st.PendingSince, start)
	}

	c.Stop()
	if st := c.Status(); !st.PendingSince.IsZero() {
		t.Errorf("expected zero PendingSince in Idle, got %v", st.PendingSince)
	}
}

func TestController_RealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping wall-clock test in short mode")
	}

	sink := NewFakeSink()
	c := NewController(sink)

	c.Update(false, true, 20*time.Millisecond)
	c.Update(true, true, 20*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	if sink.Starts() != 0 {
		t.Fatal("cancelled wall-clock timer sounded the alarm")
	}

	c.Update(false, true, 20*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for !sink.Playing() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !sink.Playing() {
		t.Fatal("wall-clock timer never sounded the alarm")
	}
	c.Stop()
}

func TestController_ConcurrentUpdates(t *testing.T) {
	sink := NewFakeSink()
	c := NewController(sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Update((i+j)%3 == 0, true, time.Millisecond)
			}
		}(i)
	}
	wg.Wait()
	c.Stop()

	if sink.Overlapped() {
		t.Error("sink was started twice without a stop")
	}
	if sink.Playing() {
		t.Error("alarm still sounding after Stop")
	}
}

func TestMultiSink(t *testing.T) {
	a := NewFakeSink()
	b := NewFakeSink()
	b.StartError = errors.New("broker down")
	m := MultiSink{a, b}

	if err := m.Start(); err == nil {
		t.Error("expected joined error")
	}
	if !a.Playing() {
		t.Error("first sink should still start when the second fails")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("unexpected stop error: %v", err)
	}
	if a.Stops() != 1 || b.Stops() != 1 {
		t.Error("every sink should be stopped")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Idle:         "idle",
		PendingClose: "pending_close",
		Sounding:     "sounding",
		State(42):    "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
