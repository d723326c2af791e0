// Package alarm debounces the closed-eyes signal and drives the alarm sound.
package alarm

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the controller's alarm state.
type State int

const (
	// Idle means no alarm and no pending timer.
	Idle State = iota
	// PendingClose means eyes were seen closed and the delay timer is running.
	PendingClose
	// Sounding means the alarm is on.
	Sounding
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingClose:
		return "pending_close"
	case Sounding:
		return "sounding"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the controller.
type Status struct {
	State State `json:"state"`
	// PendingSince is when eyes were first seen closed. It is zero in Idle.
	PendingSince time.Time `json:"pending_since,omitempty"`
}

// Transition describes a state change.
type Transition struct {
	From State
	To   State
	At   time.Time
	// ClosedFor is how long eyes had been closed when the alarm started or
	// stopped. It is zero for transitions into or out of PendingClose.
	ClosedFor time.Duration
	// SinkErr holds the sink failure on this transition, if any.
	SinkErr error
}

// Observer is notified of every transition, after the controller lock
// has been released. Transitions arrive in the order the state changed.
// An observer must not call back into the Controller.
type Observer func(Transition)

// Controller is the debounce/alarm state machine. Each tracking session
// owns one Controller; it is safe for concurrent use because the delay
// timer fires on its own goroutine.
type Controller struct {
	mu           sync.Mutex
	state        State
	pendingSince time.Time
	timer        Timer
	// gen invalidates callbacks of timers that were cancelled but had
	// already been dispatched.
	gen uint64

	sink      Sink
	clock     Clock
	observers []Observer

	// notifyMu is taken before mu is released so observers see
	// transitions in state-change order.
	notifyMu sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(ctl *Controller) { ctl.observers = append(ctl.observers, o) }
}

// NewController creates a Controller in the Idle state. A nil sink is
// replaced by NopSink.
func NewController(sink Sink, opts ...Option) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	c := &Controller{
		state: Idle,
		sink:  sink,
		clock: RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update feeds one observation into the state machine and returns the
// resulting state. A delay of zero or less sounds the alarm immediately.
func (c *Controller) Update(eyesOpen, tracking bool, delay time.Duration) State {
	c.mu.Lock()
	var transitions []Transition

	switch {
	case !tracking:
		transitions = c.reset()

	case eyesOpen:
		transitions = c.reset()

	case c.state == Idle:
		transitions = append(transitions, c.beginPending(delay)...)

	default:
		// PendingClose keeps its single timer; Sounding keeps sounding.
	}

	state := c.state
	c.unlockAndNotify(transitions)
	return state
}

// Stop cancels any pending timer and silences the alarm. It is the same
// as an update with tracking disabled.
func (c *Controller) Stop() {
	c.Update(true, false, 0)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, PendingSince: c.pendingSince}
}

// reset returns the controller to Idle, cancelling the timer and
// stopping the sink. Must be called with c.mu held.
func (c *Controller) reset() []Transition {
	now := c.clock.Now()

	switch c.state {
	case PendingClose:
		c.cancelTimer()
		t := Transition{From: PendingClose, To: Idle, At: now}
		c.state = Idle
		c.pendingSince = time.Time{}
		return []Transition{t}

	case Sounding:
		t := Transition{From: Sounding, To: Idle, At: now, ClosedFor: now.Sub(c.pendingSince)}
		if err := c.sink.Stop(); err != nil {
			log.WithError(err).Warn("alarm: failed to stop sound")
			t.SinkErr = err
		}
		c.state = Idle
		c.pendingSince = time.Time{}
		return []Transition{t}
	}

	return nil
}

// beginPending moves Idle to PendingClose and arms the delay timer.
// Must be called with c.mu held.
func (c *Controller) beginPending(delay time.Duration) []Transition {
	now := c.clock.Now()
	c.state = PendingClose
	c.pendingSince = now
	transitions := []Transition{{From: Idle, To: PendingClose, At: now}}

	if delay <= 0 {
		return append(transitions, c.sound())
	}

	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(delay, func() { c.fire(gen) })
	log.WithField("delay", delay).Debug("alarm: eyes closed, timer armed")
	return transitions
}

// fire runs when the delay timer expires.
func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.state != PendingClose || c.gen != gen {
		// Cancelled after dispatch; the reopen already won.
		c.mu.Unlock()
		return
	}
	c.timer = nil
	t := c.sound()
	c.unlockAndNotify([]Transition{t})
}

// sound moves PendingClose to Sounding and starts the sink.
// Must be called with c.mu held.
func (c *Controller) sound() Transition {
	now := c.clock.Now()
	t := Transition{From: PendingClose, To: Sounding, At: now, ClosedFor: now.Sub(c.pendingSince)}

	c.state = Sounding
	if err := c.sink.Start(); err != nil {
		// The state machine carries on; only the sound is lost.
		log.WithError(err).Warn("alarm: failed to start sound")
		t.SinkErr = err
	}
	return t
}

// cancelTimer stops the pending timer. Must be called with c.mu held.
func (c *Controller) cancelTimer() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// unlockAndNotify releases c.mu and delivers transitions. Must be called
// with c.mu held.
func (c *Controller) unlockAndNotify(transitions []Transition) {
	if len(transitions) == 0 {
		c.mu.Unlock()
		return
	}
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	c.notify(transitions)
}

func (c *Controller) notify(transitions []Transition) {
	for _, t := range transitions {
		log.WithFields(log.Fields{
			"from":       t.From.String(),
			"to":         t.To.String(),
			"closed_for": t.ClosedFor,
		}).Debug("alarm: transition")
		for _, o := range c.observers {
			o(t)
		}
	}
}
