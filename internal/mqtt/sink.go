package mqtt

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the sink cannot keep up with the broker.
var ErrQueueFull = errors.New("mqtt: publish queue full")

const queueSize = 32

// AlarmSink publishes ALARM_ON on Start and ALARM_OFF on Stop. Publishing
// happens on a background goroutine in order, so a slow broker never
// holds up an alarm transition.
type AlarmSink struct {
	pub     Publisher
	now     func() time.Time
	session func() string

	queue chan Event
	done  chan struct{}

	closeOnce sync.Once
}

// SinkOption configures an AlarmSink.
type SinkOption func(*AlarmSink)

// WithSession tags every event with the current session id.
func WithSession(f func() string) SinkOption {
	return func(s *AlarmSink) { s.session = f }
}

// WithNow replaces the event timestamp source.
func WithNow(f func() time.Time) SinkOption {
	return func(s *AlarmSink) { s.now = f }
}

// NewAlarmSink starts the publish worker.
func NewAlarmSink(pub Publisher, opts ...SinkOption) *AlarmSink {
	s := &AlarmSink{
		pub:   pub,
		now:   time.Now,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Start queues an ALARM_ON event.
func (s *AlarmSink) Start() error {
	return s.enqueue(EventAlarmOn)
}

// Stop queues an ALARM_OFF event.
func (s *AlarmSink) Stop() error {
	return s.enqueue(EventAlarmOff)
}

func (s *AlarmSink) enqueue(t EventType) error {
	e := Event{Timestamp: s.now(), Type: t}
	if s.session != nil {
		e.SessionID = s.session()
	}

	select {
	case s.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *AlarmSink) run() {
	defer close(s.done)
	for e := range s.queue {
		if err := s.pub.Publish(e); err != nil {
			log.WithError(err).WithField("event", e.Type).Warn("mqtt: publish failed")
		}
	}
}

// Close drains queued events and stops the worker. The publisher itself
// is left open. Start and Stop must not be called after Close.
func (s *AlarmSink) Close() error {
	s.closeOnce.Do(func() { close(s.queue) })
	<-s.done
	return nil
}
