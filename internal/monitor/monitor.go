// Package monitor is the per-frame update that joins eye-state
// classification to the alarm controller.
package monitor

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/eyeguard/internal/alarm"
	"github.com/ayusman/eyeguard/internal/detector"
	"github.com/ayusman/eyeguard/internal/eyestate"
	"github.com/ayusman/eyeguard/internal/geometry"
)

// DefaultDelay is the closed-eyes time before the alarm sounds.
const DefaultDelay = 300 * time.Millisecond

// Reading is the outcome of one frame.
type Reading struct {
	At           time.Time `json:"at"`
	Tracking     bool      `json:"tracking"`
	FaceDetected bool      `json:"face_detected"`
	// Observed is false when the frame carried no usable eyes; EyesOpen
	// then repeats the last observed state.
	Observed       bool              `json:"observed"`
	EyesOpen       bool              `json:"eyes_open"`
	Alarm          alarm.State       `json:"alarm"`
	Left           *geometry.Point2D `json:"left,omitempty"`
	Right          *geometry.Point2D `json:"right,omitempty"`
	Classification *eyestate.Result  `json:"classification,omitempty"`
}

// Config configures a Monitor.
type Config struct {
	Thresholds eyestate.Thresholds
	Delay      time.Duration
	// Sink is shared by every session's controller.
	Sink alarm.Sink
	// AlarmOptions are applied to each new controller.
	AlarmOptions []alarm.Option
	// Now defaults to time.Now.
	Now func() time.Time
}

// Monitor owns the retained eye state and the controller of the current
// tracking session. A fresh controller is built each time tracking starts
// and discarded when it stops.
type Monitor struct {
	mu         sync.Mutex
	classifier *eyestate.Classifier
	sink       alarm.Sink
	opts       []alarm.Option
	now        func() time.Time

	controller *alarm.Controller
	tracking   bool
	eyesOpen   bool
	delay      time.Duration
}

// New creates a Monitor with tracking off and eyes assumed open.
func New(cfg Config) *Monitor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Monitor{
		classifier: eyestate.NewClassifier(cfg.Thresholds),
		sink:       cfg.Sink,
		opts:       cfg.AlarmOptions,
		now:        cfg.Now,
		eyesOpen:   true,
		delay:      cfg.Delay,
	}
}

// Update feeds one frame through the classifier and the controller.
// Frames without both eyes leave the eye state unchanged.
func (m *Monitor) Update(fr detector.FrameResult) Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Reading{
		At:           m.now(),
		Tracking:     m.tracking,
		FaceDetected: fr.FaceDetected,
	}

	if fr.HasEyes() {
		res := m.classifier.Classify(fr.Left, fr.Right)
		m.eyesOpen = res.Open

		left, right := fr.Left.Centroid(), fr.Right.Centroid()
		r.Observed = true
		r.Classification = &res
		r.Left = &left
		r.Right = &right
	}
	r.EyesOpen = m.eyesOpen

	if m.controller != nil {
		r.Alarm = m.controller.Update(m.eyesOpen, m.tracking, m.delay)
	}
	return r
}

// SetTracking starts or stops a tracking session. Stopping cancels the
// delay timer and silences the alarm before it returns. It reports
// whether the tracking state changed.
func (m *Monitor) SetTracking(on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if on == m.tracking {
		return false
	}

	if on {
		m.controller = alarm.NewController(m.sink, m.opts...)
		m.eyesOpen = true
		m.tracking = true
		log.WithField("delay", m.delay).Info("monitor: tracking started")
		return true
	}

	m.controller.Stop()
	m.controller = nil
	m.tracking = false
	log.Info("monitor: tracking stopped")
	return true
}

// Tracking reports whether a session is active.
func (m *Monitor) Tracking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracking
}

// SetDelay changes the alarm delay. A timer that is already running keeps
// the delay it was armed with. Negative values are treated as zero.
func (m *Monitor) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Delay returns the alarm delay.
func (m *Monitor) Delay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay
}

// SetThresholds replaces the classifier thresholds.
func (m *Monitor) SetThresholds(t eyestate.Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifier = eyestate.NewClassifier(t)
}

// Thresholds returns the classifier thresholds.
func (m *Monitor) Thresholds() eyestate.Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifier.Thresholds()
}

// Snapshot returns the current state without consuming a frame.
func (m *Monitor) Snapshot() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Reading{
		At:       m.now(),
		Tracking: m.tracking,
		EyesOpen: m.eyesOpen,
	}
	if m.controller != nil {
		r.Alarm = m.controller.State()
	}
	return r
}

// AlarmStatus returns the controller status. It is Idle when not tracking.
func (m *Monitor) AlarmStatus() alarm.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.controller == nil {
		return alarm.Status{State: alarm.Idle}
	}
	return m.controller.Status()
}
