// Package app wires capture, detection, the eye monitor and the alarm
// sinks into the EyeGuard application.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/eyeguard/internal/alarm"
	"github.com/ayusman/eyeguard/internal/capture"
	"github.com/ayusman/eyeguard/internal/detector"
	"github.com/ayusman/eyeguard/internal/metrics"
	"github.com/ayusman/eyeguard/internal/monitor"
	"github.com/ayusman/eyeguard/internal/mqtt"
	"github.com/ayusman/eyeguard/internal/overlay"
	"github.com/ayusman/eyeguard/internal/plugin"
	"github.com/ayusman/eyeguard/internal/store"
)

// ErrNotReady is returned when tracking is requested before the face
// detector has finished loading.
var ErrNotReady = errors.New("face detector is not ready")

// Pipeline defaults.
const (
	DefaultJPEGQuality = 75
	DefaultWarmup      = 2 * time.Minute
)

// Config holds configuration options for the application. Nil
// collaborators are built from the remaining fields.
type Config struct {
	Store *store.Store

	Camera         capture.Camera
	CameraConfig   capture.Config
	Detector       detector.Detector
	DetectorConfig detector.Config

	// Settings are the defaults; values persisted in Store win.
	Settings Settings

	// Sound overrides the tone sink built from Tone.
	Sound alarm.Sink
	Tone  alarm.ToneConfig

	// MQTT publishes alarm edges when set.
	MQTT mqtt.Publisher

	PluginDir       string
	PluginTimeoutMs int

	// AlarmOptions are applied to every session's controller.
	AlarmOptions []alarm.Option

	Style         overlay.Style
	JPEGQuality   int
	WarmupTimeout time.Duration
}

// Status is a snapshot of the application.
type Status struct {
	Ready     bool            `json:"ready"`
	Running   bool            `json:"running"`
	Tracking  bool            `json:"tracking"`
	SessionID string          `json:"session_id,omitempty"`
	Alarm     alarm.Status    `json:"alarm"`
	Reading   monitor.Reading `json:"reading"`
	Settings  Settings        `json:"settings"`
	Error     string          `json:"error,omitempty"`
}

// App is the main application that runs the detection pipeline and owns
// the tracking session.
type App struct {
	config     Config
	camera     capture.Camera
	detector   detector.Detector
	monitor    *monitor.Monitor
	sound      *soundSink
	mqttSink   *mqtt.AlarmSink
	hooks      *plugin.HookSink
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	mu        sync.RWMutex
	settings  Settings
	stopCh    chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	ready     bool
	readyErr  error
	trackMu   sync.Mutex
	sessMu    sync.RWMutex
	sessionID string

	subMu       sync.RWMutex
	subscribers map[int]func(monitor.Reading)
	nextSub     int

	frameMu sync.RWMutex
	jpeg    []byte
	latest  monitor.Reading

	closeOnce sync.Once
}

// New creates a new App. Settings persisted in the store override the
// configured defaults.
func New(config Config) (*App, error) {
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	if config.WarmupTimeout <= 0 {
		config.WarmupTimeout = DefaultWarmup
	}
	if config.PluginTimeoutMs <= 0 {
		config.PluginTimeoutMs = 5000
	}
	if config.Style == (overlay.Style{}) {
		config.Style = overlay.DefaultStyle()
	}

	settings := config.Settings.withDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if config.Store != nil {
		loaded, err := loadSettings(config.Store.Settings(), settings)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		settings = loaded

		if n, err := config.Store.Sessions().CloseDangling(time.Now()); err != nil {
			log.WithError(err).Warn("app: failed to close dangling sessions")
		} else if n > 0 {
			log.Printf("Closed %d sessions left open by a previous run", n)
		}
	}

	a := &App{
		config:      config,
		camera:      config.Camera,
		detector:    config.Detector,
		settings:    settings,
		pluginMgr:   plugin.NewManager(config.PluginDir),
		pluginExec:  plugin.NewExecutor(config.PluginTimeoutMs),
		subscribers: make(map[int]func(monitor.Reading)),
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraConfig)
	}

	// Try MediaPipe first, fall back to mock detector
	if a.detector == nil {
		if mp, err := detector.NewMediaPipeDetector(config.DetectorConfig); err == nil {
			a.detector = mp
			log.Println("Using MediaPipe face mesh detection")
		} else {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			a.detector = detector.NewMockDetector()
		}
	}

	a.monitor = monitor.New(monitor.Config{
		Thresholds:   settings.Thresholds,
		Delay:        settings.Delay(),
		Sink:         a.buildSink(),
		AlarmOptions: append(append([]alarm.Option{}, config.AlarmOptions...), alarm.WithObserver(a.onTransition)),
	})

	return a, nil
}

func (a *App) buildSink() alarm.Sink {
	inner := a.config.Sound
	if inner == nil {
		inner = newToneSink(a.config.Tone)
	}
	a.sound = newSoundSink(inner, a.settings.Sound)
	sinks := alarm.MultiSink{a.sound}

	if a.config.MQTT != nil {
		a.mqttSink = mqtt.NewAlarmSink(a.config.MQTT, mqtt.WithSession(a.SessionID))
		sinks = append(sinks, a.mqttSink)
	}

	if a.config.Store != nil {
		a.hooks = plugin.NewHookSink(a.config.Store.Hooks(), a.pluginMgr, a.pluginExec,
			plugin.WithHookSession(a.SessionID))
		sinks = append(sinks, a.hooks)
	}

	return sinks
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// Start opens the camera, begins the frame loop and warms the detector in
// the background. Tracking is refused until warmup succeeds.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	a.ready, a.readyErr = false, nil

	go a.warmup(ctx)
	go a.runPipeline(a.stopCh, a.done)

	if a.config.MQTT != nil {
		a.publishSystem("ONLINE", "started")
	}

	log.Println("Detection pipeline started")
	return nil
}

func (a *App) warmup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.config.WarmupTimeout)
	defer cancel()

	start := time.Now()
	err := a.detector.Warmup(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if ctx.Err() == context.Canceled {
		// Stopped while loading.
		return
	}
	if err != nil {
		a.readyErr = err
		log.WithError(err).Error("app: face detector failed to load")
		return
	}
	a.ready = true
	log.WithField("took", time.Since(start).Round(time.Millisecond)).Info("app: face detector ready")
}

// Stop ends tracking, halts the pipeline and closes the camera. The app
// can be started again.
func (a *App) Stop() {
	if err := a.SetTracking(false); err != nil {
		log.WithError(err).Warn("app: failed to stop tracking")
	}

	a.mu.Lock()
	stopCh, done, cancel := a.stopCh, a.done, a.cancel
	a.stopCh, a.done, a.cancel = nil, nil, nil
	a.ready = false
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	cancel()
	close(stopCh)
	<-done

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	log.Println("Detection pipeline stopped")
}

// Close stops the app and releases the detector and alarm sinks.
func (a *App) Close() error {
	a.Stop()

	var errs []error
	a.closeOnce.Do(func() {
		if err := a.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
		if a.hooks != nil {
			a.hooks.Close()
		}
		if a.mqttSink != nil {
			a.publishSystem("OFFLINE", "shutdown")
			a.mqttSink.Close()
		}
	})
	return errors.Join(errs...)
}

func (a *App) publishSystem(event, reason string) {
	err := a.config.MQTT.PublishSystem(mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	})
	if err != nil {
		log.WithError(err).Warn("app: failed to publish system event")
	}
}

// Ready reports whether the detector has warmed up.
func (a *App) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

func (a *App) running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// SetTracking starts or stops a monitoring session. Starting fails with
// ErrNotReady until the detector is warm. Stopping silences the alarm
// before it returns.
func (a *App) SetTracking(on bool) error {
	a.trackMu.Lock()
	defer a.trackMu.Unlock()

	if on == a.monitor.Tracking() {
		return nil
	}

	if on {
		if !a.Ready() {
			return ErrNotReady
		}
		a.beginSession()
		a.monitor.SetTracking(true)
		metrics.SetTracking(true)
		return nil
	}

	a.monitor.SetTracking(false)
	metrics.SetTracking(false)
	a.endSession()
	return nil
}

// IsTracking reports whether a session is active.
func (a *App) IsTracking() bool {
	return a.monitor.Tracking()
}

func (a *App) beginSession() {
	id := uuid.NewString()

	if a.config.Store != nil {
		err := a.config.Store.Sessions().Create(&store.Session{
			ID:      id,
			DelayMs: a.Settings().DelayMs,
		})
		if err != nil {
			log.WithError(err).Warn("app: failed to record session")
		}
	}

	a.sessMu.Lock()
	a.sessionID = id
	a.sessMu.Unlock()
	log.WithField("session", id).Info("app: session started")
}

func (a *App) endSession() {
	a.sessMu.Lock()
	id := a.sessionID
	a.sessionID = ""
	a.sessMu.Unlock()

	if id == "" || a.config.Store == nil {
		return
	}
	if err := a.config.Store.Sessions().End(id, time.Now()); err != nil {
		log.WithError(err).WithField("session", id).Warn("app: failed to end session")
	}
	log.WithField("session", id).Info("app: session ended")
}

// SessionID returns the active session, or "" when not tracking.
func (a *App) SessionID() string {
	a.sessMu.RLock()
	defer a.sessMu.RUnlock()
	return a.sessionID
}

// onTransition records alarm edges. It runs on the pipeline goroutine or
// on a timer goroutine and must not call back into the monitor.
func (a *App) onTransition(t alarm.Transition) {
	metrics.ObserveTransition(t.From.String(), t.To.String(), int(t.To))

	var kind store.EventKind
	switch {
	case t.To == alarm.Sounding:
		kind = store.EventAlarmStart
	case t.From == alarm.Sounding:
		kind = store.EventAlarmStop
	default:
		return
	}

	if t.SinkErr != nil {
		op := "start"
		if kind == store.EventAlarmStop {
			op = "stop"
		}
		metrics.IncSinkError(op)
	}

	entry := log.WithFields(log.Fields{
		"event":      string(kind),
		"closed_for": t.ClosedFor.Round(time.Millisecond),
	})
	if kind == store.EventAlarmStart {
		entry.Warn("Drowsiness alarm sounding")
	} else {
		entry.Info("Drowsiness alarm stopped")
	}

	session := a.SessionID()
	if a.config.Store == nil || session == "" {
		return
	}

	err := a.config.Store.Events().Create(&store.Event{
		ID:        uuid.NewString(),
		SessionID: session,
		Kind:      kind,
		At:        t.At,
		ClosedMs:  t.ClosedFor.Milliseconds(),
	})
	if err != nil {
		log.WithError(err).Warn("app: failed to record alarm event")
	}
	if kind == store.EventAlarmStart {
		if err := a.config.Store.Sessions().IncrementAlarms(session); err != nil {
			log.WithError(err).Warn("app: failed to count alarm")
		}
	}
}

// Settings returns the current settings.
func (a *App) Settings() Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// UpdateSettings validates, applies and persists s. A delay change does
// not affect a timer that is already armed.
func (a *App) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetMany(s.values()); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()

	a.monitor.SetDelay(s.Delay())
	a.monitor.SetThresholds(s.Thresholds)
	a.sound.SetEnabled(s.Sound)

	log.WithFields(log.Fields{
		"delay_ms":       s.DelayMs,
		"show_crosshair": s.ShowCrosshair,
		"sound":          s.Sound,
	}).Info("app: settings updated")
	return nil
}

// SetDelay changes only the alarm delay.
func (a *App) SetDelay(d time.Duration) error {
	s := a.Settings()
	s.DelayMs = int(d / time.Millisecond)
	return a.UpdateSettings(s)
}

// Status returns a snapshot for the API and tray.
func (a *App) Status() Status {
	a.mu.RLock()
	st := Status{
		Ready:    a.ready,
		Running:  a.stopCh != nil,
		Settings: a.settings,
	}
	if a.readyErr != nil {
		st.Error = a.readyErr.Error()
	}
	a.mu.RUnlock()

	st.Tracking = a.monitor.Tracking()
	st.SessionID = a.SessionID()
	st.Alarm = a.monitor.AlarmStatus()
	st.Reading = a.LatestReading()
	return st
}

// Subscribe registers fn for every processed frame's reading. The
// returned function removes the subscription.
func (a *App) Subscribe(fn func(monitor.Reading)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	id := a.nextSub
	a.nextSub++
	a.subscribers[id] = fn

	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subscribers, id)
	}
}

func (a *App) publish(r monitor.Reading) {
	a.subMu.RLock()
	subs := make([]func(monitor.Reading), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subs = append(subs, fn)
	}
	a.subMu.RUnlock()

	for _, fn := range subs {
		fn(r)
	}
}

// LatestJPEG returns the most recent annotated frame, or nil before the
// first frame.
func (a *App) LatestJPEG() []byte {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	return a.jpeg
}

// LatestReading returns the most recent frame's reading. Before the first
// frame it reflects the monitor's retained state.
func (a *App) LatestReading() monitor.Reading {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	if a.latest.At.IsZero() {
		return a.monitor.Snapshot()
	}
	return a.latest
}

// Monitor returns the eye monitor.
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the face detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Store returns the backing store, which may be nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}
