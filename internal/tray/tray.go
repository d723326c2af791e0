// Package tray provides the desktop system tray menu for EyeGuard.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	log "github.com/sirupsen/logrus"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(tracking bool) error
	onSettings func()
	onQuit     func()
	tracking   bool
	eyesOpen   bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuEyes   *systray.MenuItem
}

// New creates a new Tray. Monitoring starts stopped and eyes start open.
func New() *Tray {
	return &Tray{eyesOpen: true}
}

// OnToggle sets the callback run when Start/Stop Monitoring is clicked.
// If it returns an error the menu keeps its previous state.
func (t *Tray) OnToggle(fn func(tracking bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("EyeGuard")
	systray.SetTooltip("EyeGuard drowsiness alarm")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.tracking), "Start or stop eye monitoring")
	systray.AddSeparator()

	t.menuEyes = systray.AddMenuItem(eyesTitle(t.eyesOpen), "Current eye state")
	t.menuEyes.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit EyeGuard")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(tracking bool) string {
	if tracking {
		return "Stop Monitoring"
	}
	return "Start Monitoring"
}

func eyesTitle(open bool) string {
	if open {
		return "Eyes: OPEN"
	}
	return "Eyes: CLOSED"
}

// handleToggle flips monitoring through the toggle callback.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	want := !t.tracking
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(want); err != nil {
			log.WithError(err).Warn("tray: toggle monitoring failed")
			return
		}
	}
	t.SetTracking(want)
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetTracking updates the toggle item to reflect the monitoring state.
func (t *Tray) SetTracking(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracking = on
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(on))
	}
}

// SetEyesOpen updates the eye state line. Repeated values are ignored.
func (t *Tray) SetEyesOpen(open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.eyesOpen == open {
		return
	}
	t.eyesOpen = open
	if t.menuEyes != nil {
		t.menuEyes.SetTitle(eyesTitle(open))
	}
}

// IsTracking returns the monitoring state shown in the menu.
func (t *Tray) IsTracking() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tracking
}

// EyesOpen returns the eye state shown in the menu.
func (t *Tray) EyesOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.eyesOpen
}
