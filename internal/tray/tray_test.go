package tray

import (
	"errors"
	"testing"
)

func TestTitles(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{toggleTitle(false), "Start Monitoring"},
		{toggleTitle(true), "Stop Monitoring"},
		{eyesTitle(true), "Eyes: OPEN"},
		{eyesTitle(false), "Eyes: CLOSED"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTray_Defaults(t *testing.T) {
	tr := New()
	if tr.IsTracking() {
		t.Error("new tray should not be tracking")
	}
	if !tr.EyesOpen() {
		t.Error("new tray should show eyes open")
	}
}

func TestTray_HandleToggle(t *testing.T) {
	t.Run("calls back with the new state", func(t *testing.T) {
		tr := New()
		var calls []bool
		tr.OnToggle(func(on bool) error {
			calls = append(calls, on)
			return nil
		})

		tr.handleToggle()
		tr.handleToggle()

		if len(calls) != 2 || !calls[0] || calls[1] {
			t.Errorf("callback calls = %v, want [true false]", calls)
		}
		if tr.IsTracking() {
			t.Error("expected tracking off after two toggles")
		}
	})

	t.Run("keeps state when callback fails", func(t *testing.T) {
		tr := New()
		tr.OnToggle(func(on bool) error { return errors.New("not ready") })

		tr.handleToggle()

		if tr.IsTracking() {
			t.Error("tracking flipped despite callback error")
		}
	})

	t.Run("no callback", func(t *testing.T) {
		tr := New()
		tr.handleToggle()
		if !tr.IsTracking() {
			t.Error("expected tracking on")
		}
	})
}

func TestTray_HandleSettings(t *testing.T) {
	tr := New()
	called := false
	tr.OnSettings(func() { called = true })

	tr.handleSettings()

	if !called {
		t.Error("settings callback not called")
	}
}

func TestTray_SetEyesOpen(t *testing.T) {
	tr := New()

	tr.SetEyesOpen(false)
	if tr.EyesOpen() {
		t.Error("expected eyes closed")
	}
	tr.SetEyesOpen(false)
	tr.SetEyesOpen(true)
	if !tr.EyesOpen() {
		t.Error("expected eyes open")
	}
}
