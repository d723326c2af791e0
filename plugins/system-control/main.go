// Package main provides a system control plugin for alarm hooks. It posts
// desktop notifications and forces the output volume so the alarm tone is
// audible. macOS uses AppleScript; Linux uses notify-send and pactl.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action    string          `json:"action"`
	Event     string          `json:"event"`
	SessionID string          `json:"session_id"`
	Config    json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// notifyConfig is the hook config accepted by the notify action.
type notifyConfig struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type actionHandler func(req Request) error

var actionHandlers = map[string]actionHandler{
	"notify":      notify,
	"volume-max":  volumeMax,
	"volume-mute": volumeMute,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	handler, ok := actionHandlers[req.Action]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	if err := handler(req); err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse()
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func runAppleScript(script string) error {
	return run("osascript", "-e", script)
}

// notify posts a desktop notification. The text defaults by alarm edge.
func notify(req Request) error {
	var cfg notifyConfig
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if cfg.Title == "" {
		cfg.Title = "EyeGuard"
	}
	if cfg.Message == "" {
		cfg.Message = "Eyes closed. Wake up!"
		if req.Event == "alarm_stop" {
			cfg.Message = "Alarm cleared."
		}
	}

	switch runtime.GOOS {
	case "darwin":
		return runAppleScript(fmt.Sprintf("display notification %q with title %q", cfg.Message, cfg.Title))
	case "linux":
		return run("notify-send", "-u", "critical", cfg.Title, cfg.Message)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

// volumeMax unmutes the output and sets it to full volume.
func volumeMax(Request) error {
	switch runtime.GOOS {
	case "darwin":
		return runAppleScript(`set volume output volume 100 without output muted`)
	case "linux":
		if err := run("pactl", "set-sink-mute", "@DEFAULT_SINK@", "0"); err != nil {
			return err
		}
		return run("pactl", "set-sink-volume", "@DEFAULT_SINK@", "100%")
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

// volumeMute toggles the system mute state.
func volumeMute(Request) error {
	switch runtime.GOOS {
	case "darwin":
		return runAppleScript(`set volume output muted (not (output muted of (get volume settings)))`)
	case "linux":
		return run("pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle")
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
