package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/eyeguard/internal/app"
	"github.com/ayusman/eyeguard/internal/config"
)

// SettingsController reads and applies user settings.
type SettingsController interface {
	Settings() app.Settings
	UpdateSettings(app.Settings) error
}

// SettingsHandler serves GET and PUT /api/settings.
type SettingsHandler struct {
	ctl SettingsController
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(ctl SettingsController) *SettingsHandler {
	return &SettingsHandler{ctl: ctl}
}

type delayLimits struct {
	MinMs   int `json:"min_ms"`
	MaxMs   int `json:"max_ms"`
	StepMs  int `json:"step_ms"`
	LimitMs int `json:"limit_ms"`
}

type settingsResponse struct {
	app.Settings
	DelayLimits delayLimits `json:"delay_limits"`
}

func newSettingsResponse(s app.Settings) settingsResponse {
	return settingsResponse{
		Settings: s,
		DelayLimits: delayLimits{
			MinMs:   config.DelayMinMs,
			MaxMs:   config.DelayMaxMs,
			StepMs:  config.DelayStepMs,
			LimitMs: config.DelayLimitMs,
		},
	}
}

// ServeHTTP handles /api/settings. PUT accepts a partial document; omitted
// fields keep their current values.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newSettingsResponse(h.ctl.Settings()))
	case http.MethodPut:
		s := h.ctl.Settings()
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if err := h.ctl.UpdateSettings(s); err != nil {
			if errors.Is(err, app.ErrInvalidSettings) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, newSettingsResponse(h.ctl.Settings()))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
