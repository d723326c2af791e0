package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/eyeguard/internal/app"
)

// TrackingController starts and stops monitoring sessions.
type TrackingController interface {
	SetTracking(on bool) error
	IsTracking() bool
	Ready() bool
	SessionID() string
}

// TrackingHandler serves GET and POST /api/tracking.
type TrackingHandler struct {
	ctl TrackingController
}

// NewTrackingHandler creates a TrackingHandler.
func NewTrackingHandler(ctl TrackingController) *TrackingHandler {
	return &TrackingHandler{ctl: ctl}
}

type trackingRequest struct {
	Tracking *bool `json:"tracking"`
}

type trackingResponse struct {
	Tracking  bool   `json:"tracking"`
	Ready     bool   `json:"ready"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *TrackingHandler) state() trackingResponse {
	return trackingResponse{
		Tracking:  h.ctl.IsTracking(),
		Ready:     h.ctl.Ready(),
		SessionID: h.ctl.SessionID(),
	}
}

// ServeHTTP handles /api/tracking. Starting before the detector is ready
// returns 503.
func (h *TrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.state())
	case http.MethodPost:
		var req trackingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Tracking == nil {
			writeError(w, http.StatusBadRequest, "tracking is required")
			return
		}
		if err := h.ctl.SetTracking(*req.Tracking); err != nil {
			if errors.Is(err, app.ErrNotReady) {
				writeError(w, http.StatusServiceUnavailable, "Face detector is still loading")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to change tracking")
			return
		}
		writeJSON(w, http.StatusOK, h.state())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
