package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/eyeguard/internal/monitor"
)

const (
	writeWait     = 5 * time.Second
	clientBacklog = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ReadingSource publishes per-frame readings.
type ReadingSource interface {
	Subscribe(fn func(monitor.Reading)) func()
	LatestReading() monitor.Reading
}

// StateHandler pushes eye and alarm state to WebSocket clients.
type StateHandler struct {
	source ReadingSource
}

// NewStateHandler creates a new StateHandler.
func NewStateHandler(source ReadingSource) *StateHandler {
	return &StateHandler{source: source}
}

// ServeHTTP upgrades the connection and streams readings as JSON text
// messages. The latest reading is sent first. A client that falls behind
// loses readings instead of stalling the pipeline.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	out := make(chan []byte, clientBacklog)
	if msg, err := json.Marshal(h.source.LatestReading()); err == nil {
		out <- msg
	}

	unsubscribe := h.source.Subscribe(func(reading monitor.Reading) {
		msg, err := json.Marshal(reading)
		if err != nil {
			return
		}
		select {
		case out <- msg:
		default:
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
