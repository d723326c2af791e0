// Package mqtt publishes alarm events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"
)

// Default topics.
const (
	Topic       = "eyeguard/alarm/events"
	TopicSystem = "eyeguard/system"
)

// EventType names an alarm event on the wire.
type EventType string

const (
	EventAlarmOn  EventType = "ALARM_ON"
	EventAlarmOff EventType = "ALARM_OFF"
)

// Event is one alarm edge.
type Event struct {
	Timestamp time.Time
	Type      EventType
	SessionID string
}

// SystemEvent is a process lifecycle event (STARTUP, SHUTDOWN, OFFLINE).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string
	Retained  bool
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an alarm event. Failures must not crash the caller.
	Publish(event Event) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// Payload is the alarm event message body.
type Payload struct {
	Alarm AlarmPayload `json:"alarm"`
}

// AlarmPayload contains the alarm event details.
type AlarmPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
}

// FormatPayload creates the JSON payload for an alarm event.
func FormatPayload(event Event) ([]byte, error) {
	return json.Marshal(Payload{
		Alarm: AlarmPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			SessionID: event.SessionID,
		},
	})
}

// SystemPayload is the lifecycle event message body.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the lifecycle event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a lifecycle event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
