package store

import (
	"database/sql"
	"time"
)

// EventKind is the alarm edge an event records.
type EventKind string

const (
	EventAlarmStart EventKind = "alarm_start"
	EventAlarmStop  EventKind = "alarm_stop"
)

// Event is one alarm edge within a session.
type Event struct {
	ID        string
	SessionID string
	Kind      EventKind
	At        time.Time
	// ClosedMs is how long the eyes had been closed at this edge.
	ClosedMs int64
}

// EventRepository provides access to alarm events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the alarm event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts an event.
func (r *EventRepository) Create(e *Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO alarm_events (id, session_id, kind, at, closed_ms) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, string(e.Kind), e.At, e.ClosedMs,
	)
	return err
}

// ListBySession returns a session's events in time order.
func (r *EventRepository) ListBySession(sessionID string) ([]*Event, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, kind, at, closed_ms
		 FROM alarm_events WHERE session_id = ? ORDER BY at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.At, &e.ClosedMs); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountSince returns how many alarms started at or after t.
func (r *EventRepository) CountSince(t time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM alarm_events WHERE kind = ? AND at >= ?`,
		string(EventAlarmStart), t,
	).Scan(&n)
	return n, err
}
