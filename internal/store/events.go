package store

import (
	"fmt"
	"time"

	"github.com/shelfsight/shelfsight/internal/movement"
)

// BehavioralEvent is a persisted movement event row.
type BehavioralEvent struct {
	ID            string    `json:"id"`
	EventType     string    `json:"event_type"`
	ObjectID      int64     `json:"object_id"`
	ClassName     string    `json:"class_name"`
	ViewAngle     int       `json:"view_angle"`
	OccurredAt    time.Time `json:"occurred_at"`
	DisplacementX float64   `json:"displacement_x"`
	DisplacementY float64   `json:"displacement_y"`
	ReturnKind    string    `json:"return_kind,omitempty"`
	TimeMoved     int64     `json:"time_moved_ms"`
	TimePresent   int64     `json:"time_present_ms"`
	PersonDwell   int64     `json:"person_dwell_ms"`
	WasMoved      bool      `json:"was_moved"`
}

// RecordEvent persists one behavioural event and applies its side effects to
// the object row: movement flags and the pinned behavioural state.
func (s *Store) RecordEvent(ev movement.Event) error {
	_, err := s.Exec(`
		INSERT INTO behavioral_events (
			id, event_type, object_id, class_name, view_angle, occurred_at,
			displacement_x, displacement_y, return_kind,
			time_moved_ms, time_present_ms, person_dwell_ms, was_moved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.ObjectID, ev.ClassName, ev.ViewAngle, ev.Timestamp.UTC(),
		ev.DisplacementX, ev.DisplacementY, string(ev.ReturnKind),
		ev.TimeMoved.Milliseconds(), ev.TimePresent.Milliseconds(), ev.PersonDwell.Milliseconds(),
		ev.WasMoved,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event for object %d: %w", ev.Type, ev.ObjectID, err)
	}

	switch ev.Type {
	case movement.EventMoved:
		if err := s.SetMovementState(ev.ObjectID, true); err != nil {
			return err
		}
	case movement.EventCartAbandoned:
		if err := s.SetMovementState(ev.ObjectID, false); err != nil {
			return err
		}
	}
	return s.SetBehavioralState(ev.ObjectID, string(behavioralStateFor(ev.Type)))
}

// behavioralStateFor maps an event to the state pinned on the object row.
func behavioralStateFor(typ movement.EventType) movement.BehavioralState {
	switch typ {
	case movement.EventMoved:
		return movement.StateMoved
	case movement.EventCartAbandoned:
		return movement.StateCartAbandoned
	case movement.EventWindowShopped:
		return movement.StateWindowShopped
	case movement.EventProductPurchased:
		return movement.StateProductPurchased
	default:
		return movement.StateNone
	}
}

// EventFilter narrows ListEvents. Zero values mean no filtering.
type EventFilter struct {
	EventType string
	ObjectID  int64
	Since     time.Time
	Limit     int
}

// ListEvents returns events matching the filter, newest first.
func (s *Store) ListEvents(filter EventFilter) ([]BehavioralEvent, error) {
	query := `
		SELECT id, event_type, object_id, class_name, view_angle, occurred_at,
			displacement_x, displacement_y, return_kind,
			time_moved_ms, time_present_ms, person_dwell_ms, was_moved
		FROM behavioral_events
		WHERE 1=1`
	var args []interface{}
	if filter.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, filter.EventType)
	}
	if filter.ObjectID != 0 {
		query += ` AND object_id = ?`
		args = append(args, filter.ObjectID)
	}
	if !filter.Since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY occurred_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []BehavioralEvent
	for rows.Next() {
		var ev BehavioralEvent
		if err := rows.Scan(
			&ev.ID, &ev.EventType, &ev.ObjectID, &ev.ClassName, &ev.ViewAngle, &ev.OccurredAt,
			&ev.DisplacementX, &ev.DisplacementY, &ev.ReturnKind,
			&ev.TimeMoved, &ev.TimePresent, &ev.PersonDwell, &ev.WasMoved,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventCounts returns per-type event counts since the given time. A zero
// time counts everything.
func (s *Store) EventCounts(since time.Time) (map[string]int, error) {
	query := `SELECT event_type, COUNT(*) FROM behavioral_events`
	var args []interface{}
	if !since.IsZero() {
		query += ` WHERE occurred_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY event_type`

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// Stats summarises the store for the status endpoint.
type Stats struct {
	TotalObjects   int            `json:"total_objects"`
	PresentObjects int            `json:"present_objects"`
	MovedObjects   int            `json:"moved_objects"`
	TotalClasses   int            `json:"total_classes"`
	EventCounts    map[string]int `json:"event_counts"`
}

// GetStats computes store-wide summary statistics.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	err := s.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(is_present), 0),
			COALESCE(SUM(is_moved), 0)
		FROM objects o
		JOIN classes c ON o.class_id = c.id
		WHERE c.is_hidden = 0`).
		Scan(&stats.TotalObjects, &stats.PresentObjects, &stats.MovedObjects)
	if err != nil {
		return nil, fmt.Errorf("failed to compute object stats: %w", err)
	}

	if err := s.QueryRow(`SELECT COUNT(*) FROM classes WHERE is_hidden = 0`).Scan(&stats.TotalClasses); err != nil {
		return nil, fmt.Errorf("failed to count classes: %w", err)
	}

	counts, err := s.EventCounts(time.Time{})
	if err != nil {
		return nil, err
	}
	stats.EventCounts = counts
	return stats, nil
}
