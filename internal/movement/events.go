package movement

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a behavioural event.
type EventType string

const (
	EventMoved            EventType = "MOVED"
	EventCartAbandoned    EventType = "CART_ABANDONED"
	EventWindowShopped    EventType = "WINDOW_SHOPPED"
	EventProductPurchased EventType = "PRODUCT_PURCHASED"
)

// ReturnKind distinguishes how a CART_ABANDONED came about.
type ReturnKind string

const (
	ReturnImmediate ReturnKind = "immediate" // object placed back on shelf
	ReturnTimeout   ReturnKind = "timeout"   // held too long without exit
)

// Event is one behavioural occurrence for an object instance. The ID is
// unique per emission and doubles as the analytics dedup key.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ObjectID  int64     `json:"object_id"`
	ClassName string    `json:"class_name"`
	ViewAngle int       `json:"view_angle"`
	Timestamp time.Time `json:"timestamp"`

	// MOVED
	DisplacementX float64 `json:"displacement_x,omitempty"`
	DisplacementY float64 `json:"displacement_y,omitempty"`

	// CART_ABANDONED
	ReturnKind ReturnKind    `json:"return_kind,omitempty"`
	TimeMoved  time.Duration `json:"time_moved,omitempty"`

	// WINDOW_SHOPPED / PRODUCT_PURCHASED
	TimePresent        time.Duration `json:"time_present,omitempty"`
	PersonDwell        time.Duration `json:"person_dwell,omitempty"`
	PersonInteractions int           `json:"person_interactions,omitempty"`
	WasMoved           bool          `json:"was_moved,omitempty"`
}

func newEvent(typ EventType, objectID int64, class string, view int, ts time.Time, fill func(*Event)) Event {
	e := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		ObjectID:  objectID,
		ClassName: class,
		ViewAngle: view,
		Timestamp: ts,
	}
	if fill != nil {
		fill(&e)
	}
	return e
}
