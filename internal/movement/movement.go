// Package movement decides whether a tracked shelf object has been picked
// up, put back, held too long, or browsed, from bounding-box displacement
// and person presence. One state machine per (view, class) key.
package movement

import (
	"log"
	"time"

	"github.com/shelfsight/shelfsight/internal/geom"
)

// BehavioralState is the retail-analytics lifecycle of one object instance.
type BehavioralState string

const (
	StateNone             BehavioralState = "NONE"
	StatePresent          BehavioralState = "PRESENT"
	StateMoved            BehavioralState = "MOVED"
	StateCartAbandoned    BehavioralState = "CART_ABANDONED"
	StateWindowShopped    BehavioralState = "WINDOW_SHOPPED"
	StateProductPurchased BehavioralState = "PRODUCT_PURCHASED"
)

// Key identifies one object instance: the single object of a class at a view.
type Key struct {
	View  int
	Class string
}

// Config holds the movement-detection tuning knobs.
type Config struct {
	// ThresholdPercent of frame width/height that counts as movement.
	ThresholdPercent float64
	FrameWidth       int
	FrameHeight      int

	// ReturnHysteresis shrinks the threshold for the return-to-home check
	// so "moved" and "returned" zones cannot overlap.
	ReturnHysteresis float64

	// SmoothingAlpha is the EMA weight of the newest bbox-centre sample.
	SmoothingAlpha float64

	// Stabilization suppresses movement detection right after registration
	// while the detector's bbox settles.
	Stabilization time.Duration

	// HoldTimeout fires CART_ABANDONED when an object stays moved this long
	// without returning or exiting.
	HoldTimeout time.Duration

	// ReturnCooldown suppresses re-detection after a return-to-home
	// CART_ABANDONED, breaking the moved/returned oscillation loop.
	ReturnCooldown time.Duration

	// PersonMinDwell is the minimum person-in-frame duration for a
	// WINDOW_SHOPPED event once the person leaves.
	PersonMinDwell time.Duration
}

// DefaultConfig returns production-default movement parameters.
func DefaultConfig() Config {
	return Config{
		ThresholdPercent: 10.0,
		FrameWidth:       1920,
		FrameHeight:      1080,
		ReturnHysteresis: 0.5,
		SmoothingAlpha:   0.3,
		Stabilization:    2 * time.Second,
		HoldTimeout:      4 * time.Second,
		ReturnCooldown:   1 * time.Second,
		PersonMinDwell:   4 * time.Second,
	}
}

// ObjectState is the movement record for a single object instance.
type ObjectState struct {
	ObjectID int64
	Class    string

	HomeX    float64
	HomeY    float64
	HomeBBox geom.BBox

	// CurrentX/Y follow the EMA-smoothed bbox centre.
	CurrentX float64
	CurrentY float64

	IsMoved      bool
	WasEverMoved bool

	Behavioral BehavioralState

	FirstSeen    time.Time
	LastSeen     time.Time
	MovedAt      time.Time // zero until IsMoved first set
	LastReturnAt time.Time // start of the post-return cooldown

	hasSmoothed bool
}

type personPresence struct {
	inFrame      bool
	firstSeen    time.Time
	triggerCount int
}

// Detector runs one movement state machine per (view, class) key.
// Not safe for concurrent use; the frame loop is the single caller.
type Detector struct {
	cfg     Config
	states  map[Key]*ObjectState
	persons map[Key]*personPresence
	pending []Event

	now func() time.Time
}

// NewDetector creates a movement detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:     cfg,
		states:  make(map[Key]*ObjectState),
		persons: make(map[Key]*personPresence),
		now:     time.Now,
	}
}

func (d *Detector) thresholdX() float64 {
	return float64(d.cfg.FrameWidth) * d.cfg.ThresholdPercent / 100.0
}

func (d *Detector) thresholdY() float64 {
	return float64(d.cfg.FrameHeight) * d.cfg.ThresholdPercent / 100.0
}

// SetThreshold updates the movement threshold percentage, clamped to [0,100].
func (d *Detector) SetThreshold(percent float64) {
	d.cfg.ThresholdPercent = min(100.0, max(0.0, percent))
}

// Threshold returns the current movement threshold percentage.
func (d *Detector) Threshold() float64 {
	return d.cfg.ThresholdPercent
}

// SetFrameDimensions updates the frame size used for threshold calculation.
func (d *Detector) SetFrameDimensions(width, height int) {
	d.cfg.FrameWidth = width
	d.cfg.FrameHeight = height
}

// Register creates movement state for an object at its home position.
// Called on ENTRY, when the object is first committed to storage. Re-calling
// for a reappearing object establishes a fresh home baseline.
func (d *Detector) Register(view int, class string, objectID int64, bbox geom.BBox) *ObjectState {
	cx, cy := bbox.Center()
	now := d.now()

	st := &ObjectState{
		ObjectID:   objectID,
		Class:      class,
		HomeX:      cx,
		HomeY:      cy,
		HomeBBox:   bbox,
		CurrentX:   cx,
		CurrentY:   cy,
		Behavioral: StatePresent,
		FirstSeen:  now,
		LastSeen:   now,
	}
	d.states[Key{View: view, Class: class}] = st
	log.Printf("[movement] registered %s at view %d, home (%.0f, %.0f)", class, view, cx, cy)
	return st
}

// UpdatePosition feeds a fresh bounding box into the state machine and
// returns the updated state, or nil if the object was never registered.
func (d *Detector) UpdatePosition(view int, class string, bbox geom.BBox) *ObjectState {
	key := Key{View: view, Class: class}
	st, ok := d.states[key]
	if !ok {
		return nil
	}

	cx, cy := bbox.Center()
	now := d.now()

	if !st.hasSmoothed {
		st.CurrentX = cx
		st.CurrentY = cy
		st.hasSmoothed = true
	} else {
		a := d.cfg.SmoothingAlpha
		st.CurrentX = a*cx + (1-a)*st.CurrentX
		st.CurrentY = a*cy + (1-a)*st.CurrentY
	}
	st.LastSeen = now

	dx := abs(st.CurrentX - st.HomeX)
	dy := abs(st.CurrentY - st.HomeY)

	if !st.IsMoved {
		// Home stays locked while the bbox settles after registration.
		if now.Sub(st.FirstSeen) < d.cfg.Stabilization {
			return st
		}

		// After a timeout CART_ABANDONED or a WINDOW_SHOPPED, the only
		// legal next transition is EXIT.
		if st.Behavioral == StateCartAbandoned || st.Behavioral == StateWindowShopped {
			return st
		}

		// Post-return cooldown: ignore movement until it elapses.
		if !st.LastReturnAt.IsZero() {
			if now.Sub(st.LastReturnAt) < d.cfg.ReturnCooldown {
				return st
			}
			st.LastReturnAt = time.Time{}
		}

		// OR logic: either axis past threshold counts as moved.
		if dx > d.thresholdX() || dy > d.thresholdY() {
			st.IsMoved = true
			st.WasEverMoved = true
			st.MovedAt = now
			st.Behavioral = StateMoved
			log.Printf("[movement] %s moved at view %d, displacement (%.0f, %.0f)px", class, view, dx, dy)
			d.pending = append(d.pending, newEvent(EventMoved, st.ObjectID, class, view, now, func(e *Event) {
				e.DisplacementX = dx
				e.DisplacementY = dy
			}))
		}
		return st
	}

	// AND logic with hysteresis: both axes must be well inside the
	// threshold before the object counts as returned.
	returnX := d.thresholdX() * d.cfg.ReturnHysteresis
	returnY := d.thresholdY() * d.cfg.ReturnHysteresis
	if dx <= returnX && dy <= returnY {
		held := now.Sub(st.MovedAt)
		log.Printf("[movement] %s returned home at view %d after %.1fs", class, view, held.Seconds())
		d.pending = append(d.pending, newEvent(EventCartAbandoned, st.ObjectID, class, view, now, func(e *Event) {
			e.ReturnKind = ReturnImmediate
			e.TimeMoved = held
		}))

		// Reset fully so a later pickup can fire MOVED again; the cooldown
		// prevents an immediate re-trigger from jitter at the boundary.
		st.IsMoved = false
		st.WasEverMoved = false
		st.MovedAt = time.Time{}
		st.LastReturnAt = now
		st.Behavioral = StatePresent
	}
	return st
}

// CheckHoldTimeouts fires CART_ABANDONED for objects that have stayed moved
// past the hold timeout without returning or exiting. Poll once per frame.
// Fired objects keep WasEverMoved and pin CART_ABANDONED until EXIT.
func (d *Detector) CheckHoldTimeouts() []Event {
	now := d.now()
	var events []Event

	for key, st := range d.states {
		if !st.IsMoved || st.MovedAt.IsZero() {
			continue
		}
		switch st.Behavioral {
		case StateWindowShopped, StateCartAbandoned, StateProductPurchased:
			continue
		}

		elapsed := now.Sub(st.MovedAt)
		if elapsed < d.cfg.HoldTimeout {
			continue
		}

		st.Behavioral = StateCartAbandoned
		st.IsMoved = false
		st.MovedAt = time.Time{}
		st.LastReturnAt = now
		d.resetPerson(key)
		log.Printf("[movement] %s held for %.1fs without exit at view %d -> CART_ABANDONED", key.Class, elapsed.Seconds(), key.View)

		ev := newEvent(EventCartAbandoned, st.ObjectID, key.Class, key.View, now, func(e *Event) {
			e.ReturnKind = ReturnTimeout
			e.TimeMoved = elapsed
		})
		events = append(events, ev)
		d.pending = append(d.pending, ev)
	}
	return events
}

// UpdatePersonPresence latches whether a person is in frame alongside the
// object. On the person leaving after at least PersonMinDwell, a never-moved
// object fires WINDOW_SHOPPED and locks that outcome for its lifetime.
// Returns true when the latch changed.
func (d *Detector) UpdatePersonPresence(view int, class string, personInFrame bool) bool {
	key := Key{View: view, Class: class}
	now := d.now()

	pp, ok := d.persons[key]
	if !ok {
		pp = &personPresence{}
		d.persons[key] = pp
	}

	if personInFrame {
		if pp.inFrame {
			return false
		}
		pp.inFrame = true
		pp.firstSeen = now
		pp.triggerCount++
		return true
	}

	if !pp.inFrame {
		return false
	}
	pp.inFrame = false
	dwell := now.Sub(pp.firstSeen)
	if dwell < d.cfg.PersonMinDwell {
		return true
	}

	st, ok := d.states[key]
	if !ok || st.IsMoved || st.WasEverMoved {
		return true
	}
	switch st.Behavioral {
	case StateWindowShopped, StateCartAbandoned, StateProductPurchased:
		return true
	}

	st.Behavioral = StateWindowShopped
	st.LastReturnAt = now
	log.Printf("[movement] person left after %.1fs with %s untouched at view %d -> WINDOW_SHOPPED", dwell.Seconds(), class, view)
	d.pending = append(d.pending, newEvent(EventWindowShopped, st.ObjectID, class, view, now, func(e *Event) {
		e.TimePresent = now.Sub(st.FirstSeen)
		e.PersonDwell = dwell
		e.PersonInteractions = pp.triggerCount
	}))
	d.resetPerson(key)
	return true
}

// HandleExit retires the state machine for an object that disappeared.
// EXIT means departure, so the default outcome is PRODUCT_PURCHASED; a
// completed window-shopping interaction is the one thing that suppresses it.
// Returns the resulting event, or nil.
func (d *Detector) HandleExit(view int, class string) *Event {
	key := Key{View: view, Class: class}
	st, ok := d.states[key]
	if !ok {
		return nil
	}

	defer func() {
		delete(d.states, key)
		delete(d.persons, key)
	}()

	if st.Behavioral == StateWindowShopped {
		log.Printf("[movement] %s exited view %d after WINDOW_SHOPPED, no further event", class, view)
		return nil
	}

	now := d.now()
	wasMoved := st.IsMoved || st.WasEverMoved
	st.Behavioral = StateProductPurchased
	log.Printf("[movement] %s exited view %d (moved=%v) -> PRODUCT_PURCHASED", class, view, wasMoved)
	ev := newEvent(EventProductPurchased, st.ObjectID, class, view, now, func(e *Event) {
		e.TimePresent = now.Sub(st.FirstSeen)
		e.WasMoved = wasMoved
	})
	return &ev
}

// PendingEvents drains the queued behavioural events.
func (d *Detector) PendingEvents() []Event {
	events := d.pending
	d.pending = nil
	return events
}

// State returns a copy of the movement state for an object, if tracked.
func (d *Detector) State(view int, class string) (ObjectState, bool) {
	st, ok := d.states[Key{View: view, Class: class}]
	if !ok {
		return ObjectState{}, false
	}
	return *st, true
}

// Reset drops the state machine for one object.
func (d *Detector) Reset(view int, class string) {
	key := Key{View: view, Class: class}
	delete(d.states, key)
	delete(d.persons, key)
}

// ResetAll drops all movement state and queued events.
func (d *Detector) ResetAll() {
	d.states = make(map[Key]*ObjectState)
	d.persons = make(map[Key]*personPresence)
	d.pending = nil
}

func (d *Detector) resetPerson(key Key) {
	if pp, ok := d.persons[key]; ok {
		pp.inFrame = false
		pp.firstSeen = time.Time{}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
