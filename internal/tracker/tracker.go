// Package tracker maintains object identity per discrete camera view. At
// most one live instance exists per (view, class); identity survives
// disappearance and reappearance, so a class coming back at a view resumes
// its record instead of duplicating it.
package tracker

import (
	"log"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/shelfsight/shelfsight/internal/geom"
	"github.com/shelfsight/shelfsight/internal/movement"
)

// depthHistoryLen caps the rolling window of real depth measurements.
const depthHistoryLen = 5

// Config holds the identity-tracking tuning knobs.
type Config struct {
	// Views are the discrete pan angles detections may arrive from.
	Views []int

	// DisappearTimeout is how long a present object may go unseen before
	// it is marked absent. Sized to absorb servo travel and detector gaps.
	DisappearTimeout time.Duration

	// UpdateInterval is the wall-clock period between stored-data refreshes.
	UpdateInterval time.Duration

	// QualityThreshold is the confidence improvement over best-seen that
	// forces an early refresh.
	QualityThreshold float64

	// PersonClass is the detection class driving person-presence tracking.
	PersonClass string

	Movement movement.Config
}

// DefaultConfig returns production-default tracking parameters.
func DefaultConfig() Config {
	return Config{
		Views:            []int{0, 90, 180},
		DisappearTimeout: 7 * time.Second,
		UpdateInterval:   10 * time.Second,
		QualityThreshold: 0.15,
		PersonClass:      "person",
		Movement:         movement.DefaultConfig(),
	}
}

// classState is the tracked record for one (view, class) key. Created on
// first detection, mutated forever after, never deleted.
type classState struct {
	objectID  int64
	inDB      bool
	present   bool
	firstSeen time.Time
	lastSeen  time.Time

	detections     int
	lastUpdate     time.Time
	bestConfidence float64

	lastKnown3D   *geom.Point3D
	lastRealDepth float64
	hasRealDepth  bool
	depthHistory  []float64

	lastBBox geom.BBox
	hasBBox  bool
}

// ViewTracker is the per-view identity tracker. Not safe for concurrent
// use; the frame loop is the single caller and multi-threaded hosts must
// serialise access externally.
type ViewTracker struct {
	cfg      Config
	views    map[int]map[string]*classState
	movement *movement.Detector

	pendingAbsent []AbsentMark
	pendingEvents []movement.Event

	now func() time.Time
}

// New creates a tracker for the configured view set.
func New(cfg Config) *ViewTracker {
	views := make(map[int]map[string]*classState, len(cfg.Views))
	for _, v := range cfg.Views {
		views[v] = make(map[string]*classState)
	}
	t := &ViewTracker{
		cfg:      cfg,
		views:    views,
		movement: movement.NewDetector(cfg.Movement),
		now:      time.Now,
	}
	log.Printf("[tracker] tracking %d views %v, disappear timeout %s, refresh every %s or +%.2f confidence",
		len(cfg.Views), cfg.Views, cfg.DisappearTimeout, cfg.UpdateInterval, cfg.QualityThreshold)
	return t
}

// Movement exposes the movement detector for threshold tuning.
func (t *ViewTracker) Movement() *movement.Detector { return t.movement }

// Update processes one frame of detections for the active view and returns
// the storage action for each class. An unknown view is a no-op: the servo
// may report transitional angles and those frames are simply not trackable.
func (t *ViewTracker) Update(view int, detections []Detection) []Result {
	viewState, ok := t.views[view]
	if !ok {
		log.Printf("[tracker] warning: view %d not in configured views %v, dropping %d detections", view, t.cfg.Views, len(detections))
		return nil
	}

	now := t.now()

	// Collapse duplicates to the single best detection per class. Strictly
	// greater confidence replaces, so ties keep the first seen.
	best := make(map[string]Detection, len(detections))
	var order []string
	for _, det := range detections {
		prev, seen := best[det.ClassName]
		if !seen {
			order = append(order, det.ClassName)
			best[det.ClassName] = det
		} else if det.Confidence > prev.Confidence {
			best[det.ClassName] = det
		}
	}

	var results []Result
	for _, class := range order {
		results = append(results, t.updateClass(view, viewState, class, best[class], now))
	}

	// Sweep for disappearances: tracked, present, not in this frame, and
	// unseen past the timeout.
	for class, st := range viewState {
		if _, seen := best[class]; seen {
			continue
		}
		if !st.present || now.Sub(st.lastSeen) <= t.cfg.DisappearTimeout {
			continue
		}
		st.present = false
		if st.inDB && st.objectID != 0 {
			if ev := t.movement.HandleExit(view, class); ev != nil {
				t.pendingEvents = append(t.pendingEvents, *ev)
			}
			t.pendingAbsent = append(t.pendingAbsent, AbsentMark{ViewAngle: view, ClassName: class, ObjectID: st.objectID})
			log.Printf("[tracker] view %d: %s absent after %.1fs (object %d)", view, class, now.Sub(st.lastSeen).Seconds(), st.objectID)
		}
	}

	// Person presence drives WINDOW_SHOPPED for every other tracked class.
	_, personInFrame := best[t.cfg.PersonClass]
	for class, st := range viewState {
		if class == t.cfg.PersonClass || !st.present || !st.inDB {
			continue
		}
		t.movement.UpdatePersonPresence(view, class, personInFrame)
	}

	// Poll the hold timeout; fired events land on the movement queue.
	t.movement.CheckHoldTimeouts()

	return results
}

func (t *ViewTracker) updateClass(view int, viewState map[string]*classState, class string, det Detection, now time.Time) Result {
	st, tracked := viewState[class]
	if !tracked {
		st = &classState{
			firstSeen:      now,
			lastSeen:       now,
			detections:     1,
			lastUpdate:     now,
			bestConfidence: det.Confidence,
			lastKnown3D:    det.Center3D,
			lastBBox:       det.BBox,
			hasBBox:        !det.BBox.Empty(),
		}
		viewState[class] = st

		det.LastKnown3D = det.Center3D
		if det.Center3D == nil {
			det.Source = DepthUnknown
		}
		log.Printf("[tracker] view %d: new %s (depth=%s)", view, class, det.Source)
		return Result{Detection: det, Action: ActionAddToDB}
	}

	st.lastSeen = now
	st.detections++

	if det.Center3D != nil {
		st.lastKnown3D = det.Center3D
		if det.Source == DepthReal {
			st.lastRealDepth = det.Center3D.Z
			st.hasRealDepth = true
			st.depthHistory = append(st.depthHistory, det.Center3D.Z)
			if len(st.depthHistory) > depthHistoryLen {
				st.depthHistory = st.depthHistory[1:]
			}
		}
	}
	if !det.BBox.Empty() {
		st.lastBBox = det.BBox
		st.hasBBox = true
	}

	det.LastKnown3D = st.lastKnown3D

	switch {
	case !st.inDB:
		// Commit retried every frame until the caller confirms.
		log.Printf("[tracker] view %d: retrying commit of %s", view, class)
		return Result{Detection: det, Action: ActionAddToDB}

	case !st.present:
		// Reappearance: back to present with a fresh movement baseline.
		st.present = true
		st.lastUpdate = now
		st.bestConfidence = det.Confidence
		if st.hasBBox && st.objectID != 0 {
			t.movement.Register(view, class, st.objectID, st.lastBBox)
		}
		log.Printf("[tracker] view %d: %s reappeared (object %d)", view, class, st.objectID)
		return Result{Detection: det, Action: ActionUpdatePresent, ObjectID: st.objectID}

	default:
		// Movement only trusts measured depth; estimated positions would
		// turn estimator noise into phantom MOVED events.
		if st.hasBBox && st.objectID != 0 && det.Source == DepthReal {
			if ms := t.movement.UpdatePosition(view, class, det.BBox); ms != nil {
				det.IsMoved = ms.IsMoved
				det.Behavioral = ms.Behavioral
			}
		}

		needsTime := now.Sub(st.lastUpdate) >= t.cfg.UpdateInterval
		needsQuality := det.Confidence-st.bestConfidence >= t.cfg.QualityThreshold
		if needsTime || needsQuality {
			st.lastUpdate = now
			st.bestConfidence = max(st.bestConfidence, det.Confidence)
			return Result{Detection: det, Action: ActionUpdateData, ObjectID: st.objectID}
		}
		return Result{Detection: det, Action: ActionSkip, ObjectID: st.objectID}
	}
}

// MarkAddedToDB confirms that storage committed an object and records its
// assigned id. This is the ENTRY point coupling identity and movement
// tracking: the commit registers the movement home position.
func (t *ViewTracker) MarkAddedToDB(view int, class string, objectID int64, bbox geom.BBox) bool {
	viewState, ok := t.views[view]
	if !ok {
		return false
	}
	st, ok := viewState[class]
	if !ok {
		return false
	}

	st.inDB = true
	st.objectID = objectID
	st.present = true

	home := bbox
	if home.Empty() && st.hasBBox {
		home = st.lastBBox
	}
	if !home.Empty() {
		t.movement.Register(view, class, objectID, home)
	}
	log.Printf("[tracker] view %d: committed %s as object %d", view, class, objectID)
	return true
}

// PendingAbsentMarks drains the objects awaiting an absent-mark in storage.
func (t *ViewTracker) PendingAbsentMarks() []AbsentMark {
	marks := t.pendingAbsent
	t.pendingAbsent = nil
	return marks
}

// PendingBehavioralEvents drains all queued behavioural events, combining
// exit-derived events with the movement detector's own queue.
func (t *ViewTracker) PendingBehavioralEvents() []movement.Event {
	events := append(t.pendingEvents, t.movement.PendingEvents()...)
	t.pendingEvents = nil
	return events
}

// LastRealDepth returns the rolling average of recent measured depths for an
// object, for seeding depth estimation through sensor dropout.
func (t *ViewTracker) LastRealDepth(view int, class string) (float64, bool) {
	viewState, ok := t.views[view]
	if !ok {
		return 0, false
	}
	st, ok := viewState[class]
	if !ok || !st.hasRealDepth {
		return 0, false
	}
	if len(st.depthHistory) == 0 {
		return st.lastRealDepth, true
	}
	return stat.Mean(st.depthHistory, nil), true
}
