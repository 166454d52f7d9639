package tracker

import (
	"log"
	"slices"
	"time"

	"github.com/shelfsight/shelfsight/internal/movement"
)

// ObjectSummary is a read-only snapshot of one tracked object, for status
// display. Callers get copies, never references into tracker state.
type ObjectSummary struct {
	ClassName     string                   `json:"class_name"`
	ObjectID      int64                    `json:"object_id"`
	InDB          bool                     `json:"in_db"`
	Present       bool                     `json:"is_present"`
	Detections    int                      `json:"detection_count"`
	TimeSinceSeen time.Duration            `json:"time_since_seen"`
	FirstSeen     time.Time                `json:"first_seen"`
	IsMoved       bool                     `json:"is_moved"`
	Behavioral    movement.BehavioralState `json:"behavioral_state"`
}

// ViewSummary is a snapshot of everything tracked at one view.
type ViewSummary struct {
	ViewAngle    int             `json:"view_angle"`
	TotalObjects int             `json:"total_objects"`
	Objects      []ObjectSummary `json:"objects"`
}

// Summary snapshots one view. Unknown views yield an empty summary.
func (t *ViewTracker) Summary(view int) ViewSummary {
	summary := ViewSummary{ViewAngle: view}
	viewState, ok := t.views[view]
	if !ok {
		return summary
	}

	now := t.now()
	summary.TotalObjects = len(viewState)
	for class, st := range viewState {
		obj := ObjectSummary{
			ClassName:     class,
			ObjectID:      st.objectID,
			InDB:          st.inDB,
			Present:       st.present,
			Detections:    st.detections,
			TimeSinceSeen: now.Sub(st.lastSeen),
			FirstSeen:     st.firstSeen,
			Behavioral:    movement.StateNone,
		}
		if ms, tracked := t.movement.State(view, class); tracked {
			obj.IsMoved = ms.IsMoved
			obj.Behavioral = ms.Behavioral
		}
		summary.Objects = append(summary.Objects, obj)
	}
	slices.SortFunc(summary.Objects, func(a, b ObjectSummary) int {
		if a.ClassName < b.ClassName {
			return -1
		}
		if a.ClassName > b.ClassName {
			return 1
		}
		return 0
	})
	return summary
}

// Summaries snapshots every configured view, in configuration order.
func (t *ViewTracker) Summaries() []ViewSummary {
	summaries := make([]ViewSummary, 0, len(t.cfg.Views))
	for _, view := range t.cfg.Views {
		summaries = append(summaries, t.Summary(view))
	}
	return summaries
}

// ClearView forgets all objects tracked at a view.
func (t *ViewTracker) ClearView(view int) {
	if viewState, ok := t.views[view]; ok {
		for class := range viewState {
			t.movement.Reset(view, class)
		}
		t.views[view] = make(map[string]*classState)
		log.Printf("[tracker] cleared view %d", view)
	}
}

// ResetAll forgets all tracking and movement state.
func (t *ViewTracker) ResetAll() {
	for _, view := range t.cfg.Views {
		t.views[view] = make(map[string]*classState)
	}
	t.movement.ResetAll()
	t.pendingAbsent = nil
	t.pendingEvents = nil
	log.Printf("[tracker] reset all views")
}
