package tracker

import (
	"github.com/shelfsight/shelfsight/internal/geom"
	"github.com/shelfsight/shelfsight/internal/movement"
)

// DepthSource records where a detection's 3D position came from.
type DepthSource string

const (
	DepthReal      DepthSource = "real"      // measured by the depth sensor
	DepthEstimated DepthSource = "estimated" // filled in by the depth heuristic
	DepthUnknown   DepthSource = "unknown"   // no position available
)

// Detection is one per-frame observation from the detector, enriched by the
// pipeline with 3D position and by the tracker with last-known fallbacks.
type Detection struct {
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	BBox       geom.BBox   `json:"bbox"`
	CenterX    int         `json:"center_x"`
	CenterY    int         `json:"center_y"`
	Center3D   *geom.Point3D `json:"center_3d,omitempty"`
	Source     DepthSource `json:"depth_source"`

	// LastKnown3D is injected by the tracker so storage has a position to
	// fall back on when the current frame carries none.
	LastKnown3D *geom.Point3D `json:"last_known_position_3d,omitempty"`

	// Movement snapshot, populated for present-and-committed objects.
	IsMoved    bool                     `json:"is_moved,omitempty"`
	Behavioral movement.BehavioralState `json:"behavioral_state,omitempty"`
}

// Action tells the caller what to do with a detection's persistent record.
type Action string

const (
	// ActionAddToDB: no committed record yet; create one and report the
	// assigned id back via MarkAddedToDB. Re-issued every frame until then.
	ActionAddToDB Action = "add_to_db"
	// ActionUpdatePresent: object was absent and reappeared; flip it back
	// to present and refresh its stored data.
	ActionUpdatePresent Action = "update_present"
	// ActionUpdateData: periodic refresh of thumbnail/position/confidence.
	ActionUpdateData Action = "update_data"
	// ActionSkip: present, committed, nothing due.
	ActionSkip Action = "skip"
)

// Result pairs a detection with the storage action it requires.
// ObjectID is zero until the object has been committed.
type Result struct {
	Detection Detection
	Action    Action
	ObjectID  int64
}

// AbsentMark asks the caller to mark a disappeared object absent in storage.
type AbsentMark struct {
	ViewAngle int    `json:"view_angle"`
	ClassName string `json:"class_name"`
	ObjectID  int64  `json:"object_id"`
}
