package geom

import "math"

// Depth estimation bounds and reference point. The reference pair means a
// bounding box of ReferenceAreaPx² is assumed to sit at ReferenceDepthMM,
// with an inverse-square falloff for smaller boxes.
const (
	MinDepthMM = 500.0
	MaxDepthMM = 3000.0

	ReferenceAreaPx   = 30000.0
	ReferenceDepthMM  = 1200.0
	classPriorWeight  = 0.3
	sizeEstimateShare = 1.0 - classPriorWeight
)

// DepthEstimator produces a plausible depth for a detection when the sensor
// returned no valid reading. It is a heuristic to keep objects trackable
// through transient sensor dropout, not a calibrated range model.
type DepthEstimator struct {
	// ClassDepthMM maps a class name to its typical shelf distance.
	ClassDepthMM map[string]float64
}

// NewDepthEstimator returns an estimator seeded with typical distances for
// common retail classes. Unknown classes fall back to the size model alone.
func NewDepthEstimator() *DepthEstimator {
	return &DepthEstimator{
		ClassDepthMM: map[string]float64{
			"person":       1800,
			"bottle":       1100,
			"cup":          1000,
			"laptop":       1300,
			"cell phone":   1000,
			"book":         1100,
			"keyboard":     1200,
			"mouse":        1000,
			"water bottle": 1100,
		},
	}
}

// Estimate resolves a depth in millimetres using the priority chain:
// last-known depth if still physically plausible, then a bbox-size
// inverse-square estimate, blended with the class prior when one exists.
// The result is always clamped to [MinDepthMM, MaxDepthMM].
func (e *DepthEstimator) Estimate(bboxW, bboxH int, className string, lastKnownMM float64) float64 {
	if lastKnownMM >= MinDepthMM && lastKnownMM <= MaxDepthMM {
		return lastKnownMM
	}

	area := float64(bboxW) * float64(bboxH)
	var estimate float64
	if area > 0 {
		// Apparent area scales with 1/d², so d scales with sqrt(refArea/area).
		estimate = ReferenceDepthMM * math.Sqrt(ReferenceAreaPx/area)
	} else {
		estimate = ReferenceDepthMM
	}

	if prior, ok := e.ClassDepthMM[className]; ok && area > 0 {
		estimate = sizeEstimateShare*estimate + classPriorWeight*prior
	} else if prior, ok := e.ClassDepthMM[className]; ok {
		estimate = prior
	}

	return clampDepth(estimate)
}

func clampDepth(d float64) float64 {
	if d < MinDepthMM {
		return MinDepthMM
	}
	if d > MaxDepthMM {
		return MaxDepthMM
	}
	return d
}
