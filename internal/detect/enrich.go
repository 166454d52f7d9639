package detect

import (
	"github.com/shelfsight/shelfsight/internal/geom"
	"github.com/shelfsight/shelfsight/internal/tracker"
)

// DepthMap is one depth frame in sensor resolution, millimetres per pixel.
// Zero means no reading at that pixel.
type DepthMap struct {
	Width  int
	Height int
	Data   []uint16
}

// At returns the depth at (x, y), or 0 when out of range.
func (d *DepthMap) At(x, y int) uint16 {
	if d == nil || x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0
	}
	return d.Data[y*d.Width+x]
}

// sampleWindow is the half-width of the patch sampled around a detection
// center. Single-pixel reads are too noisy at box edges.
const sampleWindow = 2

// Sample returns the median valid depth in a small patch around (x, y).
// Returns 0 when every pixel in the patch is invalid.
func (d *DepthMap) Sample(x, y int) float64 {
	var values []uint16
	for dy := -sampleWindow; dy <= sampleWindow; dy++ {
		for dx := -sampleWindow; dx <= sampleWindow; dx++ {
			if v := d.At(x+dx, y+dy); v > 0 {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return 0
	}
	// Insertion sort; the patch is at most 25 values.
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j] < values[j-1]; j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
	return float64(values[len(values)/2])
}

// LastDepthFunc supplies the rolling average of recent measured depths for a
// class, seeding estimation through sensor dropout.
type LastDepthFunc func(className string) (float64, bool)

// Enricher attaches 3D positions to raw detections. Measured depth wins;
// otherwise the depth estimator fills in, and the detection is flagged so
// downstream consumers know not to trust it for movement.
type Enricher struct {
	intr geom.Intrinsics
	est  *geom.DepthEstimator
}

// NewEnricher creates an enricher for the given camera intrinsics.
func NewEnricher(intr geom.Intrinsics) *Enricher {
	return &Enricher{intr: intr, est: geom.NewDepthEstimator()}
}

// Enrich converts raw detections into tracker detections with camera-frame
// 3D centers. depth may be nil when the sensor produced no frame; lastDepth
// may be nil when no history is available.
func (e *Enricher) Enrich(raw []RawDetection, depth *DepthMap, lastDepth LastDepthFunc) []tracker.Detection {
	out := make([]tracker.Detection, 0, len(raw))
	for _, rd := range raw {
		cx, cy := rd.BBox.Center()
		det := tracker.Detection{
			ClassName:  rd.ClassName,
			Confidence: rd.Confidence,
			BBox:       rd.BBox,
			CenterX:    int(cx),
			CenterY:    int(cy),
			Source:     tracker.DepthUnknown,
		}

		depthX, depthY := e.intr.MapColorToDepth(det.CenterX, det.CenterY)

		if mm := depth.Sample(depthX, depthY); mm >= geom.MinDepthMM && mm <= geom.MaxDepthMM {
			p := e.intr.PixelTo3D(depthX, depthY, mm)
			det.Center3D = &p
			det.Source = tracker.DepthReal
		} else {
			var known float64
			if lastDepth != nil {
				if v, ok := lastDepth(rd.ClassName); ok {
					known = v
				}
			}
			est := e.est.Estimate(rd.BBox.W, rd.BBox.H, rd.ClassName, known)
			p := e.intr.PixelTo3D(depthX, depthY, est)
			det.Center3D = &p
			det.Source = tracker.DepthEstimated
		}

		out = append(out, det)
	}
	return out
}
