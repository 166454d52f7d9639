// Package geom converts between pixel, camera and world coordinate frames
// and fills in plausible depths when the depth sensor has no reading.
package geom

import "math"

// Point3D is a position in millimetres. Camera frame: X=right, Y=down,
// Z=forward (optical axis). World frame: the camera frame at pan 90°.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Intrinsics holds the pinhole model for the depth sensor plus the colour
// and depth image dimensions used for cross-stream coordinate mapping.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64

	ColorWidth  int
	ColorHeight int
	DepthWidth  int
	DepthHeight int
}

// DefaultIntrinsics returns the factory calibration for the Kinect v2 depth
// stream. Good enough for shelf-scale distances; not a per-unit calibration.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{
		Fx:          365.456,
		Fy:          365.456,
		Cx:          257.588,
		Cy:          209.131,
		ColorWidth:  1920,
		ColorHeight: 1080,
		DepthWidth:  512,
		DepthHeight: 424,
	}
}

// MapColorToDepth converts a colour-image pixel to the nearest depth-image
// pixel, clamped to the depth frame bounds.
func (in Intrinsics) MapColorToDepth(colorX, colorY int) (depthX, depthY int) {
	depthX = colorX * in.DepthWidth / in.ColorWidth
	depthY = colorY * in.DepthHeight / in.ColorHeight

	depthX = max(0, min(depthX, in.DepthWidth-1))
	depthY = max(0, min(depthY, in.DepthHeight-1))
	return depthX, depthY
}

// PixelTo3D back-projects a depth-image pixel and depth (mm) to camera-frame
// coordinates. A zero depth yields the zero point (no reading).
func (in Intrinsics) PixelTo3D(pixelX, pixelY int, depthMM float64) Point3D {
	if depthMM == 0 {
		return Point3D{}
	}
	z := depthMM
	return Point3D{
		X: (float64(pixelX) - in.Cx) * z / in.Fx,
		Y: (float64(pixelY) - in.Cy) * z / in.Fy,
		Z: z,
	}
}

// CameraToWorld rotates a camera-frame point into the world frame for the
// given pan angle. Pan 90° is world-forward; 0° and 180° look left and
// right, so the same physical object maps to the same world coordinates
// whichever discrete view is active. Rotation is about the vertical axis.
func CameraToWorld(p Point3D, panAngleDeg float64) Point3D {
	theta := (panAngleDeg - 90.0) * math.Pi / 180.0
	sin, cos := math.Sincos(theta)
	return Point3D{
		X: p.X*cos + p.Z*sin,
		Y: p.Y,
		Z: -p.X*sin + p.Z*cos,
	}
}

// PixelToWorld composes back-projection and the view rotation.
func (in Intrinsics) PixelToWorld(pixelX, pixelY int, depthMM, panAngleDeg float64) Point3D {
	return CameraToWorld(in.PixelTo3D(pixelX, pixelY, depthMM), panAngleDeg)
}
