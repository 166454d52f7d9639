package geom

// BBox is an axis-aligned bounding box in colour-image pixels,
// top-left origin, (x, y, w, h) convention.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the box centre point.
func (b BBox) Center() (cx, cy float64) {
	return float64(b.X) + float64(b.W)/2.0, float64(b.Y) + float64(b.H)/2.0
}

// Area returns the box area in square pixels.
func (b BBox) Area() int {
	return b.W * b.H
}

// Empty reports whether the box has no extent.
func (b BBox) Empty() bool {
	return b.W <= 0 || b.H <= 0
}
