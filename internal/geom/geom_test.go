package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPixelTo3D(t *testing.T) {
	t.Parallel()
	in := DefaultIntrinsics()

	t.Run("principal point projects onto optical axis", func(t *testing.T) {
		t.Parallel()
		p := in.PixelTo3D(258, 209, 1000)
		assert.InDelta(t, 0, p.X, 2.0)
		assert.InDelta(t, 0, p.Y, 1.0)
		assert.InDelta(t, 1000, p.Z, 0.001)
	})

	t.Run("zero depth means no reading", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Point3D{}, in.PixelTo3D(100, 100, 0))
	})

	t.Run("offset scales with depth", func(t *testing.T) {
		t.Parallel()
		near := in.PixelTo3D(400, 209, 1000)
		far := in.PixelTo3D(400, 209, 2000)
		assert.InDelta(t, near.X*2, far.X, 0.001)
	})
}

func TestMapColorToDepth(t *testing.T) {
	t.Parallel()
	in := DefaultIntrinsics()

	dx, dy := in.MapColorToDepth(1920, 1080)
	assert.Equal(t, in.DepthWidth-1, dx)
	assert.Equal(t, in.DepthHeight-1, dy)

	dx, dy = in.MapColorToDepth(0, 0)
	assert.Equal(t, 0, dx)
	assert.Equal(t, 0, dy)

	dx, dy = in.MapColorToDepth(960, 540)
	assert.Equal(t, 256, dx)
	assert.Equal(t, 212, dy)
}

func TestCameraToWorld(t *testing.T) {
	t.Parallel()

	t.Run("forward view is identity", func(t *testing.T) {
		t.Parallel()
		p := Point3D{X: 100, Y: -50, Z: 1200}
		w := CameraToWorld(p, 90)
		assert.InDelta(t, p.X, w.X, 1e-9)
		assert.InDelta(t, p.Y, w.Y, 1e-9)
		assert.InDelta(t, p.Z, w.Z, 1e-9)
	})

	t.Run("same physical point agrees across views", func(t *testing.T) {
		t.Parallel()
		// An object straight ahead of the 0° view sits to the world's left.
		w := CameraToWorld(Point3D{Z: 1000}, 0)
		assert.InDelta(t, -1000, w.X, 1e-6)
		assert.InDelta(t, 0, w.Z, 1e-6)

		// Straight ahead of the 180° view is the world's right.
		w = CameraToWorld(Point3D{Z: 1000}, 180)
		assert.InDelta(t, 1000, w.X, 1e-6)
		assert.InDelta(t, 0, w.Z, 1e-6)
	})

	t.Run("vertical axis is preserved", func(t *testing.T) {
		t.Parallel()
		w := CameraToWorld(Point3D{Y: 250, Z: 900}, 0)
		assert.InDelta(t, 250, w.Y, 1e-9)
	})
}

func TestDepthEstimate(t *testing.T) {
	t.Parallel()
	e := NewDepthEstimator()

	t.Run("reference area returns reference depth", func(t *testing.T) {
		t.Parallel()
		// 200x150 = 30000 px², no class prior, no last-known reading.
		assert.InDelta(t, ReferenceDepthMM, e.Estimate(200, 150, "widget", 0), 1e-9)
	})

	t.Run("halving area scales by sqrt2", func(t *testing.T) {
		t.Parallel()
		d := e.Estimate(150, 100, "widget", 0)
		assert.InDelta(t, ReferenceDepthMM*math.Sqrt2, d, 1e-6)
	})

	t.Run("last known depth wins when plausible", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1750.0, e.Estimate(200, 150, "widget", 1750))
	})

	t.Run("implausible last known depth is ignored", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, ReferenceDepthMM, e.Estimate(200, 150, "widget", 9000), 1e-9)
	})

	t.Run("class prior blends 70/30", func(t *testing.T) {
		t.Parallel()
		d := e.Estimate(200, 150, "cup", 0)
		want := 0.7*ReferenceDepthMM + 0.3*1000
		assert.InDelta(t, want, d, 1e-6)
	})

	t.Run("tiny bbox clamps at max", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, MaxDepthMM, e.Estimate(10, 10, "widget", 0))
	})

	t.Run("huge bbox clamps at min", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, MinDepthMM, e.Estimate(1920, 1080, "widget", 0))
	})

	t.Run("zero area falls back to class prior", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1800.0, e.Estimate(0, 0, "person", 0))
	})
}
