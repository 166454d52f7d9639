// Package camera wraps the colour camera behind a small capture API. Frames
// come back as owned OpenCV mats; callers must Close each capture once the
// JPEG and thumbnails are cut.
package camera

import (
	"fmt"
	"image"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/shelfsight/shelfsight/internal/detect"
	"github.com/shelfsight/shelfsight/internal/geom"
)

// Config holds the capture device settings.
type Config struct {
	DeviceID    int
	FrameWidth  int
	FrameHeight int
	JPEGQuality int
}

// DefaultConfig returns settings for the standard colour camera.
func DefaultConfig() Config {
	return Config{
		DeviceID:    0,
		FrameWidth:  1920,
		FrameHeight: 1080,
		JPEGQuality: 85,
	}
}

// DepthFunc supplies the depth frame registered to the most recent colour
// frame, or nil when no depth sensor is attached.
type DepthFunc func() *detect.DepthMap

// Capture is one grabbed colour frame.
type Capture struct {
	mat       gocv.Mat
	quality   int
	Timestamp time.Time
}

// JPEG encodes the full frame.
func (c *Capture) JPEG() ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.mat,
		[]int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Thumbnail encodes the frame region under the given box, clamped to the
// frame bounds. Returns an error when the clamped box has no extent.
func (c *Capture) Thumbnail(box geom.BBox) ([]byte, error) {
	x, y, w, h := box.X, box.Y, box.W, box.H
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > c.mat.Cols() {
		w = c.mat.Cols() - x
	}
	if y+h > c.mat.Rows() {
		h = c.mat.Rows() - y
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("box (%d,%d %dx%d) lies outside the frame", box.X, box.Y, box.W, box.H)
	}

	region := c.mat.Region(image.Rect(x, y, x+w, y+h))
	defer region.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, region,
		[]int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the underlying mat.
func (c *Capture) Close() {
	c.mat.Close()
}

// CropJPEG decodes an encoded frame and cuts the region under box. Used for
// thumbnails when the original capture has already been released.
func CropJPEG(jpeg []byte, box geom.BBox, quality int) ([]byte, error) {
	mat, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	c := &Capture{mat: mat, quality: quality}
	defer c.Close()
	return c.Thumbnail(box)
}

// Device is an open capture device.
type Device struct {
	cfg   Config
	cam   *gocv.VideoCapture
	depth DepthFunc
}

// Open connects to the capture device and applies the configured frame size.
func Open(cfg Config) (*Device, error) {
	cam, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", cfg.DeviceID, err)
	}
	cam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.FrameWidth))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.FrameHeight))
	cam.Set(gocv.VideoCaptureBufferSize, 1)
	log.Printf("[camera] opened device %d at %dx%d", cfg.DeviceID, cfg.FrameWidth, cfg.FrameHeight)
	return &Device{cfg: cfg, cam: cam}, nil
}

// SetDepthSource attaches a depth frame supplier.
func (d *Device) SetDepthSource(fn DepthFunc) {
	d.depth = fn
}

// Grab reads one frame. The caller owns the returned capture and must Close
// it.
func (d *Device) Grab() (*Capture, error) {
	mat := gocv.NewMat()
	if ok := d.cam.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("failed to read frame from camera %d", d.cfg.DeviceID)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("camera %d returned an empty frame", d.cfg.DeviceID)
	}
	return &Capture{mat: mat, quality: d.cfg.JPEGQuality, Timestamp: time.Now()}, nil
}

// Depth returns the depth frame registered to the last grab, or nil.
func (d *Device) Depth() *detect.DepthMap {
	if d.depth == nil {
		return nil
	}
	return d.depth()
}

// Close releases the capture device.
func (d *Device) Close() error {
	return d.cam.Close()
}
