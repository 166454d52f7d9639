// Package pantilt drives the servo rig that sweeps the camera between shelf
// views. The servo controller speaks a one-line ASCII protocol over serial:
// "pan <degrees>\n".
package pantilt

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ViewAngles are the pan positions the rig cycles through.
var ViewAngles = []int{0, 90, 180}

// Porter is the minimal serial port surface the controller needs. The
// abstraction enables unit testing without servo hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// Config holds the servo connection and motion settings.
type Config struct {
	PortName string
	BaudRate int

	// SettleTime is how long the rig needs after a move before frames from
	// the new position are trustworthy.
	SettleTime time.Duration
}

// DefaultConfig returns the settings for the standard rig.
func DefaultConfig() Config {
	return Config{
		PortName:   "/dev/ttyUSB0",
		BaudRate:   9600,
		SettleTime: 2 * time.Second,
	}
}

// Controller positions the pan servo and tracks settle state.
type Controller struct {
	cfg  Config
	port Porter

	mu      sync.Mutex
	current int
	movedAt time.Time

	now func() time.Time // test hook
}

// Open connects to the servo controller over serial.
func Open(cfg Config) (*Controller, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open servo port %s: %w", cfg.PortName, err)
	}
	log.Printf("[pantilt] connected to %s at %d baud", cfg.PortName, cfg.BaudRate)
	return NewController(port, cfg), nil
}

// NewController wraps an already-open port.
func NewController(port Porter, cfg Config) *Controller {
	return &Controller{
		cfg:     cfg,
		port:    port,
		current: -1, // unknown until the first move
		now:     time.Now,
	}
}

// MoveTo pans the rig to the given angle. Moving to the current position is
// a no-op and does not restart the settle window.
func (c *Controller) MoveTo(angle int) error {
	if angle < 0 || angle > 180 {
		return fmt.Errorf("pan angle %d out of range [0, 180]", angle)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if angle == c.current {
		return nil
	}

	if _, err := fmt.Fprintf(c.port, "pan %d\n", angle); err != nil {
		return fmt.Errorf("failed to command servo: %w", err)
	}
	c.current = angle
	c.movedAt = c.now()
	return nil
}

// Next moves to the view angle after the current one, wrapping around.
func (c *Controller) Next() error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	next := ViewAngles[0]
	for i, a := range ViewAngles {
		if a == cur {
			next = ViewAngles[(i+1)%len(ViewAngles)]
			break
		}
	}
	return c.MoveTo(next)
}

// Current returns the last commanded angle, or -1 before the first move.
func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Settled reports whether the settle window since the last move has elapsed.
func (c *Controller) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current < 0 {
		return false
	}
	return c.now().Sub(c.movedAt) >= c.cfg.SettleTime
}

// SettleRemaining returns how long until frames from the current position
// are trustworthy. Zero once settled.
func (c *Controller) SettleRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.cfg.SettleTime - c.now().Sub(c.movedAt)
	if c.current < 0 || remaining < 0 {
		return 0
	}
	return remaining
}

// Close parks the rig at the first view angle and closes the port.
func (c *Controller) Close() error {
	if err := c.MoveTo(ViewAngles[0]); err != nil {
		log.Printf("[pantilt] failed to park servo: %v", err)
	}
	return c.port.Close()
}
