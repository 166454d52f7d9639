package movement

import "time"

// SetNowFunc overrides the detector's time source. Tests use this to drive
// stabilization windows, cooldowns and dwell timers deterministically.
func (d *Detector) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	d.now = now
}
