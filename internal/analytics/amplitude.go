// Package analytics forwards behavioural events to Amplitude in batches.
// Export is best effort: a failed batch is kept for the next flush and the
// pipeline never blocks on it.
package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shelfsight/shelfsight/internal/httputil"
	"github.com/shelfsight/shelfsight/internal/movement"
)

// maxBuffered caps the retry buffer; beyond this the oldest events drop.
const maxBuffered = 1000

// Config holds the exporter settings. An empty APIKey disables export.
type Config struct {
	APIKey   string
	Endpoint string
	DeviceID string

	// FlushSize triggers an immediate flush when the buffer reaches it.
	FlushSize int

	// FlushInterval is the background flush period.
	FlushInterval time.Duration
}

// DefaultConfig returns production-default exporter settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:      "https://api2.amplitude.com/2/httpapi",
		DeviceID:      "shelfsight",
		FlushSize:     10,
		FlushInterval: 30 * time.Second,
	}
}

// amplitudeEvent is the wire shape of one event. InsertID makes retried
// batches idempotent on the Amplitude side.
type amplitudeEvent struct {
	DeviceID        string                 `json:"device_id"`
	EventType       string                 `json:"event_type"`
	Time            int64                  `json:"time"` // unix millis
	InsertID        string                 `json:"insert_id"`
	EventProperties map[string]interface{} `json:"event_properties"`
}

type amplitudePayload struct {
	APIKey string           `json:"api_key"`
	Events []amplitudeEvent `json:"events"`
}

// Exporter buffers behavioural events and ships them to Amplitude.
type Exporter struct {
	cfg  Config
	http httputil.HTTPClient

	mu  sync.Mutex
	buf []amplitudeEvent

	stop chan struct{}
	done chan struct{}
}

// NewExporter creates an exporter. Pass nil to use a standard HTTP client.
func NewExporter(cfg Config, hc httputil.HTTPClient) *Exporter {
	if hc == nil {
		hc = httputil.NewStandardClient(10 * time.Second)
	}
	return &Exporter{cfg: cfg, http: hc}
}

// Enabled reports whether export is configured.
func (e *Exporter) Enabled() bool { return e.cfg.APIKey != "" }

// Record buffers one event, flushing if the batch size is reached. No-op
// when export is disabled.
func (e *Exporter) Record(ev movement.Event) {
	if !e.Enabled() {
		return
	}

	ae := amplitudeEvent{
		DeviceID:  e.cfg.DeviceID,
		EventType: string(ev.Type),
		Time:      ev.Timestamp.UnixMilli(),
		InsertID:  ev.ID,
		EventProperties: map[string]interface{}{
			"class_name": ev.ClassName,
			"object_id":  ev.ObjectID,
			"view_angle": ev.ViewAngle,
		},
	}
	switch ev.Type {
	case movement.EventMoved:
		ae.EventProperties["displacement_x"] = ev.DisplacementX
		ae.EventProperties["displacement_y"] = ev.DisplacementY
	case movement.EventCartAbandoned:
		ae.EventProperties["return_kind"] = string(ev.ReturnKind)
		ae.EventProperties["time_moved_ms"] = ev.TimeMoved.Milliseconds()
	case movement.EventWindowShopped:
		ae.EventProperties["person_dwell_ms"] = ev.PersonDwell.Milliseconds()
	case movement.EventProductPurchased:
		ae.EventProperties["time_present_ms"] = ev.TimePresent.Milliseconds()
		ae.EventProperties["was_moved"] = ev.WasMoved
	}

	e.mu.Lock()
	e.buf = append(e.buf, ae)
	if len(e.buf) > maxBuffered {
		e.buf = e.buf[len(e.buf)-maxBuffered:]
	}
	shouldFlush := len(e.buf) >= e.cfg.FlushSize
	e.mu.Unlock()

	if shouldFlush {
		if err := e.Flush(); err != nil {
			log.Printf("[analytics] flush failed: %v", err)
		}
	}
}

// Flush sends all buffered events. On failure the batch stays buffered for
// the next attempt; insert ids keep retries idempotent.
func (e *Exporter) Flush() error {
	e.mu.Lock()
	if len(e.buf) == 0 {
		e.mu.Unlock()
		return nil
	}
	batch := e.buf
	e.buf = nil
	e.mu.Unlock()

	if err := e.send(batch); err != nil {
		e.mu.Lock()
		e.buf = append(batch, e.buf...)
		if len(e.buf) > maxBuffered {
			e.buf = e.buf[len(e.buf)-maxBuffered:]
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Exporter) send(batch []amplitudeEvent) error {
	payload, err := json.Marshal(amplitudePayload{APIKey: e.cfg.APIKey, Events: batch})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("amplitude returned %d", resp.StatusCode)
	}
	return nil
}

// Pending returns the number of buffered events.
func (e *Exporter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buf)
}

// Start launches the background flush loop.
func (e *Exporter) Start() {
	if !e.Enabled() {
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					log.Printf("[analytics] periodic flush failed: %v", err)
				}
			case <-e.stop:
				return
			}
		}
	}()
	log.Printf("[analytics] exporting to %s every %s or %d events", e.cfg.Endpoint, e.cfg.FlushInterval, e.cfg.FlushSize)
}

// Close stops the flush loop and drains the buffer.
func (e *Exporter) Close() error {
	if e.stop != nil {
		close(e.stop)
		<-e.done
	}
	return e.Flush()
}
