package detect

import (
	"context"
	"log"
	"sync"
	"time"
)

// Result is one completed inference pass, tagged with the view the frame
// was captured at.
type Result struct {
	ViewAngle  int
	Detections []RawDetection
	Err        error
	Elapsed    time.Duration
}

// Worker runs inference asynchronously with at most one request in flight.
// The frame loop keeps capturing at camera rate while the GPU works; frames
// offered while busy are dropped, and only the newest completed result is
// held. Results are consumed exactly once.
type Worker struct {
	client *Client

	mu       sync.Mutex
	classes  []string
	pending  bool
	ready    bool
	latest   Result
	lastErr  string
	inflight context.CancelFunc
}

// NewWorker creates a worker around the given client with an initial class
// vocabulary.
func NewWorker(client *Client, classes []string) *Worker {
	return &Worker{client: client, classes: append([]string(nil), classes...)}
}

// SetClasses swaps the detection vocabulary. Takes effect on the next
// submitted frame; an in-flight request keeps the classes it started with.
func (w *Worker) SetClasses(classes []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.classes = append([]string(nil), classes...)
}

// Busy reports whether a request is currently in flight.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// LastError returns the most recent inference failure, or "".
func (w *Worker) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Submit offers a frame for inference. Returns false if the worker is busy,
// in which case the frame is dropped.
func (w *Worker) Submit(jpeg []byte, viewAngle int) bool {
	w.mu.Lock()
	if w.pending {
		w.mu.Unlock()
		return false
	}
	w.pending = true
	classes := append([]string(nil), w.classes...)
	ctx, cancel := context.WithTimeout(context.Background(), w.client.cfg.Timeout)
	w.inflight = cancel
	w.mu.Unlock()

	go func() {
		defer cancel()
		start := time.Now()
		dets, err := w.client.Detect(ctx, jpeg, classes)
		elapsed := time.Since(start)

		w.mu.Lock()
		defer w.mu.Unlock()
		w.pending = false
		w.ready = true
		w.latest = Result{ViewAngle: viewAngle, Detections: dets, Err: err, Elapsed: elapsed}
		if err != nil {
			w.lastErr = err.Error()
			log.Printf("[detect] inference failed after %s: %v", elapsed.Round(time.Millisecond), err)
		} else {
			w.lastErr = ""
		}
	}()
	return true
}

// Take returns the newest completed result, if one is waiting. Each result
// is returned at most once; a failed pass yields ok=true with Err set so
// the caller can distinguish "no news" from "inference broke".
func (w *Worker) Take() (Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready {
		return Result{}, false
	}
	w.ready = false
	return w.latest, true
}

// Stop cancels any in-flight request.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight != nil {
		w.inflight()
	}
}
