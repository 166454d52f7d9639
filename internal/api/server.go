// Package api exposes the tracking state, stored objects and runtime tuning
// over HTTP. All endpoints speak JSON.
package api

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shelfsight/shelfsight/internal/store"
	"github.com/shelfsight/shelfsight/internal/tracker"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DetectorStatus is the slice of the inference worker the status endpoint
// reports on.
type DetectorStatus interface {
	Busy() bool
	LastError() string
}

// Server serves the tracking API. The tracker is owned by the frame loop and
// is not safe for concurrent use; mu serialises API reads against it and
// must be the same mutex the frame loop holds while updating.
type Server struct {
	store    *store.Store
	tracker  *tracker.ViewTracker
	mu       *sync.Mutex
	detector DetectorStatus
}

// NewServer creates an API server. detector may be nil when no inference
// worker is running (replay and test setups).
func NewServer(st *store.Store, tr *tracker.ViewTracker, mu *sync.Mutex, detector DetectorStatus) *Server {
	return &Server{store: st, tracker: tr, mu: mu, detector: detector}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/objects", s.listObjects)
	mux.HandleFunc("/api/objects/{id}", s.getObject)
	mux.HandleFunc("/api/objects/{id}/thumbnail", s.getThumbnail)
	mux.HandleFunc("/api/classes", s.handleClasses)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/tracker/status", s.trackerStatus)
	mux.HandleFunc("/api/tracker/params", s.handleParams)
	mux.HandleFunc("/api/stats/summary", s.statsSummary)
	return mux
}
