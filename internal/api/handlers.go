package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shelfsight/shelfsight/internal/config"
	"github.com/shelfsight/shelfsight/internal/httputil"
	"github.com/shelfsight/shelfsight/internal/store"
)

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	var filter store.ObjectFilter
	if v := r.URL.Query().Get("view"); v != "" {
		view, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'view' parameter")
			return
		}
		filter.ViewAngle = &view
	}
	if r.URL.Query().Get("present") == "true" {
		filter.PresentOnly = true
	}
	filter.ClassName = r.URL.Query().Get("class")

	objects, err := s.store.ListObjects(filter)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list objects: %v", err))
		return
	}
	if objects == nil {
		objects = []store.Object{}
	}
	httputil.WriteJSONOK(w, objects)
}

func (s *Server) objectID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id, err := s.objectID(r)
	if err != nil {
		httputil.BadRequest(w, "invalid object id")
		return
	}

	obj, err := s.store.GetObject(id)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("object %d not found", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load object: %v", err))
		return
	}
	httputil.WriteJSONOK(w, obj)
}

func (s *Server) getThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id, err := s.objectID(r)
	if err != nil {
		httputil.BadRequest(w, "invalid object id")
		return
	}

	thumb, err := s.store.Thumbnail(id)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("no thumbnail for object %d", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load thumbnail: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(thumb)
}

type addClassRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		classes, err := s.store.ListClasses(false)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to list classes: %v", err))
			return
		}
		if classes == nil {
			classes = []store.Class{}
		}
		httputil.WriteJSONOK(w, classes)

	case http.MethodPost:
		var req addClassRequest
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.Name == "" {
			httputil.BadRequest(w, "class name must not be empty")
			return
		}
		if err := s.store.AddClass(req.Name); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to add class: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, map[string]string{"name": req.Name})

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	filter := store.EventFilter{
		EventType: r.URL.Query().Get("type"),
		Limit:     100,
	}
	if v := r.URL.Query().Get("object_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid 'object_id' parameter")
			return
		}
		filter.ObjectID = id
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		filter.Limit = limit
	}

	events, err := s.store.ListEvents(filter)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list events: %v", err))
		return
	}
	if events == nil {
		events = []store.BehavioralEvent{}
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) trackerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	s.mu.Lock()
	views := s.tracker.Summaries()
	s.mu.Unlock()

	status := map[string]interface{}{
		"views": views,
	}
	if s.detector != nil {
		status["detector"] = map[string]interface{}{
			"busy":       s.detector.Busy(),
			"last_error": s.detector.LastError(),
		}
	}
	httputil.WriteJSONOK(w, status)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		threshold := s.tracker.Movement().Threshold()
		s.mu.Unlock()
		httputil.WriteJSONOK(w, map[string]interface{}{
			"movement_threshold_percent": threshold,
		})

	case http.MethodPost:
		var req config.TuningConfig
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}

		applied := map[string]interface{}{}
		s.mu.Lock()
		if req.MovementThresholdPercent != nil {
			s.tracker.Movement().SetThreshold(*req.MovementThresholdPercent)
			applied["movement_threshold_percent"] = s.tracker.Movement().Threshold()
		}
		if req.FrameWidth != nil && req.FrameHeight != nil {
			s.tracker.Movement().SetFrameDimensions(*req.FrameWidth, *req.FrameHeight)
			applied["frame_width"] = *req.FrameWidth
			applied["frame_height"] = *req.FrameHeight
		}
		s.mu.Unlock()

		if len(applied) == 0 {
			httputil.BadRequest(w, "no runtime-tunable parameters in request")
			return
		}
		httputil.WriteJSONOK(w, applied)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) statsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, stats)
}
