package main

import (
	"log"
	"sync"

	"github.com/shelfsight/shelfsight/internal/analytics"
	"github.com/shelfsight/shelfsight/internal/camera"
	"github.com/shelfsight/shelfsight/internal/detect"
	"github.com/shelfsight/shelfsight/internal/geom"
	"github.com/shelfsight/shelfsight/internal/movement"
	"github.com/shelfsight/shelfsight/internal/store"
	"github.com/shelfsight/shelfsight/internal/tracker"
)

// pipeline connects detector output to the tracker and the database. One
// frame at a time: the worker holds a single in-flight request, so the
// submitted frame and depth map are kept until its result comes back and
// thumbnails are cut from them.
type pipeline struct {
	mu       *sync.Mutex
	tracker  *tracker.ViewTracker
	store    *store.Store
	worker   *detect.Worker
	enricher *detect.Enricher
	exporter *analytics.Exporter

	jpegQuality int

	inflightJPEG  []byte
	inflightDepth *detect.DepthMap
}

// submit offers a frame to the detector. Returns false when a request is
// already in flight and the frame was dropped.
func (p *pipeline) submit(jpeg []byte, depth *detect.DepthMap, view int) bool {
	if !p.worker.Submit(jpeg, view) {
		return false
	}
	p.inflightJPEG = jpeg
	p.inflightDepth = depth
	return true
}

// harvest applies the newest completed inference pass, if any. A failed pass
// is dropped: no detections does not mean no objects, and the tracker's own
// timeouts handle real disappearance.
func (p *pipeline) harvest() {
	res, ok := p.worker.Take()
	if !ok || res.Err != nil {
		return
	}
	jpeg, depth := p.inflightJPEG, p.inflightDepth
	p.inflightJPEG, p.inflightDepth = nil, nil

	p.mu.Lock()
	defer p.mu.Unlock()

	dets := p.enricher.Enrich(res.Detections, depth, func(class string) (float64, bool) {
		return p.tracker.LastRealDepth(res.ViewAngle, class)
	})
	results := p.tracker.Update(res.ViewAngle, dets)

	p.applyResults(res.ViewAngle, results, jpeg)
	p.recordAbsent(p.tracker.PendingAbsentMarks())
	p.recordEvents(p.tracker.PendingBehavioralEvents())
}

// applyResults executes the storage action each tracked class asked for.
func (p *pipeline) applyResults(view int, results []tracker.Result, jpeg []byte) {
	for _, res := range results {
		det := res.Detection
		switch res.Action {
		case tracker.ActionAddToDB:
			id, err := p.store.CreateObject(p.objectData(view, det, jpeg))
			if err != nil {
				log.Printf("[pipeline] failed to store %s at view %d: %v", det.ClassName, view, err)
				continue
			}
			p.tracker.MarkAddedToDB(view, det.ClassName, id, det.BBox)
			log.Printf("[pipeline] new object %d: %s at view %d (%.2f)", id, det.ClassName, view, det.Confidence)

		case tracker.ActionUpdatePresent:
			if err := p.store.MarkPresent(res.ObjectID); err != nil {
				log.Printf("[pipeline] failed to mark object %d present: %v", res.ObjectID, err)
				continue
			}
			if err := p.store.UpdateObjectData(res.ObjectID, p.objectData(view, det, jpeg)); err != nil {
				log.Printf("[pipeline] failed to refresh object %d: %v", res.ObjectID, err)
			}

		case tracker.ActionUpdateData:
			if err := p.store.UpdateObjectData(res.ObjectID, p.objectData(view, det, jpeg)); err != nil {
				log.Printf("[pipeline] failed to refresh object %d: %v", res.ObjectID, err)
			}
		}
	}
}

// objectData converts a tracked detection into its storage shape, moving the
// camera-frame position into world coordinates for the active pan angle.
func (p *pipeline) objectData(view int, det tracker.Detection, jpeg []byte) store.ObjectData {
	data := store.ObjectData{
		ClassName:   det.ClassName,
		ViewAngle:   view,
		Confidence:  det.Confidence,
		BBoxX:       det.BBox.X,
		BBoxY:       det.BBox.Y,
		BBoxW:       det.BBox.W,
		BBoxH:       det.BBox.H,
		DepthSource: string(det.Source),
	}

	pos := det.Center3D
	if pos == nil {
		pos = det.LastKnown3D
	}
	if pos != nil {
		w := geom.CameraToWorld(*pos, float64(view))
		data.PosX, data.PosY, data.PosZ = &w.X, &w.Y, &w.Z
	}

	if jpeg != nil && !det.BBox.Empty() {
		thumb, err := camera.CropJPEG(jpeg, det.BBox, p.jpegQuality)
		if err != nil {
			log.Printf("[pipeline] failed to cut thumbnail for %s: %v", det.ClassName, err)
		} else {
			data.Thumbnail = thumb
		}
	}
	return data
}

func (p *pipeline) recordAbsent(marks []tracker.AbsentMark) {
	for _, m := range marks {
		if err := p.store.MarkAbsent(m.ObjectID); err != nil {
			log.Printf("[pipeline] failed to mark object %d absent: %v", m.ObjectID, err)
			continue
		}
		log.Printf("[pipeline] object %d (%s, view %d) absent", m.ObjectID, m.ClassName, m.ViewAngle)
	}
}

func (p *pipeline) recordEvents(events []movement.Event) {
	for _, ev := range events {
		if err := p.store.RecordEvent(ev); err != nil {
			log.Printf("[pipeline] failed to record %s for object %d: %v", ev.Type, ev.ObjectID, err)
			continue
		}
		p.exporter.Record(ev)
		log.Printf("[pipeline] %s: object %d (%s, view %d)", ev.Type, ev.ObjectID, ev.ClassName, ev.ViewAngle)
	}
}
