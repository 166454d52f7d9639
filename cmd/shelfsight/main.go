// Command shelfsight watches retail shelves through a panning camera,
// keeping a persistent record of what is on them and how shoppers handle it.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shelfsight/shelfsight/internal/analytics"
	"github.com/shelfsight/shelfsight/internal/api"
	"github.com/shelfsight/shelfsight/internal/camera"
	"github.com/shelfsight/shelfsight/internal/config"
	"github.com/shelfsight/shelfsight/internal/detect"
	"github.com/shelfsight/shelfsight/internal/geom"
	"github.com/shelfsight/shelfsight/internal/pantilt"
	"github.com/shelfsight/shelfsight/internal/report"
	"github.com/shelfsight/shelfsight/internal/store"
	"github.com/shelfsight/shelfsight/internal/tracker"
	"github.com/shelfsight/shelfsight/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "HTTP listen address")
	dbPath       = flag.String("db", "shelfsight.db", "SQLite database path")
	tuningPath   = flag.String("config", "", "Tuning config JSON (optional)")
	detectorURL  = flag.String("detector", "http://localhost:8763", "Detection service base URL")
	servoPort    = flag.String("servo", "/dev/ttyUSB0", "Servo serial port (empty disables panning)")
	cameraID     = flag.Int("camera", 0, "Capture device id")
	amplitudeKey = flag.String("amplitude-key", "", "Amplitude API key (empty disables export)")
	viewDwell    = flag.Duration("dwell", 10*time.Second, "Time at each view before panning on")
	frameRate    = flag.Duration("frame-interval", 200*time.Millisecond, "Capture loop period")
)

func main() {
	flag.Parse()
	log.Printf("[main] shelfsight %s", version.String())

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	trackerCfg := tracker.DefaultConfig()
	tuning.ApplyTracker(&trackerCfg)

	st, err := store.Open(*dbPath, store.WithPositionAlpha(tuning.GetPositionSmoothingAlpha()))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	classes, err := st.ClassNames()
	if err != nil {
		log.Fatalf("failed to load class vocabulary: %v", err)
	}

	detectCfg := detect.DefaultConfig()
	detectCfg.BaseURL = *detectorURL
	detectCfg.Confidence = tuning.GetDetectionConfidence()
	detectCfg.Timeout = tuning.GetDetectionTimeout()
	worker := detect.NewWorker(detect.NewClient(detectCfg, nil), classes)
	defer worker.Stop()

	var servo *pantilt.Controller
	if *servoPort != "" {
		servoCfg := pantilt.DefaultConfig()
		servoCfg.PortName = *servoPort
		servo, err = pantilt.Open(servoCfg)
		if err != nil {
			log.Fatalf("failed to open servo: %v", err)
		}
		defer servo.Close()
		if err := servo.MoveTo(trackerCfg.Views[0]); err != nil {
			log.Fatalf("failed to home servo: %v", err)
		}
	} else {
		log.Printf("[main] panning disabled, fixed at view %d", trackerCfg.Views[0])
	}

	camCfg := camera.DefaultConfig()
	camCfg.DeviceID = *cameraID
	cam, err := camera.Open(camCfg)
	if err != nil {
		log.Fatalf("failed to open camera: %v", err)
	}
	defer cam.Close()

	ampCfg := analytics.DefaultConfig()
	ampCfg.APIKey = *amplitudeKey
	exporter := analytics.NewExporter(ampCfg, nil)
	exporter.Start()
	defer exporter.Close()

	tr := tracker.New(trackerCfg)
	var mu sync.Mutex
	pipe := &pipeline{
		mu:          &mu,
		tracker:     tr,
		store:       st,
		worker:      worker,
		enricher:    detect.NewEnricher(geom.DefaultIntrinsics()),
		exporter:    exporter,
		jpegQuality: camCfg.JPEGQuality,
	}

	mux := api.NewServer(st, tr, &mu, worker).ServeMux()
	report.NewHandler(st).Routes(mux)
	httpServer := &http.Server{Addr: *listen, Handler: api.LoggingMiddleware(mux)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[main] serving on %s", *listen)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[main] HTTP server failed: %v", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runLoop(ctx, pipe, cam, servo, trackerCfg.Views)
	}()

	<-ctx.Done()
	log.Print("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] HTTP shutdown: %v", err)
	}
	wg.Wait()
}

// runLoop is the capture loop: pan, settle, grab, detect, persist.
func runLoop(ctx context.Context, pipe *pipeline, cam *camera.Device, servo *pantilt.Controller, views []int) {
	ticker := time.NewTicker(*frameRate)
	defer ticker.Stop()

	arrivedAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pipe.harvest()

		view := views[0]
		if servo != nil {
			if time.Since(arrivedAt) >= *viewDwell && !pipe.worker.Busy() {
				if err := servo.Next(); err != nil {
					log.Printf("[main] pan failed: %v", err)
				} else {
					arrivedAt = time.Now()
				}
			}
			// Frames during servo travel are blurred; skip them.
			if !servo.Settled() {
				continue
			}
			view = servo.Current()
		}

		frame, err := cam.Grab()
		if err != nil {
			log.Printf("[main] capture failed: %v", err)
			continue
		}
		jpeg, err := frame.JPEG()
		frame.Close()
		if err != nil {
			log.Printf("[main] encode failed: %v", err)
			continue
		}

		pipe.submit(jpeg, cam.Depth(), view)
	}
}
