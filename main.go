package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/gazepoint/internal/config"
	"github.com/banshee-data/gazepoint/internal/cursor"
	"github.com/banshee-data/gazepoint/internal/gaze"
	"github.com/banshee-data/gazepoint/internal/monitor"
	"github.com/banshee-data/gazepoint/internal/store"
	"github.com/banshee-data/gazepoint/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	tuningPath = flag.String("config", "", "Path to tuning config JSON (defaults baked in when empty)")
	dbPath     = flag.String("db", "gaze_events.db", "Path to the session event database")
	modelPath  = flag.String("calibration", "calibration.json", "Path for the persisted calibration model")
	screenW    = flag.Int("screen-w", 1920, "Screen width in pixels")
	screenH    = flag.Int("screen-h", 1080, "Screen height in pixels")
	landmarks  = flag.String("landmarks", "-", "Landmark frame stream: a file/FIFO path, or - for stdin")
	noCursor   = flag.Bool("no-cursor", false, "Dry run: log cursor actions instead of injecting them")
	autostart  = flag.Bool("autostart", false, "Start tracking immediately instead of waiting for the API")
)

func openFrameStream(path string) (io.Reader, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

// gazeLogWriters maps the GAZEPOINT_DEBUG level to the engine's three log
// streams. Operational messages always go to stderr; "diag" adds per-event
// diagnostics and "trace" adds the per-frame stream.
func gazeLogWriters(level string) (ops, diag, trace io.Writer) {
	switch level {
	case "trace":
		return os.Stderr, os.Stderr, os.Stderr
	case "diag":
		return os.Stderr, os.Stderr, nil
	default:
		return os.Stderr, nil, nil
	}
}

func selectInjector(dryRun bool) gaze.CursorInjector {
	if dryRun {
		return cursor.NewNullInjector()
	}
	injector, err := cursor.Detect()
	if err != nil {
		log.Printf("no cursor backend available (%v); falling back to dry run", err)
		return cursor.NewNullInjector()
	}
	log.Printf("cursor backend: %s", injector.Name())
	return injector
}

func main() {
	flag.Parse()

	log.Printf("gazepoint %s", version.String())

	gaze.SetLogWriters(gazeLogWriters(os.Getenv("GAZEPOINT_DEBUG")))

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *screenW < 1 || *screenH < 1 {
		log.Fatalf("invalid screen dimensions %dx%d", *screenW, *screenH)
	}

	var tuning *config.TuningConfig
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	} else {
		tuning = config.EmptyTuningConfig()
	}

	stream, err := openFrameStream(*landmarks)
	if err != nil {
		log.Fatalf("failed to open landmark stream: %v", err)
	}
	source := gaze.NewStreamSource(stream)
	defer source.Close()

	db, err := store.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	mapper := gaze.NewPolynomialMapper(*screenW, *screenH, tuning.GetMarginFraction())
	if *modelPath != "" {
		if _, err := os.Stat(*modelPath); os.IsNotExist(err) {
			log.Printf("no calibration model at %s; starting uncalibrated", *modelPath)
		} else if err := mapper.Load(*modelPath); err != nil {
			log.Printf("failed to load calibration model: %v; starting uncalibrated", err)
		} else {
			log.Printf("loaded calibration model from %s", *modelPath)
		}
	}

	engine := gaze.NewEngine(
		gaze.EngineConfigFromTuning(tuning, *screenW, *screenH),
		mapper,
		source,
		selectInjector(*noCursor),
		db,
	)
	defer engine.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *autostart {
		if err := engine.StartTracking(); err != nil {
			log.Fatalf("failed to start tracking: %v", err)
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		charts := monitor.NewChartServer(engine, *screenW, *screenH)
		mux := NewServer(engine, mapper, db, charts, *modelPath).ServeMux()

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Stop the tracking loop when a shutdown signal arrives so the stream
	// reader goroutine exits before the process does.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		engine.StopTracking()
		log.Printf("tracking loop stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
