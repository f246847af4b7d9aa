package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fenceline/catsentry"
	"github.com/fenceline/catsentry/internal/api"
	"github.com/fenceline/catsentry/internal/camera"
	"github.com/fenceline/catsentry/internal/config"
	"github.com/fenceline/catsentry/internal/detect"
	"github.com/fenceline/catsentry/internal/events"
	"github.com/fenceline/catsentry/internal/framepub"
	"github.com/fenceline/catsentry/internal/fsutil"
	"github.com/fenceline/catsentry/internal/notify"
	"github.com/fenceline/catsentry/internal/pipeline"
	"github.com/fenceline/catsentry/internal/region"
	"github.com/fenceline/catsentry/internal/relay"
	"github.com/fenceline/catsentry/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to JSON config file (optional)")
	listen        = flag.String("listen", "", "Listen address (overrides config)")
	dbPath        = flag.String("db", "", "Path to events database (overrides config)")
	polygonPath   = flag.String("polygon", "", "Path to region polygon file (overrides config)")
	migrationsDir = flag.String("migrations", "migrations", "Directory containing schema migration files")
	devMode       = flag.Bool("dev", false, "Run in dev mode (mock hardware, static files from ./static)")
	logFile       = flag.String("log-file", "", "Also write logs to this file with rotation")
	autoMigrate   = flag.Bool("auto-migrate", true, "Apply pending schema migrations on startup")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// resolve returns the flag value when set, otherwise the configured one.
func resolve(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

// buildCamera selects the frame source for the configured backend. Dev mode
// always gets the synthetic camera so the daemon runs without hardware.
func buildCamera(cfg *config.Config, dev bool) (camera.Camera, error) {
	width := cfg.GetCameraWidth()
	height := cfg.GetCameraHeight()
	if dev {
		return camera.NewMockCamera(width, height), nil
	}
	switch backend := cfg.GetCameraBackend(); backend {
	case "ffmpeg":
		return camera.NewFFmpegCamera(cfg.GetCameraInput(), width, height)
	case "opencv":
		return camera.NewCVCamera(cfg.GetCameraInput(), width, height)
	case "mock":
		return camera.NewMockCamera(width, height), nil
	default:
		return nil, fmt.Errorf("unknown camera backend %q", backend)
	}
}

// buildDetector selects the detector for the configured backend.
func buildDetector(cfg *config.Config, dev bool) (detect.Detector, error) {
	classes := cfg.GetDetectorClasses()
	if dev {
		return detect.NewMockDetector(firstClass(classes)), nil
	}
	switch backend := cfg.GetDetectorBackend(); backend {
	case "dnn":
		return detect.NewDNNDetector(
			cfg.GetDetectorWeights(),
			cfg.GetDetectorModelConfig(),
			cfg.GetDetectorClassNames(),
			cfg.GetDetectorInputSize(),
			classes,
		)
	case "remote":
		return detect.NewRemoteDetector(cfg.GetDetectorServer(), 0, classes), nil
	case "mock":
		return detect.NewMockDetector(firstClass(classes)), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", backend)
	}
}

func firstClass(classes []string) string {
	if len(classes) == 0 {
		return ""
	}
	return classes[0]
}

// buildActuator selects the relay driver for the configured backend and
// wraps it in the pulse controller.
func buildActuator(cfg *config.Config, dev bool) (*relay.Controller, error) {
	var driver relay.Driver
	if dev {
		driver = relay.NewMockDriver()
	} else {
		switch backend := cfg.GetRelayBackend(); backend {
		case "gpio":
			driver = relay.NewGPIODriver(cfg.GetRelayPin(), cfg.GetRelayActiveLow())
		case "serial":
			driver = relay.NewSerialDriver(cfg.GetRelaySerialPort(), cfg.GetRelayChannel())
		case "mock":
			driver = relay.NewMockDriver()
		default:
			return nil, fmt.Errorf("unknown relay backend %q", backend)
		}
	}
	return relay.NewController(driver, cfg.GetRelayPulse(), nil), nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("catsentry %s\n", version.String())
		return
	}

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	if *logFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}))
	}

	listenAddr := resolve(*listen, cfg.GetListen())
	databasePath := resolve(*dbPath, cfg.GetDBPath())
	regionPath := resolve(*polygonPath, cfg.GetRegionFile())

	if args := flag.Args(); len(args) > 0 {
		if args[0] != "migrate" {
			log.Fatalf("Unknown command: %s", args[0])
		}
		runMigrateCommand(args[1:], databasePath, *migrationsDir)
		return
	}

	log.Printf("catsentry %s starting", version.String())

	db, err := events.NewDB(databasePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if *autoMigrate {
		if err := db.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	} else if err := db.CheckMigrations(*migrationsDir); err != nil {
		log.Fatalf("Migration check failed: %v", err)
	}

	regionStore, err := region.NewStore(regionPath, fsutil.OSFileSystem{})
	if err != nil {
		log.Fatalf("Failed to open region store: %v", err)
	}
	if err := regionStore.Load(); err != nil {
		log.Fatalf("Failed to load region polygon: %v", err)
	}
	if n := regionStore.Len(); n > 0 {
		log.Printf("Loaded detection region with %d points from %s", n, regionStore.Path())
	}

	cam, err := buildCamera(cfg, *devMode)
	if err != nil {
		log.Fatalf("Failed to open camera: %v", err)
	}
	defer cam.Close()

	detector, err := buildDetector(cfg, *devMode)
	if err != nil {
		log.Fatalf("Failed to load detector: %v", err)
	}
	defer detector.Close()

	actuator, err := buildActuator(cfg, *devMode)
	if err != nil {
		log.Fatalf("Failed to set up relay: %v", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if broker := cfg.GetMQTTBroker(); broker != "" {
		notifier, err = notify.NewMQTT(broker, cfg.GetMQTTTopicPrefix(), cfg.GetMQTTClientID())
		if err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
	}
	defer notifier.Close()

	publisher := framepub.New()
	defer publisher.Close()

	status := pipeline.NewStatus()
	mode := pipeline.NewDrawMode()
	snapshot := pipeline.NewSnapshotHolder()

	pl := pipeline.New(pipeline.Deps{
		Camera:    cam,
		Detector:  detector,
		Actuator:  actuator,
		Region:    regionStore,
		Mode:      mode,
		Snapshot:  snapshot,
		Status:    status,
		Publisher: publisher,
		Recorder:  db,
		Notifier:  notifier,
	}, pipeline.Config{
		ConfidenceThreshold: cfg.GetDetectorConfidence(),
		Cooldown:            cfg.GetCooldown(),
		Interval:            cfg.GetPipelineInterval(),
		DrawingInterval:     cfg.GetDrawingInterval(),
		RetryDelay:          cfg.GetRetryDelay(),
		StreamQuality:       cfg.GetStreamQuality(),
	})

	// Create a wait group for the pipeline and HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the detection loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pl.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("detection pipeline failed: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// read static files from the embedded filesystem in production or
		// from the local ./static in dev for easier iteration without
		// restarting the server
		var staticFS fs.FS
		if *devMode {
			staticFS = os.DirFS("./static")
		} else {
			var err error
			staticFS, err = fs.Sub(catsentry.StaticFiles, "static")
			if err != nil {
				log.Fatalf("failed to open embedded static assets: %v", err)
			}
		}

		mux := api.NewServer(api.ServerConfig{
			Status:          status,
			Mode:            mode,
			Snapshot:        snapshot,
			Region:          regionStore,
			Frames:          publisher,
			DB:              db,
			Static:          staticFS,
			SnapshotQuality: cfg.GetSnapshotQuality(),
		}).ServeMux()

		server := &http.Server{
			Addr:    listenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("HTTP server listening on %s", listenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
