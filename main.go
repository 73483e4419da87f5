package main

import (
	"log"
	"time"

	"replay-totem/api"
	"replay-totem/clip"
	"replay-totem/config"
	"replay-totem/cron"
	"replay-totem/database"
	"replay-totem/monitoring"
	"replay-totem/recording"
	"replay-totem/service"
	"replay-totem/signaling"
	"replay-totem/storage"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()
	config.EnsurePaths(cfg)

	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// R2 archival is an optional extra copy; upload confirmation alone decides
	// when the local file goes away.
	var archiver service.Archiver
	if cfg.R2Enabled {
		r2Storage, err := storage.NewR2Storage(storage.R2Config{
			AccessKey: cfg.R2AccessKey,
			SecretKey: cfg.R2SecretKey,
			AccountID: cfg.R2AccountID,
			Bucket:    cfg.R2Bucket,
			Endpoint:  cfg.R2Endpoint,
			Region:    cfg.R2Region,
		})
		if err != nil {
			log.Printf("Warning: R2 archival disabled: %v", err)
		} else {
			archiver = r2Storage
		}
	}

	uploadService := service.NewUploadService(&cfg, db, archiver)
	uploadService.StartUploadWorker()

	extractor := clip.NewExtractor(&cfg, db, uploadService.Wake)

	// Startup drain plus the periodic rescan.
	cron.StartUploadScanCron(&cfg, uploadService)

	// One rolling-buffer recorder per enabled camera.
	recording.StartBufferRecorders(&cfg)

	// One debouncer for all trigger sources: a button press and an HTTP
	// trigger for the same camera share the same window.
	debouncer := api.NewDebouncer(cfg.DebounceWindow)

	if cfg.ButtonCOMPort != "" {
		startButtonBox(&cfg, extractor, debouncer)
	}

	monitoring.StartMonitoring(cfg.MonitorInterval, cfg.BufferDir)

	server := api.NewServer(&cfg, db, extractor, uploadService, debouncer)
	server.Start()
}

// startButtonBox wires the physical replay buttons to clip extraction through
// the same per-camera debounce the HTTP trigger uses.
func startButtonBox(cfg *config.Config, extractor *clip.Extractor, debouncer *api.Debouncer) {
	box := signaling.NewButtonBox(cfg.ButtonCOMPort, cfg.ButtonBaudRate, func(buttonNo string) error {
		camera, ok := cfg.CameraByButtonNo[buttonNo]
		if !ok {
			log.Printf("Button %q has no camera mapped, ignoring", buttonNo)
			return nil
		}
		if !debouncer.TryAccept(camera.Channel, time.Now()) {
			log.Printf("[CAM %d] Button press ignored (debounce)", camera.Channel)
			return nil
		}
		log.Printf("[CAM %d] Button press received", camera.Channel)
		go func(channel int) {
			if _, err := extractor.ExtractClip(channel); err != nil {
				log.Printf("[CAM %d] Replay extraction failed: %v", channel, err)
			}
		}(camera.Channel)
		return nil
	})

	if err := box.Connect(); err != nil {
		log.Printf("Warning: Button box unavailable on %s: %v", cfg.ButtonCOMPort, err)
		return
	}
	log.Printf("Button box connected on %s @ %d baud", cfg.ButtonCOMPort, cfg.ButtonBaudRate)
}
