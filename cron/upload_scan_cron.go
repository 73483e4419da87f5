package cron

import (
	"fmt"
	"log"

	"replay-totem/config"
	"replay-totem/service"

	"github.com/robfig/cron/v3"
)

// StartUploadScanCron drains the upload queue on a fixed schedule. The first
// drain runs immediately so clips left over from a previous run (or a power
// cut) go out as soon as the service is back.
func StartUploadScanCron(cfg *config.Config, uploadService *service.UploadService) {
	log.Printf("📦 QUEUE: Scanning upload queue every %s", cfg.UploadScanInterval)

	go uploadService.DrainQueue()

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.UploadScanInterval), func() {
		uploadService.DrainQueue()
	})
	if err != nil {
		log.Printf("📦 QUEUE: Error scheduling upload scan: %v", err)
		return
	}
	c.Start()
}
