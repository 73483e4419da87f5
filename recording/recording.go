package recording

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"replay-totem/config"
)

// restartDelay is how long a camera waits after its recorder exits before the
// next attempt. Stream drops are a normal operating condition, so the delay is
// fixed and the restart is unconditional.
const restartDelay = 2 * time.Second

// StartBufferRecorders launches one rolling-buffer recorder per enabled
// camera. The recorders never return; this function only spawns them.
func StartBufferRecorders(cfg *config.Config) {
	for _, camera := range cfg.Cameras {
		if !camera.Enabled {
			log.Printf("[CAM %d] Camera is disabled, skipping", camera.Channel)
			continue
		}
		go recordCamera(cfg, camera)
	}
}

// recordCamera supervises the segment writer for a single camera. It loops
// forever: run ffmpeg until it exits (success and failure both just mean "the
// stream ended"), wait, start again. Buffer uptime is the contract the rest of
// the system depends on, so it never gives up.
func recordCamera(cfg *config.Config, camera config.CameraConfig) {
	cameraDir := cfg.CameraBufferDir(camera.Channel)
	if err := os.MkdirAll(cameraDir, 0755); err != nil {
		log.Printf("[CAM %d] Error creating buffer directory %s: %v", camera.Channel, cameraDir, err)
	}

	rtspURL := cfg.RTSPURL(camera)
	logDir := filepath.Join(cfg.BufferDir, "logs")

	log.Printf("[CAM %d] Recording: %ds segments, keeping last %d", camera.Channel, cfg.SegmentDuration, cfg.SegmentWrap)

	for {
		cmd := exec.Command("ffmpeg",
			"-rtsp_transport", "tcp",
			"-i", rtspURL,
			"-c", "copy",
			"-f", "segment",
			"-segment_time", fmt.Sprintf("%d", cfg.SegmentDuration),
			"-segment_wrap", fmt.Sprintf("%d", cfg.SegmentWrap),
			"-reset_timestamps", "1",
			"-y", filepath.Join(cameraDir, "chunk_%03d.ts"),
		)

		logFile, err := os.Create(filepath.Join(logDir,
			fmt.Sprintf("ffmpeg_cam%d_%s.log", camera.Channel, time.Now().Format("20060102_150405"))))
		if err != nil {
			log.Printf("[CAM %d] Error creating FFmpeg log file: %v", camera.Channel, err)
		} else {
			cmd.Stdout = logFile
			cmd.Stderr = logFile
		}

		if err := cmd.Start(); err != nil {
			log.Printf("[CAM %d] Error starting FFmpeg: %v. Restarting in %s...", camera.Channel, err, restartDelay)
		} else {
			err = cmd.Wait()
			log.Printf("[CAM %d] Recorder exited (%v). Restarting in %s...", camera.Channel, err, restartDelay)
		}

		if logFile != nil {
			logFile.Close()
		}
		time.Sleep(restartDelay)
	}
}
