package api

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"replay-totem/clip"
	"replay-totem/database"
	"replay-totem/monitoring"

	"github.com/gin-gonic/gin"
)

type recordRequest struct {
	// Cam arrives as a number from the kiosk page and as a string from some
	// older button firmwares, so binding stays loose.
	Cam interface{} `json:"cam"`
}

// POST /record and POST /api/record
func (s *Server) handleRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Cam == nil {
		c.JSON(400, gin.H{"error": "cam is required"})
		return
	}

	cameraID, err := parseCameraID(req.Cam)
	if err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("invalid cam value: %v", req.Cam)})
		return
	}

	if !s.debouncer.TryAccept(cameraID, time.Now()) {
		c.JSON(429, gin.H{"error": "Replay already being recorded, please wait"})
		return
	}

	log.Printf("[CAM %d] Replay trigger received", cameraID)

	// The trigger returns immediately; extraction outcome only shows up in
	// the logs and the clip ledger.
	go func() {
		clipPath, err := s.extractor.ExtractClip(cameraID)
		if err != nil {
			if errors.Is(err, clip.ErrInsufficientBuffer) {
				log.Printf("[CAM %d] Buffer still warming up, replay skipped", cameraID)
				return
			}
			log.Printf("[CAM %d] Replay extraction failed: %v", cameraID, err)
			return
		}
		log.Printf("[CAM %d] Replay ready: %s", cameraID, clipPath)
	}()

	c.JSON(200, gin.H{
		"status": "Replay recording started",
		"cam":    cameraID,
	})
}

// parseCameraID accepts the camera id as a JSON number or a numeric string.
func parseCameraID(v interface{}) (int, error) {
	switch cam := v.(type) {
	case float64:
		return int(cam), nil
	case string:
		return strconv.Atoi(cam)
	default:
		return 0, fmt.Errorf("unsupported cam type %T", v)
	}
}

// GET /api/clips
func (s *Server) listClips(c *gin.Context) {
	limit, offset := parsePagination(c)

	var (
		clips []database.ClipRecord
		err   error
	)
	if status := c.Query("status"); status != "" {
		clips, err = s.db.GetClipsByStatus(database.ClipStatus(status), limit, offset)
	} else {
		clips, err = s.db.ListClips(limit, offset)
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{
		"clips": clips,
		"count": len(clips),
	})
}

// GET /api/queue
func (s *Server) getQueue(c *gin.Context) {
	queued, err := s.uploadService.Queued()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if queued == nil {
		queued = []string{}
	}
	c.JSON(200, gin.H{
		"queued": queued,
		"count":  len(queued),
	})
}

// POST /api/flush_queue
func (s *Server) flushQueue(c *gin.Context) {
	s.uploadService.Wake()
	c.JSON(200, gin.H{"status": "Queue drain requested"})
}

// GET /api/system_health
func (s *Server) getSystemHealth(c *gin.Context) {
	usage, err := monitoring.GetCurrentResourceUsage(s.config.BufferDir)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	queued, err := s.uploadService.Queued()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{
		"cpu":            usage.CPUPercent,
		"memory_used":    usage.MemoryUsedMB,
		"memory_total":   usage.MemoryTotalMB,
		"memory_percent": usage.MemoryPercent,
		"goroutines":     usage.NumGoroutines,
		"uptime":         usage.Uptime,
		"storage":        usage.Storage,
		"queue_depth":    len(queued),
	})
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
