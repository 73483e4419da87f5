package api

import (
	"fmt"

	"replay-totem/config"
	"replay-totem/database"
	"replay-totem/service"

	"github.com/gin-gonic/gin"
)

// ClipExtractor cuts a replay clip for a camera into the output queue.
type ClipExtractor interface {
	ExtractClip(cameraID int) (string, error)
}

type Server struct {
	config        *config.Config
	db            database.Database
	extractor     ClipExtractor
	uploadService *service.UploadService
	debouncer     *Debouncer
}

// NewServer creates the trigger API server. debouncer is shared with every
// other trigger source (the button box), so one accepted trigger holds the
// camera's window no matter where the next one comes from.
func NewServer(cfg *config.Config, db database.Database, extractor ClipExtractor, uploadService *service.UploadService, debouncer *Debouncer) *Server {
	return &Server{
		config:        cfg,
		db:            db,
		extractor:     extractor,
		uploadService: uploadService,
		debouncer:     debouncer,
	}
}

func (s *Server) Start() {
	r := gin.Default()
	s.setupCORS(r)
	s.setupRoutes(r)
	portAddr := ":" + s.config.ServerPort
	fmt.Printf("Starting API server on %s\n", portAddr)
	r.Run(portAddr)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	// Legacy route kept for the kiosk tablets that still post here.
	r.POST("/record", s.handleRecord)

	api := r.Group("/api")
	{
		api.POST("/record", s.handleRecord)
		api.GET("/clips", s.listClips)
		api.GET("/queue", s.getQueue)
		api.GET("/system_health", s.getSystemHealth)
		api.POST("/flush_queue", s.flushQueue)
	}
}
