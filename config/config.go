package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CameraConfig holds configuration for a single DVR camera channel
type CameraConfig struct {
	Channel  int    `json:"channel"`   // DVR channel number (used for file naming: cam<channel>)
	ButtonNo string `json:"button_no"` // Button number for hardware trigger mapping
	Subtype  string `json:"subtype"`   // RTSP subtype override (empty = DVR default)
	Enabled  bool   `json:"enabled"`   // Whether this camera is recorded
}

// Config contains all configuration for the application
type Config struct {

	// Server Configuration
	ServerPort string

	// Upload Configuration
	UploadURL    string
	UploadSecret string

	// DVR Configuration (shared by all camera channels)
	DVRUsername string
	DVRPassword string
	DVRIP       string
	DVRPort     string
	DVRSubtype  string

	// Recording Configuration
	SegmentDuration int // Duration of one buffer segment in seconds
	SegmentWrap     int // Number of segments kept per camera before the index wraps

	// Clip Extraction Configuration
	MinSegments  int           // Minimum buffered segments required before a clip can be cut
	ClipSegments int           // Number of most-recent segments concatenated into a clip
	SettleDelay  time.Duration // Pause before reading the buffer, to let the current segment rotate
	WakeOnClip   bool          // Whether a finished clip nudges the upload worker immediately

	// Trigger Configuration
	DebounceWindow time.Duration

	// Upload Worker Configuration
	UploadScanInterval time.Duration

	// Storage Configuration
	BufferDir    string
	OutputDir    string
	DatabasePath string

	// Button Box Configuration
	ButtonCOMPort  string
	ButtonBaudRate int

	// R2 Archival Configuration (optional copy of confirmed uploads)
	R2Enabled   bool
	R2AccessKey string
	R2SecretKey string
	R2AccountID string
	R2Bucket    string
	R2Endpoint  string
	R2Region    string

	// Monitoring Configuration
	MonitorInterval time.Duration

	// Multi-camera Configuration
	Cameras          []CameraConfig
	CameraByButtonNo map[string]*CameraConfig // Fast lookup by button_no
}

// LoadConfig loads configuration from environment variables.
// REPLAY_PROFILE selects a base set of buffer/extraction defaults ("coarse" or
// "fine"); individual environment variables override the profile values.
func LoadConfig() Config {
	cfg := Config{
		ServerPort: getEnv("SERVER_PORT", "3000"),

		UploadURL:    getEnv("UPLOAD_URL", "http://localhost:3000/api/upload-video"),
		UploadSecret: getEnv("UPLOAD_SECRET", ""),

		DVRUsername: getEnv("DVR_USERNAME", "admin"),
		DVRPassword: getEnv("DVR_PASSWORD", ""),
		DVRIP:       getEnv("DVR_IP", "10.1.1.41"),
		DVRPort:     getEnv("DVR_PORT", "554"),
		DVRSubtype:  getEnv("DVR_SUBTYPE", "0"),

		DebounceWindow:     getEnvDuration("DEBOUNCE_WINDOW", 15*time.Second),
		UploadScanInterval: getEnvDuration("UPLOAD_SCAN_INTERVAL", 30*time.Second),

		BufferDir:    getEnv("BUFFER_DIR", "./buffer_cameras"),
		OutputDir:    getEnv("OUTPUT_DIR", "./output_videos"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/replays.db"),

		ButtonCOMPort:  getEnv("BUTTON_COM_PORT", ""),
		ButtonBaudRate: getEnvInt("BUTTON_BAUD_RATE", 9600),

		R2Enabled:   getEnv("R2_ENABLED", "false") == "true",
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_KEY", ""),
		R2AccountID: getEnv("R2_ACCOUNT_ID", ""),
		R2Bucket:    getEnv("R2_BUCKET", ""),
		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2Region:    getEnv("R2_REGION", "auto"),

		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 5*time.Minute),
	}

	applyProfile(&cfg, getEnv("REPLAY_PROFILE", "coarse"))

	// Individual overrides win over the profile
	cfg.SegmentDuration = getEnvInt("SEGMENT_DURATION", cfg.SegmentDuration)
	cfg.SegmentWrap = getEnvInt("SEGMENT_WRAP", cfg.SegmentWrap)
	cfg.MinSegments = getEnvInt("MIN_SEGMENTS", cfg.MinSegments)
	cfg.ClipSegments = getEnvInt("CLIP_SEGMENTS", cfg.ClipSegments)
	cfg.SettleDelay = getEnvDuration("SETTLE_DELAY", cfg.SettleDelay)
	if v, exists := os.LookupEnv("WAKE_ON_CLIP"); exists {
		cfg.WakeOnClip = v == "true"
	}

	cfg.Cameras = loadCameras()
	cfg.BuildCameraLookup()

	log.Printf("Loaded configuration with %d cameras", len(cfg.Cameras))
	for i, camera := range cfg.Cameras {
		log.Printf("Camera %d: channel %d button=%q (Enabled: %v)",
			i+1, camera.Channel, camera.ButtonNo, camera.Enabled)
	}
	log.Printf("Buffer: segments of %ds, keeping last %d (clip = %d segments, min %d, settle %s)",
		cfg.SegmentDuration, cfg.SegmentWrap, cfg.ClipSegments, cfg.MinSegments, cfg.SettleDelay)
	log.Printf("Upload queue: %s -> %s every %s", cfg.OutputDir, cfg.UploadURL, cfg.UploadScanInterval)
	log.Printf("Server running on port %s", cfg.ServerPort)
	log.Printf("R2 Archival Enabled: %v", cfg.R2Enabled)

	return cfg
}

// applyProfile seeds the buffer/extraction knobs for a deployment profile.
// "coarse" favors clip length (long segments, shallow buffer), "fine" favors
// completeness (short segments, deep buffer, settle delay, eager upload).
func applyProfile(cfg *Config, profile string) {
	switch profile {
	case "fine":
		cfg.SegmentDuration = 15
		cfg.SegmentWrap = 12
		cfg.MinSegments = 3
		cfg.ClipSegments = 4
		cfg.SettleDelay = 4 * time.Second
		cfg.WakeOnClip = true
	case "coarse":
		cfg.SegmentDuration = 45
		cfg.SegmentWrap = 4
		cfg.MinSegments = 2
		cfg.ClipSegments = 2
		cfg.SettleDelay = 0
		cfg.WakeOnClip = false
	default:
		log.Printf("Unknown REPLAY_PROFILE %q, using coarse defaults", profile)
		applyProfile(cfg, "coarse")
	}
}

// loadCameras reads the camera set from CAMERAS_CONFIG (JSON array) or, when
// that is absent, from CAMERAS (comma-separated channel list).
func loadCameras() []CameraConfig {
	if camerasJSON := getEnv("CAMERAS_CONFIG", ""); camerasJSON != "" {
		var cams []CameraConfig
		if err := json.Unmarshal([]byte(camerasJSON), &cams); err != nil {
			log.Printf("Warning: Failed to parse CAMERAS_CONFIG: %v", err)
		} else {
			return cams
		}
	}

	var cams []CameraConfig
	for _, part := range strings.Split(getEnv("CAMERAS", "9,13"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		channel, err := strconv.Atoi(part)
		if err != nil {
			log.Printf("Warning: Invalid camera channel %q in CAMERAS, skipping", part)
			continue
		}
		cams = append(cams, CameraConfig{Channel: channel, Enabled: true})
	}
	return cams
}

// RTSPURL builds the stream source address for a camera from the DVR settings.
func (cfg *Config) RTSPURL(camera CameraConfig) string {
	subtype := camera.Subtype
	if subtype == "" {
		subtype = cfg.DVRSubtype
	}
	return fmt.Sprintf("rtsp://%s:%s@%s:%s/cam/realmonitor?channel=%d&subtype=%s",
		cfg.DVRUsername, cfg.DVRPassword, cfg.DVRIP, cfg.DVRPort, camera.Channel, subtype)
}

// CameraBufferDir returns the buffer subdirectory for a camera channel.
func (cfg *Config) CameraBufferDir(channel int) string {
	return filepath.Join(cfg.BufferDir, fmt.Sprintf("cam%d", channel))
}

// BuildCameraLookup constructs the CameraByButtonNo map for quick lookup.
func (cfg *Config) BuildCameraLookup() {
	if cfg == nil {
		return
	}
	cfg.CameraByButtonNo = make(map[string]*CameraConfig)
	for i := range cfg.Cameras {
		cam := &cfg.Cameras[i]
		if cam.ButtonNo != "" {
			cfg.CameraByButtonNo[cam.ButtonNo] = cam
		}
	}
}

// EnsurePaths creates necessary paths
func EnsurePaths(cfg Config) {
	dirs := []string{
		cfg.BufferDir,
		cfg.OutputDir,
		filepath.Join(cfg.BufferDir, "logs"),
		filepath.Dir(cfg.DatabasePath),
	}
	for _, camera := range cfg.Cameras {
		dirs = append(dirs, cfg.CameraBufferDir(camera.Channel))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Failed to create directory %s: %v", dir, err)
		}
	}
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: Invalid integer for %s: %q, using %d", key, value, fallback)
	}
	return fallback
}

// getEnvDuration accepts either a Go duration string ("30s") or a bare number
// of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Printf("Warning: Invalid duration for %s: %q, using %s", key, value, fallback)
	return fallback
}
