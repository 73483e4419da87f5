package clip

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"replay-totem/config"
	"replay-totem/database"
	"replay-totem/recording"

	"github.com/google/uuid"
)

// ErrInsufficientBuffer is returned when a camera's buffer has too few
// segments to cut a clip from.
var ErrInsufficientBuffer = errors.New("not enough buffered segments")

// Extractor cuts a replay clip from a camera's rolling buffer and drops it
// into the output queue.
type Extractor struct {
	cfg  *config.Config
	db   database.Database
	wake func()

	// runFFmpeg performs the external concatenation, overridable in tests
	runFFmpeg func(args ...string) error
}

// NewExtractor creates a clip extractor. wake may be nil; when set it is
// called after a clip lands in the output queue so the upload worker can pick
// it up without waiting for the next periodic scan.
func NewExtractor(cfg *config.Config, db database.Database, wake func()) *Extractor {
	return &Extractor{
		cfg:       cfg,
		db:        db,
		wake:      wake,
		runFFmpeg: runFFmpeg,
	}
}

// ExtractClip concatenates the most recent buffered segments of a camera into
// one standalone clip in the output queue. Callers dispatch it fire-and-forget;
// failures are logged here and surface nowhere else.
func (e *Extractor) ExtractClip(cameraID int) (string, error) {
	log.Printf("[CAM %d] Trigger received, generating replay...", cameraID)

	// Let the segment writer rotate past the moment of the trigger before
	// reading the buffer. Mitigation for the live-write race, not a guarantee.
	if e.cfg.SettleDelay > 0 {
		time.Sleep(e.cfg.SettleDelay)
	}

	cameraDir := e.cfg.CameraBufferDir(cameraID)
	segments, err := recording.RecentSegments(cameraDir, e.cfg.ClipSegments)
	if err != nil {
		log.Printf("[CAM %d] Error reading buffer: %v", cameraID, err)
		return "", err
	}
	if len(segments) < e.cfg.MinSegments {
		log.Printf("[CAM %d] Only %d segments buffered, need at least %d. Wait for the buffer to fill.",
			cameraID, len(segments), e.cfg.MinSegments)
		return "", ErrInsufficientBuffer
	}

	timestamp := time.Now().UnixMilli()
	fileName := fmt.Sprintf("replay_cam%d_%d.mp4", cameraID, timestamp)
	outputPath := filepath.Join(e.cfg.OutputDir, fileName)
	manifestPath := filepath.Join(cameraDir, fmt.Sprintf("list_%d.txt", timestamp))

	manifest, err := os.Create(manifestPath)
	if err != nil {
		log.Printf("[CAM %d] Error creating concat manifest: %v", cameraID, err)
		return "", err
	}
	// Registered before the first write so a partial manifest never survives.
	defer os.Remove(manifestPath)

	if err := writeManifest(manifest, segments); err != nil {
		manifest.Close()
		log.Printf("[CAM %d] Error writing concat manifest: %v", cameraID, err)
		return "", err
	}
	// Fully written and closed before the concatenation starts reading it.
	if err := manifest.Close(); err != nil {
		log.Printf("[CAM %d] Error writing concat manifest: %v", cameraID, err)
		return "", err
	}

	log.Printf("[CAM %d] Joining %d segments...", cameraID, len(segments))

	err = e.runFFmpeg(
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-y", outputPath,
	)
	if err != nil {
		log.Printf("[CAM %d] Concatenation failed: %v", cameraID, err)
		return "", err
	}

	log.Printf("[CAM %d] Clip created and queued: %s", cameraID, fileName)

	e.recordClip(cameraID, fileName, outputPath, len(segments))

	if e.wake != nil && e.cfg.WakeOnClip {
		e.wake()
	}
	return outputPath, nil
}

// writeManifest writes the ffmpeg concat list, oldest segment first.
func writeManifest(w io.Writer, segments []recording.Segment) error {
	for _, seg := range segments {
		absPath, err := filepath.Abs(seg.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve segment path: %w", err)
		}
		if _, err := fmt.Fprintf(w, "file '%s'\n", absPath); err != nil {
			return fmt.Errorf("failed to write concat manifest: %w", err)
		}
	}
	return nil
}

// recordClip writes the ledger entry for a queued clip. The queue itself is
// the output directory; a ledger failure is logged and does not undo the clip.
func (e *Extractor) recordClip(cameraID int, fileName, outputPath string, segmentCount int) {
	if e.db == nil {
		return
	}

	var size int64
	if info, err := os.Stat(outputPath); err == nil {
		size = info.Size()
	}

	record := database.ClipRecord{
		ID:           uuid.NewString(),
		CameraID:     cameraID,
		FileName:     fileName,
		LocalPath:    outputPath,
		Size:         size,
		SegmentCount: segmentCount,
		Status:       database.StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := e.db.CreateClip(record); err != nil {
		log.Printf("[CAM %d] Error recording clip in ledger: %v", cameraID, err)
	}
}

func runFFmpeg(args ...string) error {
	cmd := exec.Command("ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %v\nOutput: %s", err, string(output))
	}
	return nil
}
