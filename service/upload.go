package service

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"replay-totem/config"
	"replay-totem/database"

	"golang.org/x/sync/semaphore"
)

// camIDPattern derives the camera id from a queued clip's filename
// (replay_cam9_1700000000000.mp4 -> 9).
var camIDPattern = regexp.MustCompile(`cam(\d+)_`)

// Archiver is the optional post-confirm cloud sink for uploaded clips.
type Archiver interface {
	ArchiveFile(localPath, key string) error
}

// UploadService drains the output queue: every queued clip is uploaded to the
// remote service over multipart HTTP and deleted locally only after the remote
// side confirms receipt.
type UploadService struct {
	cfg      *config.Config
	db       database.Database
	archiver Archiver

	// inFlight admits at most one drain at a time; a second concurrent call
	// is a no-op, not a queued second drain.
	inFlight *semaphore.Weighted
	wakeCh   chan struct{}

	// client has no timeout: a transfer takes as long as it takes, and a
	// failure just defers the batch to the next scan.
	client *http.Client
}

// NewUploadService creates a new upload service. archiver may be nil.
func NewUploadService(cfg *config.Config, db database.Database, archiver Archiver) *UploadService {
	return &UploadService{
		cfg:      cfg,
		db:       db,
		archiver: archiver,
		inFlight: semaphore.NewWeighted(1),
		wakeCh:   make(chan struct{}, 1),
		client:   &http.Client{},
	}
}

// StartUploadWorker starts the goroutine that services wake-up nudges. The
// periodic scan is scheduled separately.
func (s *UploadService) StartUploadWorker() {
	go func() {
		log.Println("Starting upload worker")
		for range s.wakeCh {
			s.DrainQueue()
		}
	}()
}

// Wake nudges the worker to drain immediately. Non-blocking; a nudge while a
// drain is already pending is absorbed.
func (s *UploadService) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// DrainQueue uploads every queued clip in listing order, strictly one at a
// time. The first failure abandons the rest of the batch; everything left on
// disk is retried whole on the next scan. Safe to invoke concurrently.
func (s *UploadService) DrainQueue() {
	if !s.inFlight.TryAcquire(1) {
		return
	}
	defer s.inFlight.Release(1)

	clips, err := s.listQueue()
	if err != nil {
		log.Printf("Error listing output queue: %v", err)
		return
	}
	if len(clips) == 0 {
		return
	}

	log.Printf("Upload queue: %d clip(s) waiting...", len(clips))

	for _, fileName := range clips {
		clipPath := filepath.Join(s.cfg.OutputDir, fileName)
		camID := deriveCamID(fileName)

		log.Printf("Uploading %s...", fileName)

		message, err := s.uploadClip(clipPath, fileName, camID)
		if err != nil {
			log.Printf("Upload failed (no connection?): %v", err)
			log.Printf("Clips stay queued; retrying in %s.", s.cfg.UploadScanInterval)
			return
		}

		log.Printf("Upload confirmed for %s: %s", fileName, message)

		// Archival is best-effort and must happen before the local copy goes
		// away; the remote confirmation above is the durability contract.
		if s.archiver != nil {
			if err := s.archiver.ArchiveFile(clipPath, "replays/"+fileName); err != nil {
				log.Printf("Archival failed for %s: %v", fileName, err)
			}
		}

		if err := os.Remove(clipPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Error deleting uploaded clip %s: %v", fileName, err)
		}
		if s.db != nil {
			if err := s.db.MarkClipUploaded(fileName, message, time.Now()); err != nil {
				log.Printf("Error updating ledger for %s: %v", fileName, err)
			}
		}
	}
}

// Queued returns the filenames currently waiting in the output queue.
func (s *UploadService) Queued() ([]string, error) {
	return s.listQueue()
}

// listQueue returns the queued clip filenames in directory-listing order.
// Queue membership is the filesystem listing, nothing else.
func (s *UploadService) listQueue() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	var clips []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		clips = append(clips, entry.Name())
	}
	return clips, nil
}

// uploadClip sends one clip as a multipart form and returns the remote
// service's message. Any transport error or non-2xx response is a failure.
func (s *UploadService) uploadClip(clipPath, fileName, camID string) (string, error) {
	file, err := os.Open(clipPath)
	if err != nil {
		return "", fmt.Errorf("could not open clip: %v", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := streamForm(writer, file, fileName, camID, s.cfg.UploadSecret)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequest(http.MethodPost, s.cfg.UploadURL, pr)
	if err != nil {
		return "", fmt.Errorf("error creating upload request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending clip: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload service error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", nil
	}
	return result.Message, nil
}

// streamForm writes the multipart body: the clip stream plus the camera id
// and the shared secret.
func streamForm(writer *multipart.Writer, file *os.File, fileName, camID, secret string) error {
	part, err := writer.CreateFormFile("video", fileName)
	if err != nil {
		return fmt.Errorf("error creating file field: %v", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("error copying clip into request: %v", err)
	}
	if err := writer.WriteField("camId", camID); err != nil {
		return fmt.Errorf("error adding camId field: %v", err)
	}
	if err := writer.WriteField("secret", secret); err != nil {
		return fmt.Errorf("error adding secret field: %v", err)
	}
	return nil
}

// deriveCamID extracts the camera id from a clip filename. Unparseable names
// degrade to "0" rather than failing the upload.
func deriveCamID(fileName string) string {
	if m := camIDPattern.FindStringSubmatch(fileName); m != nil {
		return m[1]
	}
	return "0"
}
