package clip

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"replay-totem/config"
	"replay-totem/database"
	"replay-totem/recording"
)

// mockDatabase implements the Database interface for testing
type mockDatabase struct {
	clips []database.ClipRecord
}

func (m *mockDatabase) CreateClip(record database.ClipRecord) error {
	m.clips = append(m.clips, record)
	return nil
}

func (m *mockDatabase) GetClipByFileName(fileName string) (*database.ClipRecord, error) {
	for i := range m.clips {
		if m.clips[i].FileName == fileName {
			return &m.clips[i], nil
		}
	}
	return nil, nil
}

func (m *mockDatabase) ListClips(limit, offset int) ([]database.ClipRecord, error) {
	return m.clips, nil
}

func (m *mockDatabase) GetClipsByStatus(status database.ClipStatus, limit, offset int) ([]database.ClipRecord, error) {
	var result []database.ClipRecord
	for _, clip := range m.clips {
		if clip.Status == status {
			result = append(result, clip)
		}
	}
	return result, nil
}

func (m *mockDatabase) MarkClipUploaded(fileName, remoteMessage string, at time.Time) error {
	for i := range m.clips {
		if m.clips[i].FileName == fileName {
			m.clips[i].Status = database.StatusUploaded
			m.clips[i].RemoteMessage = remoteMessage
			m.clips[i].UploadedAt = &at
		}
	}
	return nil
}

func (m *mockDatabase) Close() error { return nil }

// testSetup builds a config with a populated camera buffer and returns the
// extractor plus its collaborators.
func testSetup(t *testing.T, segmentCount int) (*config.Config, *mockDatabase) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		BufferDir:    filepath.Join(root, "buffer"),
		OutputDir:    filepath.Join(root, "output"),
		MinSegments:  2,
		ClipSegments: 2,
	}
	camDir := cfg.CameraBufferDir(9)
	for _, dir := range []string{camDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	now := time.Now()
	for i := 0; i < segmentCount; i++ {
		name := filepath.Join(camDir, "chunk_00"+string(rune('0'+i))+".ts")
		if err := os.WriteFile(name, []byte("ts"), 0644); err != nil {
			t.Fatal(err)
		}
		mtime := now.Add(time.Duration(i-segmentCount) * 45 * time.Second)
		if err := os.Chtimes(name, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	return cfg, &mockDatabase{}
}

func TestExtractClipHappyPath(t *testing.T) {
	cfg, db := testSetup(t, 3)
	woken := false
	cfg.WakeOnClip = true

	e := NewExtractor(cfg, db, func() { woken = true })

	var manifestContent string
	var outputArg string
	e.runFFmpeg = func(args ...string) error {
		// Manifest must still exist and be complete when ffmpeg starts
		for i, arg := range args {
			if arg == "-i" {
				data, err := os.ReadFile(args[i+1])
				if err != nil {
					t.Fatalf("Manifest not readable at concat time: %v", err)
				}
				manifestContent = string(data)
			}
		}
		outputArg = args[len(args)-1]
		return os.WriteFile(outputArg, []byte("mp4"), 0644)
	}

	clipPath, err := e.ExtractClip(9)
	if err != nil {
		t.Fatalf("ExtractClip failed: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(clipPath), "replay_cam9_") || !strings.HasSuffix(clipPath, ".mp4") {
		t.Errorf("Unexpected clip name: %s", clipPath)
	}
	if clipPath != outputArg {
		t.Errorf("Returned path %s does not match ffmpeg output arg %s", clipPath, outputArg)
	}

	// Two most recent segments, oldest first: chunk_001 then chunk_002
	lines := strings.Split(strings.TrimSpace(manifestContent), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 manifest lines, got %d: %q", len(lines), manifestContent)
	}
	if !strings.Contains(lines[0], "chunk_001.ts") || !strings.Contains(lines[1], "chunk_002.ts") {
		t.Errorf("Manifest not in chronological order: %q", manifestContent)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "file '") {
			t.Errorf("Malformed manifest line: %q", line)
		}
	}

	// Manifest cleaned up after success
	leftovers, _ := filepath.Glob(filepath.Join(cfg.CameraBufferDir(9), "list_*.txt"))
	if len(leftovers) != 0 {
		t.Errorf("Manifest not cleaned up: %v", leftovers)
	}

	if len(db.clips) != 1 {
		t.Fatalf("Expected 1 ledger record, got %d", len(db.clips))
	}
	if db.clips[0].CameraID != 9 || db.clips[0].Status != database.StatusPending || db.clips[0].SegmentCount != 2 {
		t.Errorf("Unexpected ledger record: %+v", db.clips[0])
	}

	if !woken {
		t.Error("Upload worker should have been woken after extraction")
	}
}

func TestExtractClipInsufficientBuffer(t *testing.T) {
	cfg, db := testSetup(t, 1)

	e := NewExtractor(cfg, db, nil)
	called := false
	e.runFFmpeg = func(args ...string) error {
		called = true
		return nil
	}

	_, err := e.ExtractClip(9)
	if err != ErrInsufficientBuffer {
		t.Fatalf("Expected ErrInsufficientBuffer, got %v", err)
	}
	if called {
		t.Error("Concatenation must not run below the minimum segment count")
	}

	queued, _ := os.ReadDir(cfg.OutputDir)
	if len(queued) != 0 {
		t.Errorf("No queue entry should exist, found %d files", len(queued))
	}
	if len(db.clips) != 0 {
		t.Errorf("No ledger record should exist, found %d", len(db.clips))
	}
}

func TestExtractClipConcatFailure(t *testing.T) {
	cfg, db := testSetup(t, 3)

	e := NewExtractor(cfg, db, nil)
	e.runFFmpeg = func(args ...string) error {
		return os.ErrPermission
	}

	if _, err := e.ExtractClip(9); err == nil {
		t.Fatal("Expected error from failed concatenation")
	}

	// Manifest cleaned up on the failure path too
	leftovers, _ := filepath.Glob(filepath.Join(cfg.CameraBufferDir(9), "list_*.txt"))
	if len(leftovers) != 0 {
		t.Errorf("Manifest not cleaned up after failure: %v", leftovers)
	}
	if len(db.clips) != 0 {
		t.Errorf("No ledger record should exist after failure, found %d", len(db.clips))
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriteManifestWriteFailure(t *testing.T) {
	segments := []recording.Segment{{Path: "chunk_000.ts"}}
	if err := writeManifest(failingWriter{}, segments); err == nil {
		t.Fatal("Expected error from failed manifest write")
	}
}

func TestExtractClipMissingCamera(t *testing.T) {
	cfg, db := testSetup(t, 2)

	e := NewExtractor(cfg, db, nil)
	e.runFFmpeg = func(args ...string) error {
		t.Fatal("Concatenation must not run for an unknown camera")
		return nil
	}

	if _, err := e.ExtractClip(42); err == nil {
		t.Fatal("Expected error for camera with no buffer directory")
	}
}
