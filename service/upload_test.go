package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"replay-totem/config"
	"replay-totem/database"
)

type mockDatabase struct {
	mu       sync.Mutex
	uploaded map[string]string
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{uploaded: make(map[string]string)}
}

func (m *mockDatabase) CreateClip(record database.ClipRecord) error { return nil }
func (m *mockDatabase) GetClipByFileName(fileName string) (*database.ClipRecord, error) {
	return nil, nil
}
func (m *mockDatabase) ListClips(limit, offset int) ([]database.ClipRecord, error) {
	return nil, nil
}
func (m *mockDatabase) GetClipsByStatus(status database.ClipStatus, limit, offset int) ([]database.ClipRecord, error) {
	return nil, nil
}
func (m *mockDatabase) MarkClipUploaded(fileName, remoteMessage string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded[fileName] = remoteMessage
	return nil
}
func (m *mockDatabase) Close() error { return nil }

func testService(t *testing.T, uploadURL string) (*UploadService, *mockDatabase) {
	t.Helper()
	outputDir, err := os.MkdirTemp("", "upload-queue-*")
	if err != nil {
		t.Fatalf("Failed to create output dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(outputDir) })

	cfg := &config.Config{
		OutputDir:          outputDir,
		UploadURL:          uploadURL,
		UploadSecret:       "test-secret",
		UploadScanInterval: 30 * time.Second,
	}
	db := newMockDatabase()
	return NewUploadService(cfg, db, nil), db
}

func queueClip(t *testing.T, svc *UploadService, name, content string) string {
	t.Helper()
	path := filepath.Join(svc.cfg.OutputDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to queue clip: %v", err)
	}
	return path
}

func TestDrainQueueUploadsAndDeletes(t *testing.T) {
	type received struct {
		fileName string
		camID    string
		secret   string
	}
	var mu sync.Mutex
	var got []received

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("video")
		if err != nil {
			t.Errorf("Missing video field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, received{
			fileName: header.Filename,
			camID:    r.FormValue("camId"),
			secret:   r.FormValue("secret"),
		})
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"message": "stored"})
	}))
	defer server.Close()

	svc, db := testService(t, server.URL)
	pathA := queueClip(t, svc, "replay_cam9_1000.mp4", "clip-a")
	pathB := queueClip(t, svc, "replay_cam13_2000.mp4", "clip-b")

	svc.DrainQueue()

	if len(got) != 2 {
		t.Fatalf("Expected 2 uploads, got %d", len(got))
	}
	if got[0].fileName != "replay_cam9_1000.mp4" || got[0].camID != "9" {
		t.Errorf("Unexpected first upload: %+v", got[0])
	}
	if got[1].fileName != "replay_cam13_2000.mp4" || got[1].camID != "13" {
		t.Errorf("Unexpected second upload: %+v", got[1])
	}
	for _, r := range got {
		if r.secret != "test-secret" {
			t.Errorf("Expected secret field, got %q", r.secret)
		}
	}
	for _, path := range []string{pathA, pathB} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be deleted after confirm", path)
		}
	}
	if db.uploaded["replay_cam9_1000.mp4"] != "stored" {
		t.Errorf("Expected ledger update with remote message, got %q", db.uploaded["replay_cam9_1000.mp4"])
	}
}

func TestDrainQueueKeepsClipOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage full", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc, db := testService(t, server.URL)
	path := queueClip(t, svc, "replay_cam9_1000.mp4", "clip-bytes")

	svc.DrainQueue()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected clip to survive failed upload: %v", err)
	}
	if string(data) != "clip-bytes" {
		t.Errorf("Clip content changed after failed upload")
	}
	if len(db.uploaded) != 0 {
		t.Errorf("Ledger updated despite failed upload")
	}
}

func TestDrainQueueAbortsBatchOnFirstFailure(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	svc, _ := testService(t, server.URL)
	queueClip(t, svc, "replay_cam9_1000.mp4", "a")
	queueClip(t, svc, "replay_cam9_2000.mp4", "b")

	svc.DrainQueue()

	if requests != 1 {
		t.Errorf("Expected batch to abort after first failure, got %d requests", requests)
	}
}

func TestDrainQueueEmptyMakesNoRequests(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	svc, _ := testService(t, server.URL)
	svc.DrainQueue()

	if requests != 0 {
		t.Errorf("Expected no requests for an empty queue, got %d", requests)
	}
}

func TestDrainQueueSingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var requests int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		close(entered)
		<-release
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	}))
	defer server.Close()

	svc, _ := testService(t, server.URL)
	queueClip(t, svc, "replay_cam9_1000.mp4", "a")

	done := make(chan struct{})
	go func() {
		svc.DrainQueue()
		close(done)
	}()

	<-entered
	svc.DrainQueue() // must return immediately as a no-op
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Errorf("Expected a single upload across concurrent drains, got %d", requests)
	}
}

func TestDeriveCamID(t *testing.T) {
	cases := []struct {
		fileName string
		want     string
	}{
		{"replay_cam9_1700000000000.mp4", "9"},
		{"replay_cam13_1700000000000.mp4", "13"},
		{"manual_export.mp4", "0"},
	}
	for _, tc := range cases {
		if got := deriveCamID(tc.fileName); got != tc.want {
			t.Errorf("deriveCamID(%q) = %q, want %q", tc.fileName, got, tc.want)
		}
	}
}
