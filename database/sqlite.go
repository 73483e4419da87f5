package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	if err := initTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS clips (
			id TEXT PRIMARY KEY,
			camera_id INTEGER NOT NULL,
			file_name TEXT NOT NULL UNIQUE,
			local_path TEXT,
			size INTEGER DEFAULT 0,
			segment_count INTEGER DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			uploaded_at TIMESTAMP,
			remote_message TEXT
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_clips_status ON clips (status)
	`)
	return err
}

// CreateClip inserts a new clip record into the ledger
func (s *SQLiteDB) CreateClip(record ClipRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO clips (
			id, camera_id, file_name, local_path, size, segment_count,
			status, created_at, uploaded_at, remote_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.CameraID,
		record.FileName,
		record.LocalPath,
		record.Size,
		record.SegmentCount,
		record.Status,
		record.CreatedAt,
		record.UploadedAt,
		record.RemoteMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to create clip record: %v", err)
	}

	return nil
}

// GetClipByFileName retrieves a clip record by its queue file name.
// Returns nil when no record exists (queue files without a ledger row are
// tolerated).
func (s *SQLiteDB) GetClipByFileName(fileName string) (*ClipRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, camera_id, file_name, local_path, size, segment_count,
			status, created_at, uploaded_at, remote_message
		FROM clips
		WHERE file_name = ?
	`, fileName)

	record, err := scanClip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clip record: %v", err)
	}
	return record, nil
}

// ListClips retrieves clip records ordered newest first
func (s *SQLiteDB) ListClips(limit, offset int) ([]ClipRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, camera_id, file_name, local_path, size, segment_count,
			status, created_at, uploaded_at, remote_message
		FROM clips
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %v", err)
	}
	defer rows.Close()

	return collectClips(rows)
}

// GetClipsByStatus retrieves clip records with a given status, newest first
func (s *SQLiteDB) GetClipsByStatus(status ClipStatus, limit, offset int) ([]ClipRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, camera_id, file_name, local_path, size, segment_count,
			status, created_at, uploaded_at, remote_message
		FROM clips
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get clips by status: %v", err)
	}
	defer rows.Close()

	return collectClips(rows)
}

// MarkClipUploaded records a confirmed delivery. Missing ledger rows are not
// an error: the queue file has already been dealt with.
func (s *SQLiteDB) MarkClipUploaded(fileName, remoteMessage string, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE clips
		SET status = ?, uploaded_at = ?, remote_message = ?, local_path = ''
		WHERE file_name = ?
	`, StatusUploaded, at, remoteMessage, fileName)

	if err != nil {
		return fmt.Errorf("failed to mark clip uploaded: %v", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClip(row rowScanner) (*ClipRecord, error) {
	var record ClipRecord
	var uploadedAt sql.NullTime
	var localPath, remoteMessage sql.NullString

	err := row.Scan(
		&record.ID,
		&record.CameraID,
		&record.FileName,
		&localPath,
		&record.Size,
		&record.SegmentCount,
		&record.Status,
		&record.CreatedAt,
		&uploadedAt,
		&remoteMessage,
	)
	if err != nil {
		return nil, err
	}

	if uploadedAt.Valid {
		record.UploadedAt = &uploadedAt.Time
	}
	record.LocalPath = localPath.String
	record.RemoteMessage = remoteMessage.String

	return &record, nil
}

func collectClips(rows *sql.Rows) ([]ClipRecord, error) {
	var records []ClipRecord
	for rows.Next() {
		record, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clip record: %v", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}
