package database

import (
	"time"
)

// ClipStatus represents the current state of a clip
type ClipStatus string

const (
	StatusPending  ClipStatus = "pending"  // Clip exists in the output queue, awaiting upload
	StatusUploaded ClipStatus = "uploaded" // Clip delivery confirmed and local file removed
)

// ClipRecord represents the ledger entry for an extracted clip. The output
// queue itself is the filesystem; this record is the audit trail.
type ClipRecord struct {
	ID            string     `json:"id"`            // Unique identifier for the clip
	CameraID      int        `json:"cameraId"`      // DVR channel the clip was cut from
	FileName      string     `json:"fileName"`      // Base name of the clip file in the output queue
	LocalPath     string     `json:"localPath"`     // Path to the local file while queued
	Size          int64      `json:"size"`          // Size in bytes
	SegmentCount  int        `json:"segmentCount"`  // Number of buffer segments concatenated
	Status        ClipStatus `json:"status"`        // Current status
	CreatedAt     time.Time  `json:"createdAt"`     // When extraction finished
	UploadedAt    *time.Time `json:"uploadedAt"`    // When delivery was confirmed (nil while queued)
	RemoteMessage string     `json:"remoteMessage"` // Message returned by the upload service
}

// Database defines the interface for clip ledger operations
type Database interface {
	CreateClip(record ClipRecord) error
	GetClipByFileName(fileName string) (*ClipRecord, error)
	ListClips(limit, offset int) ([]ClipRecord, error)
	GetClipsByStatus(status ClipStatus, limit, offset int) ([]ClipRecord, error)
	MarkClipUploaded(fileName, remoteMessage string, at time.Time) error
	Close() error
}
