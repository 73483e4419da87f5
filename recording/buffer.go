package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Segment is one buffered slice of recorded video.
type Segment struct {
	Path    string
	ModTime time.Time
}

// ListSegments returns all buffer segments in dir with their modification
// times, in no particular order.
func ListSegments(dir string) ([]Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list buffer directory: %w", err)
	}

	var segments []Segment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ts") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		segments = append(segments, Segment{
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
		})
	}
	return segments, nil
}

// RecentSegments returns up to k segments from dir, oldest to newest, chosen
// as the k most recently modified. Segment indexes wrap, so modification time
// is the only reliable recency ordering.
func RecentSegments(dir string, k int) ([]Segment, error) {
	segments, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].ModTime.After(segments[j].ModTime)
	})
	if len(segments) > k {
		segments = segments[:k]
	}

	// Restore chronological order
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return segments, nil
}
