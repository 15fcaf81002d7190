package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// progressTracker records the last anchor date a run completed for in a
// .last-completed file so repeated runs for the same day are no-ops.
type progressTracker struct {
	dir string
}

// newProgressTracker creates a tracker rooted at dir.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &progressTracker{dir: dir}, nil
}

func (p *progressTracker) path() string {
	return filepath.Join(p.dir, ".last-completed")
}

// MarkCompleted writes the given date to .last-completed.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(p.path(), []byte(date), 0o644)
}

// IsCompleted returns true if .last-completed matches the given date.
func (p *progressTracker) IsCompleted(date string) bool {
	return p.LastCompleted() == date
}

// LastCompleted returns the date string from .last-completed, or empty string.
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(p.path())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Reset removes the marker so the next run starts over.
func (p *progressTracker) Reset() error {
	if err := os.Remove(p.path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
