package capture

import (
	"fmt"
	"os"
	"path/filepath"

	"photoforge/internal/logging"
)

// photoStore is the session-scoped temporary photo store. Files live in one
// directory per session and carry sequentially indexed names, so the on-disk
// ordering matches the capture ordering.
type photoStore struct {
	dir string
}

func newPhotoStore(baseDir, sessionID string) *photoStore {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &photoStore{dir: filepath.Join(baseDir, "photoforge", "session-"+sessionID)}
}

// ensure creates the session directory.
func (s *photoStore) ensure() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	logging.CaptureDebug("Photo store ready: %s", s.dir)
	return nil
}

// write persists one photo under the next sequential name and returns its path.
func (s *photoStore) write(index int, data []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("photo_%04d.jpg", index))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write photo %d: %w", index, err)
	}
	return path, nil
}

// destroy removes the session directory and every photo in it.
func (s *photoStore) destroy() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session store: %w", err)
	}
	logging.CaptureDebug("Photo store removed: %s", s.dir)
	return nil
}
