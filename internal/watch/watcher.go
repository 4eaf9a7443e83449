// Package watch ingests photos dropped into a folder while a capture session
// is running, so external camera tooling can feed a session by writing files.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"photoforge/internal/capture"
	"photoforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DropWatcher watches a drop folder for new photo files and adds them to a
// capture session. Rapid writes to the same file are debounced so partially
// written photos are not ingested mid-copy.
type DropWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	session     *capture.Session
	dropDir     string
	extensions  map[string]bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	processed   map[string]bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats DropWatcherStats
}

// DropWatcherStats tracks watcher activity for debugging.
type DropWatcherStats struct {
	FilesSeen     int
	FilesIngested int
	FilesSkipped  int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// NewDropWatcher creates a watcher feeding the given session from dropDir.
// extensions is the accepted photo extension list (e.g. [".jpg", ".png"]);
// matching is case-insensitive.
func NewDropWatcher(dropDir string, session *capture.Session, extensions []string, debounce time.Duration) (*DropWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	dw := &DropWatcher{
		watcher:     watcher,
		session:     session,
		dropDir:     dropDir,
		extensions:  extSet,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		processed:   make(map[string]bool),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	return dw, nil
}

// Start begins watching the drop folder. Non-blocking; the event loop runs in
// a goroutine until Stop or ctx cancellation.
func (dw *DropWatcher) Start(ctx context.Context) error {
	dw.mu.Lock()
	if dw.running {
		dw.mu.Unlock()
		return nil // Already running
	}
	dw.running = true
	dw.mu.Unlock()

	if err := os.MkdirAll(dw.dropDir, 0755); err != nil {
		dw.mu.Lock()
		dw.running = false
		dw.mu.Unlock()
		return err
	}

	if err := dw.watcher.Add(dw.dropDir); err != nil {
		dw.mu.Lock()
		dw.running = false
		dw.mu.Unlock()
		return err
	}
	logging.Watcher("DropWatcher: watching directory: %s", dw.dropDir)

	go dw.run(ctx)

	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (dw *DropWatcher) Stop() {
	dw.mu.Lock()
	if !dw.running {
		dw.mu.Unlock()
		return
	}
	dw.running = false
	dw.mu.Unlock()

	close(dw.stopCh)
	<-dw.doneCh

	if err := dw.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatcher).Error("DropWatcher: error closing watcher: %v", err)
	}
	logging.Watcher("DropWatcher: stopped")
}

// run is the main event loop.
func (dw *DropWatcher) run(ctx context.Context) {
	defer close(dw.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watcher("DropWatcher: context cancelled")
			return

		case <-dw.stopCh:
			logging.Watcher("DropWatcher: stop signal received")
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				logging.Watcher("DropWatcher: event channel closed")
				return
			}
			dw.handleEvent(event)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				logging.Watcher("DropWatcher: error channel closed")
				return
			}
			logging.Get(logging.CategoryWatcher).Error("DropWatcher error: %v", err)
			dw.mu.Lock()
			dw.stats.Errors++
			dw.mu.Unlock()

		case <-debounceTicker.C:
			dw.processSettled()
		}
	}
}

// handleEvent records a create/write event for later debounced ingestion.
func (dw *DropWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !dw.accepts(event.Name) {
		return
	}

	logging.WatcherDebug("DropWatcher: event for %s", event.Name)

	dw.mu.Lock()
	dw.stats.FilesSeen++
	dw.stats.LastEventTime = time.Now()
	dw.stats.LastEventPath = event.Name
	dw.debounceMap[event.Name] = time.Now()
	dw.mu.Unlock()
}

// processSettled ingests files whose last event is past the debounce window.
func (dw *DropWatcher) processSettled() {
	dw.mu.Lock()
	now := time.Now()
	toIngest := make([]string, 0)

	for path, eventTime := range dw.debounceMap {
		if now.Sub(eventTime) >= dw.debounceDur {
			toIngest = append(toIngest, path)
			delete(dw.debounceMap, path)
		}
	}
	dw.mu.Unlock()

	for _, path := range toIngest {
		dw.ingest(path)
	}
}

// ingest reads a settled file and adds it to the session as a photo. Each
// source path is ingested at most once.
func (dw *DropWatcher) ingest(path string) {
	dw.mu.Lock()
	if dw.processed[path] {
		dw.stats.FilesSkipped++
		dw.mu.Unlock()
		return
	}
	dw.processed[path] = true
	dw.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.WatcherDebug("DropWatcher: file removed before ingest: %s", path)
			return
		}
		logging.Get(logging.CategoryWatcher).Error("DropWatcher: failed to read %s: %v", path, err)
		dw.mu.Lock()
		dw.stats.Errors++
		dw.mu.Unlock()
		return
	}

	photo, err := dw.session.AddPhoto(data)
	if err != nil {
		logging.Get(logging.CategoryWatcher).Warn("DropWatcher: session rejected %s: %v", filepath.Base(path), err)
		dw.mu.Lock()
		dw.stats.Errors++
		dw.mu.Unlock()
		return
	}

	logging.Watcher("DropWatcher: ingested %s as photo %d", filepath.Base(path), photo.SequenceIndex)
	dw.mu.Lock()
	dw.stats.FilesIngested++
	dw.mu.Unlock()
}

// accepts reports whether the path has one of the configured extensions.
func (dw *DropWatcher) accepts(path string) bool {
	return dw.extensions[strings.ToLower(filepath.Ext(path))]
}

// IngestExisting ingests files already present in the drop folder. Useful at
// startup when photos were dropped before the watcher started.
func (dw *DropWatcher) IngestExisting() error {
	entries, err := os.ReadDir(dw.dropDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dw.dropDir, entry.Name())
		if !dw.accepts(path) {
			continue
		}
		dw.ingest(path)
	}

	return nil
}

// GetStats returns the current watcher statistics.
func (dw *DropWatcher) GetStats() DropWatcherStats {
	dw.mu.RLock()
	defer dw.mu.RUnlock()
	return dw.stats
}

// IsWatching returns true if the watcher is currently running.
func (dw *DropWatcher) IsWatching() bool {
	dw.mu.RLock()
	defer dw.mu.RUnlock()
	return dw.running
}
