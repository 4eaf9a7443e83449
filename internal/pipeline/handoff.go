package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"photoforge/internal/capture"
	"photoforge/internal/engine"
	"photoforge/internal/logging"
)

// AssetRecorder receives completed assets for out-of-band persistence
// (the catalog). A nil recorder disables recording.
type AssetRecorder interface {
	RecordAsset(jobID, sessionID string, asset engine.Asset) error
}

// Handoff exposes completed assets to the outside world and owns the
// temporary-file cleanup policy. Partial artifacts from failed or cancelled
// jobs are never auto-deleted; cleanup happens only through Release or
// ResetSession, so a caller can inspect a failure before discarding evidence.
type Handoff struct {
	mu       sync.Mutex
	coord    *Coordinator
	recorder AssetRecorder
	retained map[string]bool
}

// NewHandoff wires a handoff onto the coordinator. recorder may be nil.
func NewHandoff(coord *Coordinator, recorder AssetRecorder) *Handoff {
	h := &Handoff{
		coord:    coord,
		recorder: recorder,
		retained: make(map[string]bool),
	}
	coord.OnTerminal(h.onTerminal)
	return h
}

// onTerminal records completed assets into the catalog.
func (h *Handoff) onTerminal(snap JobSnapshot) {
	if snap.State != JobCompleted || snap.Asset == nil {
		return
	}
	logging.Handoff("Job %s completed: %s (%d bytes, detail=%s)",
		snap.ID, snap.Asset.FileReference, snap.Asset.SizeBytes, snap.Asset.DetailLevel)

	if h.recorder == nil {
		return
	}
	if err := h.recorder.RecordAsset(snap.ID, snap.SessionID, *snap.Asset); err != nil {
		logging.Get(logging.CategoryHandoff).Warn("Failed to record asset for job %s: %v", snap.ID, err)
	}
}

// CompletedAsset returns the asset if the job completed, else nil/false.
func (h *Handoff) CompletedAsset(jobID string) (*engine.Asset, bool) {
	snap, err := h.coord.Snapshot(jobID)
	if err != nil || snap.State != JobCompleted || snap.Asset == nil {
		return nil, false
	}
	return snap.Asset, true
}

// Retain marks the job's asset as retained by the external preview
// collaborator: Release will drop the job record but keep the file.
func (h *Handoff) Retain(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retained[jobID] = true
	logging.HandoffDebug("Job %s asset retained", jobID)
}

// Release marks the job's backing files as eligible for cleanup and drops
// the job record. Retained assets keep their file. Releasing an active job
// is an error; cancel it first.
func (h *Handoff) Release(jobID string) error {
	snap, err := h.coord.Snapshot(jobID)
	if err != nil {
		return err
	}
	if !snap.State.Terminal() {
		return &Error{Kind: KindJobActive, Detail: fmt.Sprintf("job %s has not terminated", jobID)}
	}

	h.mu.Lock()
	retained := h.retained[jobID]
	delete(h.retained, jobID)
	h.mu.Unlock()

	if snap.Asset != nil && !retained {
		if err := os.Remove(snap.Asset.FileReference); err != nil && !os.IsNotExist(err) {
			logging.Get(logging.CategoryHandoff).Warn("Failed to remove asset file for job %s: %v", jobID, err)
		} else {
			logging.HandoffDebug("Job %s asset file removed", jobID)
		}
	}

	return h.coord.Release(jobID)
}

// ResetSession drives the pipeline-level reset: any non-terminal job for the
// session is cancelled and awaited, every tracked job is released, and the
// session's temporary photo files are deleted. ctx bounds the wait for
// cancellation acknowledgement.
func (h *Handoff) ResetSession(ctx context.Context, sess *capture.Session) error {
	if jobID, ok := h.coord.ActiveJob(sess.ID()); ok {
		if err := h.coord.Cancel(jobID); err != nil {
			return err
		}
		if _, err := h.coord.Wait(ctx, jobID); err != nil {
			return fmt.Errorf("waiting for job %s to cancel: %w", jobID, err)
		}
	}

	for _, jobID := range h.coord.JobsForSession(sess.ID()) {
		if err := h.Release(jobID); err != nil {
			return err
		}
	}

	logging.Handoff("Session %s reset: jobs released, photo store deleted", sess.ID())
	return sess.Reset()
}
