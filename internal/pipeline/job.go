package pipeline

import (
	"context"
	"sync"
	"time"

	"photoforge/internal/capture"
	"photoforge/internal/engine"
)

// JobState represents the lifecycle state of a reconstruction job.
type JobState int32

const (
	JobQueued JobState = iota
	JobReconstructing
	JobCompleted
	JobFailed
	JobCancelled
)

func (s JobState) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobReconstructing:
		return "reconstructing"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one of the three terminal states.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobSnapshot is the observable, read-only view of a job at one instant.
// Observers only ever see snapshots; they cannot mutate job state.
type JobSnapshot struct {
	ID         string
	SessionID  string
	State      JobState
	Progress   float64
	Detail     engine.DetailLevel
	PhotoCount int

	// Asset is set once State == JobCompleted.
	Asset *engine.Asset

	// Err is set for JobFailed (processing error) and JobCancelled
	// (informational cancellation marker).
	Err error

	// LastUpdate is when the job last received an engine event. Stalled-job
	// detection is caller-side policy built on this.
	LastUpdate time.Time
}

// job is the coordinator-owned record for one reconstruction attempt.
// The photo snapshot is frozen at submit time.
type job struct {
	mu sync.RWMutex

	id        string
	sessionID string
	detail    engine.DetailLevel
	photos    []capture.Photo

	state      JobState
	progress   float64
	asset      *engine.Asset
	err        error
	lastUpdate time.Time

	createdAt  time.Time
	finishedAt time.Time
	eventCount int

	cancelRequested bool
	cancel          context.CancelFunc

	// done is closed exactly once, when the job reaches a terminal state.
	done chan struct{}

	observers fanout
}

func (j *job) snapshotLocked() JobSnapshot {
	return JobSnapshot{
		ID:         j.id,
		SessionID:  j.sessionID,
		State:      j.state,
		Progress:   j.progress,
		Detail:     j.detail,
		PhotoCount: len(j.photos),
		Asset:      j.asset,
		Err:        j.err,
		LastUpdate: j.lastUpdate,
	}
}

func (j *job) snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snapshotLocked()
}

// JobMetrics holds execution metrics for one job.
type JobMetrics struct {
	ID         string
	SessionID  string
	State      JobState
	EventCount int
	Duration   time.Duration
}

func (j *job) metrics() JobMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()

	duration := time.Duration(0)
	if !j.createdAt.IsZero() {
		if !j.finishedAt.IsZero() {
			duration = j.finishedAt.Sub(j.createdAt)
		} else {
			duration = time.Since(j.createdAt)
		}
	}

	return JobMetrics{
		ID:         j.id,
		SessionID:  j.sessionID,
		State:      j.state,
		EventCount: j.eventCount,
		Duration:   duration,
	}
}
