// Package pipeline orchestrates reconstruction jobs: it submits frozen photo
// snapshots to an engine, consumes the engine's event stream, and fans job
// state out to passive observers. One coordinator instance is the single
// consumer of every stream it opens.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"photoforge/internal/capture"
	"photoforge/internal/engine"
	"photoforge/internal/logging"
)

// TerminalHook is invoked after a job reaches its terminal state, with the
// final snapshot. Hooks run on the consumer goroutine; keep them short.
type TerminalHook func(JobSnapshot)

// Coordinator owns reconstruction jobs for any number of capture sessions,
// enforcing the single-active-job-per-session rule and monotone progress.
type Coordinator struct {
	mu              sync.Mutex
	engine          engine.Engine
	jobs            map[string]*job
	activeBySession map[string]string
	jobsBySession   map[string][]string
	terminalHooks   []TerminalHook
	wg              sync.WaitGroup
}

// NewCoordinator creates a coordinator around the given engine.
func NewCoordinator(eng engine.Engine) *Coordinator {
	return &Coordinator{
		engine:          eng,
		jobs:            make(map[string]*job),
		activeBySession: make(map[string]string),
		jobsBySession:   make(map[string][]string),
	}
}

// OnTerminal registers a hook invoked with the final snapshot of every job.
func (c *Coordinator) OnTerminal(hook TerminalHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminalHooks = append(c.terminalHooks, hook)
}

// Submit creates a reconstruction job for a Ready session and immediately
// delegates the frozen photo snapshot to the engine. It is non-blocking:
// outcomes arrive through Observe. ctx bounds the whole job, not just the
// call; cancelling it is equivalent to Cancel on the returned job id.
//
// No job object is created on a synchronous validation failure.
func (c *Coordinator) Submit(ctx context.Context, sess *capture.Session, detail engine.DetailLevel) (string, error) {
	if sess.State() != capture.StateReady {
		return "", &capture.Error{Kind: capture.KindInvalidState,
			Detail: fmt.Sprintf("session %s is %s, not ready", sess.ID(), sess.State())}
	}

	snapshot := sess.Snapshot()
	if len(snapshot) < sess.Policy().MinPhotos {
		return "", &capture.Error{Kind: capture.KindInsufficientPhotos,
			Detail: fmt.Sprintf("snapshot has %d photos, need at least %d", len(snapshot), sess.Policy().MinPhotos)}
	}

	c.mu.Lock()
	if active, ok := c.activeBySession[sess.ID()]; ok {
		c.mu.Unlock()
		return "", &Error{Kind: KindJobAlreadyActive,
			Detail: fmt.Sprintf("session %s already has active job %s", sess.ID(), active)}
	}
	c.mu.Unlock()

	jobCtx, cancel := context.WithCancel(ctx)
	events, err := c.engine.Process(jobCtx, capture.Paths(snapshot), detail)
	if err != nil {
		cancel()
		return "", &Error{Kind: KindProcessing, Detail: "engine rejected photo set", Err: err}
	}

	now := time.Now()
	j := &job{
		id:         uuid.New().String(),
		sessionID:  sess.ID(),
		detail:     detail,
		photos:     snapshot,
		state:      JobQueued,
		lastUpdate: now,
		createdAt:  now,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	c.mu.Lock()
	// Re-check under lock; a concurrent Submit may have won the race
	// between the unlock above and Process returning.
	if active, ok := c.activeBySession[sess.ID()]; ok {
		c.mu.Unlock()
		cancel()
		go drain(events)
		return "", &Error{Kind: KindJobAlreadyActive,
			Detail: fmt.Sprintf("session %s already has active job %s", sess.ID(), active)}
	}
	c.jobs[j.id] = j
	c.activeBySession[j.sessionID] = j.id
	c.jobsBySession[j.sessionID] = append(c.jobsBySession[j.sessionID], j.id)
	c.wg.Add(1)
	c.mu.Unlock()

	logging.Reconstruct("Job %s queued for session %s (%d photos, detail=%s)",
		j.id, j.sessionID, len(snapshot), detail)

	go c.consume(j, events)

	return j.id, nil
}

// consume is the single consumer of one engine event stream. It maps each
// event onto the job record and fans the resulting snapshot out.
func (c *Coordinator) consume(j *job, events <-chan engine.Event) {
	defer c.wg.Done()

	for ev := range events {
		j.mu.Lock()
		if j.state.Terminal() {
			// Engines close the stream after one terminal event;
			// anything after it is ignored.
			j.mu.Unlock()
			continue
		}
		j.eventCount++
		j.lastUpdate = time.Now()

		switch ev.Type {
		case engine.EventProgress:
			j.state = JobReconstructing
			// Out-of-order or decreasing engine values are clamped,
			// never propagated as a regression.
			p := clamp01(ev.Progress)
			if p > j.progress {
				j.progress = p
			}
			snap := j.snapshotLocked()
			j.mu.Unlock()
			logging.ReconstructDebug("Job %s progress %.2f", j.id, snap.Progress)
			j.observers.publish(snap)

		case engine.EventComplete:
			j.state = JobCompleted
			j.progress = 1.0
			j.asset = ev.Asset
			c.finishLocked(j)

		case engine.EventError:
			j.state = JobFailed
			j.err = &Error{Kind: KindProcessing, Detail: "reconstruction failed", Err: ev.Err}
			c.finishLocked(j)

		case engine.EventCancelled:
			j.state = JobCancelled
			j.asset = nil // any partial result is discarded
			j.err = &Error{Kind: KindCancelled, Detail: "cancellation acknowledged"}
			c.finishLocked(j)
		}
	}

	// Stream closed without a terminal event: the coordinator never
	// force-terminates a running engine, but a vanished stream means the
	// job can no longer make progress, so it is resolved here.
	j.mu.Lock()
	if !j.state.Terminal() {
		if j.cancelRequested {
			j.state = JobCancelled
			j.err = &Error{Kind: KindCancelled, Detail: "stream ended after cancellation request"}
		} else {
			j.state = JobFailed
			j.err = &Error{Kind: KindProcessing, Detail: "event stream ended without a terminal event"}
		}
		c.finishLocked(j)
	} else {
		j.mu.Unlock()
	}
}

// finishLocked finalizes a job that just entered a terminal state.
// Called with j.mu held; releases it.
func (c *Coordinator) finishLocked(j *job) {
	j.finishedAt = time.Now()
	j.lastUpdate = j.finishedAt
	snap := j.snapshotLocked()
	j.cancel() // release the engine context
	j.mu.Unlock()

	c.mu.Lock()
	if c.activeBySession[j.sessionID] == j.id {
		delete(c.activeBySession, j.sessionID)
	}
	hooks := make([]TerminalHook, len(c.terminalHooks))
	copy(hooks, c.terminalHooks)
	c.mu.Unlock()

	logging.Reconstruct("Job %s terminal: %s (progress %.2f)", j.id, snap.State, snap.Progress)

	close(j.done)
	j.observers.publishTerminal(snap)
	for _, hook := range hooks {
		hook(snap)
	}
}

// Cancel requests cooperative cancellation of an active job. It is
// idempotent: repeated calls while already cancelling (or after the job
// terminated) are no-ops. The job reaches Cancelled only once the engine
// acknowledges; callers must not assume immediate effect.
func (c *Coordinator) Cancel(jobID string) error {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return &Error{Kind: KindUnknownJob, Detail: fmt.Sprintf("no job %s", jobID)}
	}

	j.mu.Lock()
	if j.state.Terminal() || j.cancelRequested {
		j.mu.Unlock()
		return nil
	}
	j.cancelRequested = true
	cancel := j.cancel
	j.mu.Unlock()

	logging.Reconstruct("Job %s cancellation requested", jobID)
	cancel()
	return nil
}

// Observe returns a live, multi-subscriber view of the job. The channel
// immediately carries the current snapshot, then subsequent updates in
// order, and is closed after the terminal snapshot.
func (c *Coordinator) Observe(jobID string) (<-chan JobSnapshot, error) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, &Error{Kind: KindUnknownJob, Detail: fmt.Sprintf("no job %s", jobID)}
	}
	return j.observers.subscribe(j.snapshot()), nil
}

// Unobserve detaches a subscriber obtained from Observe.
func (c *Coordinator) Unobserve(jobID string, ch <-chan JobSnapshot) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if ok {
		j.observers.unsubscribe(ch)
	}
}

// Snapshot returns the current read-only view of a job.
func (c *Coordinator) Snapshot(jobID string) (JobSnapshot, error) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return JobSnapshot{}, &Error{Kind: KindUnknownJob, Detail: fmt.Sprintf("no job %s", jobID)}
	}
	return j.snapshot(), nil
}

// Metrics returns execution metrics for a job.
func (c *Coordinator) Metrics(jobID string) (JobMetrics, error) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return JobMetrics{}, &Error{Kind: KindUnknownJob, Detail: fmt.Sprintf("no job %s", jobID)}
	}
	return j.metrics(), nil
}

// ActiveJob returns the id of the session's active job, if any.
func (c *Coordinator) ActiveJob(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.activeBySession[sessionID]
	return id, ok
}

// JobsForSession returns every job id ever submitted for the session and
// still tracked.
func (c *Coordinator) JobsForSession(sessionID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.jobsBySession[sessionID]))
	copy(ids, c.jobsBySession[sessionID])
	return ids
}

// Wait blocks until the job reaches a terminal state or ctx expires.
func (c *Coordinator) Wait(ctx context.Context, jobID string) (JobSnapshot, error) {
	c.mu.Lock()
	j, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return JobSnapshot{}, &Error{Kind: KindUnknownJob, Detail: fmt.Sprintf("no job %s", jobID)}
	}

	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// Release drops a terminal job record. The job's asset file is the
// handoff's concern; Release only forgets the record.
func (c *Coordinator) Release(jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[jobID]
	if !ok {
		return &Error{Kind: KindUnknownJob, Detail: fmt.Sprintf("no job %s", jobID)}
	}
	j.mu.RLock()
	terminal := j.state.Terminal()
	j.mu.RUnlock()
	if !terminal {
		return &Error{Kind: KindJobActive, Detail: fmt.Sprintf("job %s has not terminated", jobID)}
	}

	delete(c.jobs, jobID)
	ids := c.jobsBySession[j.sessionID]
	for i, id := range ids {
		if id == jobID {
			c.jobsBySession[j.sessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(c.jobsBySession[j.sessionID]) == 0 {
		delete(c.jobsBySession, j.sessionID)
	}
	logging.ReconstructDebug("Job %s released", jobID)
	return nil
}

// Close cancels every active job and waits for their streams to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	for _, id := range c.activeBySession {
		if j, ok := c.jobs[id]; ok {
			j.cancel()
		}
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// drain discards a stream the coordinator decided not to track.
func drain(events <-chan engine.Event) {
	for range events {
	}
}
