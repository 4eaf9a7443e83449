package pipeline

import (
	"context"
	"sync"

	"photoforge/internal/capture"
	"photoforge/internal/engine"
)

// manualEngine is a hand-driven Engine: tests feed events into it and close
// the stream themselves, which makes every ordering deterministic.
type manualEngine struct {
	mu      sync.Mutex
	events  chan engine.Event
	procCtx context.Context
}

func newManualEngine() *manualEngine {
	return &manualEngine{events: make(chan engine.Event, 16)}
}

func (m *manualEngine) Process(ctx context.Context, photoPaths []string, detail engine.DetailLevel) (<-chan engine.Event, error) {
	m.mu.Lock()
	m.procCtx = ctx
	m.mu.Unlock()
	return m.events, nil
}

func (m *manualEngine) emit(ev engine.Event) {
	m.events <- ev
}

func (m *manualEngine) progress(p float64) {
	m.emit(engine.Event{Type: engine.EventProgress, Progress: p})
}

func (m *manualEngine) complete(asset *engine.Asset) {
	m.emit(engine.Event{Type: engine.EventComplete, Asset: asset})
	close(m.events)
}

func (m *manualEngine) fail(err error) {
	m.emit(engine.Event{Type: engine.EventError, Err: err})
	close(m.events)
}

// ackCancelOnDone acknowledges the next context cancellation with a
// cancelled event and closes the stream, like a cooperative engine.
func (m *manualEngine) ackCancelOnDone() {
	m.mu.Lock()
	ctx := m.procCtx
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.emit(engine.Event{Type: engine.EventCancelled})
		close(m.events)
	}()
}

// closeAbruptly ends the stream without a terminal event.
func (m *manualEngine) closeAbruptly() {
	close(m.events)
}

// recorderSpy captures RecordAsset calls.
type recorderSpy struct {
	mu      sync.Mutex
	records []recordedAsset
	err     error
}

type recordedAsset struct {
	jobID     string
	sessionID string
	asset     engine.Asset
}

func (r *recorderSpy) RecordAsset(jobID, sessionID string, asset engine.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, recordedAsset{jobID: jobID, sessionID: sessionID, asset: asset})
	return nil
}

func (r *recorderSpy) recorded() []recordedAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedAsset, len(r.records))
	copy(out, r.records)
	return out
}

// readySession builds a Ready session with n photos.
func readySession(t testingT, baseDir string, n int) *capture.Session {
	t.Helper()
	sess := capture.NewSession(baseDir, capture.DefaultPolicy())
	if err := sess.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := sess.AddPhoto([]byte("image")); err != nil {
			t.Fatalf("AddPhoto failed: %v", err)
		}
	}
	if err := sess.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return sess
}

// testingT is the subset of *testing.T the helpers need.
type testingT interface {
	Helper()
	Fatalf(format string, args ...interface{})
}
