package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScriptedEngine is a deterministic Engine for tests and demo runs.
//
// It replays a fixed script of events. The default script emits two progress
// events and then completes with a packaged scene written to OutputDir. Error
// and truncated-stream behavior can be forced per instance, which is how the
// coordinator's failure paths are exercised without a real backend.
type ScriptedEngine struct {
	// ProgressValues are emitted as progress events, in order.
	// They are forwarded verbatim, including out-of-range or decreasing
	// values, so clamping stays the consumer's job.
	ProgressValues []float64

	// StepDelay is the pause between events. Zero keeps tests fast.
	StepDelay time.Duration

	// OutputDir receives the packaged scene on completion. Empty means
	// the asset references a file that was never written.
	OutputDir string

	// FailWith, when set, replaces the complete event with an error event.
	FailWith error

	// OmitTerminal closes the stream after the progress events without
	// any terminal event. Used to test stream-truncation handling.
	OmitTerminal bool
}

// NewScriptedEngine returns a scripted engine with the default happy-path
// script: progress 0.10, 0.55, then completion.
func NewScriptedEngine(outputDir string) *ScriptedEngine {
	return &ScriptedEngine{
		ProgressValues: []float64{0.10, 0.55},
		OutputDir:      outputDir,
	}
}

// Process implements Engine.
func (e *ScriptedEngine) Process(ctx context.Context, photoPaths []string, detail DetailLevel) (<-chan Event, error) {
	if len(photoPaths) == 0 {
		return nil, fmt.Errorf("scripted engine: empty photo set")
	}

	events := make(chan Event)

	go func() {
		defer close(events)

		for _, p := range e.ProgressValues {
			if e.cancelled(ctx, events) {
				return
			}
			if !e.emit(ctx, events, Event{Type: EventProgress, Progress: p}) {
				return
			}
		}

		if e.OmitTerminal {
			return
		}
		if e.cancelled(ctx, events) {
			return
		}

		if e.FailWith != nil {
			e.emit(ctx, events, Event{Type: EventError, Err: e.FailWith})
			return
		}

		asset, err := e.packageScene(detail)
		if err != nil {
			e.emit(ctx, events, Event{Type: EventError, Err: err})
			return
		}
		e.emit(ctx, events, Event{Type: EventComplete, Asset: asset})
	}()

	return events, nil
}

// cancelled acknowledges a pending cancellation. Returns true if the stream
// was terminated.
func (e *ScriptedEngine) cancelled(ctx context.Context, events chan<- Event) bool {
	select {
	case <-ctx.Done():
		events <- Event{Type: EventCancelled}
		return true
	default:
		return false
	}
}

// emit sends one event, honoring the step delay and cancellation.
// Returns false if the stream was terminated instead.
func (e *ScriptedEngine) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	if e.StepDelay > 0 {
		select {
		case <-time.After(e.StepDelay):
		case <-ctx.Done():
			events <- Event{Type: EventCancelled}
			return false
		}
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		events <- Event{Type: EventCancelled}
		return false
	}
}

// packageScene produces the completed asset. When an output directory is
// configured, a placeholder packaged scene is actually written so size and
// cleanup behavior are real.
func (e *ScriptedEngine) packageScene(detail DetailLevel) (*Asset, error) {
	if e.OutputDir == "" {
		return &Asset{
			FileReference: FormatScenePack,
			Format:        FormatScenePack,
			DetailLevel:   detail,
		}, nil
	}

	if err := os.MkdirAll(e.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(e.OutputDir, FormatScenePack)
	payload := []byte(fmt.Sprintf("PFPACK\x00detail=%s\n", detail))
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return nil, fmt.Errorf("failed to write packaged scene: %w", err)
	}

	return &Asset{
		FileReference: path,
		Format:        FormatScenePack,
		SizeBytes:     int64(len(payload)),
		DetailLevel:   detail,
	}, nil
}
