// Package engine abstracts the photogrammetry reconstruction engine.
//
// The engine is an injectable dependency: production wiring supplies a
// platform reconstruction backend, tests and demo runs use the deterministic
// ScriptedEngine. The core never looks inside the reconstruction itself; it
// only consumes the ordered event stream an engine produces.
package engine

import (
	"context"
	"fmt"
)

// DetailLevel is the quality/resolution policy passed to the engine.
// It controls output density and processing cost.
type DetailLevel string

const (
	DetailPreview DetailLevel = "preview"
	DetailReduced DetailLevel = "reduced"
	DetailMedium  DetailLevel = "medium"
	DetailFull    DetailLevel = "full"
	DetailRaw     DetailLevel = "raw"
)

// ParseDetailLevel converts a config string into a DetailLevel.
func ParseDetailLevel(s string) (DetailLevel, error) {
	switch DetailLevel(s) {
	case DetailPreview, DetailReduced, DetailMedium, DetailFull, DetailRaw:
		return DetailLevel(s), nil
	default:
		return "", fmt.Errorf("unknown detail level: %q", s)
	}
}

// FormatScenePack identifies a packaged 3D scene file
// (geometry + materials + optional animation).
const FormatScenePack = "scene.pack"

// Asset is a packaged 3D scene produced by reconstruction.
type Asset struct {
	// FileReference is the path to the packaged scene file.
	FileReference string

	// Format tags the packaging of the scene file.
	Format string

	// SizeBytes is the on-disk size of the packaged scene.
	SizeBytes int64

	// DetailLevel echoes the policy the asset was built with, for diagnostics.
	DetailLevel DetailLevel
}

// EventType discriminates engine events.
type EventType int

const (
	EventProgress EventType = iota
	EventComplete
	EventError
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is a single entry in an engine's ordered event stream.
// Progress is meaningful only for EventProgress, Asset only for
// EventComplete, Err only for EventError.
type Event struct {
	Type     EventType
	Progress float64
	Asset    *Asset
	Err      error
}

// Engine is the abstracted reconstruction capability.
type Engine interface {
	// Process starts reconstruction of the given ordered photo set and
	// returns an ordered, single-producer event stream. The stream ends
	// with exactly one terminal event (complete, error or cancelled) and
	// is then closed. Cancellation is requested by cancelling ctx and is
	// cooperative: the engine acknowledges with an EventCancelled before
	// closing the stream.
	Process(ctx context.Context, photoPaths []string, detail DetailLevel) (<-chan Event, error)
}
