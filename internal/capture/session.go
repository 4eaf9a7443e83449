// Package capture implements the photo capture side of the pipeline:
// an append-only capture session that accumulates photographs for one
// reconstruction attempt and owns their temporary storage.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"photoforge/internal/logging"
)

// State is the capture session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Photo is one captured photograph. Immutable once created; destroyed only
// by a session reset.
type Photo struct {
	ID            string
	FileReference string
	SequenceIndex int
	CapturedAt    time.Time
}

// Policy is the capture-count policy. MinPhotos is enforced by Finish;
// the recommended band is advisory and only logged.
type Policy struct {
	MinPhotos      int
	RecommendedMin int
	RecommendedMax int
}

// DefaultPolicy enforces a single photo and recommends the 20-200 band.
func DefaultPolicy() Policy {
	return Policy{MinPhotos: 1, RecommendedMin: 20, RecommendedMax: 200}
}

// Session accumulates photographs for one reconstruction attempt.
//
// The photo list is append-only while capturing; the only removal is a full
// Reset. The session owns its photo list and temp store exclusively: the
// coordinator reads a frozen snapshot at submit time and nothing else
// touches the files.
type Session struct {
	mu     sync.Mutex
	id     string
	state  State
	photos []Photo
	store  *photoStore
	policy Policy
}

// NewSession creates an idle capture session. baseDir is the base directory
// for the session-scoped temp store; empty means the OS temp directory.
func NewSession(baseDir string, policy Policy) *Session {
	if policy.MinPhotos < 1 {
		policy.MinPhotos = 1
	}
	id := uuid.New().String()
	logging.Capture("Creating capture session %s (min photos: %d)", id, policy.MinPhotos)
	return &Session{
		id:     id,
		state:  StateIdle,
		store:  newPhotoStore(baseDir, id),
		policy: policy,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Count returns the number of captured photos.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.photos)
}

// Dir returns the session's temp store directory.
func (s *Session) Dir() string { return s.store.dir }

// Policy returns the capture-count policy.
func (s *Session) Policy() Policy { return s.policy }

// Start transitions Idle -> Capturing and prepares the temp store.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return &Error{Kind: KindAlreadyStarted,
			Detail: fmt.Sprintf("session %s is %s, not idle", s.id, s.state)}
	}
	if err := s.store.ensure(); err != nil {
		return &Error{Kind: KindStorageFailure, Detail: "preparing session store", Err: err}
	}

	s.state = StateCapturing
	logging.Capture("Session %s capturing", s.id)
	return nil
}

// AddPhoto persists the image bytes into the session store and appends a
// Photo with the next sequence index. A failed write leaves state and the
// existing photo list untouched.
func (s *Session) AddPhoto(imageBytes []byte) (Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCapturing {
		return Photo{}, &Error{Kind: KindInvalidState,
			Detail: fmt.Sprintf("cannot add photo while session is %s", s.state)}
	}

	index := len(s.photos) + 1
	path, err := s.store.write(index, imageBytes)
	if err != nil {
		logging.Get(logging.CategoryCapture).Error("Session %s photo %d write failed: %v", s.id, index, err)
		return Photo{}, &Error{Kind: KindStorageFailure,
			Detail: fmt.Sprintf("persisting photo %d", index), Err: err}
	}

	photo := Photo{
		ID:            uuid.New().String(),
		FileReference: path,
		SequenceIndex: index,
		CapturedAt:    time.Now(),
	}
	s.photos = append(s.photos, photo)
	logging.CaptureDebug("Session %s captured photo %d (%d bytes)", s.id, index, len(imageBytes))
	return photo, nil
}

// Finish transitions Capturing -> Ready once the enforced minimum is met.
// On an insufficient count the session stays Capturing.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCapturing {
		return &Error{Kind: KindInvalidState,
			Detail: fmt.Sprintf("cannot finish while session is %s", s.state)}
	}
	if len(s.photos) < s.policy.MinPhotos {
		return &Error{Kind: KindInsufficientPhotos,
			Detail: fmt.Sprintf("have %d photos, need at least %d", len(s.photos), s.policy.MinPhotos)}
	}

	if len(s.photos) < s.policy.RecommendedMin || len(s.photos) > s.policy.RecommendedMax {
		logging.Get(logging.CategoryCapture).Warn(
			"Session %s finished with %d photos, outside the recommended %d-%d band",
			s.id, len(s.photos), s.policy.RecommendedMin, s.policy.RecommendedMax)
	}

	s.state = StateReady
	logging.Capture("Session %s ready with %d photos", s.id, len(s.photos))
	return nil
}

// Reset returns the session to Idle from any state and deletes every
// temporary photo file. Jobs associated with the session are the
// coordinator's responsibility; see pipeline.Handoff.ResetSession.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.destroy(); err != nil {
		return &Error{Kind: KindStorageFailure, Detail: "removing session store", Err: err}
	}
	s.photos = nil
	s.state = StateIdle
	logging.Capture("Session %s reset", s.id)
	return nil
}

// Snapshot returns a frozen copy of the photo list. Later additions to the
// session never show up in a previously taken snapshot.
func (s *Session) Snapshot() []Photo {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make([]Photo, len(s.photos))
	copy(snap, s.photos)
	return snap
}

// Paths extracts the ordered file references from a snapshot.
func Paths(snapshot []Photo) []string {
	paths := make([]string, len(snapshot))
	for i, p := range snapshot {
		paths[i] = p.FileReference
	}
	return paths
}
