package capture

import "fmt"

// ErrorKind is the machine-readable classification of a capture error.
type ErrorKind string

const (
	// KindInsufficientPhotos: Finish (or a later submit) was attempted
	// with fewer photos than the configured minimum.
	KindInsufficientPhotos ErrorKind = "insufficient_photos"

	// KindStorageFailure: the photo store rejected a write. The failed
	// photo is not recorded; prior photos and session state are intact.
	KindStorageFailure ErrorKind = "storage_failure"

	// KindAlreadyStarted: Start called outside Idle.
	KindAlreadyStarted ErrorKind = "already_started"

	// KindInvalidState: an operation was called in a phase that does not
	// permit it (e.g. AddPhoto before Start).
	KindInvalidState ErrorKind = "invalid_state"
)

// Error carries a machine-readable kind plus human-readable detail.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can test against the
// sentinel values below with errors.Is regardless of detail text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel values for errors.Is checks.
var (
	ErrInsufficientPhotos = &Error{Kind: KindInsufficientPhotos}
	ErrStorageFailure     = &Error{Kind: KindStorageFailure}
	ErrAlreadyStarted     = &Error{Kind: KindAlreadyStarted}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
)
