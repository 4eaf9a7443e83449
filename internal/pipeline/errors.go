package pipeline

import "fmt"

// ErrorKind is the machine-readable classification of a pipeline error.
type ErrorKind string

const (
	// KindJobAlreadyActive: a submit raced an unfinished job for the
	// same session. Synchronous, no side effects.
	KindJobAlreadyActive ErrorKind = "job_already_active"

	// KindUnknownJob: the job id is not (or no longer) tracked.
	KindUnknownJob ErrorKind = "unknown_job"

	// KindJobActive: the operation needs a terminal job but the job is
	// still running.
	KindJobActive ErrorKind = "job_active"

	// KindProcessing: the engine reported an asynchronous failure. It is
	// recorded on the job and never retried automatically.
	KindProcessing ErrorKind = "processing"

	// KindCancelled: a deliberately requested and acknowledged
	// cancellation. Informational, not a failure.
	KindCancelled ErrorKind = "cancelled"
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
	ErrJobAlreadyActive = &Error{Kind: KindJobAlreadyActive}
	ErrUnknownJob       = &Error{Kind: KindUnknownJob}
	ErrJobActive        = &Error{Kind: KindJobActive}
	ErrProcessing       = &Error{Kind: KindProcessing}
	ErrCancelled        = &Error{Kind: KindCancelled}
)
