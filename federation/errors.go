package federation

import (
	"errors"
	"fmt"
)

// Error taxonomy of the federation core. Remote-peer faults surface as
// ResolutionError/FetchError and are always recovered into structured
// results; they never become 5xx responses.
var (
	// ErrAuthFailure covers every signature problem: missing or
	// malformed header, unresolvable key id, stale date, mismatched
	// digest, sender/signer mismatch, failed verification.
	ErrAuthFailure = errors.New("authentication failure")

	// ErrInvalidState marks an illegal follow transition. With correct
	// locking this should be unreachable outside of races.
	ErrInvalidState = errors.New("invalid follow state transition")

	// ErrInvalidPage rejects page numbers below 1 (bad request).
	ErrInvalidPage = errors.New("invalid page number")

	// ErrEmptyPage rejects page numbers past the last page (not found,
	// never silently the first page).
	ErrEmptyPage = errors.New("page out of range")
)

// FetchError reasons.
const (
	FetchUnreachable     = "unreachable"
	FetchStatus          = "http_status"
	FetchInvalidDocument = "invalid_document"
)

// ResolutionError describes a failed webfinger lookup. Status is only
// set for the http_status reason.
type ResolutionError struct {
	Reason string
	Status int
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Reason == ResolutionStatus {
		return fmt.Sprintf("resolution failed (%s %d)", e.Reason, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("resolution failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("resolution failed (%s)", e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FetchError describes a failed remote document fetch. Status is only
// set for the http_status reason.
type FetchError struct {
	Reason string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Reason == FetchStatus {
		return fmt.Sprintf("fetch failed (%s %d)", e.Reason, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s)", e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

func authFailure(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrAuthFailure}, args...)...)
}
