// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// Upstream failure classes. Callers match them with errors.Is.
var (
	ErrRateLimited = stderrors.New("upstream rate limit exceeded")
	ErrTransient   = stderrors.New("transient upstream error")
	ErrTooLarge    = stderrors.New("dataset too large for primary source")
	ErrNotFound    = stderrors.New("upstream resource not found or empty")
	ErrAuth        = stderrors.New("upstream credential rejected")
	ErrInProgress  = stderrors.New("upstream computation in progress")
)

var (
	// ErrMissingToken is returned at startup when no upstream credential is configured.
	ErrMissingToken = stderrors.New("GITHUB_TOKEN is a required configuration field")

	// ErrJobAlreadyRunning is returned when a trigger overlaps a running job of the same type.
	ErrJobAlreadyRunning = stderrors.New("job of this type is already running")

	// ErrUnknownRepository is returned when an enrichment targets a repository that was never synced.
	ErrUnknownRepository = stderrors.New("repository has not been synced")
)

// ErrInvalidRepoFormat is returned when a repository string is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// UpstreamError carries the classified kind of an upstream failure and the raw cause.
type UpstreamError struct {
	Kind error
	Op   string
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// GaveUpError is returned once a retried operation exhausts its attempts.
type GaveUpError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *GaveUpError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *GaveUpError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err belongs to a class that is worth retrying.
func IsRetryable(err error) bool {
	return stderrors.Is(err, ErrRateLimited) || stderrors.Is(err, ErrTransient)
}

// IsFatal reports whether err must abort a whole run rather than a single item.
func IsFatal(err error) bool {
	return stderrors.Is(err, ErrAuth) || stderrors.Is(err, ErrMissingToken)
}
