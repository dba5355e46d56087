package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind classifies a stage or client error so the job runner can decide
// retry versus terminal failure from the value, not from error interception.
type FailureKind string

const (
	// FailureTransient covers timeouts, rate limits, and 5xx responses.
	// Retried with backoff at both call and job level.
	FailureTransient FailureKind = "transient"
	// FailurePermanentInput covers malformed URLs, unresolvable places, and
	// missing recipients. The stage completes with partial or empty output
	// rather than failing; downstream stages operate on incomplete data.
	FailurePermanentInput FailureKind = "permanent_input"
	// FailureTerminal covers exhausted retries and unexpected faults. The
	// job is recorded as permanently failed and never auto-re-enqueued.
	FailureTerminal FailureKind = "terminal"
)

// Failure pairs an error with its kind. Clients return it instead of raising
// bare errors so retry decisions stay explicit.
type Failure struct {
	Kind FailureKind
	Err  error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) *Failure {
	return &Failure{Kind: FailureTransient, Err: err}
}

// PermanentInput wraps err as a complete-with-partial-output failure.
func PermanentInput(err error) *Failure {
	return &Failure{Kind: FailurePermanentInput, Err: err}
}

// Terminal wraps err as a permanently failed outcome.
func Terminal(err error) *Failure {
	return &Failure{Kind: FailureTerminal, Err: err}
}

// KindOf extracts the failure kind from an error chain. Unclassified errors
// default to transient so the queue's retry budget gets a chance before the
// job is written off.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var failure *Failure
	if goerrors.As(err, &failure) {
		return failure.Kind
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	return FailureTransient
}

// IsRetryable reports whether the runner should spend retry budget on err.
func IsRetryable(err error) bool {
	return KindOf(err) == FailureTransient
}

// KindForHTTPStatus maps an HTTP response status to a failure kind. 2xx is
// not a failure; callers only consult this on non-success statuses.
func KindForHTTPStatus(status int) FailureKind {
	switch {
	case status == http.StatusTooManyRequests:
		return FailureTransient
	case status >= 500:
		return FailureTransient
	case status >= 400:
		return FailurePermanentInput
	default:
		return FailureTransient
	}
}
