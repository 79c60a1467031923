package gateway

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the local submission limiter refuses an
// order before any network call is made.
var ErrRateLimited = errors.New("order rate limit exceeded")

// TransportError means the backend was unreachable or the channel broke
// mid-request. Order operations are not retried automatically; the user
// resubmits.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError means the backend answered with a non-2xx status. The
// client does not distinguish business-rule rejections from other failures.
type RejectionError struct {
	Op     string
	Status int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: backend rejected request with status %d", e.Op, e.Status)
}

// ValidationError blocks a submission before any network call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order draft: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
