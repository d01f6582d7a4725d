package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated reports an operation that requires an identity
	// performed anonymously.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrMalformed reports an unparseable grant identifier. A parse
	// failure is a hard error, distinct from a lookup miss, even though
	// the boundary reports both the same way.
	ErrMalformed = errors.New("malformed identifier")
)

// ForbiddenError reports an authenticated requester who is not entitled to
// the operation.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

// EvaluationError wraps a fault raised by a feature evaluator.
type EvaluationError struct {
	Feature string
	Cause   error
}

func (e EvaluationError) Error() string {
	return fmt.Sprintf("feature %s evaluation failed: %v", e.Feature, e.Cause)
}

func (e EvaluationError) Unwrap() error { return e.Cause }
