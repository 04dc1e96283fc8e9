package domain

import "fmt"

// FailureKind classifies why a backing service call failed. Every kind
// collapses to "use the local fallback" at the call site; none of them are
// surfaced to the dialogue as user-visible errors.
type FailureKind string

const (
	FailureNetwork  FailureKind = "network_failure"
	FailureBadShape FailureKind = "invalid_response_shape"
	FailureTimeout  FailureKind = "timeout"
)

// ServiceError wraps a backing service failure with its kind.
type ServiceError struct {
	Kind FailureKind
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err with the given kind.
func NewServiceError(kind FailureKind, err error) *ServiceError {
	return &ServiceError{Kind: kind, Err: err}
}
