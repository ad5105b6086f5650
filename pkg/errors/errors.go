// Package errors provides the typed errors shared by the sbomgen packages.
// Every failure surfaced by the query client, the resolver, the converters,
// and the archive store carries a Kind from the taxonomy below.
package errors

import (
	"errors"
	"fmt"
)

// =============================================================================
// Base Error Type
// =============================================================================

// Error is the base error type for all sbomgen errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "sparql.Query")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota

	// KindInvalidInput marks a root component name that fails validation.
	KindInvalidInput

	// KindInvalidParameter marks a query parameter rejected by the
	// allow-list or deny-list before any network call.
	KindInvalidParameter

	// KindInvalidQuery marks a substituted query that does not start with
	// a read-only query verb.
	KindInvalidQuery

	// KindEndpoint marks connection, timeout, and server-side failures
	// reaching the query endpoint. Retryable.
	KindEndpoint

	// KindQuery marks a query the endpoint rejected as malformed.
	// Never retried.
	KindQuery

	// KindSerialization marks malformed intermediate data detected while
	// rendering a document.
	KindSerialization

	// KindStorage marks archive store failures.
	KindStorage

	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindInvalidQuery:
		return "invalid_query"
	case KindEndpoint:
		return "endpoint"
	case KindQuery:
		return "query"
	case KindSerialization:
		return "serialization"
	case KindStorage:
		return "storage"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op then Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with an operation name.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapWithMessage wraps an error with a message.
func WrapWithMessage(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Message: message, Err: err}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsInvalidInput checks if the error is a component-name validation error.
func IsInvalidInput(err error) bool {
	return GetKind(err) == KindInvalidInput
}

// IsInvalidParameter checks if the error is a parameter validation error.
func IsInvalidParameter(err error) bool {
	return GetKind(err) == KindInvalidParameter
}

// IsInvalidQuery checks if the error is a query verb check error.
func IsInvalidQuery(err error) bool {
	return GetKind(err) == KindInvalidQuery
}

// IsEndpointError checks if the error is an endpoint reachability error.
func IsEndpointError(err error) bool {
	return GetKind(err) == KindEndpoint
}

// IsQueryError checks if the error is a malformed-query rejection.
func IsQueryError(err error) bool {
	return GetKind(err) == KindQuery
}

// IsSerializationError checks if the error is a document rendering error.
func IsSerializationError(err error) bool {
	return GetKind(err) == KindSerialization
}

// IsStorageError checks if the error is an archive store error.
func IsStorageError(err error) bool {
	return GetKind(err) == KindStorage
}

// IsRetryable checks if the error is retryable. Only endpoint failures
// qualify; a query the remote side rejected stays rejected no matter how
// often it is resent.
func IsRetryable(err error) bool {
	return GetKind(err) == KindEndpoint
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrMissingEndpoint is returned when no endpoint URL is configured.
	ErrMissingEndpoint = &Error{Kind: KindInvalidInput, Message: "endpoint URL is required"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindInvalidInput, Message: "invalid configuration"}

	// ErrEmptyComponent is returned when the root component name is empty.
	ErrEmptyComponent = &Error{Kind: KindInvalidInput, Message: "component name is empty"}

	// ErrNotFound is returned when an archived document does not exist.
	ErrNotFound = &Error{Kind: KindStorage, Message: "record not found"}
)
