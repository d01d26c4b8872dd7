package rag

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy and transport mapping.
// Validation and not-found map to client-error responses; backend and
// configuration failures map to server-error responses with redacted
// messages.
type Kind int

const (
	// KindUnknown is the zero value for errors outside the taxonomy.
	KindUnknown Kind = iota

	// KindValidation: bad or missing input, no backend was touched.
	KindValidation

	// KindCapabilityUnavailable: an optional backend failed its startup
	// probe and the operation was rejected before any attempt.
	KindCapabilityUnavailable

	// KindBackend: a required backend returned an error or timed out
	// during the call.
	KindBackend

	// KindNotFound: a lookup by id matched nothing. Typed empty result,
	// not a failure.
	KindNotFound

	// KindConfiguration: invariant violation such as a vector-dimension
	// mismatch or an unknown search type. Fatal at startup, rejected
	// before dispatch at runtime.
	KindConfiguration
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCapabilityUnavailable:
		return "capability_unavailable"
	case KindBackend:
		return "backend"
	case KindNotFound:
		return "not_found"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is the typed error carried across the pipeline boundary. Backend
// names the failing capability ("embedding", "vector", "generation", ...)
// so callers can distinguish backend identity without seeing raw backend
// messages.
type Error struct {
	Kind    Kind
	Backend string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Backend != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s backend: %v", e.Kind, e.Backend, e.Err)
	case e.Backend != "":
		return fmt.Sprintf("%s: %s backend: %s", e.Kind, e.Backend, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Redacted returns a client-safe message: kind, backend identity and the
// package-written message, never wrapped backend detail.
func (e *Error) Redacted() string {
	if e.Kind == KindCapabilityUnavailable && e.Backend != "" {
		return fmt.Sprintf("%s capability unavailable", e.Backend)
	}
	if e.Backend != "" {
		return fmt.Sprintf("%s backend failure", e.Backend)
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// KindOf extracts the taxonomy kind from an error chain. Errors outside
// the taxonomy report KindUnknown and should be treated as server errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Validationf builds a validation error. No backend may be touched after
// returning one.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unavailable builds a capability-unavailable error for the named backend.
func Unavailable(backend string) *Error {
	return &Error{
		Kind:    KindCapabilityUnavailable,
		Backend: backend,
		Message: "capability not available",
	}
}

// BackendError wraps a required-backend failure, preserving the backend
// identity for the caller.
func BackendError(backend string, err error) *Error {
	return &Error{Kind: KindBackend, Backend: backend, Err: err}
}

// NotFoundf builds a typed not-found result.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Configurationf builds a configuration error.
func Configurationf(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError wraps an underlying error as a configuration failure.
func ConfigurationError(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, Err: err}
}
