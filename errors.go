package pagi

import "fmt"

// Error is a PAGI error. Its Kind classifies the error into one of the eight
// abstract kinds the runtime distinguishes for propagation and logging
// purposes; Kind is never used for control flow outside this package.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the `error` interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pagi: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("pagi: %s: %s", e.Kind, e.Message)
}

// Unwrap allows `errors.Is`/`errors.As` to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind is the abstract error taxonomy of spec.md §7.
type ErrorKind uint8

// Error kinds.
const (
	// KindConfiguration marks a fatal, non-recoverable startup error such
	// as a missing certificate or an invalid log level.
	KindConfiguration ErrorKind = iota

	// KindAdmission marks a recoverable capacity error: over
	// `max_connections`, or file-descriptor exhaustion.
	KindAdmission

	// KindClientProtocol marks a client-caused protocol violation:
	// oversized headers, malformed framing, an invalid upgrade.
	KindClientProtocol

	// KindAppProtocol marks an invalid event sequence from the
	// application (body before start, illegal keys).
	KindAppProtocol

	// KindAppRuntime marks an exception raised by the application.
	KindAppRuntime

	// KindTransport marks a transport-level failure: peer reset, TLS
	// failure mid-session, write after FIN.
	KindTransport

	// KindLifespan marks a lifespan startup or shutdown failure.
	KindLifespan

	// KindTimeout marks an idle/stall/WS-idle/SSE-idle timer firing.
	KindTimeout
)

// String implements the `fmt.Stringer`.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAdmission:
		return "admission"
	case KindClientProtocol:
		return "client-protocol"
	case KindAppProtocol:
		return "app-protocol"
	case KindAppRuntime:
		return "app-runtime"
	case KindTransport:
		return "transport"
	case KindLifespan:
		return "lifespan"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// newError returns a pointer to a new `Error` of the given kind.
func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Sentinel errors returned by the router and the wrappers. Handlers and
// middleware may compare against these with `errors.Is`.
var (
	// ErrNotFound is returned by `Router.routeScope` when no route matches.
	ErrNotFound = newError(KindClientProtocol, "not found", nil)

	// ErrMethodNotAllowed is returned when a path matches but no route
	// registers the request method.
	ErrMethodNotAllowed = newError(KindClientProtocol, "method not allowed", nil)

	// ErrResponseAlreadyStarted is returned by a `Response` finisher
	// called a second time on the same response.
	ErrResponseAlreadyStarted = newError(KindAppProtocol, "response already started", nil)

	// ErrLifespanUnsupported marks an application that raised on its
	// first lifespan event; the server tolerates this (spec.md §3.7).
	ErrLifespanUnsupported = newError(KindLifespan, "lifespan unsupported", nil)
)
