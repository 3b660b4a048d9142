package pagi

import "context"

// Receive yields the next server-produced event for the current scope. It
// blocks until an event is available or ctx is done.
type Receive func(ctx context.Context) (Event, error)

// Send delivers an application-produced event to the server. It blocks
// under write backpressure (spec.md §4.2 "Backpressure") until the event
// has been queued or ctx is done.
type Send func(ctx context.Context, e Event) error

// App is the PAGI application contract of spec.md §6: any callable of shape
// (scope, receive, send) -> error. The server tolerates an App that returns
// a non-nil error on its first lifespan event — that is the "does not
// understand lifespan" signal of spec.md §3.7 — but does not tolerate an
// error returned for any other scope type beyond the per-kind failure
// semantics of spec.md §4.2.
type App func(ctx context.Context, scope Scope, receive Receive, send Send) error

// WrapHandler adapts a `Handler` (the router's per-route callable) into an
// `App` that only ever receives HTTP scopes, for callers that want to run a
// single handler directly against the server without a `Router` in front of
// it.
func WrapHandler(h Handler) App {
	return func(ctx context.Context, scope Scope, receive Receive, send Send) error {
		if scope.Type != ScopeHTTP {
			return newError(KindAppProtocol, "WrapHandler only serves http scopes", nil)
		}
		req := newRequest(ctx, scope, receive, send)
		res := newResponse(ctx, send)
		defer res.runBackgroundTasks(ctx)
		return h(req, res)
	}
}

// isLifespanUnsupported reports whether err is the signal an application
// returns on its first lifespan event to decline lifespan support entirely.
// Per spec.md §3.7, any error returned for the very first event of a
// lifespan scope is treated this way, not only ErrLifespanUnsupported
// itself — the server cannot distinguish "I don't implement lifespan" from
// another startup failure except by position, so it is lenient here and
// simply proceeds without having run startup/shutdown hooks.
func isLifespanUnsupported(err error) bool {
	return err != nil
}
