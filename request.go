package pagi

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"
)

// Handler is the per-route callable of the convenience sugar layer
// (spec.md §4.4's "Handler: func(Request, Response) error"), sitting above
// the raw `App` contract the way `air`'s `func(*Request, *Response) error`
// sits above the raw `net/http` handler.
type Handler func(*Request, *Response) error

// Request is the read side of an HTTP-family scope, handed to a `Handler`.
// It buffers the body lazily: nothing is read off the wire until Body,
// BodyBytes, or BindJSON is called.
type Request struct {
	scope   Scope
	receive Receive
	send    Send
	ctx     context.Context

	bodyDone bool
	body     []byte
	bodyErr  error

	query      url.Values
	queryOnce  bool
	cookies    map[string]string
	cookieOnce bool
	stash      map[string]interface{}
}

// newRequest returns a `Request` wrapping scope, reading further body chunks
// through receive. send is retained only so WebSocket/SSE accessors can
// build their wrappers directly from the request without a second plumbing
// path back through Response.
func newRequest(ctx context.Context, scope Scope, receive Receive, send Send) *Request {
	return &Request{ctx: ctx, scope: scope, receive: receive, send: send}
}

// reset clears r for reuse from a pool.
func (r *Request) reset() {
	r.scope = Scope{}
	r.receive = nil
	r.send = nil
	r.ctx = nil
	r.bodyDone = false
	r.body = nil
	r.bodyErr = nil
	r.query = nil
	r.queryOnce = false
	r.cookies = nil
	r.cookieOnce = false
	r.stash = nil
}

// Scope returns the underlying scope.
func (r *Request) Scope() Scope { return r.scope }

// Method returns the request method ("" outside an http/websocket scope).
func (r *Request) Method() string {
	if r.scope.HTTP != nil {
		return r.scope.HTTP.Method
	}
	if r.scope.WebSocket != nil {
		return r.scope.WebSocket.Method
	}
	return ""
}

// Path returns the percent-decoded request path.
func (r *Request) Path() string {
	switch r.scope.Type {
	case ScopeHTTP:
		return r.scope.HTTP.Path
	case ScopeWebSocket:
		return r.scope.WebSocket.Path
	case ScopeSSE:
		return r.scope.SSE.Path
	}
	return ""
}

// Header returns the first value of name (case-insensitive).
func (r *Request) Header(name string) string {
	return r.headers().Get(name)
}

func (r *Request) headers() Headers {
	switch r.scope.Type {
	case ScopeHTTP:
		return r.scope.HTTP.Headers
	case ScopeWebSocket:
		return r.scope.WebSocket.Headers
	case ScopeSSE:
		return r.scope.SSE.Headers
	}
	return nil
}

// Param returns the named path capture, or "" if absent.
func (r *Request) Param(name string) string {
	return r.scope.PathParams[name]
}

// WebSocket returns a `WebSocket` wrapper over r's scope that has not yet
// accepted the connection, or an error if r's scope is not `ScopeWebSocket`.
func (r *Request) WebSocket() (*WebSocket, error) {
	if r.scope.Type != ScopeWebSocket {
		return nil, newError(KindAppProtocol, "Request.WebSocket called on a non-websocket scope", nil)
	}
	return newWebSocketWrapper(r.ctx, r.scope, r.receive, r.send), nil
}

// SSE returns the `SSEStream` wrapper for r, or an error if r's scope is
// not `ScopeSSE`.
func (r *Request) SSE() (*SSEStream, error) {
	if r.scope.Type != ScopeSSE {
		return nil, newError(KindAppProtocol, "Request.SSE called on a non-sse scope", nil)
	}
	return newSSEStream(r.ctx, r.scope, r.receive, r.send), nil
}

// rawQuery returns the scope's undecoded query string.
func (r *Request) rawQuery() string {
	switch r.scope.Type {
	case ScopeHTTP:
		return string(r.scope.HTTP.QueryString)
	case ScopeWebSocket:
		return string(r.scope.WebSocket.QueryString)
	case ScopeSSE:
		return string(r.scope.SSE.QueryString)
	}
	return ""
}

// Query returns the parsed query string, memoized after the first call.
func (r *Request) Query() url.Values {
	if !r.queryOnce {
		r.query, _ = url.ParseQuery(r.rawQuery())
		r.queryOnce = true
	}
	return r.query
}

// Cookies returns the request's cookies parsed from the Cookie header,
// memoized after the first call.
func (r *Request) Cookies() map[string]string {
	if !r.cookieOnce {
		r.cookies = parseCookieHeader(r.headers().Get("cookie"))
		r.cookieOnce = true
	}
	return r.cookies
}

// Cookie returns the named cookie's value, or "" if absent.
func (r *Request) Cookie(name string) string {
	return r.Cookies()[name]
}

// Form drains the body and parses it as application/x-www-form-urlencoded.
func (r *Request) Form() (url.Values, error) {
	b, err := r.BodyBytes()
	if err != nil {
		return nil, err
	}
	return url.ParseQuery(string(b))
}

// Stash returns the request-scoped key/value map used for middleware-to-
// handler communication (spec.md §4.6 "A per-request stash"). It is
// allocated lazily on first use.
func (r *Request) Stash() map[string]interface{} {
	if r.stash == nil {
		r.stash = map[string]interface{}{}
	}
	return r.stash
}

// parseCookieHeader parses an RFC 6265 Cookie header value into a name to
// value map, matching the quoted-or-bare value forms real browsers send.
func parseCookieHeader(header string) map[string]string {
	cookies := map[string]string{}
	if header == "" {
		return cookies
	}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if name != "" {
			cookies[name] = value
		}
	}
	return cookies
}

// Body returns an `io.Reader` that lazily pulls `http.request` events
// through Receive, concatenating chunks until `more` is false, per spec.md
// §3.2.
func (r *Request) Body() io.Reader {
	return &requestBodyReader{req: r}
}

// BodyBytes drains Body to completion and returns the full buffered body.
// It is idempotent: subsequent calls return the same bytes without
// re-reading the wire.
func (r *Request) BodyBytes() ([]byte, error) {
	if !r.bodyDone {
		r.drainBody()
	}
	return r.body, r.bodyErr
}

// BindJSON drains the body and unmarshals it as JSON into v.
func (r *Request) BindJSON(v interface{}) error {
	b, err := r.BodyBytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (r *Request) drainBody() {
	for {
		ev, err := r.receive(r.ctx)
		if err != nil {
			r.bodyErr = err
			r.bodyDone = true
			return
		}
		if ev.Type == EventHTTPDisconnect {
			r.bodyErr = newError(KindTransport, "client disconnected while reading body", nil)
			r.bodyDone = true
			return
		}
		if ev.Type != EventHTTPRequest {
			continue
		}
		r.body = append(r.body, ev.Body...)
		if !ev.More {
			r.bodyDone = true
			return
		}
	}
}

// requestBodyReader adapts Request's event-sourced body to `io.Reader`.
type requestBodyReader struct {
	req *Request
	off int
}

func (rr *requestBodyReader) Read(p []byte) (int, error) {
	if !rr.req.bodyDone {
		rr.req.drainBody()
	}
	if rr.req.bodyErr != nil && rr.off >= len(rr.req.body) {
		return 0, rr.req.bodyErr
	}
	if rr.off >= len(rr.req.body) {
		return 0, io.EOF
	}
	n := copy(p, rr.req.body[rr.off:])
	rr.off += n
	return n, nil
}
