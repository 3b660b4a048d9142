package pagi

import "time"

// ScopeType is the closed set of scope kinds a `Server` can deliver.
type ScopeType string

// Scope kinds.
const (
	ScopeHTTP      ScopeType = "http"
	ScopeWebSocket ScopeType = "websocket"
	ScopeSSE       ScopeType = "sse"
	ScopeLifespan  ScopeType = "lifespan"
)

// PAGIVersion identifies the protocol and spec versions carried in every
// scope's "pagi" sub-mapping.
type PAGIVersion struct {
	Version     string
	SpecVersion string
	IsWorker    bool
	WorkerNum   int
}

// State is the shared mapping created once by the `lifespanManager` and
// handed by reference to every non-lifespan scope, per spec.md §3.7. It is
// a plain map guarded by nothing beyond the single-worker cooperative
// scheduling model described in spec.md §5: handlers that suspend between a
// read and a write of State must assume another handler ran in between.
type State map[string]interface{}

// TLSInfo is the optional TLS sub-mapping of an HTTP-family scope.
type TLSInfo struct {
	Version          string
	CipherSuite      string
	ServerName       string
	ClientCertBytes  [][]byte
	NegotiatedProto  string
	HandshakeComplete bool
}

// Header is a single `[lowercase name, value]` pair, matching the ordered
// header list shape required by spec.md §3.1.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of `Header`. Lookups are case-insensitive but
// the original casing supplied by the peer (already lowercased per spec) is
// preserved for re-emission.
type Headers []Header

// Get returns the first value for name (case-insensitive), or "" if absent.
func (h Headers) Get(name string) string {
	for _, kv := range h {
		if equalFold(kv.Name, name) {
			return kv.Value
		}
	}
	return ""
}

// Values returns every value for name (case-insensitive), in order.
func (h Headers) Values(name string) []string {
	var vs []string
	for _, kv := range h {
		if equalFold(kv.Name, name) {
			vs = append(vs, kv.Value)
		}
	}
	return vs
}

// equalFold is an ASCII case-insensitive comparison, avoiding the
// allocation `strings.EqualFold` with unicode folding does not need here.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Scope is the immutable-at-start, annotated context delivered as the first
// argument to the application. Exactly one of the *Scope fields below is
// populated, selected by Type — this models the "variant per scope kind"
// design called for in spec.md §9 in place of a dynamically-typed mapping.
type Scope struct {
	Type  ScopeType
	PAGI  PAGIVersion
	State State

	HTTP      *HTTPScope
	WebSocket *WebSocketScope
	SSE       *SSEScope
	Lifespan  *LifespanScope

	// PathParams and RouteName are populated by the Router once a scope
	// has been dispatched; they are empty on a scope the Router never saw.
	PathParams map[string]string
	RouteName  string
}

// HTTPScope carries the keys spec.md §3.1 requires for an `http` scope.
type HTTPScope struct {
	Method      string
	Path        string // percent-decoded, UTF-8
	RawPath     []byte
	QueryString []byte
	Headers     Headers
	Scheme      string // "http" or "https"
	HTTPVersion string // "1.1" or "2"
	Client      string // peer "host:port"
	Server      string // local "host:port"
	TLS         *TLSInfo
	RootPath    string // mount prefix; Router.Mount does not set it
}

// WebSocketScope carries the `http` keys plus the offered subprotocols.
type WebSocketScope struct {
	HTTPScope
	Subprotocols []string
}

// SSEScope carries the `http` keys minus Method (implicitly GET) and
// without a body.
type SSEScope struct {
	Path        string
	RawPath     []byte
	QueryString []byte
	Headers     Headers
	Scheme      string
	HTTPVersion string
	Client      string
	Server      string
	TLS         *TLSInfo
	RootPath    string
}

// LifespanScope carries only the two scope-universal fields.
type LifespanScope struct{}

// newHTTPScope builds the HTTP-kind `Scope` wrapper around hs.
func newHTTPScope(hs *HTTPScope, state State, ver PAGIVersion) Scope {
	return Scope{
		Type:       ScopeHTTP,
		PAGI:       ver,
		State:      state,
		HTTP:       hs,
		PathParams: map[string]string{},
	}
}

// newWebSocketScope builds the WebSocket-kind `Scope` wrapper around ws.
func newWebSocketScope(ws *WebSocketScope, state State, ver PAGIVersion) Scope {
	return Scope{
		Type:       ScopeWebSocket,
		PAGI:       ver,
		State:      state,
		WebSocket:  ws,
		PathParams: map[string]string{},
	}
}

// newSSEScope builds the SSE-kind `Scope` wrapper around ss.
func newSSEScope(ss *SSEScope, state State, ver PAGIVersion) Scope {
	return Scope{
		Type:       ScopeSSE,
		PAGI:       ver,
		State:      state,
		SSE:        ss,
		PathParams: map[string]string{},
	}
}

// newLifespanScope builds the Lifespan-kind `Scope` wrapper.
func newLifespanScope(state State, ver PAGIVersion) Scope {
	return Scope{
		Type:     ScopeLifespan,
		PAGI:     ver,
		State:    state,
		Lifespan: &LifespanScope{},
	}
}

// deadlineOrZero turns a timer duration into a deadline: a zero duration
// means "do not create this timer" (spec.md §4.2 "Timers"). Nothing in this
// package calls it.
func deadlineOrZero(d time.Duration) (time.Time, bool) {
	if d <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(d), true
}
