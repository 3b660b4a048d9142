package pagi

// EventType selects the Event variant. Event is modeled as a closed tagged
// union (one struct field set per Type) rather than a dynamically-typed
// mapping, per the re-architecture note in spec.md §9 ("Dynamic event
// dispatch on string `type`"). Application code is expected to switch on
// Type and read only the matching fields.
type EventType string

// Application-produced (server sink) event types.
const (
	EventHTTPResponseStart    EventType = "http.response.start"
	EventHTTPResponseBody     EventType = "http.response.body"
	EventHTTPResponseTrailers EventType = "http.response.trailers"
	EventWebSocketAccept      EventType = "websocket.accept"
	EventWebSocketSend        EventType = "websocket.send"
	EventWebSocketClose       EventType = "websocket.close"
	EventSSEResponseStart     EventType = "sse.response.start"
	EventSSEResponseBody      EventType = "sse.response.body"
	EventLifespanStartupComplete EventType = "lifespan.startup.complete"
	EventLifespanStartupFailed   EventType = "lifespan.startup.failed"
	EventLifespanShutdownComplete EventType = "lifespan.shutdown.complete"
	EventLifespanShutdownFailed   EventType = "lifespan.shutdown.failed"
)

// Server-produced (application source) event types.
const (
	EventHTTPRequest         EventType = "http.request"
	EventHTTPDisconnect      EventType = "http.disconnect"
	EventWebSocketConnect    EventType = "websocket.connect"
	EventWebSocketReceive    EventType = "websocket.receive"
	EventWebSocketDisconnect EventType = "websocket.disconnect"
	EventSSEDisconnect       EventType = "sse.disconnect"
	EventLifespanStartup     EventType = "lifespan.startup"
	EventLifespanShutdown    EventType = "lifespan.shutdown"
)

// FileRef describes a `file:` body source: a path plus an optional byte
// range. A zero Length means "to EOF".
type FileRef struct {
	Path   string
	Offset int64
	Length int64 // 0 means unset/to-EOF
}

// HandleRef describes an `fh:` body source: an already-open handle plus an
// application-reported length. spec.md §9 leaves open what happens when the
// handle is not seekable or Length disagrees with the actual readable
// bytes; this implementation reads until EOF or Length bytes, whichever
// comes first, and does not error on a seek failure — see DESIGN.md.
type HandleRef struct {
	Handle interface {
		Read([]byte) (int, error)
	}
	Length int64
}

// Event is the tagged union exchanged between the server and the
// application. Only the fields relevant to Type are meaningful.
type Event struct {
	Type EventType

	// http.response.start / sse.response.start
	Status   int
	Headers  Headers
	Trailers bool // declares that a later http.response.trailers follows

	// http.response.body: exactly one of Body, File, or FH is set.
	Body []byte
	More bool
	File *FileRef
	FH   *HandleRef

	// websocket.accept
	Subprotocol string

	// websocket.send / websocket.receive
	Text      string
	Binary    []byte
	IsText    bool

	// websocket.close / websocket.disconnect
	Code   int
	Reason string

	// sse.response.body
	SSEData    string
	SSEEvent   string
	SSEID      string
	SSERetryMS int
	SSEComment string

	// lifespan.*.failed
	Message string
}

// HTTPRequestEvent constructs an `http.request` event.
func HTTPRequestEvent(body []byte, more bool) Event {
	return Event{Type: EventHTTPRequest, Body: body, More: more}
}

// HTTPDisconnectEvent constructs an `http.disconnect` event.
func HTTPDisconnectEvent() Event {
	return Event{Type: EventHTTPDisconnect}
}

// ResponseStartEvent constructs an `http.response.start` event.
func ResponseStartEvent(status int, headers Headers, trailers bool) Event {
	return Event{Type: EventHTTPResponseStart, Status: status, Headers: headers, Trailers: trailers}
}

// ResponseBodyEvent constructs an `http.response.body` event carrying inline
// bytes.
func ResponseBodyEvent(body []byte, more bool) Event {
	return Event{Type: EventHTTPResponseBody, Body: body, More: more}
}

// ResponseFileEvent constructs an `http.response.body` event sourced from a
// file path.
func ResponseFileEvent(ref FileRef, more bool) Event {
	return Event{Type: EventHTTPResponseBody, File: &ref, More: more}
}

// ResponseHandleEvent constructs an `http.response.body` event sourced from
// an already-open handle.
func ResponseHandleEvent(ref HandleRef, more bool) Event {
	return Event{Type: EventHTTPResponseBody, FH: &ref, More: more}
}

// ResponseTrailersEvent constructs an `http.response.trailers` event.
func ResponseTrailersEvent(headers Headers, more bool) Event {
	return Event{Type: EventHTTPResponseTrailers, Headers: headers, More: more}
}

// WebSocketConnectEvent constructs the first `websocket.connect` event.
func WebSocketConnectEvent() Event {
	return Event{Type: EventWebSocketConnect}
}

// WebSocketAcceptEvent constructs a `websocket.accept` event.
func WebSocketAcceptEvent(subprotocol string, headers Headers) Event {
	return Event{Type: EventWebSocketAccept, Subprotocol: subprotocol, Headers: headers}
}

// WebSocketSendTextEvent constructs a `websocket.send` event carrying text.
func WebSocketSendTextEvent(text string) Event {
	return Event{Type: EventWebSocketSend, Text: text, IsText: true}
}

// WebSocketSendBinaryEvent constructs a `websocket.send` event carrying
// bytes.
func WebSocketSendBinaryEvent(b []byte) Event {
	return Event{Type: EventWebSocketSend, Binary: b, IsText: false}
}

// WebSocketReceiveTextEvent constructs a `websocket.receive` event carrying
// text.
func WebSocketReceiveTextEvent(text string) Event {
	return Event{Type: EventWebSocketReceive, Text: text, IsText: true}
}

// WebSocketReceiveBinaryEvent constructs a `websocket.receive` event
// carrying bytes.
func WebSocketReceiveBinaryEvent(b []byte) Event {
	return Event{Type: EventWebSocketReceive, Binary: b, IsText: false}
}

// WebSocketCloseEvent constructs a `websocket.close` event.
func WebSocketCloseEvent(code int, reason string) Event {
	if code == 0 {
		code = 1000
	}
	return Event{Type: EventWebSocketClose, Code: code, Reason: reason}
}

// WebSocketDisconnectEvent constructs a `websocket.disconnect` event.
func WebSocketDisconnectEvent(code int) Event {
	return Event{Type: EventWebSocketDisconnect, Code: code}
}

// SSEResponseStartEvent constructs an `sse.response.start` event.
func SSEResponseStartEvent(headers Headers) Event {
	return Event{Type: EventSSEResponseStart, Headers: headers}
}

// SSEResponseBodyEvent constructs an `sse.response.body` event.
func SSEResponseBodyEvent(data, event, id string, retryMS int, comment string, more bool) Event {
	return Event{
		Type:       EventSSEResponseBody,
		SSEData:    data,
		SSEEvent:   event,
		SSEID:      id,
		SSERetryMS: retryMS,
		SSEComment: comment,
		More:       more,
	}
}

// SSEDisconnectEvent constructs an `sse.disconnect` event.
func SSEDisconnectEvent() Event {
	return Event{Type: EventSSEDisconnect}
}

// LifespanStartupEvent constructs a `lifespan.startup` event.
func LifespanStartupEvent() Event {
	return Event{Type: EventLifespanStartup}
}

// LifespanShutdownEvent constructs a `lifespan.shutdown` event.
func LifespanShutdownEvent() Event {
	return Event{Type: EventLifespanShutdown}
}

// LifespanStartupCompleteEvent constructs a `lifespan.startup.complete`
// event.
func LifespanStartupCompleteEvent() Event {
	return Event{Type: EventLifespanStartupComplete}
}

// LifespanStartupFailedEvent constructs a `lifespan.startup.failed` event.
func LifespanStartupFailedEvent(message string) Event {
	return Event{Type: EventLifespanStartupFailed, Message: message}
}

// LifespanShutdownCompleteEvent constructs a `lifespan.shutdown.complete`
// event.
func LifespanShutdownCompleteEvent() Event {
	return Event{Type: EventLifespanShutdownComplete}
}

// LifespanShutdownFailedEvent constructs a `lifespan.shutdown.failed` event.
func LifespanShutdownFailedEvent(message string) Event {
	return Event{Type: EventLifespanShutdownFailed, Message: message}
}
