package pagi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// serveWebSocket drives the WebSocket upgrade path: it builds the
// websocket scope and a Receive/Send pair whose Send implementation
// performs the actual `gorilla/websocket` handshake the moment the
// application emits `websocket.accept`, deferring the wire-level upgrade
// until the application has had a chance to inspect the connect event
// first (spec.md §3.3 "connecting → connected" sequencing).
func (b *netHTTPBridge) serveWebSocket(w http.ResponseWriter, req *http.Request) {
	s := b.s

	var subprotocols []string
	if sp := req.Header.Get("Sec-WebSocket-Protocol"); sp != "" {
		for _, p := range strings.Split(sp, ",") {
			subprotocols = append(subprotocols, strings.TrimSpace(p))
		}
	}

	scheme := "ws"
	if req.TLS != nil {
		scheme = "wss"
	}
	httpVersion := "1.1"
	if req.ProtoMajor == 2 {
		httpVersion = "2"
	}

	ws := &WebSocketScope{
		HTTPScope: HTTPScope{
			Method:      req.Method,
			Path:        req.URL.Path,
			RawPath:     []byte(req.URL.EscapedPath()),
			QueryString: []byte(req.URL.RawQuery),
			Headers:     convertHeaders(req.Header),
			Scheme:      scheme,
			HTTPVersion: httpVersion,
			Client:      req.RemoteAddr,
			Server:      req.Host,
			TLS:         buildTLSInfo(req),
		},
		Subprotocols: subprotocols,
	}

	scope := newWebSocketScope(ws, s.lifespan.state, PAGIVersion{
		Version:   "1.0",
		SpecVersion: "1.0",
		IsWorker:  s.isWorker,
		WorkerNum: s.workerNum,
	})

	bridge := newWSEventBridge(b.upgrader, w, req, s.MaxReceiveQueue, s.MaxWSFrameSize, s.WSIdleTimeout)
	defer bridge.cleanup()

	if err := s.App(req.Context(), scope, bridge.receive, bridge.send); err != nil && !bridge.upgraded {
		s.logErrorf("websocket application error before upgrade: %v", err)
		http.Error(w, "websocket handshake declined", http.StatusBadRequest)
	}
}

// wsEventBridge adapts one WebSocket upgrade to PAGI's Receive/Send.
type wsEventBridge struct {
	upgrader *websocket.Upgrader
	w        http.ResponseWriter
	req      *http.Request

	conn         *websocket.Conn
	upgraded     bool
	connectSent  bool
	events       chan Event
	readPumpDone chan struct{}
	queueSize    int

	// maxFrameSize enforces spec.md §4.2/§8 "frame exceeding
	// max_ws_frame_size → close 1002"; 0 disables the limit.
	maxFrameSize int64

	// idleTimeout enforces spec.md §4.2/§5 "ws_idle_timeout: close if no
	// frames flowed in either direction for N seconds". Lazily created,
	// and reset on every inbound/outbound frame (spec.md §4.2
	// "Timers").
	idleTimeout time.Duration
	idleTimer   *time.Timer
}

func newWSEventBridge(upgrader *websocket.Upgrader, w http.ResponseWriter, req *http.Request, queueSize int, maxFrameSize int64, idleTimeout time.Duration) *wsEventBridge {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &wsEventBridge{
		upgrader:     upgrader,
		w:            w,
		req:          req,
		queueSize:    queueSize,
		maxFrameSize: maxFrameSize,
		idleTimeout:  idleTimeout,
	}
}

func (wb *wsEventBridge) receive(ctx context.Context) (Event, error) {
	if !wb.connectSent {
		wb.connectSent = true
		return WebSocketConnectEvent(), nil
	}
	if !wb.upgraded {
		return Event{}, newError(KindAppProtocol, "receive called before websocket.accept", nil)
	}
	select {
	case ev, ok := <-wb.events:
		if !ok {
			return WebSocketDisconnectEvent(1006), nil
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (wb *wsEventBridge) send(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventWebSocketAccept:
		return wb.doUpgrade(ev)
	case EventWebSocketSend:
		if !wb.upgraded {
			return newError(KindAppProtocol, "websocket.send before websocket.accept", nil)
		}
		wb.resetIdle()
		if ev.IsText {
			return wb.conn.WriteMessage(websocket.TextMessage, []byte(ev.Text))
		}
		return wb.conn.WriteMessage(websocket.BinaryMessage, ev.Binary)
	case EventWebSocketClose:
		if !wb.upgraded {
			return nil
		}
		_ = wb.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(ev.Code, ev.Reason), time.Now().Add(5*time.Second))
		return wb.conn.Close()
	}
	return nil
}

func (wb *wsEventBridge) doUpgrade(ev Event) error {
	header := http.Header{}
	for _, kv := range ev.Headers {
		header.Add(httpHeaderCanonical(kv.Name), kv.Value)
	}
	if ev.Subprotocol != "" {
		header.Set("Sec-WebSocket-Protocol", ev.Subprotocol)
	}

	conn, err := wb.upgrader.Upgrade(wb.w, wb.req, header)
	if err != nil {
		return newError(KindClientProtocol, "websocket upgrade failed", err)
	}

	wb.conn = conn
	wb.upgraded = true
	wb.events = make(chan Event, wb.queueSize)
	wb.readPumpDone = make(chan struct{})

	if wb.maxFrameSize > 0 {
		wb.conn.SetReadLimit(wb.maxFrameSize)
	}
	if wb.idleTimeout > 0 {
		wb.idleTimer = time.AfterFunc(wb.idleTimeout, func() {
			wb.closeWithCode(websocket.CloseNormalClosure, "idle timeout")
		})
	}

	go wb.readPump()
	return nil
}

// readPump drains inbound frames into wb.events. It enforces the two DoS
// guards spec.md §4.2/§8 attach to the receive path: a frame beyond
// maxFrameSize (detected via the gorilla read-limit error set by
// SetReadLimit) closes the connection with code 1002 ("protocol error"),
// and a receive queue that the application isn't draining fast enough
// closes with code 1008 ("Policy Violation") rather than stalling forever.
func (wb *wsEventBridge) readPump() {
	defer close(wb.readPumpDone)
	defer close(wb.events)
	for {
		mt, data, err := wb.conn.ReadMessage()
		if err != nil {
			if strings.Contains(err.Error(), "read limit exceeded") {
				wb.closeWithCode(websocket.CloseProtocolError, "frame exceeds max_ws_frame_size")
			}
			return
		}
		wb.resetIdle()

		var ev Event
		switch mt {
		case websocket.TextMessage:
			ev = WebSocketReceiveTextEvent(string(data))
		case websocket.BinaryMessage:
			ev = WebSocketReceiveBinaryEvent(data)
		default:
			continue
		}

		select {
		case wb.events <- ev:
		default:
			wb.closeWithCode(websocket.ClosePolicyViolation, "receive queue exceeds max_receive_queue")
			return
		}
	}
}

// resetIdle pushes the idle-close deadline out by idleTimeout, the
// "reset on the relevant I/O" half of spec.md §4.2/§5's lazy timer
// contract. A no-op when idleTimeout is 0 (timer never created).
func (wb *wsEventBridge) resetIdle() {
	if wb.idleTimer != nil {
		wb.idleTimer.Reset(wb.idleTimeout)
	}
}

// closeWithCode sends a best-effort close control frame with code/reason
// and tears down the connection.
func (wb *wsEventBridge) closeWithCode(code int, reason string) {
	_ = wb.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(5*time.Second))
	_ = wb.conn.Close()
}

func (wb *wsEventBridge) cleanup() {
	if wb.idleTimer != nil {
		wb.idleTimer.Stop()
	}
	if wb.conn != nil {
		_ = wb.conn.Close()
	}
}

// serveSSE drives the Server-Sent-Events path: it builds the sse scope and
// a Receive/Send pair whose Send writes directly to the flusher-backed
// `http.ResponseWriter`.
func (b *netHTTPBridge) serveSSE(w http.ResponseWriter, req *http.Request) {
	s := b.s

	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	httpVersion := "1.1"
	if req.ProtoMajor == 2 {
		httpVersion = "2"
	}

	ss := &SSEScope{
		Path:        req.URL.Path,
		RawPath:     []byte(req.URL.EscapedPath()),
		QueryString: []byte(req.URL.RawQuery),
		Headers:     convertHeaders(req.Header),
		Scheme:      scheme,
		HTTPVersion: httpVersion,
		Client:      req.RemoteAddr,
		Server:      req.Host,
		TLS:         buildTLSInfo(req),
	}

	scope := newSSEScope(ss, s.lifespan.state, PAGIVersion{
		Version:     "1.0",
		SpecVersion: "1.0",
		IsWorker:    s.isWorker,
		WorkerNum:   s.workerNum,
	})

	bridge := newSSEEventBridge(w, req, s.SSEIdleTimeout)
	defer bridge.cleanup()

	if err := s.App(req.Context(), scope, bridge.receive, bridge.send); err != nil {
		s.logErrorf("sse application error: %v", err)
	}
}

// sseEventBridge adapts one SSE response to PAGI's Receive/Send.
type sseEventBridge struct {
	w       http.ResponseWriter
	req     *http.Request
	started bool

	// idleTimeout/idleTimer enforce spec.md §4.2/§5's
	// "sse_idle_timeout: close if no frames flowed ... for N seconds",
	// lazily created and reset on every outbound frame. Firing surfaces
	// as an sse.disconnect from receive, the same way the transport
	// closing does, which ends the scope once the application's App
	// returns.
	idleTimeout time.Duration
	idleTimer   *time.Timer
	timedOut    chan struct{}
}

func newSSEEventBridge(w http.ResponseWriter, req *http.Request, idleTimeout time.Duration) *sseEventBridge {
	sb := &sseEventBridge{w: w, req: req, idleTimeout: idleTimeout}
	if idleTimeout > 0 {
		sb.timedOut = make(chan struct{})
		sb.idleTimer = time.AfterFunc(idleTimeout, func() { close(sb.timedOut) })
	}
	return sb
}

func (sb *sseEventBridge) receive(ctx context.Context) (Event, error) {
	select {
	case <-sb.req.Context().Done():
		return SSEDisconnectEvent(), nil
	case <-sb.timedOutCh():
		return SSEDisconnectEvent(), nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// timedOutCh returns sb.timedOut, or a nil channel (which blocks forever
// in a select) when no idle timeout was configured.
func (sb *sseEventBridge) timedOutCh() <-chan struct{} {
	return sb.timedOut
}

func (sb *sseEventBridge) send(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventSSEResponseStart:
		if sb.started {
			return ErrResponseAlreadyStarted
		}
		for _, kv := range ev.Headers {
			sb.w.Header().Add(httpHeaderCanonical(kv.Name), kv.Value)
		}
		sb.w.WriteHeader(http.StatusOK)
		sb.started = true
		sb.resetIdle()
		return sb.flush()
	case EventSSEResponseBody:
		if !sb.started {
			sb.w.Header().Set("content-type", "text/event-stream")
			sb.w.WriteHeader(http.StatusOK)
			sb.started = true
		}
		writeSSEFrame(sb.w, ev)
		sb.resetIdle()
		return sb.flush()
	}
	return nil
}

// resetIdle pushes the idle-close deadline out by idleTimeout; a no-op
// when idleTimeout is 0 (timer never created).
func (sb *sseEventBridge) resetIdle() {
	if sb.idleTimer != nil {
		sb.idleTimer.Reset(sb.idleTimeout)
	}
}

func (sb *sseEventBridge) cleanup() {
	if sb.idleTimer != nil {
		sb.idleTimer.Stop()
	}
}

func (sb *sseEventBridge) flush() error {
	if f, ok := sb.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// writeSSEFrame renders one SSE event per the text/event-stream wire
// format (W3C Server-Sent Events).
func writeSSEFrame(w http.ResponseWriter, ev Event) {
	if ev.SSEComment != "" {
		fmt.Fprintf(w, ": %s\n\n", ev.SSEComment)
		return
	}
	if ev.SSEEvent != "" {
		fmt.Fprintf(w, "event: %s\n", ev.SSEEvent)
	}
	if ev.SSEID != "" {
		fmt.Fprintf(w, "id: %s\n", ev.SSEID)
	}
	if ev.SSERetryMS > 0 {
		fmt.Fprintf(w, "retry: %d\n", ev.SSERetryMS)
	}
	for _, line := range strings.Split(ev.SSEData, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
