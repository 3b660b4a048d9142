package pagi

import (
	"context"
	"encoding/json"
)

// wsState is the lifecycle of a `WebSocket` wrapper, spec.md §4.6
// "tracks a state connecting → connected → closed".
type wsState uint8

const (
	wsConnecting wsState = iota
	wsConnected
	wsClosed
)

// WebSocket is the convenience wrapper of spec.md §4.6 over the raw
// websocket.* event stream, grounded on `air.WebSocket`'s callback-handler
// surface but adapted to PAGI's pull-based Receive rather than a
// push-based handler table.
type WebSocket struct {
	ctx     context.Context
	scope   Scope
	receive Receive
	send    Send

	state      wsState
	onClose    []func(code int, reason string)
}

// newWebSocketWrapper returns an unaccepted `WebSocket` over scope.
func newWebSocketWrapper(ctx context.Context, scope Scope, receive Receive, send Send) *WebSocket {
	return &WebSocket{ctx: ctx, scope: scope, receive: receive, send: send, state: wsConnecting}
}

// Accept completes the handshake, optionally negotiating subprotocol and
// sending extra headers. It must be called before any Send*/Receive* call.
func (ws *WebSocket) Accept(subprotocol string, headers Headers) error {
	if ws.state != wsConnecting {
		return newError(KindAppProtocol, "websocket already accepted", nil)
	}
	if err := ws.send(ws.ctx, WebSocketAcceptEvent(subprotocol, headers)); err != nil {
		return err
	}
	ws.state = wsConnected
	return nil
}

// SendText sends a text frame.
func (ws *WebSocket) SendText(text string) error {
	if ws.state != wsConnected {
		return newError(KindAppProtocol, "websocket not connected", nil)
	}
	return ws.send(ws.ctx, WebSocketSendTextEvent(text))
}

// SendBytes sends a binary frame.
func (ws *WebSocket) SendBytes(b []byte) error {
	if ws.state != wsConnected {
		return newError(KindAppProtocol, "websocket not connected", nil)
	}
	return ws.send(ws.ctx, WebSocketSendBinaryEvent(b))
}

// SendJSON marshals v and sends it as a text frame.
func (ws *WebSocket) SendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.SendText(string(b))
}

// Receive blocks for the next inbound event (text, binary, or disconnect).
// A `websocket.disconnect` event returns io-style through the returned
// Event with Type EventWebSocketDisconnect; callers normally check that
// before reading Text/Binary.
func (ws *WebSocket) Receive() (Event, error) {
	for {
		ev, err := ws.receive(ws.ctx)
		if err != nil {
			return Event{}, err
		}
		switch ev.Type {
		case EventWebSocketConnect:
			continue
		case EventWebSocketDisconnect:
			ws.transitionClosed(ev.Code, "")
			return ev, nil
		case EventWebSocketReceive:
			return ev, nil
		}
	}
}

// ReceiveText blocks for the next text frame, erroring if a binary frame or
// a disconnect arrives instead.
func (ws *WebSocket) ReceiveText() (string, error) {
	ev, err := ws.Receive()
	if err != nil {
		return "", err
	}
	if ev.Type == EventWebSocketDisconnect {
		return "", newError(KindTransport, "websocket disconnected", nil)
	}
	if !ev.IsText {
		return "", newError(KindAppProtocol, "expected a text frame, got binary", nil)
	}
	return ev.Text, nil
}

// ReceiveBytes blocks for the next binary frame, erroring if a text frame
// or a disconnect arrives instead.
func (ws *WebSocket) ReceiveBytes() ([]byte, error) {
	ev, err := ws.Receive()
	if err != nil {
		return nil, err
	}
	if ev.Type == EventWebSocketDisconnect {
		return nil, newError(KindTransport, "websocket disconnected", nil)
	}
	if ev.IsText {
		return nil, newError(KindAppProtocol, "expected a binary frame, got text", nil)
	}
	return ev.Binary, nil
}

// ReceiveJSON blocks for the next text frame and unmarshals it as JSON
// into v.
func (ws *WebSocket) ReceiveJSON(v interface{}) error {
	text, err := ws.ReceiveText()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(text), v)
}

// EachText calls fn for every inbound text frame until the peer
// disconnects or fn returns an error, mirroring spec.md §4.6's
// "each_* iteration helpers".
func (ws *WebSocket) EachText(fn func(string) error) error {
	for {
		text, err := ws.ReceiveText()
		if err != nil {
			return err
		}
		if err := fn(text); err != nil {
			return err
		}
	}
}

// EachBytes calls fn for every inbound binary frame until the peer
// disconnects or fn returns an error.
func (ws *WebSocket) EachBytes(fn func([]byte) error) error {
	for {
		b, err := ws.ReceiveBytes()
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
}

// OnClose registers fn to run when the connection transitions to closed,
// whether by Close or by a `websocket.disconnect` event observed through
// Receive.
func (ws *WebSocket) OnClose(fn func(code int, reason string)) {
	ws.onClose = append(ws.onClose, fn)
}

// Close sends a `websocket.close` event with code/reason and transitions
// ws to closed. code defaults to 1000 if 0.
func (ws *WebSocket) Close(code int, reason string) error {
	if ws.state == wsClosed {
		return nil
	}
	err := ws.send(ws.ctx, WebSocketCloseEvent(code, reason))
	ws.transitionClosed(code, reason)
	return err
}

func (ws *WebSocket) transitionClosed(code int, reason string) {
	if ws.state == wsClosed {
		return
	}
	ws.state = wsClosed
	for _, fn := range ws.onClose {
		fn(code, reason)
	}
}
