package pagi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestWebSocket(events []Event) (*WebSocket, *[]Event) {
	idx := 0
	receive := func(ctx context.Context) (Event, error) {
		if idx >= len(events) {
			return WebSocketDisconnectEvent(1000), nil
		}
		ev := events[idx]
		idx++
		return ev, nil
	}
	sent := &[]Event{}
	send := func(ctx context.Context, ev Event) error {
		*sent = append(*sent, ev)
		return nil
	}
	return newWebSocketWrapper(context.Background(), Scope{Type: ScopeWebSocket}, receive, send), sent
}

func TestWebSocketAcceptTransitionsToConnected(t *testing.T) {
	ws, sent := newTestWebSocket(nil)
	err := ws.Accept("chat", nil)
	assert.NoError(t, err)
	assert.Equal(t, wsConnected, ws.state)
	assert.Equal(t, EventWebSocketAccept, (*sent)[0].Type)
}

func TestWebSocketSendBeforeAcceptErrors(t *testing.T) {
	ws, _ := newTestWebSocket(nil)
	err := ws.SendText("hi")
	assert.Error(t, err)
}

func TestWebSocketReceiveSkipsConnectEvent(t *testing.T) {
	ws, _ := newTestWebSocket([]Event{
		WebSocketConnectEvent(),
		WebSocketReceiveTextEvent("hello"),
	})
	_ = ws.Accept("", nil)

	text, err := ws.ReceiveText()
	assert.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestWebSocketReceiveTextRejectsBinaryFrame(t *testing.T) {
	ws, _ := newTestWebSocket([]Event{WebSocketReceiveBinaryEvent([]byte{1, 2, 3})})
	_ = ws.Accept("", nil)

	_, err := ws.ReceiveText()
	assert.Error(t, err)
}

func TestWebSocketDisconnectTransitionsClosedAndFiresOnClose(t *testing.T) {
	ws, _ := newTestWebSocket([]Event{WebSocketDisconnectEvent(1001)})
	_ = ws.Accept("", nil)

	var closedCode int
	ws.OnClose(func(code int, reason string) { closedCode = code })

	ev, err := ws.Receive()
	assert.NoError(t, err)
	assert.Equal(t, EventWebSocketDisconnect, ev.Type)
	assert.Equal(t, wsClosed, ws.state)
	assert.Equal(t, 1001, closedCode)
}

func TestWebSocketCloseIsIdempotent(t *testing.T) {
	ws, sent := newTestWebSocket(nil)
	_ = ws.Accept("", nil)

	assert.NoError(t, ws.Close(1000, "bye"))
	assert.NoError(t, ws.Close(1000, "bye again"))
	assert.Len(t, *sent, 2, "accept + one close event; the second Close must be a no-op")
}
