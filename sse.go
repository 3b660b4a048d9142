package pagi

import (
	"context"
	"encoding/json"
)

// SSEStream is the convenience wrapper of spec.md §4.6 over the raw sse.*
// event stream: `start`, `send_event`/`send_json`, and
// `wait_for_disconnect`.
type SSEStream struct {
	ctx     context.Context
	scope   Scope
	receive Receive
	send    Send

	started bool
}

// newSSEStream returns an unstarted `SSEStream` over scope.
func newSSEStream(ctx context.Context, scope Scope, receive Receive, send Send) *SSEStream {
	return &SSEStream{ctx: ctx, scope: scope, receive: receive, send: send}
}

// Start sends the `sse.response.start` event with headers (Content-Type is
// set to text/event-stream automatically if absent).
func (s *SSEStream) Start(headers Headers) error {
	if s.started {
		return ErrResponseAlreadyStarted
	}
	if headers.Get("content-type") == "" {
		headers = append(headers, Header{Name: "content-type", Value: "text/event-stream"})
	}
	if err := s.send(s.ctx, SSEResponseStartEvent(headers)); err != nil {
		return err
	}
	s.started = true
	return nil
}

// SendEvent sends one SSE frame. event, id, and retryMS are optional (pass
// "", "", 0 to omit them).
func (s *SSEStream) SendEvent(data, event, id string, retryMS int) error {
	if !s.started {
		if err := s.Start(nil); err != nil {
			return err
		}
	}
	return s.send(s.ctx, SSEResponseBodyEvent(data, event, id, retryMS, "", true))
}

// SendJSON marshals v and sends it as an SSE frame's data field.
func (s *SSEStream) SendJSON(v interface{}, event, id string) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SendEvent(string(b), event, id, 0)
}

// Comment sends a keepalive comment frame (a line starting with ":"),
// invisible to the EventSource API but sufficient to keep intermediaries
// from timing out an idle stream.
func (s *SSEStream) Comment(text string) error {
	if !s.started {
		if err := s.Start(nil); err != nil {
			return err
		}
	}
	return s.send(s.ctx, SSEResponseBodyEvent("", "", "", 0, text, true))
}

// WaitForDisconnect blocks until the client disconnects or ctx is done,
// returning nil on disconnect and an error otherwise.
func (s *SSEStream) WaitForDisconnect() error {
	for {
		ev, err := s.receive(s.ctx)
		if err != nil {
			return err
		}
		if ev.Type == EventSSEDisconnect {
			return nil
		}
	}
}

// Close sends the final `sse.response.body` event with more=false, ending
// the stream.
func (s *SSEStream) Close() error {
	return s.send(s.ctx, SSEResponseBodyEvent("", "", "", 0, "", false))
}
