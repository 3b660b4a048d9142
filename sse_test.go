package pagi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSSEStream() (*SSEStream, *[]Event) {
	sent := &[]Event{}
	send := func(ctx context.Context, ev Event) error {
		*sent = append(*sent, ev)
		return nil
	}
	receive := func(ctx context.Context) (Event, error) {
		return SSEDisconnectEvent(), nil
	}
	return newSSEStream(context.Background(), Scope{Type: ScopeSSE}, receive, send), sent
}

func TestSSEStreamStartSetsDefaultContentType(t *testing.T) {
	s, sent := newTestSSEStream()
	err := s.Start(nil)
	assert.NoError(t, err)
	assert.Equal(t, "text/event-stream", (*sent)[0].Headers.Get("content-type"))
}

func TestSSEStreamStartTwiceErrors(t *testing.T) {
	s, _ := newTestSSEStream()
	assert.NoError(t, s.Start(nil))
	assert.Error(t, s.Start(nil))
}

func TestSSEStreamSendEventAutoStarts(t *testing.T) {
	s, sent := newTestSSEStream()
	err := s.SendEvent("payload", "update", "1", 0)
	assert.NoError(t, err)
	assert.Len(t, *sent, 2, "Start then the event frame itself")
	assert.Equal(t, "payload", (*sent)[1].SSEData)
}

func TestSSEStreamWaitForDisconnect(t *testing.T) {
	s, _ := newTestSSEStream()
	err := s.WaitForDisconnect()
	assert.NoError(t, err)
}

func TestSSEStreamCloseSendsFinalFrame(t *testing.T) {
	s, sent := newTestSSEStream()
	_ = s.Start(nil)
	err := s.Close()
	assert.NoError(t, err)
	last := (*sent)[len(*sent)-1]
	assert.False(t, last.More)
}
