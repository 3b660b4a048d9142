package pagi

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestResponse() (*Response, *[]Event) {
	sent := &[]Event{}
	send := func(ctx context.Context, ev Event) error {
		*sent = append(*sent, ev)
		return nil
	}
	return newResponse(context.Background(), send), sent
}

func TestResponseEndRefusesDoubleSend(t *testing.T) {
	res, _ := newTestResponse()
	assert.NoError(t, res.End([]byte("first")))
	err := res.End([]byte("second"))
	assert.Equal(t, ErrResponseAlreadyStarted, err)
}

func TestResponseWriteHeaderThenWriteDoesNotResendStart(t *testing.T) {
	res, sent := newTestResponse()
	assert.NoError(t, res.WriteHeader(201))
	_, err := res.Write([]byte("body"))
	assert.NoError(t, err)
	assert.Len(t, *sent, 2)
	assert.Equal(t, EventHTTPResponseStart, (*sent)[0].Type)
	assert.Equal(t, 201, (*sent)[0].Status)
	assert.Equal(t, EventHTTPResponseBody, (*sent)[1].Type)
}

func TestResponseWriteHeaderTwiceErrors(t *testing.T) {
	res, _ := newTestResponse()
	assert.NoError(t, res.WriteHeader(200))
	err := res.WriteHeader(201)
	assert.Equal(t, ErrResponseAlreadyStarted, err)
}

func TestResponseJSONSetsContentType(t *testing.T) {
	res, sent := newTestResponse()
	err := res.JSON(map[string]int{"a": 1})
	assert.NoError(t, err)
	assert.Equal(t, "application/json; charset=utf-8", (*sent)[0].Headers.Get("content-type"))
}

func TestResponseRedirectSetsLocationAndStatus(t *testing.T) {
	res, sent := newTestResponse()
	err := res.Redirect("/new-place", 0)
	assert.NoError(t, err)
	assert.Equal(t, 302, (*sent)[0].Status)
	assert.Equal(t, "/new-place", (*sent)[0].Headers.Get("location"))
}

func TestResponseStreamSendsFinalChunk(t *testing.T) {
	res, sent := newTestResponse()
	err := res.Stream(func(w io.Writer) error {
		_, werr := w.Write([]byte("chunk"))
		return werr
	})
	assert.NoError(t, err)
	last := (*sent)[len(*sent)-1]
	assert.False(t, last.More)
}

func TestResponseBackgroundTasksRunAfterResponse(t *testing.T) {
	res, _ := newTestResponse()
	ran := make(chan struct{}, 1)
	res.AddBackgroundTask(func(ctx context.Context) { ran <- struct{}{} })
	res.runBackgroundTasks(context.Background())
	select {
	case <-ran:
	default:
		t.Fatal("background task did not run")
	}
}
