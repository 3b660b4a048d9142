package pagi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersGetCaseInsensitive(t *testing.T) {
	h := Headers{{Name: "content-type", Value: "text/plain"}}
	assert.Equal(t, "text/plain", h.Get("Content-Type"))
	assert.Equal(t, "", h.Get("x-missing"))
}

func TestHeadersValuesReturnsAllMatches(t *testing.T) {
	h := Headers{
		{Name: "set-cookie", Value: "a=1"},
		{Name: "set-cookie", Value: "b=2"},
		{Name: "content-type", Value: "text/plain"},
	}
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
}

func TestWebSocketCloseEventDefaultsCode(t *testing.T) {
	ev := WebSocketCloseEvent(0, "bye")
	assert.Equal(t, 1000, ev.Code)
	assert.Equal(t, "bye", ev.Reason)
}

func TestResponseBodyEventCarriesMoreFlag(t *testing.T) {
	ev := ResponseBodyEvent([]byte("chunk"), true)
	assert.Equal(t, EventHTTPResponseBody, ev.Type)
	assert.True(t, ev.More)
	assert.Nil(t, ev.File)
	assert.Nil(t, ev.FH)
}

func TestSSEResponseBodyEventFields(t *testing.T) {
	ev := SSEResponseBodyEvent("payload", "update", "42", 3000, "", true)
	assert.Equal(t, "payload", ev.SSEData)
	assert.Equal(t, "update", ev.SSEEvent)
	assert.Equal(t, "42", ev.SSEID)
	assert.Equal(t, 3000, ev.SSERetryMS)
}
