package pagi

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRequest(scope Scope, chunks []Event) *Request {
	idx := 0
	receive := func(ctx context.Context) (Event, error) {
		if idx >= len(chunks) {
			return HTTPDisconnectEvent(), nil
		}
		ev := chunks[idx]
		idx++
		return ev, nil
	}
	return newRequest(context.Background(), scope, receive, nil)
}

func TestRequestBodyBytesConcatenatesChunks(t *testing.T) {
	scope := newScopeFor("POST", "/echo")
	req := newTestRequest(scope, []Event{
		HTTPRequestEvent([]byte("hello "), true),
		HTTPRequestEvent([]byte("world"), false),
	})

	b, err := req.BodyBytes()
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(b))
}

func TestRequestBodyBytesIsIdempotent(t *testing.T) {
	scope := newScopeFor("POST", "/echo")
	req := newTestRequest(scope, []Event{HTTPRequestEvent([]byte("once"), false)})

	b1, _ := req.BodyBytes()
	b2, _ := req.BodyBytes()
	assert.Equal(t, b1, b2)
}

func TestRequestBodyReaderReadsViaIOReader(t *testing.T) {
	scope := newScopeFor("POST", "/echo")
	req := newTestRequest(scope, []Event{HTTPRequestEvent([]byte("stream me"), false)})

	b, err := io.ReadAll(req.Body())
	assert.NoError(t, err)
	assert.Equal(t, "stream me", string(b))
}

func TestRequestQueryParsedLazily(t *testing.T) {
	scope := Scope{Type: ScopeHTTP, HTTP: &HTTPScope{Method: "GET", Path: "/search", QueryString: []byte("q=go&page=2")}}
	req := newTestRequest(scope, nil)

	q := req.Query()
	assert.Equal(t, "go", q.Get("q"))
	assert.Equal(t, "2", q.Get("page"))
}

func TestRequestCookiesFromHeader(t *testing.T) {
	scope := Scope{
		Type: ScopeHTTP,
		HTTP: &HTTPScope{
			Method:  "GET",
			Path:    "/",
			Headers: Headers{{Name: "cookie", Value: "session=xyz"}},
		},
	}
	req := newTestRequest(scope, nil)
	assert.Equal(t, "xyz", req.Cookie("session"))
}

func TestRequestParamReturnsPathCapture(t *testing.T) {
	scope := newScopeFor("GET", "/users/7")
	scope.PathParams = map[string]string{"id": "7"}
	req := newTestRequest(scope, nil)
	assert.Equal(t, "7", req.Param("id"))
	assert.Equal(t, "", req.Param("missing"))
}

func TestRequestStashLazilyAllocates(t *testing.T) {
	req := newTestRequest(newScopeFor("GET", "/"), nil)
	req.Stash()["k"] = "v"
	assert.Equal(t, "v", req.Stash()["k"])
}

func TestRequestWebSocketOnWrongScopeErrors(t *testing.T) {
	req := newTestRequest(newScopeFor("GET", "/"), nil)
	_, err := req.WebSocket()
	assert.Error(t, err)
}
