package pagi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupRegistersUnderPrefix(t *testing.T) {
	r := NewRouter()
	g := r.Group("/api")
	g.GET("/ping", func(req *Request, res *Response) error { return res.Empty() })

	_, _, _, err := r.routeScope(newScopeFor("GET", "/api/ping"))
	assert.NoError(t, err)
}

func TestNestedGroupComposesPrefixAndMiddleware(t *testing.T) {
	var order []string
	mw := func(label string) Middleware {
		return func(next Handler) Handler {
			return func(req *Request, res *Response) error {
				order = append(order, label)
				return next(req, res)
			}
		}
	}

	r := NewRouter()
	api := r.Group("/api", mw("api"))
	v1 := api.Group("/v1", mw("v1"))
	v1.GET("/ping", func(req *Request, res *Response) error {
		order = append(order, "handler")
		return res.Empty()
	})

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("GET", "/api/v1/ping"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, []string{"api", "v1", "handler"}, order)
}

func TestGroupVerbHelpersRegisterAllMethods(t *testing.T) {
	r := NewRouter()
	g := r.Group("/things")
	noop := func(req *Request, res *Response) error { return res.Empty() }

	g.GET("/", noop)
	g.POST("/", noop)
	g.PUT("/", noop)
	g.PATCH("/", noop)
	g.DELETE("/", noop)
	g.HEAD("/", noop)
	g.WS("/socket", noop)
	g.SSE("/stream", noop)

	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"} {
		_, _, _, err := r.routeScope(newScopeFor(m, "/things/"))
		assert.NoError(t, err, m)
	}
}
