package pagi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newScopeFor(method, path string) Scope {
	return Scope{
		Type: ScopeHTTP,
		HTTP: &HTTPScope{Method: method, Path: path},
	}
}

func noopReceive(context.Context) (Event, error) { return Event{}, nil }

func collectingSend(events *[]Event) Send {
	return func(_ context.Context, e Event) error {
		*events = append(*events, e)
		return nil
	}
}

func TestRouterDispatchesFirstRegistrationOrderMatch(t *testing.T) {
	r := NewRouter()
	var hit string
	r.GET("/users/:id", func(req *Request, res *Response) error {
		hit = "param"
		return res.Empty()
	})
	r.GET("/users/me", func(req *Request, res *Response) error {
		hit = "static"
		return res.Empty()
	})

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("GET", "/users/me"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, "param", hit, "registration-order matching must pick the first route that matches, even if a later one is a more specific static match")
}

func TestRouterMethodNotAllowedWhenPathMatchesDifferentMethod(t *testing.T) {
	r := NewRouter()
	r.GET("/widgets", func(req *Request, res *Response) error { return res.Empty() })

	rt, _, allowed, err := r.routeScope(newScopeFor("POST", "/widgets"))
	assert.Nil(t, rt)
	assert.Equal(t, ErrMethodNotAllowed, err)
	assert.Equal(t, []string{"GET"}, allowed)
}

func TestRouterMethodNotAllowedSetsAllowHeaderUnionAcrossRoutes(t *testing.T) {
	r := NewRouter()
	r.GET("/widgets", func(req *Request, res *Response) error { return res.Empty() })
	r.POST("/widgets", func(req *Request, res *Response) error { return res.Empty() })
	r.Any("/gadgets", func(req *Request, res *Response) error { return res.Empty() })

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("DELETE", "/widgets"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, 405, events[0].Status)
	allow := events[0].Headers.Get("allow")
	assert.Contains(t, allow, "GET")
	assert.Contains(t, allow, "POST")
}

func TestRouterCustomMethodNotAllowedHandlerStillGetsAllowHeader(t *testing.T) {
	r := NewRouter()
	r.GET("/users/:id", func(req *Request, res *Response) error { return res.Empty() })
	r.MethodNotAllowed(func(req *Request, res *Response) error {
		res.Status = 405
		return res.Text("nope")
	})

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("DELETE", "/users/42"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, "GET", events[0].Headers.Get("allow"))
}

func TestRouterHeadFallsBackToGet(t *testing.T) {
	r := NewRouter()
	var hit string
	r.GET("/users/:id", func(req *Request, res *Response) error {
		hit = "get"
		return res.Empty()
	})

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("HEAD", "/users/42"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, "get", hit)
}

func TestRouterExplicitHeadRouteTakesPrecedenceOverFallback(t *testing.T) {
	r := NewRouter()
	var hit string
	r.HEAD("/users/:id", func(req *Request, res *Response) error {
		hit = "head"
		return res.Empty()
	})
	r.GET("/users/:id", func(req *Request, res *Response) error {
		hit = "get"
		return res.Empty()
	})

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("HEAD", "/users/42"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, "head", hit)
}

func TestRouterAnyWildcardMatchesEveryMethodAndExcludedFromAllow(t *testing.T) {
	r := NewRouter()
	r.GET("/only-get", func(req *Request, res *Response) error { return res.Empty() })
	r.Any("/wild", func(req *Request, res *Response) error { return res.Empty() })

	for _, m := range []string{"GET", "POST", "DELETE", "PATCH"} {
		rt, _, _, err := r.routeScope(newScopeFor(m, "/wild"))
		assert.NoError(t, err, m)
		assert.NotNil(t, rt, m)
	}

	_, _, allowed, err := r.routeScope(newScopeFor("POST", "/only-get"))
	assert.Equal(t, ErrMethodNotAllowed, err)
	assert.Equal(t, []string{"GET"}, allowed)
}

func TestRouterNotFoundWhenNoPathMatches(t *testing.T) {
	r := NewRouter()
	r.GET("/widgets", func(req *Request, res *Response) error { return res.Empty() })

	rt, _, _, err := r.routeScope(newScopeFor("GET", "/gadgets"))
	assert.Nil(t, rt)
	assert.Equal(t, ErrNotFound, err)
}

func TestRouterURIForNamedRoute(t *testing.T) {
	r := NewRouter()
	r.GET("/users/:id", func(req *Request, res *Response) error { return res.Empty() }, "user_show")

	uri, err := r.URIFor("user_show", map[string]string{"id": "9"})
	assert.NoError(t, err)
	assert.Equal(t, "/users/9", uri)
}

func TestRouterMountPrependsPrefixAndKeepsName(t *testing.T) {
	sub := NewRouter()
	sub.GET("/ping", func(req *Request, res *Response) error { return res.Empty() }, "ping")

	r := NewRouter()
	r.Mount("/api", sub)

	rt, _, _, err := r.routeScope(newScopeFor("GET", "/api/ping"))
	assert.NoError(t, err)
	assert.NotNil(t, rt)

	uri, err := r.URIFor("ping", nil)
	assert.NoError(t, err)
	assert.Equal(t, "/api/ping", uri)
}

func TestGroupFlatteningEquivalentToDirectRegistration(t *testing.T) {
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
	r.Use(mw("router"))
	g := r.Group("/admin", mw("group"))
	g.GET("/users", func(req *Request, res *Response) error {
		order = append(order, "handler")
		return res.Empty()
	})

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("GET", "/admin/users"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, []string{"router", "group", "handler"}, order)
}

func TestRouterUsesCustomNotFoundHandler(t *testing.T) {
	r := NewRouter()
	r.NotFound(func(req *Request, res *Response) error {
		res.Status = 404
		return res.Text("nope")
	})

	var events []Event
	err := r.ServeScope(context.Background(), newScopeFor("GET", "/missing"), noopReceive, collectingSend(&events))
	assert.NoError(t, err)
	assert.Equal(t, EventHTTPResponseStart, events[0].Type)
	assert.Equal(t, 404, events[0].Status)
}

func TestRouterServeScopeDeclinesLifespan(t *testing.T) {
	r := NewRouter()
	err := r.ServeScope(context.Background(), Scope{Type: ScopeLifespan}, noopReceive, func(context.Context, Event) error { return nil })
	assert.Equal(t, ErrLifespanUnsupported, err)
}
