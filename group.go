package pagi

import "strings"

// Group is a path-prefixed, middleware-scoped view onto a `Router`,
// grounded on `air.Air.Group` but flattening to plain `Router.Handle` calls
// instead of a nested routing structure, so that group-registered and
// directly-registered routes are matched by the exact same registration-
// order pass (spec.md §4.4 "Group-flattening equivalence").
type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

// Use appends middleware(s) applied to every route subsequently registered
// on g.
func (g *Group) Use(mw ...Middleware) {
	g.middlewares = append(g.middlewares, mw...)
}

// Handle registers h for method and pattern under g's prefix, wrapped in
// g's middlewares (applied after the router's own) then the router's.
func (g *Group) Handle(method, pattern string, h Handler, name ...string) *Group {
	full := g.prefix + pattern
	if full == "" {
		full = "/"
	}

	wrapped := h
	for i := len(g.middlewares) - 1; i >= 0; i-- {
		wrapped = g.middlewares[i](wrapped)
	}

	g.router.Handle(method, full, wrapped, name...)
	return g
}

func (g *Group) GET(pattern string, h Handler, name ...string) *Group {
	return g.Handle("GET", pattern, h, name...)
}
func (g *Group) POST(pattern string, h Handler, name ...string) *Group {
	return g.Handle("POST", pattern, h, name...)
}
func (g *Group) PUT(pattern string, h Handler, name ...string) *Group {
	return g.Handle("PUT", pattern, h, name...)
}
func (g *Group) PATCH(pattern string, h Handler, name ...string) *Group {
	return g.Handle("PATCH", pattern, h, name...)
}
func (g *Group) DELETE(pattern string, h Handler, name ...string) *Group {
	return g.Handle("DELETE", pattern, h, name...)
}
func (g *Group) HEAD(pattern string, h Handler, name ...string) *Group {
	return g.Handle("HEAD", pattern, h, name...)
}
func (g *Group) WS(pattern string, h Handler, name ...string) *Group {
	return g.Handle("WS", pattern, h, name...)
}
func (g *Group) SSE(pattern string, h Handler, name ...string) *Group {
	return g.Handle("SSE", pattern, h, name...)
}

// Any registers h against the method wildcard `*` (spec.md §4.4), matching
// every method and never contributing to a 405 `Allow` header.
func (g *Group) Any(pattern string, h Handler, name ...string) *Group {
	return g.Handle("*", pattern, h, name...)
}

// Group returns a nested group whose prefix and middlewares compose with
// g's own.
func (g *Group) Group(prefix string, mw ...Middleware) *Group {
	return &Group{
		router:      g.router,
		prefix:      g.prefix + strings.TrimRight(prefix, "/"),
		middlewares: append(append([]Middleware{}, g.middlewares...), mw...),
	}
}
