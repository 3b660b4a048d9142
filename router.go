package pagi

import (
	"context"
	"sort"
	"strings"
)

// Middleware wraps a `Handler` to produce another `Handler`, the
// composition unit of spec.md §4.4 "Middleware composition model":
// `func(next Handler) Handler`, applied innermost-last the way `air.Gas`
// chains its `GasFunc`s.
type Middleware func(Handler) Handler

// Router is the path/method dispatch core of spec.md §4.4. Routes are
// matched in registration order — the first matching route, including any
// route contributed by a mounted sub-router, wins — rather than by the
// longest-prefix radix match `air.router` performs, because named
// constraints make "longest prefix" ambiguous (spec.md §4.4 "registration
// order", a deliberate departure from the teacher's tree).
type Router struct {
	routes      []*route
	named       map[string]*route
	middlewares []Middleware

	notFound         Handler
	methodNotAllowed Handler
}

// NewRouter returns an empty `Router`.
func NewRouter() *Router {
	return &Router{named: map[string]*route{}}
}

// Use appends middleware(s) applied to every route subsequently registered
// directly on r (not retroactively, and not to routes already registered),
// mirroring `air.Air.Use`'s application-order semantics translated to a
// composition-based model.
func (r *Router) Use(mw ...Middleware) {
	r.middlewares = append(r.middlewares, mw...)
}

// Handle registers h for method and pattern, wrapped in every middleware
// registered on r so far. name, if non-empty, makes the route resolvable by
// `URIFor`.
func (r *Router) Handle(method, pattern string, h Handler, name ...string) *Router {
	segments, err := compilePattern(pattern)
	if err != nil {
		panic(err)
	}

	wrapped := h
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}

	methods, wildcard := parseMethods(method)
	rt := &route{methods: methods, wildcard: wildcard, pattern: pattern, segments: segments, handler: wrapped}
	if len(name) > 0 && name[0] != "" {
		rt.name = name[0]
		r.named[rt.name] = rt
	}
	r.routes = append(r.routes, rt)
	return r
}

// Any registers h against the method wildcard `*`, matching every method
// and never contributing to a 405 `Allow` header (spec.md §4.4).
func (r *Router) Any(pattern string, h Handler, name ...string) *Router {
	return r.Handle("*", pattern, h, name...)
}

// GET, POST, PUT, PATCH, DELETE, and HEAD register h for the respective
// method, matching `air.Air`'s one-verb-per-method convenience surface.
func (r *Router) GET(pattern string, h Handler, name ...string) *Router {
	return r.Handle("GET", pattern, h, name...)
}
func (r *Router) POST(pattern string, h Handler, name ...string) *Router {
	return r.Handle("POST", pattern, h, name...)
}
func (r *Router) PUT(pattern string, h Handler, name ...string) *Router {
	return r.Handle("PUT", pattern, h, name...)
}
func (r *Router) PATCH(pattern string, h Handler, name ...string) *Router {
	return r.Handle("PATCH", pattern, h, name...)
}
func (r *Router) DELETE(pattern string, h Handler, name ...string) *Router {
	return r.Handle("DELETE", pattern, h, name...)
}
func (r *Router) HEAD(pattern string, h Handler, name ...string) *Router {
	return r.Handle("HEAD", pattern, h, name...)
}

// WS registers a WebSocket handler bound to pattern. It is stored and
// matched exactly like an HTTP route; the scope Type distinguishes it at
// dispatch time (spec.md §3.3 "A websocket scope is routed like an http
// scope").
func (r *Router) WS(pattern string, h Handler, name ...string) *Router {
	return r.Handle("WS", pattern, h, name...)
}

// SSE registers a Server-Sent-Events handler bound to pattern.
func (r *Router) SSE(pattern string, h Handler, name ...string) *Router {
	return r.Handle("SSE", pattern, h, name...)
}

// Group returns a `Group` that prefixes every route it registers with
// prefix and applies mw ahead of any middleware registered directly on the
// group, flattening to the same composed `Handler` a direct `Router.Handle`
// call under that prefix would produce (spec.md §4.4 "Group-flattening
// equivalence").
func (r *Router) Group(prefix string, mw ...Middleware) *Group {
	return &Group{router: r, prefix: strings.TrimRight(prefix, "/"), middlewares: mw}
}

// Mount attaches sub at prefix: every route registered on sub is exposed on
// r as if it had been registered directly with prefix prepended to its
// pattern. The handler sees the full path with prefix still in it, and the
// scope's RootPath is not set.
func (r *Router) Mount(prefix string, sub *Router) {
	prefix = strings.TrimRight(prefix, "/")
	for _, sr := range sub.routes {
		pattern := prefix + sr.pattern
		if pattern == "" {
			pattern = "/"
		}
		segments, err := compilePattern(pattern)
		if err != nil {
			panic(err)
		}
		mounted := &route{methods: sr.methods, wildcard: sr.wildcard, pattern: pattern, segments: segments, handler: sr.handler, name: sr.name}
		r.routes = append(r.routes, mounted)
		if mounted.name != "" {
			r.named[mounted.name] = mounted
		}
	}
}

// NotFound overrides the handler invoked when no route matches.
func (r *Router) NotFound(h Handler) { r.notFound = h }

// MethodNotAllowed overrides the handler invoked when a path matches but no
// route registers the request method.
func (r *Router) MethodNotAllowed(h Handler) { r.methodNotAllowed = h }

// URIFor renders the URI of the named route with params substituted, per
// spec.md §4.4 "named-route reverse generation".
func (r *Router) URIFor(name string, params map[string]string) (string, error) {
	rt, ok := r.named[name]
	if !ok {
		return "", newError(KindConfiguration, "no such named route: "+name, nil)
	}
	return rt.uriFor(params)
}

// dispatchMethod maps a scope to the method key used for route matching.
func dispatchMethod(scope Scope) string {
	switch scope.Type {
	case ScopeHTTP:
		return scope.HTTP.Method
	case ScopeWebSocket:
		return "WS"
	case ScopeSSE:
		return "SSE"
	}
	return ""
}

// dispatchPath maps a scope to the path used for route matching.
func dispatchPath(scope Scope) string {
	switch scope.Type {
	case ScopeHTTP:
		return scope.HTTP.Path
	case ScopeWebSocket:
		return scope.WebSocket.Path
	case ScopeSSE:
		return scope.SSE.Path
	}
	return ""
}

// route finds the first registered route matching scope, in registration
// order. It returns ErrNotFound when no pattern matches the path at all,
// and ErrMethodNotAllowed when a pattern matches the path but not under the
// scope's method — in which case allowed carries the union of methods
// accepted by every path-matching non-wildcard route (spec.md §4.4 "emit
// 405 with `Allow` = union of allowed methods across all path-matching
// non-wildcard routes"), for the caller to render as the `Allow` header.
//
// A bare HTTP HEAD request that matches no HEAD route but does match a GET
// route on the same path dispatches to that GET route's handler (spec.md
// §4.4 "HEAD falls back to GET"); the transport layer is responsible for
// suppressing the response body.
func (r *Router) routeScope(scope Scope) (*route, map[string]string, []string, error) {
	path := dispatchPath(scope)
	method := dispatchMethod(scope)

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if path == "/" || path == "" {
		parts = []string{}
	}

	pathMatched := false
	allowed := map[string]bool{}
	var headRoute *route
	var headParams map[string]string

	for _, rt := range r.routes {
		params, ok := rt.match(parts)
		if !ok {
			continue
		}
		pathMatched = true
		if !rt.wildcard {
			for m := range rt.methods {
				allowed[m] = true
			}
		}
		if rt.matchesMethod(method) {
			return rt, params, nil, nil
		}
		if method == "HEAD" && headRoute == nil && rt.matchesMethod("GET") {
			headRoute = rt
			headParams = params
		}
	}

	if headRoute != nil {
		return headRoute, headParams, nil, nil
	}

	if pathMatched {
		return nil, nil, sortedAllowedMethods(allowed), ErrMethodNotAllowed
	}
	return nil, nil, nil, ErrNotFound
}

// sortedAllowedMethods renders the set of allowed methods in a stable,
// sorted order for a deterministic `Allow` header.
func sortedAllowedMethods(allowed map[string]bool) []string {
	methods := make([]string, 0, len(allowed))
	for m := range allowed {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// ServeScope adapts Router to the `App` contract: for an http/websocket/sse
// scope it matches a route, builds a `Request`/`Response`, and invokes the
// matched `Handler`; for a lifespan scope it declines support by returning
// ErrLifespanUnsupported, since route handlers have no lifespan hook of
// their own (a full application wanting lifespan support composes a custom
// `App` around the router instead — spec.md §3.7).
func (r *Router) ServeScope(ctx context.Context, scope Scope, receive Receive, send Send) error {
	if scope.Type == ScopeLifespan {
		return ErrLifespanUnsupported
	}

	rt, params, allowed, err := r.routeScope(scope)
	if err != nil {
		return r.serveRouteError(ctx, scope, receive, send, err, allowed)
	}

	scope.PathParams = params
	scope.RouteName = rt.name

	req := newRequest(ctx, scope, receive, send)
	res := newResponse(ctx, send)
	defer res.runBackgroundTasks(ctx)
	return rt.handler(req, res)
}

// serveRouteError invokes the configured NotFound/MethodNotAllowed handler,
// or sends a bare status line if none was configured. On a 405, allowed
// (the union of methods collected by routeScope) is always rendered as the
// `Allow` header, whether or not a custom MethodNotAllowed handler runs, so
// that overriding the handler can never drop the header spec.md §4.4 and
// §8 require.
func (r *Router) serveRouteError(ctx context.Context, scope Scope, receive Receive, send Send, routeErr error, allowed []string) error {
	req := newRequest(ctx, scope, receive, send)
	res := newResponse(ctx, send)
	defer res.runBackgroundTasks(ctx)

	var h Handler
	var status int
	if routeErr == ErrMethodNotAllowed {
		h, status = r.methodNotAllowed, 405
		if len(allowed) > 0 {
			res.Header = append(res.Header, Header{Name: "allow", Value: strings.Join(allowed, ", ")})
		}
	} else {
		h, status = r.notFound, 404
	}

	if h != nil {
		return h(req, res)
	}
	res.Status = status
	return res.End(nil)
}
