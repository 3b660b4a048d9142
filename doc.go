/*
Package pagi implements PAGI, an asynchronous gateway interface that decouples
a network server from the application code it serves, in the spirit of ASGI.

Protocol

A PAGI application is any value satisfying the `App` type:

	func(ctx context.Context, scope Scope, receive Receive, send Send) error

The server constructs a `Scope` for every connection or stream (an HTTP
request, a WebSocket session, an SSE stream, or the process lifespan),
and hands it to the application together with a `receive` function that
yields one `Event` at a time and a `send` function that accepts one.

Router

A `Router` dispatches an `HTTPScope` to a registered `Handler`:

	r := pagi.NewRouter()
	r.GET("/users/:id", func(req *pagi.Request, res *pagi.Response) error {
		id := req.Param("id")
		return res.JSON(map[string]any{"user_id": id})
	})

The path may consist of STATIC segments, PARAM segments (":name" or
"{name}", optionally constrained with "{name:pattern}"), and a single
trailing ANY segment ("*name"). Route params are reachable through
`Request.Param`.

Server

`Server` owns the listening socket(s), the optional TLS context, the
lifespan manager, and — in multi-worker mode — the worker supervisor. It
speaks HTTP/1.1, HTTP/2, WebSocket and SSE over one transport and
translates bytes into the event streams described above.
*/
package pagi
