package pagi

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// connKey is the `http.Server.ConnContext` key under which the owning
// `*Connection` is stashed, so `serveHTTP` can look it up without a second
// net.Conn-keyed map.
type connKey struct{}

// netHTTPBridge adapts `net/http` (HTTP/1.1, HTTP/2 via `golang.org/x/net/
// http2`, h2c for cleartext HTTP/2) into the PAGI event model, the way
// `air.Air` embeds and drives a `*http.Server` directly.
type netHTTPBridge struct {
	s          *Server
	httpServer *http.Server
	upgrader   *websocket.Upgrader
}

// newNetHTTPBridge builds the bridge's `*http.Server`, wiring HTTP/2
// (including h2c when tls is false) from the H2MaxConcurrentStreams,
// H2MaxFrameSize and H2InitialWindowSize settings.
func newNetHTTPBridge(s *Server, tls bool) *netHTTPBridge {
	b := &netHTTPBridge{
		s: s,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	var handler http.Handler = http.HandlerFunc(b.serveHTTP)

	hs := &http.Server{
		Handler:        handler,
		MaxHeaderBytes: s.MaxHeaderSize,
		IdleTimeout:    s.Timeout,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			conn := newConnection(c, s.workerNum)
			s.registerConnection(conn)
			return context.WithValue(ctx, connKey{}, conn)
		},
		ConnState: func(c net.Conn, state http.ConnState) {
			if state == http.StateClosed || state == http.StateHijacked {
				// Drop the Connection that ConnContext registered for c.
				var found *Connection
				s.connMutex.Lock()
				for conn := range s.connections {
					if conn.conn == c {
						found = conn
						break
					}
				}
				s.connMutex.Unlock()
				if found != nil {
					s.unregisterConnection(found)
				}
			}
		},
		ErrorLog: nil,
	}

	h2Server := &http2.Server{
		MaxConcurrentStreams:        s.H2MaxConcurrentStreams,
		MaxReadFrameSize:            s.H2MaxFrameSize,
		MaxUploadBufferPerStream:    int32(s.H2InitialWindowSize),
		MaxUploadBufferPerConnection: int32(s.H2InitialWindowSize) * 4,
		IdleTimeout:                 s.Timeout,
	}

	if tls {
		_ = http2.ConfigureServer(hs, h2Server)
	} else {
		hs.Handler = h2c.NewHandler(handler, h2Server)
	}

	b.httpServer = hs
	return b
}

// Serve runs the bridge's HTTP server over l until it is closed.
func (b *netHTTPBridge) Serve(l net.Listener) error {
	return b.httpServer.Serve(l)
}

// Shutdown gracefully shuts down the underlying `*http.Server`.
func (b *netHTTPBridge) Shutdown(ctx context.Context) error {
	return b.httpServer.Shutdown(ctx)
}

// Close closes the underlying `*http.Server` immediately.
func (b *netHTTPBridge) Close() error {
	return b.httpServer.Close()
}

// serveHTTP is the single entry point for every HTTP/1.1, HTTP/2, and h2c
// request: it applies admission control, classifies the request into an
// http/websocket/sse scope, and runs the server's App against it.
func (b *netHTTPBridge) serveHTTP(w http.ResponseWriter, req *http.Request) {
	s := b.s

	if !s.admit() {
		w.Header().Set("retry-after", "1")
		w.Header().Set("connection", "close")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	conn, _ := req.Context().Value(connKey{}).(*Connection)
	if conn != nil {
		conn.beginRequest()
		defer conn.endRequest()
	}

	start := time.Now()

	switch {
	case isWebSocketUpgrade(req):
		if conn != nil {
			conn.setKind(connKindWebSocket)
		}
		b.serveWebSocket(w, req)
	case isSSERequest(req):
		if conn != nil {
			conn.setKind(connKindSSE)
		}
		b.serveSSE(w, req)
	default:
		status := b.serveHTTPScope(w, req)
		s.AccessLog.Log(AccessLogEntry{
			RequestID:  newRequestID(),
			Method:     req.Method,
			Path:       req.URL.Path,
			Status:     status,
			Duration:   time.Since(start),
			RemoteAddr: req.RemoteAddr,
			WorkerNum:  s.workerNum,
			Proto:      req.Proto,
		})
	}
}

// isWebSocketUpgrade reports whether req is a WebSocket upgrade handshake.
func isWebSocketUpgrade(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(req.Header.Get("Connection")), "upgrade")
}

// isSSERequest reports whether req is requesting an SSE stream.
func isSSERequest(req *http.Request) bool {
	return req.Method == http.MethodGet &&
		strings.Contains(req.Header.Get("Accept"), "text/event-stream")
}

// buildTLSInfo extracts the `TLSInfo` sub-mapping from req, or nil if the
// connection is not TLS.
func buildTLSInfo(req *http.Request) *TLSInfo {
	if req.TLS == nil {
		return nil
	}
	return &TLSInfo{
		Version:           tlsVersionName(req.TLS.Version),
		CipherSuite:       tlsCipherSuiteName(req.TLS.CipherSuite),
		ServerName:        req.TLS.ServerName,
		NegotiatedProto:   req.TLS.NegotiatedProtocol,
		HandshakeComplete: req.TLS.HandshakeComplete,
	}
}

// convertHeaders converts req's headers into the ordered, lowercase-name
// `Headers` PAGI scopes carry (spec.md §3.1).
func convertHeaders(h http.Header) Headers {
	hs := make(Headers, 0, len(h))
	for name, values := range h {
		lower := strings.ToLower(name)
		for _, v := range values {
			hs = append(hs, Header{Name: lower, Value: v})
		}
	}
	return hs
}

// serveHTTPScope runs the plain-HTTP path through s.App and returns the
// status code it ultimately sent (for the access log).
func (b *netHTTPBridge) serveHTTPScope(w http.ResponseWriter, req *http.Request) int {
	s := b.s

	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	httpVersion := "1.1"
	if req.ProtoMajor == 2 {
		httpVersion = "2"
	}

	hs := &HTTPScope{
		Method:      req.Method,
		Path:        req.URL.Path,
		RawPath:     []byte(req.URL.EscapedPath()),
		QueryString: []byte(req.URL.RawQuery),
		Headers:     convertHeaders(req.Header),
		Scheme:      scheme,
		HTTPVersion: httpVersion,
		Client:      req.RemoteAddr,
		Server:      req.Host,
		TLS:         buildTLSInfo(req),
	}

	scope := newHTTPScope(hs, s.lifespan.state, PAGIVersion{
		Version:     "1.0",
		SpecVersion: "1.0",
		IsWorker:    s.isWorker,
		WorkerNum:   s.workerNum,
	})

	ctx := req.Context()
	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}

	bridge := newHTTPEventBridge(ctx, w, req)

	err := s.App(ctx, scope, bridge.receive, bridge.send)
	if err != nil {
		s.logErrorf("application error: %v", err)
		if !bridge.started {
			w.WriteHeader(http.StatusInternalServerError)
			bridge.status = http.StatusInternalServerError
			bridge.started = true
		}
	}
	if !bridge.started {
		bridge.status = http.StatusOK
	}
	return bridge.status
}

// httpEventBridge adapts one `net/http` request/response pair to PAGI's
// Receive/Send function types.
type httpEventBridge struct {
	ctx context.Context
	w   http.ResponseWriter
	req *http.Request

	bodyEOF bool
	started bool
	status  int
}

func newHTTPEventBridge(ctx context.Context, w http.ResponseWriter, req *http.Request) *httpEventBridge {
	return &httpEventBridge{ctx: ctx, w: w, req: req, status: http.StatusOK}
}

// receive implements Receive by reading the request body in fixed-size
// chunks, matching spec.md §3.2's "more" chunking contract.
func (hb *httpEventBridge) receive(ctx context.Context) (Event, error) {
	if hb.bodyEOF {
		return HTTPDisconnectEvent(), nil
	}

	buf := make([]byte, 64*1024)
	n, err := hb.req.Body.Read(buf)
	if err != nil && err != io.EOF {
		return Event{}, newError(KindTransport, "failed reading request body", err)
	}
	if err == io.EOF || n == 0 {
		hb.bodyEOF = true
		return HTTPRequestEvent(buf[:n], false), nil
	}
	return HTTPRequestEvent(buf[:n], true), nil
}

// send implements Send for the http scope kind.
func (hb *httpEventBridge) send(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventHTTPResponseStart:
		if hb.started {
			return ErrResponseAlreadyStarted
		}
		for _, kv := range ev.Headers {
			hb.w.Header().Add(httpHeaderCanonical(kv.Name), kv.Value)
		}
		hb.status = ev.Status
		hb.w.WriteHeader(ev.Status)
		hb.started = true
		return nil
	case EventHTTPResponseBody:
		if !hb.started {
			hb.w.WriteHeader(http.StatusOK)
			hb.status = http.StatusOK
			hb.started = true
		}
		if err := hb.writeBody(ev); err != nil {
			return err
		}
		if f, ok := hb.w.(http.Flusher); ok {
			f.Flush()
		}
		return nil
	case EventHTTPResponseTrailers:
		for _, kv := range ev.Headers {
			hb.w.Header().Set(http.TrailerPrefix+httpHeaderCanonical(kv.Name), kv.Value)
		}
		return nil
	}
	return nil
}

func (hb *httpEventBridge) writeBody(ev Event) error {
	switch {
	case ev.File != nil:
		f, err := os.Open(ev.File.Path)
		if err != nil {
			return newError(KindAppRuntime, "failed to open response file", err)
		}
		defer f.Close()
		if ev.File.Offset > 0 {
			if _, err := f.Seek(ev.File.Offset, io.SeekStart); err != nil {
				return err
			}
		}
		var r io.Reader = f
		if ev.File.Length > 0 {
			r = io.LimitReader(f, ev.File.Length)
		}
		_, err = io.Copy(hb.w, r)
		return err
	case ev.FH != nil:
		var r io.Reader = ev.FH.Handle
		if ev.FH.Length > 0 {
			r = io.LimitReader(r, ev.FH.Length)
		}
		_, err := io.Copy(hb.w, r)
		return err
	default:
		_, err := hb.w.Write(ev.Body)
		return err
	}
}

// httpHeaderCanonical converts a lowercase PAGI header name to the
// canonical MIME form `net/http` expects.
func httpHeaderCanonical(name string) string {
	return http.CanonicalHeaderKey(name)
}

// tlsVersionName renders a `crypto/tls` version constant as the short
// string spec.md's TLS sub-mapping uses.
func tlsVersionName(v uint16) string {
	switch v {
	case 0x0301:
		return "TLSv1"
	case 0x0302:
		return "TLSv1.1"
	case 0x0303:
		return "TLSv1.2"
	case 0x0304:
		return "TLSv1.3"
	}
	return "unknown(" + strconv.Itoa(int(v)) + ")"
}

// tlsCipherSuiteName renders a `crypto/tls` cipher suite constant using the
// standard library's own name table.
func tlsCipherSuiteName(id uint16) string {
	return tls.CipherSuiteName(id)
}
