package pagi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Server is the top-level struct of this module. It owns the listening
// socket(s), the optional TLS context, the connection set, the
// `lifespanManager`, and — in multi-worker mode — the worker supervisor.
//
// It is highly recommended not to modify the exported fields of a `Server`
// after calling `Serve`. New instances should only be created with `New`.
type Server struct {
	// AppName identifies the application in operational logs.
	//
	// Default value: "pagi"
	AppName string `mapstructure:"app_name"`

	// Address is the TCP address the server listens on.
	//
	// Default value: "localhost:8080"
	Address string `mapstructure:"address"`

	// Workers is the number of pre-forked worker processes. 0 means
	// single-process mode.
	//
	// Default value: 0
	Workers int `mapstructure:"workers"`

	// Reuseport, when true and Workers > 0, gives each worker its own
	// listening socket (SO_REUSEPORT) instead of inheriting one shared
	// socket from the parent. The server does not read this field.
	//
	// Default value: false
	Reuseport bool `mapstructure:"reuseport"`

	// ListenerBacklog is the kernel accept queue depth. The server does not
	// read this field; listeners always get the OS default.
	//
	// Default value: 0 (use the OS default)
	ListenerBacklog int `mapstructure:"listener_backlog"`

	// MaxConnections is the admission cap. Exceeding it causes new
	// connections to receive a synthetic 503 with Retry-After and be
	// closed.
	//
	// Default value: 1000
	MaxConnections int `mapstructure:"max_connections"`

	// Timeout is the idle duration allowed between requests on a
	// keep-alive connection. 0 disables the timer.
	//
	// Default value: 0
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestTimeout is a single deadline on an active HTTP request: the
	// App's context is cancelled once this long has passed since the
	// request started. I/O does not reset it. 0 disables the timer.
	//
	// Default value: 0
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// WSIdleTimeout closes a WebSocket connection that has carried no
	// frames in either direction for this long. 0 disables the timer.
	//
	// Default value: 0
	WSIdleTimeout time.Duration `mapstructure:"ws_idle_timeout"`

	// SSEIdleTimeout closes an SSE connection with no emitted events for
	// this long. 0 disables the timer.
	//
	// Default value: 0
	SSEIdleTimeout time.Duration `mapstructure:"sse_idle_timeout"`

	// ShutdownTimeout bounds the graceful drain; after it elapses,
	// remaining connections are force-closed.
	//
	// Default value: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// HeartbeatTimeout is the worker liveness detector window
	// (multi-worker only). 0 disables heartbeat supervision.
	//
	// Default value: 0
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`

	// MaxRequests is the per-worker request budget before a graceful
	// recycle. 0 means unlimited. The server does not read this field, so
	// workers are never recycled by request count.
	//
	// Default value: 0
	MaxRequests int64 `mapstructure:"max_requests"`

	// MaxHeaderSize is the maximum number of bytes allowed for request
	// headers.
	//
	// Default value: 1048576
	MaxHeaderSize int `mapstructure:"max_header_size"`

	// MaxHeaderCount is the maximum number of header fields allowed on a
	// request. The server does not read this field; header count is not
	// limited.
	//
	// Default value: 100
	MaxHeaderCount int `mapstructure:"max_header_count"`

	// MaxBodySize caps the cumulative request body size. 0 means
	// unlimited. The server does not read this field; request bodies are
	// not size-limited.
	//
	// Default value: 0
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// MaxWSFrameSize caps a single WebSocket frame.
	//
	// Default value: 1048576
	MaxWSFrameSize int64 `mapstructure:"max_ws_frame_size"`

	// MaxReceiveQueue caps the number of buffered, undelivered
	// `websocket.receive` events per connection.
	//
	// Default value: 128
	MaxReceiveQueue int `mapstructure:"max_receive_queue"`

	// WriteHighWatermark is the queued-byte threshold above which the
	// connection writer suspends further sends. The server does not read
	// this field; sends are never suspended.
	//
	// Default value: 65536
	WriteHighWatermark int `mapstructure:"write_high_watermark"`

	// WriteLowWatermark is the queued-byte threshold below which
	// suspended sends resume. The server does not read this field.
	//
	// Default value: 16384
	WriteLowWatermark int `mapstructure:"write_low_watermark"`

	// TLSConfig, if set, terminates TLS on the listener. TLSCertFile and
	// TLSKeyFile are appended to a clone of it if both are also set.
	//
	// Default value: nil
	TLSConfig *tls.Config `mapstructure:"-"`

	// TLSCertFile is the path to the TLS certificate (possibly a
	// certificate chain) to serve.
	//
	// Default value: ""
	TLSCertFile string `mapstructure:"tls_cert_file"`

	// TLSKeyFile is the path to the key matching TLSCertFile.
	//
	// Default value: ""
	TLSKeyFile string `mapstructure:"tls_key_file"`

	// ACMEEnabled turns on automatic certificate acquisition via
	// golang.org/x/crypto/acme/autocert, layered under TLSConfig.
	//
	// Default value: false
	ACMEEnabled bool `mapstructure:"acme_enabled"`

	// ACMECertRoot is the on-disk cache directory for ACME-issued
	// certificates.
	//
	// Default value: "acme-certs"
	ACMECertRoot string `mapstructure:"acme_cert_root"`

	// ACMEHostWhitelist restricts which hosts the ACME feature will
	// fetch certificates for.
	//
	// Default value: nil
	ACMEHostWhitelist []string `mapstructure:"acme_host_whitelist"`

	// H2MaxConcurrentStreams caps concurrent HTTP/2 streams per
	// connection.
	//
	// Default value: 100
	H2MaxConcurrentStreams uint32 `mapstructure:"h2_max_concurrent_streams"`

	// H2InitialWindowSize is the HTTP/2 per-stream flow-control window.
	//
	// Default value: 65535
	H2InitialWindowSize uint32 `mapstructure:"h2_initial_window_size"`

	// H2MaxFrameSize is the HTTP/2 max frame size, 16 KiB-16 MiB.
	//
	// Default value: 16384
	H2MaxFrameSize uint32 `mapstructure:"h2_max_frame_size"`

	// H2EnablePush is accepted for configuration-surface completeness;
	// server push is never performed on behalf of the application.
	//
	// Default value: false
	H2EnablePush bool `mapstructure:"h2_enable_push"`

	// H2EnableConnectProtocol turns on Extended CONNECT (RFC 8441), used
	// to run WebSocket over HTTP/2. The field is not passed to the HTTP/2
	// server.
	//
	// Default value: true
	H2EnableConnectProtocol bool `mapstructure:"h2_enable_connect_protocol"`

	// H2MaxHeaderListSize caps the HTTP/2 decoded header list size. The
	// field is not passed to the HTTP/2 server.
	//
	// Default value: 65536
	H2MaxHeaderListSize uint32 `mapstructure:"h2_max_header_list_size"`

	// SyncFileThreshold is the file size, in bytes, at or below which a
	// `file`/`fh` response body source is read on the event-loop
	// goroutine rather than off-loaded to a worker pool. The server does
	// not read this field; file bodies are always copied with io.Copy.
	//
	// Default value: 1048576
	SyncFileThreshold int64 `mapstructure:"sync_file_threshold"`

	// ValidateEvents turns on event-shape validation, normally enabled
	// through the PAGI_VALIDATE_EVENTS environment variable instead of
	// this field (spec.md §6). No code reads the flag, so events are not
	// validated whatever its value.
	//
	// Default value: false
	ValidateEvents bool `mapstructure:"-"`

	// DebugMode is a debug switch. The server does not read this field; an
	// application error before the response starts yields a 500 with an
	// empty body whatever its value.
	//
	// Default value: false
	DebugMode bool `mapstructure:"debug_mode"`

	// AccessLog is the access-log sink and compiled format. A nil
	// Output disables it.
	//
	// Default value: &AccessLogger{} (nil Output, so disabled)
	AccessLog *AccessLogger `mapstructure:"-"`

	// Logger is the structured operational logger.
	//
	// Default value: NewLogger(AppName)
	Logger *Logger `mapstructure:"-"`

	// ConfigFile, if set, is parsed (JSON/TOML/YAML by extension) and
	// decoded onto this Server before Serve starts listening.
	//
	// Default value: ""
	ConfigFile string `mapstructure:"-"`

	// App is the PAGI application this server dispatches scopes to. If
	// nil, a Router created with NewRouter and attached via UseRouter is
	// used instead.
	App App `mapstructure:"-"`

	router       *Router
	lifespan     *lifespanManager
	listener     *listener
	httpServer   *netHTTPBridge
	addressMap   map[string]int
	addressMutex sync.Mutex

	connections   map[*Connection]struct{}
	connMutex     sync.Mutex
	drainComplete chan struct{}

	shutdownJobs     []func()
	shutdownJobMutex sync.Mutex

	workerNum int
	isWorker  bool

	pools *pools
}

// New returns a new `Server` with default field values.
func New() *Server {
	s := &Server{
		AppName:                 "pagi",
		Address:                 "localhost:8080",
		MaxConnections:          1000,
		ShutdownTimeout:         30 * time.Second,
		MaxHeaderSize:           1 << 20,
		MaxHeaderCount:          100,
		MaxWSFrameSize:          1 << 20,
		MaxReceiveQueue:         128,
		WriteHighWatermark:      1 << 16,
		WriteLowWatermark:       1 << 14,
		ACMECertRoot:            "acme-certs",
		H2MaxConcurrentStreams:  100,
		H2InitialWindowSize:     65535,
		H2MaxFrameSize:          16384,
		H2EnableConnectProtocol: true,
		H2MaxHeaderListSize:     64 << 10,
		SyncFileThreshold:       1 << 20,
		addressMap:              map[string]int{},
		connections:             map[*Connection]struct{}{},
		drainComplete:           make(chan struct{}),
	}

	s.Logger = NewLogger(s.AppName)
	s.AccessLog = &AccessLogger{}
	s.lifespan = newLifespanManager(s)
	s.pools = newPools()

	return s
}

// UseRouter attaches r as the server's dispatch target, equivalent to
// setting App to r.ServeScope.
func (s *Server) UseRouter(r *Router) {
	s.router = r
	s.App = r.ServeScope
}

// AddShutdownJob registers f to run exactly once, concurrently with every
// other shutdown job, when `Shutdown` is called. The returned id can be
// passed to `RemoveShutdownJob`.
func (s *Server) AddShutdownJob(f func()) int {
	s.shutdownJobMutex.Lock()
	defer s.shutdownJobMutex.Unlock()
	s.shutdownJobs = append(s.shutdownJobs, f)
	return len(s.shutdownJobs) - 1
}

// RemoveShutdownJob removes the shutdown job identified by id.
func (s *Server) RemoveShutdownJob(id int) {
	s.shutdownJobMutex.Lock()
	defer s.shutdownJobMutex.Unlock()
	if id >= 0 && id < len(s.shutdownJobs) {
		s.shutdownJobs[id] = nil
	}
}

// Addresses returns every TCP address this server is actually listening on,
// in no particular order.
func (s *Server) Addresses() []string {
	s.addressMutex.Lock()
	defer s.addressMutex.Unlock()

	addrs := make([]string, 0, len(s.addressMap))
	for a := range s.addressMap {
		addrs = append(addrs, a)
	}
	return addrs
}

// Serve starts the server: it loads ConfigFile if set, assembles the TLS
// context, starts the worker supervisor (if Workers > 0) or runs the
// single-process accept loop directly, and runs the lifespan startup
// sequence before accepting any connection.
func (s *Server) Serve() error {
	if s.ConfigFile != "" {
		if err := s.loadConfigFile(s.ConfigFile); err != nil {
			return newError(KindConfiguration, "failed to load config file", err)
		}
	}

	if err := s.validateConfiguration(); err != nil {
		return err
	}

	applyValidateEventsEnv(s)

	if s.Workers > 0 {
		return runSupervisor(s)
	}

	return s.serveWorker(context.Background(), 0, false)
}

// validateConfiguration performs the fail-fast checks of spec.md §7 kind 1
// (Configuration): missing TLS materials, contradictory options.
func (s *Server) validateConfiguration() error {
	if s.TLSCertFile != "" && s.TLSKeyFile == "" {
		return newError(KindConfiguration, "tls_cert_file set without tls_key_file", nil)
	}
	if s.TLSKeyFile != "" && s.TLSCertFile == "" {
		return newError(KindConfiguration, "tls_key_file set without tls_cert_file", nil)
	}
	if s.App == nil && s.router == nil {
		return newError(KindConfiguration, "no App or Router attached", nil)
	}
	if s.H2MaxFrameSize != 0 && (s.H2MaxFrameSize < 16384 || s.H2MaxFrameSize > 16<<20) {
		return newError(KindConfiguration, "h2_max_frame_size out of range [16KiB, 16MiB]", nil)
	}
	return nil
}

// serveWorker runs one worker's event loop: builds the listener, optional
// TLS wrapping, runs lifespan startup, then accepts until ctx is canceled or
// Shutdown/Close is called. workerNum/isWorker are only meaningful in
// multi-worker mode and are exposed to the application through the scope's
// `pagi` sub-mapping.
func (s *Server) serveWorker(ctx context.Context, workerNum int, isWorker bool) error {
	s.workerNum = workerNum
	s.isWorker = isWorker

	state, err := s.lifespan.runStartup(ctx)
	if err != nil {
		return newError(KindLifespan, "lifespan startup failed", err)
	}
	s.lifespan.state = state

	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		return newError(KindConfiguration, "failed to build TLS config", err)
	}

	l := newListener(s)
	if err := l.listen(s.Address); err != nil {
		return err
	}
	defer l.Close()
	s.listener = l

	s.addressMutex.Lock()
	s.addressMap[l.Addr().String()] = 0
	s.addressMutex.Unlock()

	var netListener net.Listener = l
	if tlsConfig != nil {
		netListener = tls.NewListener(netListener, tlsConfig)
	}

	bridge := newNetHTTPBridge(s, tlsConfig != nil)
	s.httpServer = bridge

	if isWorker && s.HeartbeatTimeout > 0 {
		stopHeartbeat := make(chan struct{})
		defer close(stopHeartbeat)
		go runHeartbeat(stopHeartbeat, s.HeartbeatTimeout/3)
	}

	serveErr := bridge.Serve(netListener)

	shutdownErr := s.lifespan.runShutdown(ctx)
	if serveErr != nil && !errors.Is(serveErr, net.ErrClosed) {
		return serveErr
	}
	return shutdownErr
}

// Shutdown gracefully drains the server: stops accepting, closes idle and
// long-lived connections, waits up to ShutdownTimeout for in-flight
// requests, then force-closes the remainder, then runs shutdown jobs and the
// lifespan shutdown sequence.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		s.listener.Close()
	}

	drainCtx, cancel := context.WithTimeout(ctx, s.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.closeIdleAndLongLived()
		s.waitForDrain()
		close(done)
	}()

	select {
	case <-done:
	case <-drainCtx.Done():
		s.forceCloseAll()
	}

	s.runShutdownJobs()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Close closes the server immediately without draining.
func (s *Server) Close() error {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// runShutdownJobs runs every registered shutdown job concurrently, exactly
// once, and waits for all of them — mirroring `air.Air.Shutdown`'s
// `RegisterOnShutdown` callback.
func (s *Server) runShutdownJobs() {
	s.shutdownJobMutex.Lock()
	jobs := make([]func(), len(s.shutdownJobs))
	copy(jobs, s.shutdownJobs)
	s.shutdownJobMutex.Unlock()

	var wg sync.WaitGroup
	for _, job := range jobs {
		if job == nil {
			continue
		}
		wg.Add(1)
		go func(job func()) {
			defer wg.Done()
			job()
		}(job)
	}
	wg.Wait()
}

// registerConnection adds c to the live connection set. Every accepted
// transport maps to exactly one Connection (spec.md §3.7 Invariants).
func (s *Server) registerConnection(c *Connection) {
	s.connMutex.Lock()
	s.connections[c] = struct{}{}
	s.connMutex.Unlock()
}

// unregisterConnection removes c from the live connection set exactly once.
func (s *Server) unregisterConnection(c *Connection) {
	s.connMutex.Lock()
	delete(s.connections, c)
	empty := len(s.connections) == 0
	s.connMutex.Unlock()

	if empty {
		select {
		case <-s.drainComplete:
		default:
			close(s.drainComplete)
		}
	}
}

// closeIdleAndLongLived closes every connection that is idle (keep-alive,
// no in-flight request) or long-lived (SSE/WebSocket) immediately, per
// spec.md §4.1 "Graceful drain".
func (s *Server) closeIdleAndLongLived() {
	s.connMutex.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.connMutex.Unlock()

	for _, c := range conns {
		if c.isIdleOrLongLived() {
			c.Close()
		}
	}
}

// forceCloseAll closes every remaining live connection unconditionally.
func (s *Server) forceCloseAll() {
	s.connMutex.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.connMutex.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// waitForDrain blocks until the connection set is empty.
func (s *Server) waitForDrain() {
	s.connMutex.Lock()
	empty := len(s.connections) == 0
	s.connMutex.Unlock()
	if empty {
		return
	}
	<-s.drainComplete
}

// admit applies the admission-control policy of spec.md §4.1: over
// MaxConnections, reject with a synthetic 503 and Retry-After.
func (s *Server) admit() bool {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()
	return len(s.connections) < s.MaxConnections
}

// logErrorf logs e through the configured Logger, or to a package-level
// fallback if none is configured.
func (s *Server) logErrorf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Errorf(format, args...)
		return
	}
	fmt.Printf("pagi: "+format+"\n", args...)
}
