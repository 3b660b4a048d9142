package pagi

import (
	"bytes"
	"io"
	"strconv"
	"sync"
	"text/template"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// AccessLogEntry is the per-request data available to a compiled access-log
// format. BytesOut holds a response byte count, but the net/http bridge does
// not count the bytes it writes and leaves BytesOut at 0 in every entry it
// logs.
type AccessLogEntry struct {
	RequestID  string
	Method     string
	Path       string
	Status     int
	BytesOut   int64
	Duration   time.Duration
	RemoteAddr string
	WorkerNum  int
	Proto      string
}

// AccessLogger renders one line per completed plain HTTP request through a
// compiled `text/template` format; WebSocket and SSE sessions are not
// logged. The design mirrors
// the fragment-pipeline design spec.md's system overview calls for and the
// compiled-template technique `Logger` uses for operational logs.
type AccessLogger struct {
	// Output is the sink; a nil Output disables the access log entirely
	// (spec.md §4.1 "Access log sink ... may be null to disable").
	Output io.Writer

	// Format is a text/template source over an `AccessLogEntry`.
	// An empty Format uses defaultAccessLogFormat:
	// `{{.RemoteAddr}} [w{{.WorkerNum}}] "{{.Method}} {{.Path}} {{.Proto}}" ` +
	// `{{.Status}} {{.BytesOut}} {{.Duration}} rid={{.RequestID}}`
	Format string

	tmpl *template.Template
	once sync.Once
	mu   sync.Mutex
}

// defaultAccessLogFormat is used when Format is empty.
const defaultAccessLogFormat = `{{.RemoteAddr}} [w{{.WorkerNum}}] "{{.Method}} {{.Path}} {{.Proto}}" {{.Status}} {{.BytesOut}} {{.Duration}} rid={{.RequestID}}`

// compile lazily parses Format (or the default) exactly once, the way a
// router "compile"/"finalize" step pre-builds its dispatch table so the hot
// path never re-parses anything.
func (a *AccessLogger) compile() {
	a.once.Do(func() {
		src := a.Format
		if src == "" {
			src = defaultAccessLogFormat
		}
		a.tmpl = template.Must(template.New("accesslog").Parse(src))
	})
}

// Log renders and writes one access-log line. It is a no-op when Output is
// nil.
func (a *AccessLogger) Log(e AccessLogEntry) {
	if a == nil || a.Output == nil {
		return
	}

	a.compile()

	buf := bytes.NewBuffer(make([]byte, 0, 160))
	if err := a.tmpl.Execute(buf, e); err != nil {
		return
	}
	buf.WriteByte('\n')

	a.mu.Lock()
	a.Output.Write(buf.Bytes())
	a.mu.Unlock()
}

// newRequestID returns a short, fast, non-cryptographic id suitable for
// access-log correlation, using xxhash over a UUID so that the id is both
// unique (uuid) and cheap to format (a 16-hex-digit hash rather than a
// 36-byte UUID string) when a compact field is preferred in the log line.
func newRequestID() string {
	u := uuid.New()
	h := xxhash.Sum64(u[:])
	return strconv.FormatUint(h, 16)
}
