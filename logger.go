package pagi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"
)

// logLevel is the level of a `Logger` call.
type logLevel uint8

// Log levels.
const (
	lvlDebug logLevel = iota
	lvlInfo
	lvlWarn
	lvlError
)

var levelNames = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// Logger is the structured logger used throughout the server for
// operational messages (not the access log — see `AccessLogger`). It
// compiles its format once, on first use, into a `text/template` and
// reuses a buffer pool per call the way `air.Logger` does, to keep the hot
// logging path allocation-light.
type Logger struct {
	// Enabled gates every log call. Default: true.
	Enabled bool

	// Format is the text/template source applied to a map of well-known
	// fields (app_name, time_rfc3339, level, short_file, long_file,
	// line, message). Default:
	// `{"app_name":"${app_name}","time":"${time_rfc3339}",` +
	// `"level":"${level}","file":"${short_file}","line":"${line}"}`
	//
	// As with air, a rendered JSON object (one ending in "}") has the
	// message key merged in; any other rendering gets the message
	// appended as plain text.
	Format string

	// Output is where rendered log lines are written. Default: os.Stderr.
	Output io.Writer

	// AppName is included in every rendered line's "app_name" field.
	AppName string

	tmpl       *template.Template
	bufferPool *sync.Pool
	mutex      sync.Mutex
}

// NewLogger returns a new `Logger` with default field values.
func NewLogger(appName string) *Logger {
	return &Logger{
		Enabled: true,
		Format: `{"app_name":"${app_name}","time":"${time_rfc3339}",` +
			`"level":"${level}","file":"${short_file}","line":"${line}"}`,
		Output:  os.Stderr,
		AppName: appName,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 256))
			},
		},
	}
}

// Debugf logs at DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(lvlDebug, format, args...) }

// Infof logs at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(lvlInfo, format, args...) }

// Warnf logs at WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(lvlWarn, format, args...) }

// Errorf logs at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(lvlError, format, args...) }

// log renders and writes one log line.
func (l *Logger) log(lvl logLevel, format string, args ...interface{}) {
	if l == nil || !l.Enabled {
		return
	}

	l.mutex.Lock()
	if l.tmpl == nil {
		tmplSrc := compileLogFormat(l.Format)
		l.tmpl = template.Must(template.New("logger").Parse(tmplSrc))
	}
	tmpl := l.tmpl
	l.mutex.Unlock()

	message := fmt.Sprintf(format, args...)

	_, file, line, _ := runtime.Caller(2)

	data := map[string]interface{}{
		"app_name":     l.AppName,
		"time_rfc3339": time.Now().Format(time.RFC3339),
		"level":        levelNames[lvl],
		"short_file":   path.Base(file),
		"long_file":    file,
		"line":         strconv.Itoa(line),
	}

	buf := l.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		l.bufferPool.Put(buf)
	}()

	if err := tmpl.Execute(buf, data); err != nil {
		return
	}

	s := buf.Bytes()
	if len(s) > 0 && s[len(s)-1] == '}' {
		buf.Truncate(len(s) - 1)
		buf.WriteByte(',')
		buf.WriteString(`"message":`)
		mb, _ := json.Marshal(message)
		buf.Write(mb)
		buf.WriteByte('}')
	} else {
		buf.WriteByte(' ')
		buf.WriteString(message)
	}
	buf.WriteByte('\n')

	l.mutex.Lock()
	l.Output.Write(buf.Bytes())
	l.mutex.Unlock()
}

// compileLogFormat rewrites the "${name}" placeholders the public Format
// field uses into the "{{.name}}" syntax text/template expects, so that the
// exported configuration surface reads the same as the access-log format
// in accesslog.go instead of forcing callers to know about text/template.
func compileLogFormat(format string) string {
	var b strings.Builder
	b.Grow(len(format))

	for i := 0; i < len(format); i++ {
		if format[i] == '$' && i+1 < len(format) && format[i+1] == '{' {
			j := i + 2
			for j < len(format) && format[j] != '}' {
				j++
			}
			if j < len(format) {
				name := format[i+2 : j]
				b.WriteString("{{.")
				b.WriteString(name)
				b.WriteString("}}")
				i = j
				continue
			}
		}
		b.WriteByte(format[i])
	}

	return b.String()
}
