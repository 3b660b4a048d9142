package pagi

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerDefaultFormatProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("testsvc")
	l.Output = &buf

	l.Infof("hello %s", "world")

	var decoded map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &decoded)
	assert.NoError(t, err)
	assert.Equal(t, "testsvc", decoded["app_name"])
	assert.Equal(t, "INFO", decoded["level"])
	assert.Equal(t, "hello world", decoded["message"])
}

func TestLoggerDisabledIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("testsvc")
	l.Output = &buf
	l.Enabled = false

	l.Errorf("should not appear")
	assert.Empty(t, buf.String())
}

func TestLoggerNonJSONFormatAppendsMessage(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("testsvc")
	l.Output = &buf
	l.Format = "${level}:"

	l.Warnf("careful")
	assert.Equal(t, "WARN: careful\n", buf.String())
}

func TestCompileLogFormatRewritesPlaceholders(t *testing.T) {
	got := compileLogFormat("${app_name} - ${level}")
	assert.Equal(t, "{{.app_name}} - {{.level}}", got)
}

func TestAccessLoggerRendersDefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	al := &AccessLogger{Output: &buf}

	al.Log(AccessLogEntry{Method: "GET", Path: "/", Proto: "HTTP/1.1", Status: 200, RemoteAddr: "127.0.0.1:1234"})
	assert.Contains(t, buf.String(), "GET / HTTP/1.1")
	assert.Contains(t, buf.String(), "200")
}

func TestAccessLoggerNilOutputIsNoOp(t *testing.T) {
	al := &AccessLogger{}
	al.Log(AccessLogEntry{Method: "GET", Path: "/"})
}

func TestNewRequestIDIsNonEmptyAndVaries(t *testing.T) {
	a := newRequestID()
	b := newRequestID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
