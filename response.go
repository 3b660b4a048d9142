package pagi

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/aofei/mimesniffer"
)

// Response is the write side of an HTTP-family scope, handed to a
// `Handler`. Status defaults to 200 and is sent, along with Header, on the
// first Write/WriteString/SendFile call or on an explicit call to
// WriteHeader — mirroring `air.Response`'s Status/Header/Body surface, but
// over PAGI's event stream instead of a direct `net/http.ResponseWriter`.
type Response struct {
	// Status is the status code sent with the first body write. Set it
	// before the first write; it is ignored afterward.
	Status int

	// Header is the response header map, sent with Status on the first
	// body write. Set entries before the first write.
	Header Headers

	ctx     context.Context
	send    Send
	started bool
	ended   bool

	backgroundTasksMu sync.Mutex
	backgroundTasks   []func(context.Context)
}

// newResponse returns a `Response` that writes through send.
func newResponse(ctx context.Context, send Send) *Response {
	return &Response{ctx: ctx, send: send, Status: 200}
}

// reset clears r for reuse from a pool.
func (r *Response) reset() {
	r.Status = 200
	r.Header = nil
	r.ctx = nil
	r.send = nil
	r.started = false
	r.ended = false
	r.backgroundTasks = nil
}

// Started reports whether the response line has already been sent.
func (r *Response) Started() bool { return r.started }

// WriteHeader sends the response line (status + header) without any body.
// Calling it more than once, or after a body write, returns
// ErrResponseAlreadyStarted.
func (r *Response) WriteHeader(status int) error {
	if r.started {
		return ErrResponseAlreadyStarted
	}
	r.Status = status
	r.started = true
	return r.send(r.ctx, ResponseStartEvent(r.Status, r.Header, false))
}

// Write sends p as a (possibly non-final) body chunk, sending the response
// line first if it has not been sent yet.
func (r *Response) Write(p []byte) (int, error) {
	if err := r.ensureStarted(); err != nil {
		return 0, err
	}
	if err := r.send(r.ctx, ResponseBodyEvent(p, true)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteString is a convenience wrapper around Write.
func (r *Response) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

// SendFile streams ref as the (final) response body from the filesystem.
// The bridge copies the file with io.Copy whatever its size; it does not
// consult SyncFileThreshold. If Header carries no
// Content-Type yet, one is sniffed from the file's leading bytes, the way
// `air.Response.Write` sniffs an `io.ReadSeeker`'s content type.
func (r *Response) SendFile(ref FileRef) error {
	if r.Header.Get("content-type") == "" {
		if ct, ok := sniffFileContentType(ref.Path); ok {
			r.Header = append(r.Header, Header{Name: "content-type", Value: ct})
		}
	}
	if err := r.ensureStarted(); err != nil {
		return err
	}
	r.ended = true
	return r.send(r.ctx, ResponseFileEvent(ref, false))
}

// sniffFileContentType reads up to 512 bytes from path and sniffs its MIME
// type, reporting false if the file cannot be opened.
func sniffFileContentType(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", false
	}
	return mimesniffer.Sniff(buf[:n]), true
}

// End sends p as the final body chunk, closing the response. Calling it
// after the response has already ended returns ErrResponseAlreadyStarted —
// the finishers "refuse double-send" (spec.md §4.6).
func (r *Response) End(p []byte) error {
	if r.ended {
		return ErrResponseAlreadyStarted
	}
	if err := r.ensureStarted(); err != nil {
		return err
	}
	r.ended = true
	return r.send(r.ctx, ResponseBodyEvent(p, false))
}

// Text sends Content-Type text/plain and s as the complete body, the
// "text" finisher of spec.md §4.6.
func (r *Response) Text(s string) error {
	r.setContentTypeIfAbsent("text/plain; charset=utf-8")
	return r.End([]byte(s))
}

// HTML sends Content-Type text/html and s as the complete body, the "html"
// finisher of spec.md §4.6.
func (r *Response) HTML(s string) error {
	r.setContentTypeIfAbsent("text/html; charset=utf-8")
	return r.End([]byte(s))
}

// JSON sends Content-Type application/json and the JSON encoding of v as
// the complete body, the "json" finisher of spec.md §4.6.
func (r *Response) JSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.setContentTypeIfAbsent("application/json; charset=utf-8")
	return r.End(b)
}

// Redirect sends a redirect response to location with status, the
// "redirect" finisher of spec.md §4.6. status defaults to 302 if 0.
func (r *Response) Redirect(location string, status int) error {
	if status == 0 {
		status = 302
	}
	r.Status = status
	r.Header = append(r.Header, Header{Name: "location", Value: location})
	return r.End(nil)
}

// Empty sends the response line with no body, the "empty" finisher of
// spec.md §4.6.
func (r *Response) Empty() error {
	return r.End(nil)
}

// Fail sends status and message as a plain-text body, the "error" finisher
// of spec.md §4.6 (named Fail here since Go reserves the identifier `Error`
// for the `error` interface method).
func (r *Response) Fail(status int, message string) error {
	r.Status = status
	r.setContentTypeIfAbsent("text/plain; charset=utf-8")
	return r.End([]byte(message))
}

// Stream calls fn with an `io.Writer` that emits each Write as a
// `more=true` body chunk, sending the final `more=false` chunk once fn
// returns, the "stream" finisher of spec.md §4.6.
func (r *Response) Stream(fn func(io.Writer) error) error {
	if err := r.ensureStarted(); err != nil {
		return err
	}
	err := fn(r)
	if r.ended {
		return err
	}
	r.ended = true
	if sendErr := r.send(r.ctx, ResponseBodyEvent(nil, false)); sendErr != nil && err == nil {
		err = sendErr
	}
	return err
}

func (r *Response) setContentTypeIfAbsent(contentType string) {
	if r.Header.Get("content-type") == "" {
		r.Header = append(r.Header, Header{Name: "content-type", Value: contentType})
	}
}

// Trailers sends a final http.response.trailers event. It must be called
// after the response body has ended and only when Response.Header declared
// a "trailer" entry for the trailer names being sent (spec.md §3.2).
func (r *Response) Trailers(h Headers) error {
	return r.send(r.ctx, ResponseTrailersEvent(h, false))
}

func (r *Response) ensureStarted() error {
	if r.started {
		return nil
	}
	r.started = true
	return r.send(r.ctx, ResponseStartEvent(r.Status, r.Header, false))
}

// AddBackgroundTask registers f to run after the response has been fully
// sent, analogous to `air.Air.AddShutdownJob` but scoped to one response
// instead of the whole server (spec.md §4.7 "Background task nursery").
// Tasks run concurrently with one another and do not delay the response.
func (r *Response) AddBackgroundTask(f func(context.Context)) {
	r.backgroundTasksMu.Lock()
	defer r.backgroundTasksMu.Unlock()
	r.backgroundTasks = append(r.backgroundTasks, f)
}

// runBackgroundTasks starts every registered background task in its own
// goroutine and waits for them all to finish.
func (r *Response) runBackgroundTasks(ctx context.Context) {
	r.backgroundTasksMu.Lock()
	tasks := r.backgroundTasks
	r.backgroundTasks = nil
	r.backgroundTasksMu.Unlock()

	if len(tasks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t func(context.Context)) {
			defer wg.Done()
			t(ctx)
		}(t)
	}
	wg.Wait()
}
