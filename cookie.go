package pagi

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"time"
)

// SameSite is the `SameSite` cookie attribute.
type SameSite uint8

// SameSite values.
const (
	SameSiteDefault SameSite = iota
	SameSiteLax
	SameSiteStrict
	SameSiteNone
)

// Cookie is an HTTP response cookie, grounded on `air.Cookie`'s
// hand-rolled RFC 6265 serializer, extended with `SameSite` for the
// ecosystem's modern default.
type Cookie struct {
	Name     string
	Value    string
	Expires  time.Time
	MaxAge   int
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
}

// httpTimeFormat is the wire format RFC 7231 §7.1.1.1 requires for the
// cookie Expires attribute.
const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// String returns c's `Set-Cookie` header value, or "" if c.Name is not a
// valid cookie token.
func (c *Cookie) String() string {
	if !validCookieName(c.Name) {
		return ""
	}

	var buf bytes.Buffer

	name := strings.NewReplacer("\r", "-", "\n", "-").Replace(c.Name)
	value := sanitize(c.Value, validCookieValueByte)
	if strings.IndexByte(value, ' ') >= 0 || strings.IndexByte(value, ',') >= 0 {
		value = `"` + value + `"`
	}

	buf.WriteString(name)
	buf.WriteByte('=')
	buf.WriteString(value)

	if c.Path != "" {
		buf.WriteString("; Path=")
		buf.WriteString(sanitize(c.Path, func(b byte) bool {
			return 0x20 <= b && b < 0x7f && b != ';'
		}))
	}

	if validCookieDomain(c.Domain) {
		d := c.Domain
		if d[0] == '.' {
			d = d[1:]
		}
		buf.WriteString("; Domain=")
		buf.WriteString(d)
	}

	if c.Expires.Year() >= 1601 {
		buf.WriteString("; Expires=")
		buf.WriteString(c.Expires.UTC().Format(httpTimeFormat))
	}

	switch {
	case c.MaxAge > 0:
		buf.WriteString("; Max-Age=")
		buf.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		buf.WriteString("; Max-Age=0")
	}

	if c.HTTPOnly {
		buf.WriteString("; HttpOnly")
	}
	if c.Secure {
		buf.WriteString("; Secure")
	}

	switch c.SameSite {
	case SameSiteLax:
		buf.WriteString("; SameSite=Lax")
	case SameSiteStrict:
		buf.WriteString("; SameSite=Strict")
	case SameSiteNone:
		buf.WriteString("; SameSite=None")
	}

	return buf.String()
}

// SetCookie appends c's serialized form as a "set-cookie" response header.
// It is a no-op (and returns false) if c.Name is not a valid cookie token.
func (r *Response) SetCookie(c Cookie) bool {
	s := c.String()
	if s == "" {
		return false
	}
	r.Header = append(r.Header, Header{Name: "set-cookie", Value: s})
	return true
}

func validCookieName(n string) bool {
	if n == "" {
		return false
	}
	const allowed = "!#$%&'*+-.0123456789ABCDEFGHIJKLMNOPQRSTUWVXYZ^_`abcdefghijklmnopqrstuvwxyz|~"
	for i := 0; i < len(n); i++ {
		if !strings.ContainsRune(allowed, rune(n[i])) {
			return false
		}
	}
	return true
}

func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

func validCookieDomain(d string) bool {
	l := len(d)
	if l == 0 || l > 255 {
		return false
	}
	if net.ParseIP(d) != nil && !strings.Contains(d, ":") {
		return true
	}

	if d[0] == '.' {
		d = d[1:]
	}

	ok := false
	last := byte('.')
	partLen := 0
	for i := 0; i < len(d); i++ {
		c := d[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			ok = true
			partLen++
		case '0' <= c && c <= '9':
			partLen++
		case c == '-':
			if last == '.' {
				return false
			}
			partLen++
		case c == '.':
			if last == '.' || last == '-' || partLen > 63 || partLen == 0 {
				return false
			}
			partLen = 0
		default:
			return false
		}
		last = c
	}

	if last == '-' || partLen > 63 {
		return false
	}
	return ok
}

func sanitize(s string, valid func(byte) bool) string {
	ok := true
	for i := 0; i < len(s); i++ {
		if !valid(s[i]) {
			ok = false
			break
		}
	}
	if ok {
		return s
	}

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if b := s[i]; valid(b) {
			buf = append(buf, b)
		}
	}
	return string(buf)
}
