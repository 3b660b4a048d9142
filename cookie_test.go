package pagi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCookieStringBasic(t *testing.T) {
	c := &Cookie{Name: "session", Value: "abc123", Path: "/", HTTPOnly: true, Secure: true}
	assert.Equal(t, "session=abc123; Path=/; HttpOnly; Secure", c.String())
}

func TestCookieStringQuotesValueWithSpace(t *testing.T) {
	c := &Cookie{Name: "greeting", Value: "hello world"}
	assert.Equal(t, `greeting="hello world"`, c.String())
}

func TestCookieStringSameSite(t *testing.T) {
	c := &Cookie{Name: "a", Value: "b", SameSite: SameSiteStrict}
	assert.Equal(t, "a=b; SameSite=Strict", c.String())
}

func TestCookieStringMaxAgeNegativeExpiresImmediately(t *testing.T) {
	c := &Cookie{Name: "a", Value: "b", MaxAge: -1}
	assert.Equal(t, "a=b; Max-Age=0", c.String())
}

func TestCookieStringInvalidNameRejected(t *testing.T) {
	c := &Cookie{Name: "bad name", Value: "x"}
	assert.Equal(t, "", c.String())
}

func TestCookieStringExpires(t *testing.T) {
	exp := time.Date(2030, time.January, 2, 3, 4, 5, 0, time.UTC)
	c := &Cookie{Name: "a", Value: "b", Expires: exp}
	assert.Equal(t, "a=b; Expires=Wed, 02 Jan 2030 03:04:05 GMT", c.String())
}

func TestResponseSetCookieAppendsHeader(t *testing.T) {
	res := &Response{}
	ok := res.SetCookie(Cookie{Name: "a", Value: "b"})
	assert.True(t, ok)
	assert.Equal(t, "a=b", res.Header.Get("set-cookie"))
}

func TestResponseSetCookieRejectsInvalidName(t *testing.T) {
	res := &Response{}
	ok := res.SetCookie(Cookie{Name: "", Value: "b"})
	assert.False(t, ok)
	assert.Empty(t, res.Header)
}

func TestParseCookieHeader(t *testing.T) {
	cookies := parseCookieHeader(`a=1; b="two"; c=three`)
	assert.Equal(t, "1", cookies["a"])
	assert.Equal(t, "two", cookies["b"])
	assert.Equal(t, "three", cookies["c"])
}

func TestParseCookieHeaderEmpty(t *testing.T) {
	assert.Empty(t, parseCookieHeader(""))
}

func TestValidCookieDomain(t *testing.T) {
	assert.True(t, validCookieDomain("example.com"))
	assert.True(t, validCookieDomain(".example.com"))
	assert.False(t, validCookieDomain(""))
	assert.False(t, validCookieDomain("-bad.com"))
}
