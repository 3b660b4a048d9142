package pagi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompilePatternStatic(t *testing.T) {
	segs, err := compilePattern("/users/profile")
	assert.NoError(t, err)
	assert.Len(t, segs, 2)
	assert.Equal(t, segStatic, segs[0].kind)
	assert.Equal(t, "users", segs[0].literal)
}

func TestCompilePatternColonParam(t *testing.T) {
	segs, err := compilePattern("/users/:id")
	assert.NoError(t, err)
	assert.Equal(t, segParam, segs[1].kind)
	assert.Equal(t, "id", segs[1].name)
	assert.Nil(t, segs[1].pattern)
}

func TestCompilePatternBraceParam(t *testing.T) {
	segs, err := compilePattern("/users/{id}")
	assert.NoError(t, err)
	assert.Equal(t, segParam, segs[1].kind)
	assert.Equal(t, "id", segs[1].name)
}

func TestCompilePatternConstrainedParam(t *testing.T) {
	segs, err := compilePattern("/users/{id:[0-9]+}")
	assert.NoError(t, err)
	assert.NotNil(t, segs[1].pattern)
	assert.True(t, segs[1].pattern.MatchString("42"))
	assert.False(t, segs[1].pattern.MatchString("abc"))
}

func TestCompilePatternWildcard(t *testing.T) {
	segs, err := compilePattern("/assets/*path")
	assert.NoError(t, err)
	assert.Equal(t, segWildcard, segs[1].kind)
	assert.Equal(t, "path", segs[1].name)
}

func TestCompilePatternWildcardMustBeLast(t *testing.T) {
	_, err := compilePattern("/*path/more")
	assert.Error(t, err)
}

func TestCompilePatternRejectsMissingLeadingSlash(t *testing.T) {
	_, err := compilePattern("users")
	assert.Error(t, err)
}

func TestRouteMatchStatic(t *testing.T) {
	segs, _ := compilePattern("/users/profile")
	rt := &route{segments: segs}

	params, ok := rt.match([]string{"users", "profile"})
	assert.True(t, ok)
	assert.Empty(t, params)

	_, ok = rt.match([]string{"users", "other"})
	assert.False(t, ok)
}

func TestRouteMatchParamConstraint(t *testing.T) {
	segs, _ := compilePattern("/users/{id:[0-9]+}")
	rt := &route{segments: segs}

	params, ok := rt.match([]string{"users", "42"})
	assert.True(t, ok)
	assert.Equal(t, "42", params["id"])

	_, ok = rt.match([]string{"users", "abc"})
	assert.False(t, ok)
}

func TestRouteMatchWildcardCapturesRest(t *testing.T) {
	segs, _ := compilePattern("/assets/*path")
	rt := &route{segments: segs}

	params, ok := rt.match([]string{"assets", "css", "app.css"})
	assert.True(t, ok)
	assert.Equal(t, "css/app.css", params["path"])
}

func TestRouteMatchWrongLength(t *testing.T) {
	segs, _ := compilePattern("/users/:id")
	rt := &route{segments: segs}

	_, ok := rt.match([]string{"users"})
	assert.False(t, ok)

	_, ok = rt.match([]string{"users", "1", "extra"})
	assert.False(t, ok)
}

func TestRouteURIFor(t *testing.T) {
	segs, _ := compilePattern("/users/:id/posts/*rest")
	rt := &route{segments: segs}

	uri, err := rt.uriFor(map[string]string{"id": "7", "rest": "a/b c"})
	assert.NoError(t, err)
	assert.Equal(t, "/users/7/posts/a/b%20c", uri)
}

func TestRouteURIForMissingParam(t *testing.T) {
	segs, _ := compilePattern("/users/:id")
	rt := &route{segments: segs}

	_, err := rt.uriFor(map[string]string{})
	assert.Error(t, err)
}

func TestEscapePathSegment(t *testing.T) {
	assert.Equal(t, "hello%20world", escapePathSegment("hello world"))
	assert.Equal(t, "a-b_c.d~e", escapePathSegment("a-b_c.d~e"))
}
