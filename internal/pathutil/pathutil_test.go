package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentDir(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/tmp/toto/", "/tmp/"},
		{"/tmp/", "/"},
		{"/", ""},
		{"", ""},
		{"C:/Pg/Br/", "C:/Pg/"},
		{"C:/", ""},
		{"@bp@/d.dat", "@bp@/"},
		{"@bp@/", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParentDir(c.in), "ParentDir(%q)", c.in)
	}
}

func TestParentDirChainTerminates(t *testing.T) {
	p := "/a/b/c/d/"
	steps := 0
	for p != "" && steps < 10 {
		p = ParentDir(p)
		steps++
	}
	assert.Less(t, steps, 10, "ParentDir chain should reach empty quickly")
	assert.Equal(t, "", p)
}

func TestBasenameDir(t *testing.T) {
	assert.Equal(t, "b/", BasenameDir("/a/b/"))
	assert.Equal(t, "x", BasenameDir("/a/b/x"))
	assert.Equal(t, "a/", BasenameDir("/a/"))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, EscapeLike("100%"))
	assert.Equal(t, `a\_b`, EscapeLike("a_b"))
	assert.Equal(t, `a\\b`, EscapeLike(`a\b`))
	assert.Equal(t, "plain", EscapeLike("plain"))
}
