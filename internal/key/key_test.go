package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	assert.True(t, New("teams", "t1").Equal(New("teams", "t1")))
	assert.False(t, New("teams", "t1").Equal(New("teams", "t2")))
	assert.False(t, New("teams").Equal(New("teams", "t1")))
	assert.True(t, New().Equal(Key{}))
}

func TestHasPrefix(t *testing.T) {
	k := New("teams", "t1", "members")
	assert.True(t, k.HasPrefix(New("teams")))
	assert.True(t, k.HasPrefix(New("teams", "t1")))
	assert.True(t, k.HasPrefix(k))
	assert.True(t, k.HasPrefix(Key{}))
	assert.False(t, k.HasPrefix(New("team")))
	assert.False(t, k.HasPrefix(New("teams", "t2")))
	assert.False(t, New("teams").HasPrefix(k))
}

func TestStringInjective(t *testing.T) {
	// Segment boundaries must not be forgeable via separator characters
	// inside a segment.
	a := New("teams", "t1")
	b := New("teams/t1")
	assert.NotEqual(t, a.String(), b.String())

	c := New(`a\`, "b")
	d := New(`a`, `\b`)
	assert.NotEqual(t, c.String(), d.String())

	// The empty key and a key holding one empty segment are distinct.
	assert.NotEqual(t, Key{}.String(), New("").String())
	assert.NotEqual(t, New("a", "").String(), New("a").String())
}

func TestParseRoundTrip(t *testing.T) {
	keys := []Key{
		New("teams"),
		New("teams", "t1"),
		New("teams", "list", "filter=active"),
		New("with/slash", `with\backslash`),
		New("", "empty", ""),
		New(""),
		New("0"),
		Key{},
	}
	for _, k := range keys {
		parsed, err := Parse(k.String())
		require.NoError(t, err)
		assert.True(t, k.Equal(parsed), "round trip of %q", k.String())
	}
}

func TestParseDanglingEscape(t *testing.T) {
	_, err := Parse(`teams\`)
	require.Error(t, err)
}

func TestOf(t *testing.T) {
	k := Of("teams", 42, true)
	assert.True(t, k.Equal(New("teams", "42", "true")))
}

func TestAppendDoesNotAlias(t *testing.T) {
	base := New("teams")
	child := base.Append("t1")
	grandchild := base.Append("t2")
	assert.True(t, child.Equal(New("teams", "t1")))
	assert.True(t, grandchild.Equal(New("teams", "t2")))
	assert.True(t, base.Equal(New("teams")))
}
