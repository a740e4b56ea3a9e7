package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmcdole/blobnav/internal/domain"
)

func TestToggle(t *testing.T) {
	var s Set
	assert.True(t, s.Toggle("sha224-bb"))
	assert.True(t, s.Toggle("sha224-aa"))
	assert.Equal(t, []domain.Ref{"sha224-aa", "sha224-bb"}, s.Refs())

	assert.False(t, s.Toggle("sha224-bb"))
	assert.False(t, s.Has("sha224-bb"))
	assert.Equal(t, 1, s.Len())
}

func TestAddIgnoresEmptyRef(t *testing.T) {
	s := New()
	s.Add("")
	assert.False(t, s.Any())
}

func TestRetainAndClear(t *testing.T) {
	s := New()
	for _, r := range []domain.Ref{"sha224-aa", "sha224-bb", "sha224-cc"} {
		s.Add(r)
	}

	s.Retain(func(r domain.Ref) bool { return r != "sha224-bb" })
	assert.Equal(t, []domain.Ref{"sha224-aa", "sha224-cc"}, s.Refs())

	s.Retain(func(domain.Ref) bool { return false })
	assert.False(t, s.Any())
	assert.Empty(t, s.Refs())

	s.Add("sha224-dd")
	s.Clear()
	assert.Zero(t, s.Len())
}
