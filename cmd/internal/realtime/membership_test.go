package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemberSet(t *testing.T) {
	var s MemberSet

	assert.True(t, s.Add("alice"))
	assert.False(t, s.Add("alice"))
	assert.False(t, s.Add(" alice "))
	assert.False(t, s.Add(""))
	assert.True(t, s.Add("bob"))
	assert.True(t, s.Add("carol"))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"alice", "bob", "carol"}, s.List())

	assert.False(t, s.Remove("dave"))
	assert.Equal(t, 3, s.Len())

	assert.True(t, s.Remove("bob"))
	assert.False(t, s.Has("bob"))
	assert.Equal(t, []string{"alice", "carol"}, s.List())

	list := s.List()
	list[0] = "mallory"
	assert.True(t, s.Has("alice"))

	s.Reset()
	assert.Zero(t, s.Len())
	assert.True(t, s.Add("alice"))
}
