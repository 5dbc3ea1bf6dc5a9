package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoints(t *testing.T) {
	cases := []struct {
		base string
		room string
		want string
	}{
		{base: "ws://localhost:8000", want: "ws://localhost:8000/ws/chat"},
		{base: "ws://localhost:8000/", want: "ws://localhost:8000/ws/chat"},
		{base: "https://api.example.com/prefix?x=1", want: "https://api.example.com/prefix/ws/chat"},
		{base: "ws://localhost:8000", room: "abc", want: "ws://localhost:8000/ws/team/abc"},
		{base: "wss://h", room: " team one ", want: "wss://h/ws/team/team%20one"},
	}
	for _, tc := range cases {
		var (
			got string
			err error
		)
		if tc.room == "" {
			got, err = ChatEndpoint(tc.base)
		} else {
			got, err = RoomEndpoint(tc.base, tc.room)
		}
		require.NoError(t, err, tc.base)
		assert.Equal(t, tc.want, got)
	}

	_, err := ChatEndpoint("ftp://host")
	assert.Error(t, err)
	_, err = ChatEndpoint("localhost:8000")
	assert.Error(t, err)
	_, err = RoomEndpoint("ws://h", "a/b")
	assert.ErrorIs(t, err, ErrInvalidRoomID)
}

func TestWithToken(t *testing.T) {
	got, err := withToken("ws://h/ws/chat", "a b&c")
	require.NoError(t, err)
	assert.Equal(t, "ws://h/ws/chat?token=a+b%26c", got)

	got, err = withToken("ws://h/ws/chat", "")
	require.NoError(t, err)
	assert.Equal(t, "ws://h/ws/chat", got)

	assert.Equal(t, "/team/abc", RoomLink("abc"))
}
