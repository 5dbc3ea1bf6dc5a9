package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBuffer(t *testing.T) {
	var b StreamBuffer

	assert.False(t, b.Append("ignored"))
	assert.Empty(t, b.Text())

	require.True(t, b.Start())
	assert.True(t, b.Append("Hello "))
	assert.True(t, b.Append("world"))
	assert.Equal(t, 2, b.Chunks())
	assert.Equal(t, "Hello world", b.Text())

	text, ok := b.Finalize()
	require.True(t, ok)
	assert.Equal(t, "Hello world", text)
	assert.False(t, b.Active())
	assert.Empty(t, b.Text())
	assert.Zero(t, b.Chunks())

	_, ok = b.Finalize()
	assert.False(t, ok)
}

func TestStreamBufferRestartAndDiscard(t *testing.T) {
	var b StreamBuffer

	b.Start()
	b.Append("first")
	assert.False(t, b.Start(), "second start reports a restart")
	assert.Empty(t, b.Text())

	b.Append("second")
	assert.True(t, b.Discard())
	assert.False(t, b.Active())
	assert.Empty(t, b.Text())
	assert.False(t, b.Discard())
}
