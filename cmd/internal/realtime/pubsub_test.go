package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicOrderAndUnsubscribe(t *testing.T) {
	var topic Topic[int]
	var got []string

	topic.Subscribe(func(v int) { got = append(got, "a") })
	unsubB := topic.Subscribe(func(v int) { got = append(got, "b") })
	topic.Subscribe(func(v int) { got = append(got, "c") })
	assert.Equal(t, 3, topic.Len())

	topic.Publish(1)
	unsubB()
	unsubB()
	topic.Publish(2)

	assert.Equal(t, []string{"a", "b", "c", "a", "c"}, got)
	assert.Equal(t, 2, topic.Len())

	topic.Clear()
	topic.Publish(3)
	assert.Len(t, got, 5)
}

func TestTopicSelfUnsubscribeDuringPublish(t *testing.T) {
	var topic Topic[string]
	calls := 0

	var unsub func()
	unsub = topic.Subscribe(func(string) {
		calls++
		unsub()
	})
	other := 0
	topic.Subscribe(func(string) { other++ })

	topic.Publish("x")
	topic.Publish("y")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestTopicNilSafe(t *testing.T) {
	var topic *Topic[int]
	topic.Publish(1)
	topic.Subscribe(func(int) {})()
	assert.Zero(t, topic.Len())
	topic.Clear()
}
