package realtime

import "sync"

// Topic is an ordered, multi-subscriber event channel.
//
// Subscribers are invoked synchronously in registration order on the publishing goroutine.
// Publish works on a snapshot, so a handler may unsubscribe itself (or others) while running.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. Calling the returned
// function more than once is harmless.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if t == nil || fn == nil {
		return func() {}
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(id) })
	}
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.subs {
		if s.id == id {
			// Copy instead of shifting in place: snapshots held by Publish stay valid.
			next := make([]subscription[T], 0, len(t.subs)-1)
			next = append(next, t.subs[:i]...)
			next = append(next, t.subs[i+1:]...)
			t.subs = next
			return
		}
	}
}

// Publish delivers v to every current subscriber, in order.
func (t *Topic[T]) Publish(v T) {
	if t == nil {
		return
	}

	t.mu.RLock()
	snap := t.subs
	t.mu.RUnlock()

	for _, s := range snap {
		s.fn(v)
	}
}

// Len returns the number of current subscribers.
func (t *Topic[T]) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Clear removes every subscriber.
func (t *Topic[T]) Clear() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.subs = nil
	t.mu.Unlock()
}
