package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Topic is a publish/subscribe channel for one kind of event.
// It is safe for concurrent use. Handlers run synchronously in the
// emitter's goroutine, in no particular order.
type Topic[T any] struct {
	mu        sync.Mutex
	handlers  map[string]func(T)
	destroyed bool
}

// NewTopic creates an empty topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{
		handlers: make(map[string]func(T)),
	}
}

// Subscribe registers a handler and returns its subscription ID.
// On a destroyed topic, Subscribe registers nothing and returns "".
func (t *Topic[T]) Subscribe(fn func(T)) string {
	if fn == nil {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return ""
	}

	id := uuid.NewString()
	t.handlers[id] = fn
	return id
}

// Unsubscribe removes a subscription by its ID.
// Unknown IDs are ignored.
func (t *Topic[T]) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, id)
}

// Emit delivers v to all current subscribers.
// Emissions on a destroyed topic are dropped.
func (t *Topic[T]) Emit(v T) {
	t.mu.Lock()
	if t.destroyed || len(t.handlers) == 0 {
		t.mu.Unlock()
		return
	}

	// Snapshot so handlers may subscribe/unsubscribe without deadlock.
	fns := make([]func(T), 0, len(t.handlers))
	for _, fn := range t.handlers {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Destroy releases all subscribers.
// It is safe to call Destroy multiple times. After Destroy, Emit and
// Subscribe are no-ops.
func (t *Topic[T]) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.destroyed = true
	t.handlers = nil
}

// SubscriberCount returns the number of active subscriptions.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers)
}
