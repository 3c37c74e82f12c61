package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// listener is one filtered consumer of the inbound stream.
type listener struct {
	match   func(*Message) bool
	deliver func(*Message)
	active  atomic.Bool
}

// bus broadcasts every inbound message to all registered listeners whose
// filter matches. Listeners may be added or removed from inside a delivery.
type bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]*listener
	order     []uint64

	// onPanic is told about a listener that panicked; delivery to the
	// remaining listeners continues.
	onPanic func(err error, msg *Message)
}

func newBus() *bus {
	return &bus{
		listeners: make(map[uint64]*listener),
	}
}

// subscribe registers a listener and returns the function that detaches it.
// Once the detach function returns, no new deliver call is started.
func (b *bus) subscribe(match func(*Message) bool, deliver func(*Message)) (cancel func()) {
	l := &listener{match: match, deliver: deliver}
	l.active.Store(true)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = l
	b.order = append(b.order, id)
	b.mu.Unlock()

	return func() {
		l.active.Store(false)
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.listeners[id]; !ok {
			return
		}
		delete(b.listeners, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// publish delivers msg to a snapshot of the current listeners.
func (b *bus) publish(msg *Message) {
	b.mu.Lock()
	snapshot := make([]*listener, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.listeners[id])
	}
	b.mu.Unlock()

	for _, l := range snapshot {
		if !l.active.Load() {
			continue
		}
		b.dispatch(l, msg)
	}
}

func (b *bus) dispatch(l *listener, msg *Message) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(fmt.Errorf("listener panic: %v", r), msg)
		}
	}()
	if l.match != nil && !l.match(msg) {
		return
	}
	if !l.active.Load() {
		return
	}
	l.deliver(msg)
}

func (b *bus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
