package realtime

import "sync"

// subscriptionRegistry remembers the subscribe message behind every live feed,
// keyed by namespace+topic, so the set can be replayed after a reconnect.
// Iteration follows first-insertion order; replacing an entry keeps its slot.
type subscriptionRegistry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Message
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		entries: make(map[string]*Message),
	}
}

func (r *subscriptionRegistry) create(key string, msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; !exists {
		r.order = append(r.order, key)
	}
	r.entries[key] = msg
}

func (r *subscriptionRegistry) read(key string) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.entries[key]
	return msg, ok
}

func (r *subscriptionRegistry) delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; !exists {
		return
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// readInOrder returns the registered subscribe messages in insertion order.
func (r *subscriptionRegistry) readInOrder() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Message, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key])
	}
	return out
}

func (r *subscriptionRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
