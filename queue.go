package realtime

// outboundQueue buffers messages that could not be written yet, in call order.
// It is owned by the agent and only touched under the agent's lock.
type outboundQueue struct {
	items    []*Message
	capacity int
}

func newOutboundQueue(capacity int) *outboundQueue {
	return &outboundQueue{capacity: capacity}
}

// enqueue appends msg. When the queue is full the message is rejected;
// nothing already queued is evicted.
func (q *outboundQueue) enqueue(msg *Message) error {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, msg)
	return nil
}

// requeue puts msgs back at the head, ahead of anything queued since they
// were taken out.
func (q *outboundQueue) requeue(msgs []*Message) {
	if len(msgs) == 0 {
		return
	}
	items := make([]*Message, 0, len(msgs)+len(q.items))
	items = append(items, msgs...)
	q.items = append(items, q.items...)
}

// drain returns every queued message in FIFO order and leaves the queue empty.
func (q *outboundQueue) drain() []*Message {
	out := q.items
	q.items = nil
	return out
}

func (q *outboundQueue) clear() {
	q.items = nil
}

func (q *outboundQueue) len() int {
	return len(q.items)
}
