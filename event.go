package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// EventParams describes one outbound event.
type EventParams struct {
	Data      any
	Name      string
	Namespace string
}

// EventResponse is the server's verdict on an acknowledged event.
type EventResponse struct {
	Ack   bool
	Error string
}

// SendEvent sends an event without waiting for an acknowledgement.
// It only fails when Data cannot be encoded.
func (c *Client) SendEvent(p EventParams) error {
	data, err := encodeData(p.Data)
	if err != nil {
		return err
	}
	c.agent.send(newEventMessage(c.seq.next(), p.Name, p.Namespace, data))
	return nil
}

// SendEventAck sends an event and waits for the server to acknowledge it.
// An event-error reply yields Ack false with the server's text and a
// *ProtocolError. The wait is bounded by ctx and Config.EventAckTimeout.
func (c *Client) SendEventAck(ctx context.Context, p EventParams) (EventResponse, error) {
	data, err := encodeData(p.Data)
	if err != nil {
		return EventResponse{}, err
	}
	seq := c.seq.next()

	ctx, span := c.startSpan(ctx, "realtime.event",
		attribute.String("realtime.namespace", p.Namespace),
		attribute.String("realtime.event", p.Name),
		attribute.Int64("realtime.seq", seq),
	)

	reply := make(chan *Message, 1)
	cancel := c.agent.subscribe(
		func(m *Message) bool {
			return m.Sequence == seq && m.Name == p.Name && m.Namespace == p.Namespace &&
				(m.Command == CmdEventAck || m.Command == CmdEventError)
		},
		func(m *Message) {
			select {
			case reply <- m:
			default:
			}
		},
	)
	defer cancel()

	pending := c.metrics.pending.WithLabelValues("event")
	pending.Inc()
	defer pending.Dec()

	if c.cfg.EventAckTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, c.cfg.EventAckTimeout)
		defer stop()
	}

	c.agent.send(newEventMessage(seq, p.Name, p.Namespace, data))

	var resp EventResponse
	select {
	case m := <-reply:
		if m.Command == CmdEventAck {
			resp.Ack = true
		} else {
			perr := newProtocolError(m, msgEventError)
			resp.Error = perr.Text
			err = perr
		}
	case <-ctx.Done():
		err = ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			c.metrics.timeouts.WithLabelValues("event").Inc()
			err = fmt.Errorf("event %s: %w", p.Name, ErrTimeout)
		}
	}

	endSpan(span, err)
	return resp, err
}

// Watcher delivers the payloads of events the server sends under one
// (name, namespace) pair.
type Watcher struct {
	client    *Client
	name      string
	namespace string
	stream    *stream

	mu        sync.Mutex
	detached  bool
	detachFn  func()
	unsubOnce sync.Once
}

// WatchEvent starts watching events called name in namespace. The watch runs
// until Unsubscribe, or until the server sends an event error for it, which
// closes C with Err set.
func (c *Client) WatchEvent(name, namespace string, opts ...WatchOption) *Watcher {
	var o watchOptions
	for _, opt := range opts {
		opt(&o)
	}

	w := &Watcher{
		client:    c,
		name:      name,
		namespace: namespace,
		stream:    newStream(),
	}
	c.track(w)

	detach := c.agent.subscribe(
		func(m *Message) bool {
			return m.Name == name && m.Namespace == namespace &&
				(m.Command == CmdEvent || m.Command == CmdEventError)
		},
		func(m *Message) {
			if m.Command == CmdEventError {
				w.stream.fail(newProtocolError(m, msgWatchError))
				w.detach()
				c.forget(w)
				return
			}
			if o.autoAck {
				c.agent.send(newEventAckMessage(m.Sequence, name, namespace))
			}
			w.stream.push(m.Data)
		},
	)
	w.setDetach(detach)

	c.log.Debug("watching event", "name", name, "namespace", namespace, "auto_ack", o.autoAck)
	return w
}

// C returns the channel of event payloads. It is closed when the watch ends.
func (w *Watcher) C() <-chan json.RawMessage {
	return w.stream.C()
}

// Err reports why C was closed; nil after Unsubscribe.
func (w *Watcher) Err() error {
	return w.stream.Err()
}

// Unsubscribe stops the watch and closes C. Nothing is sent to the server.
func (w *Watcher) Unsubscribe() {
	w.unsubOnce.Do(func() {
		w.detach()
		w.stream.stop()
		w.client.forget(w)
	})
}

// setDetach stores the listener's detach function, running it at once if
// the watch already ended during registration.
func (w *Watcher) setDetach(fn func()) {
	w.mu.Lock()
	if w.detached {
		w.mu.Unlock()
		fn()
		return
	}
	w.detachFn = fn
	w.mu.Unlock()
}

func (w *Watcher) detach() {
	w.mu.Lock()
	w.detached = true
	fn := w.detachFn
	w.detachFn = nil
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}
