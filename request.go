package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// RequestParams describes one request.
type RequestParams struct {
	Data      any
	Path      string
	Namespace string

	// Timeout bounds the wait for the reply. Zero waits until the reply
	// arrives or, for Request, until ctx ends.
	Timeout time.Duration
}

// RequestResponse is the outcome delivered to a RequestAsync callback.
type RequestResponse struct {
	Data      json.RawMessage
	IsTimeout bool
}

func matchReply(seq int64) func(*Message) bool {
	return func(m *Message) bool {
		return m.Sequence == seq && (m.Command == CmdRequestAck || m.Command == CmdResponseError)
	}
}

// Request sends a request and waits for its reply. A server error reply is
// returned as *ProtocolError; an expired Timeout as an error wrapping ErrTimeout.
func (c *Client) Request(ctx context.Context, p RequestParams) (json.RawMessage, error) {
	data, err := encodeData(p.Data)
	if err != nil {
		return nil, err
	}
	seq := c.seq.next()

	ctx, span := c.startSpan(ctx, "realtime.request",
		attribute.String("realtime.namespace", p.Namespace),
		attribute.String("realtime.path", p.Path),
		attribute.Int64("realtime.seq", seq),
	)

	reply := make(chan *Message, 1)
	cancel := c.agent.subscribe(matchReply(seq), func(m *Message) {
		select {
		case reply <- m:
		default:
		}
	})
	defer cancel()

	pending := c.metrics.pending.WithLabelValues("request")
	pending.Inc()
	defer pending.Dec()

	start := time.Now()
	c.agent.send(newRequestMessage(seq, p.Namespace, p.Path, data))

	var expired <-chan time.Time
	if p.Timeout > 0 {
		timer := time.NewTimer(p.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var result json.RawMessage
	select {
	case m := <-reply:
		c.metrics.requestDuration.Observe(time.Since(start).Seconds())
		if m.Command == CmdRequestAck {
			result = m.Data
		} else {
			err = newProtocolError(m, msgBadRequest)
		}
	case <-expired:
		c.metrics.timeouts.WithLabelValues("request").Inc()
		err = fmt.Errorf("request %s%s: %w", p.Namespace, p.Path, ErrTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	endSpan(span, err)
	return result, err
}

// RequestAsync sends a request and reports its outcome to exactly one of the
// callbacks, on a separate goroutine. An expired Timeout is reported to
// onResponse with IsTimeout set. The returned function abandons a request
// that has not settled yet; neither callback runs for it afterwards.
func (c *Client) RequestAsync(p RequestParams, onResponse func(RequestResponse), onError func(error)) (cancel func()) {
	data, err := encodeData(p.Data)
	if err != nil {
		if onError != nil {
			go onError(err)
		}
		return func() {}
	}
	seq := c.seq.next()

	_, span := c.startSpan(context.Background(), "realtime.request",
		attribute.String("realtime.namespace", p.Namespace),
		attribute.String("realtime.path", p.Path),
		attribute.Int64("realtime.seq", seq),
		attribute.Bool("realtime.async", true),
	)

	pending := c.metrics.pending.WithLabelValues("request")
	pending.Inc()
	start := time.Now()

	call := &pendingCall{}
	call.onSettle = func(err error) {
		pending.Dec()
		endSpan(span, err)
	}
	call.attach(
		c.agent.subscribe(matchReply(seq), func(m *Message) {
			c.metrics.requestDuration.Observe(time.Since(start).Seconds())
			if m.Command == CmdRequestAck {
				call.settle(nil, func() {
					if onResponse != nil {
						onResponse(RequestResponse{Data: m.Data})
					}
				})
				return
			}
			perr := newProtocolError(m, msgBadRequest)
			call.settle(perr, func() {
				if onError != nil {
					onError(perr)
				}
			})
		}),
	)

	c.agent.send(newRequestMessage(seq, p.Namespace, p.Path, data))

	if p.Timeout > 0 {
		call.setTimer(time.AfterFunc(p.Timeout, func() {
			c.metrics.timeouts.WithLabelValues("request").Inc()
			call.settle(ErrTimeout, func() {
				if onResponse != nil {
					onResponse(RequestResponse{IsTimeout: true})
				}
			})
		}))
	}

	return func() {
		call.settle(errors.New("request abandoned"), nil)
	}
}

// pendingCall is one in-flight correlation with at-most-once settlement.
// The first settle detaches the listener, stops the timer and runs its
// callback; later ones do nothing.
type pendingCall struct {
	mu       sync.Mutex
	settled  bool
	detach   func()
	timer    *time.Timer
	onSettle func(error)
}

func (p *pendingCall) attach(detach func()) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		detach()
		return
	}
	p.detach = detach
	p.mu.Unlock()
}

func (p *pendingCall) setTimer(t *time.Timer) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		t.Stop()
		return
	}
	p.timer = t
	p.mu.Unlock()
}

func (p *pendingCall) settle(err error, fn func()) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	detach, timer := p.detach, p.timer
	p.mu.Unlock()

	if detach != nil {
		detach()
	}
	if timer != nil {
		timer.Stop()
	}
	if p.onSettle != nil {
		p.onSettle(err)
	}
	if fn != nil {
		go fn()
	}
	return true
}
