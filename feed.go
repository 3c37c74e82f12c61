package realtime

import (
	"encoding/json"
	"sync"
	"time"
)

// Feed is a subscription to one (namespace, topic) pair. It survives
// reconnects: the subscribe message is replayed whenever the connection is
// re-established, and renewed periodically when Config.RenewInterval is set.
type Feed struct {
	client    *Client
	topic     string
	namespace string
	key       string
	stream    *stream

	mu       sync.Mutex
	ended    bool
	failed   bool // the server rejected the subscription
	detachFn func()

	stopRenew chan struct{}
	renewWG   sync.WaitGroup
	stopOnce  sync.Once
	unsubOnce sync.Once
}

// CreateFeed subscribes to topic in namespace. Published payloads arrive on
// C. A subscribe error from the server closes C with Err set.
func (c *Client) CreateFeed(topic, namespace string) *Feed {
	f := &Feed{
		client:    c,
		topic:     topic,
		namespace: namespace,
		key:       feedKey(namespace, topic),
		stream:    newStream(),
		stopRenew: make(chan struct{}),
	}
	c.track(f)

	f.setDetach(c.agent.subscribe(
		func(m *Message) bool {
			if m.Command != CmdPublish && m.Command != CmdSubscribeError {
				return false
			}
			return m.Topic != "" && m.Namespace != "" && feedKey(m.Namespace, m.Topic) == f.key
		},
		func(m *Message) {
			if m.Command == CmdSubscribeError {
				f.terminate(newProtocolError(m, msgSubscribeFailed))
				return
			}
			f.stream.push(m.Data)
		},
	))

	msg := newSubscribeMessage(namespace, topic)
	c.subs.create(f.key, msg)
	c.agent.send(msg)

	if interval := c.cfg.RenewInterval; interval > 0 {
		f.renewWG.Add(1)
		go f.renew(interval)
	}

	c.log.Debug("feed created", "namespace", namespace, "topic", topic)
	return f
}

// renew resends the subscribe message every interval until the feed ends.
func (f *Feed) renew(interval time.Duration) {
	defer f.renewWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopRenew:
			return
		case <-ticker.C:
			// While the connection is down the reconnect replay restores
			// the subscription, so queuing renewals would only pile up.
			if !f.client.agent.isReady() {
				continue
			}
			f.client.log.Debug("renewing subscription", "namespace", f.namespace, "topic", f.topic)
			f.client.agent.send(newSubscribeMessage(f.namespace, f.topic))
		}
	}
}

// C returns the channel of published payloads. It is closed when the feed ends.
func (f *Feed) C() <-chan json.RawMessage {
	return f.stream.C()
}

// Err reports why C was closed; nil after Unsubscribe.
func (f *Feed) Err() error {
	return f.stream.Err()
}

// Topic returns the subscribed topic.
func (f *Feed) Topic() string {
	return f.topic
}

// Namespace returns the subscribed namespace.
func (f *Feed) Namespace() string {
	return f.namespace
}

// Unsubscribe tells the server to stop publishing, removes the feed from
// reconnect replay and closes C. No payload is delivered afterwards. On a
// feed that already failed it only discards undelivered payloads.
func (f *Feed) Unsubscribe() {
	f.unsubOnce.Do(func() {
		if !f.hasFailed() {
			f.client.subs.delete(f.key)
			f.client.agent.send(newUnsubscribeMessage(f.namespace, f.topic))
		}
		f.detach()
		f.stopRenewal()
		f.stream.stop()
		f.client.forget(f)
		f.client.log.Debug("feed unsubscribed", "namespace", f.namespace, "topic", f.topic)
	})
}

// terminate ends the feed after a subscribe error. Buffered payloads are
// still delivered before C closes.
func (f *Feed) terminate(err error) {
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()

	f.client.subs.delete(f.key)
	f.stream.fail(err)
	f.detach()
	f.stopRenewal()
	f.client.forget(f)
	f.client.log.Warn("subscription failed", "namespace", f.namespace, "topic", f.topic, "error", err)
}

func (f *Feed) stopRenewal() {
	f.stopOnce.Do(func() {
		close(f.stopRenew)
	})
	f.renewWG.Wait()
}

func (f *Feed) hasFailed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *Feed) setDetach(fn func()) {
	f.mu.Lock()
	if f.ended {
		f.mu.Unlock()
		fn()
		return
	}
	f.detachFn = fn
	f.mu.Unlock()
}

func (f *Feed) detach() {
	f.mu.Lock()
	f.ended = true
	fn := f.detachFn
	f.detachFn = nil
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}
