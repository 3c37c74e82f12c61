package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Client is the entry point: one logical connection shared by requests,
// events and feeds.
type Client struct {
	id      string
	cfg     Config
	agent   *agent
	subs    *subscriptionRegistry
	seq     *sequencer
	log     *slog.Logger
	metrics *metrics
	tracer  trace.Tracer

	mu     sync.Mutex
	closed bool
	active map[unsubscriber]struct{}
}

type unsubscriber interface {
	Unsubscribe()
}

// NewClient creates a new client with the given configuration.
// The client is not connected until Connect() is called.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}

	o := clientDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	logger := o.logger.With("client_id", id, "component", "realtime")

	onError := o.onError
	if onError == nil {
		onError = LogErrors(logger)
	}

	t := o.transport
	if t == nil {
		t = newWebsocketTransport(resolved.HandshakeTimeout)
	}

	m := newMetrics(o.registry, id)

	c := &Client{
		id:      id,
		cfg:     resolved,
		agent:   newAgent(resolved, t, logger, m, onError),
		subs:    newSubscriptionRegistry(),
		seq:     newSequencer(),
		log:     logger,
		metrics: m,
		tracer:  newTracer(o.tracerProvider),
		active:  make(map[unsubscriber]struct{}),
	}
	c.agent.onReconnected(c.replaySubscriptions)
	return c, nil
}

// ID returns the identifier of this client instance.
func (c *Client) ID() string {
	return c.id
}

// Connect opens the connection and, unless auth is skipped, authenticates
// with credential. It reports whether the connection is ready. Calling it on
// an open connection only re-runs a pending authentication. If the
// connection drops during authentication it returns an error wrapping
// ErrNotConnected and the reconnect cycle takes over.
func (c *Client) Connect(ctx context.Context, credential any) (bool, error) {
	ctx, span := c.startSpan(ctx, "realtime.connect", attribute.String("realtime.url", c.cfg.URL))
	ready, err := c.agent.connect(ctx, credential)
	span.SetAttributes(attribute.Bool("realtime.ready", ready))
	endSpan(span, err)
	return ready, err
}

// Disconnect closes the connection and stops any reconnect cycle. Feeds and
// watchers stay registered. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.agent.disconnect()
}

// Close unsubscribes every feed and watcher, disconnects, and rejects any
// further Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	active := make([]unsubscriber, 0, len(c.active))
	for u := range c.active {
		active = append(active, u)
	}
	c.mu.Unlock()

	for _, u := range active {
		u.Unsubscribe()
	}
	c.agent.close()
	return nil
}

// IsConnected reports whether the transport is open, authenticated or not.
func (c *Client) IsConnected() bool {
	return c.agent.isOpen()
}

// IsReady reports whether messages are written immediately rather than queued.
func (c *Client) IsReady() bool {
	return c.agent.isReady()
}

// State returns the connection state.
func (c *Client) State() State {
	return c.agent.currentState()
}

// Reauthorize re-runs authentication on the open connection and remembers
// credential for future reconnects.
func (c *Client) Reauthorize(ctx context.Context, credential any) (bool, error) {
	return c.agent.reauthorize(ctx, credential)
}

// OnDisconnect registers a callback invoked when the connection drops.
// err is nil for a clean close by the server.
func (c *Client) OnDisconnect(fn func(error)) {
	c.agent.onDisconnect(fn)
}

// OnReconnect registers a callback invoked after an automatic reconnect,
// once subscriptions have been replayed.
func (c *Client) OnReconnect(fn func()) {
	c.agent.onReconnected(fn)
}

// replaySubscriptions resends every registered subscribe message verbatim.
func (c *Client) replaySubscriptions() {
	msgs := c.subs.readInOrder()
	if len(msgs) == 0 {
		return
	}
	c.log.Info("replaying subscriptions", "count", len(msgs))
	for _, msg := range msgs {
		c.agent.send(msg)
	}
}

func (c *Client) track(u unsubscriber) {
	c.mu.Lock()
	c.active[u] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) forget(u unsubscriber) {
	c.mu.Lock()
	delete(c.active, u)
	c.mu.Unlock()
}
