package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// agent owns the single logical connection: dialing, authentication, the
// heartbeat, the outbound queue and the reconnect cycle. Upper layers only
// see send and the inbound bus.
type agent struct {
	cfg       Config
	transport transport
	bus       *bus
	log       *slog.Logger
	metrics   *metrics
	onError   ErrorHandler

	connectMu sync.Mutex // one connect/auth sequence at a time
	sendMu    sync.Mutex // orders direct writes against drains

	mu           sync.Mutex
	state        State
	conn         transportConn
	connDone     chan struct{} // closed when conn is torn down
	ready        bool
	draining     bool
	queue        *outboundQueue
	heartbeat    *heartbeat
	credential   any
	epoch        uint64 // bumped whenever the connection is torn down on purpose
	reconnecting bool
	reconnectGen uint64
	stopLoop     context.CancelFunc
	exhausted    bool // reconnect schedule used up or server abort
	closed       bool

	hooksMu          sync.Mutex
	reconnectedHooks []func()
	disconnectHooks  []func(error)
}

func newAgent(cfg Config, t transport, log *slog.Logger, m *metrics, onError ErrorHandler) *agent {
	a := &agent{
		cfg:       cfg,
		transport: t,
		bus:       newBus(),
		log:       log,
		metrics:   m,
		onError:   onError,
		queue:     newOutboundQueue(cfg.QueueSize),
	}
	a.bus.onPanic = func(err error, msg *Message) {
		a.reportError(SDKError{Kind: ErrListenerPanic, Command: msg.Command, Sequence: msg.Sequence, Cause: err})
	}
	return a
}

// connect opens the transport if needed and authenticates. It reports whether
// the connection is ready. A dial failure schedules a reconnect cycle.
func (a *agent) connect(ctx context.Context, credential any) (bool, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false, ErrClientClosed
	}
	a.credential = credential
	a.mu.Unlock()

	return a.establish(ctx, true)
}

func (a *agent) establish(ctx context.Context, scheduleOnFail bool) (bool, error) {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false, ErrClientClosed
	}
	if a.conn != nil && a.ready {
		a.mu.Unlock()
		a.log.Debug("connect called on a ready connection")
		return true, nil
	}
	conn := a.conn
	credential := a.credential
	epoch := a.epoch
	if conn == nil {
		a.setState(StateConnecting)
	}
	a.mu.Unlock()

	if conn == nil {
		c, err := a.transport.open(ctx, a.cfg.URL, a.cfg.Protocols, a)
		if err != nil {
			a.log.Warn("dial failed", "url", a.cfg.URL, "error", err)
			a.mu.Lock()
			if a.epoch == epoch && a.conn == nil && a.state == StateConnecting {
				if a.reconnecting {
					a.setState(StateReconnecting)
				} else {
					a.setState(StateDisconnected)
				}
			}
			a.mu.Unlock()
			a.notifyStatus(dialStatus(err))
			if scheduleOnFail {
				a.scheduleReconnect(StatusUnreachableScheduledReconnect)
			}
			return false, err
		}

		a.mu.Lock()
		if a.epoch != epoch || a.closed {
			// Disconnected while dialing.
			a.mu.Unlock()
			c.close()
			return false, ErrNotConnected
		}
		a.conn = c
		a.connDone = make(chan struct{})
		a.heartbeat = startHeartbeat(a.bus, a.writer(c), func(err error) {
			a.reportError(SDKError{Kind: ErrTransportWrite, Command: CmdPong, Cause: err})
		})
		a.mu.Unlock()

		c.listen()
		conn = c
		a.log.Info("connection opened", "url", a.cfg.URL)
		if a.cfg.OnOpen != nil {
			a.cfg.OnOpen()
		}
	}

	if a.cfg.SkipAuth {
		a.markReady(conn, true)
		return true, nil
	}
	if credential == nil {
		a.log.Warn("auth required but no credential supplied")
		a.markReady(conn, false)
		return false, nil
	}
	return a.authenticate(ctx, conn, credential)
}

// dialStatus classifies a failed dial for OnStatus.
func dialStatus(err error) ConnectionStatus {
	var connErr *ConnectionError
	if errors.As(err, &connErr) && connErr.Refused {
		return StatusUnsupported
	}
	return StatusUnreachable
}

// authenticate runs the handshake on conn and updates readiness with the result.
func (a *agent) authenticate(ctx context.Context, conn transportConn, credential any) (bool, error) {
	a.mu.Lock()
	if a.conn != conn {
		a.mu.Unlock()
		return false, ErrNotConnected
	}
	a.ready = false
	a.setState(StateAwaitingAuth)
	done := a.connDone
	a.mu.Unlock()

	auth := &authCoordinator{
		bus:     a.bus,
		write:   a.writer(conn),
		timeout: a.cfg.AuthTimeout,
		done:    done,
	}
	ok, err := auth.authorize(ctx, credential)
	if errors.Is(err, ErrNotConnected) {
		// The drop is already being handled by handleClose or disconnect.
		a.log.Warn("connection lost during authentication")
		return false, err
	}
	if err != nil {
		a.log.Warn("authentication failed", "error", err)
		if errors.Is(err, errAuthRejected) {
			a.reportError(SDKError{Kind: ErrAuthRejected, Command: CmdAbort, Cause: err})
		}
	} else {
		a.log.Info("authenticated")
	}
	a.markReady(conn, ok)
	return ok, nil
}

// reauthorize re-runs the handshake on the live connection with a new credential.
func (a *agent) reauthorize(ctx context.Context, credential any) (bool, error) {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()

	a.mu.Lock()
	conn := a.conn
	if conn == nil {
		a.mu.Unlock()
		return false, ErrNotConnected
	}
	a.credential = credential
	a.mu.Unlock()

	return a.authenticate(ctx, conn, credential)
}

// markReady records the readiness of conn and drains the queue on the
// transition to ready.
func (a *agent) markReady(conn transportConn, ready bool) {
	a.mu.Lock()
	if a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.ready = ready
	if ready {
		a.exhausted = false
		a.setState(StateReady)
	} else {
		a.setState(StateAwaitingAuth)
	}
	a.mu.Unlock()

	if ready {
		a.drain(conn)
	}
}

// send writes msg now when the connection is ready and no drain is running,
// and queues it otherwise. It never fails for a closed or unready transport.
func (a *agent) send(msg *Message) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	if a.conn == nil || !a.ready || a.draining {
		err := a.enqueueLocked(msg)
		a.mu.Unlock()
		if err != nil {
			a.reportError(SDKError{Kind: ErrQueueOverflow, Command: msg.Command, Sequence: msg.Sequence, Cause: err})
		}
		return
	}
	conn := a.conn
	a.mu.Unlock()

	if err := a.write(conn, msg); err != nil {
		a.reportError(SDKError{Kind: ErrTransportWrite, Command: msg.Command, Sequence: msg.Sequence, Cause: err})
		a.mu.Lock()
		qerr := a.enqueueLocked(msg)
		a.mu.Unlock()
		if qerr != nil {
			a.reportError(SDKError{Kind: ErrQueueOverflow, Command: msg.Command, Sequence: msg.Sequence, Cause: qerr})
		}
	}
}

// drain flushes the queue in FIFO order. Messages queued while it runs are
// picked up by the next pass, so they still go out after everything the
// earlier passes copied.
func (a *agent) drain(conn transportConn) {
	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		return
	}
	a.draining = true
	a.mu.Unlock()

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	for {
		a.mu.Lock()
		if a.conn != conn || !a.ready {
			a.draining = false
			a.mu.Unlock()
			return
		}
		batch := a.queue.drain()
		a.metrics.queueDepth.Set(0)
		if len(batch) == 0 {
			a.draining = false
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		a.log.Debug("draining outbound queue", "messages", len(batch))
		for i, msg := range batch {
			if err := a.write(conn, msg); err != nil {
				a.mu.Lock()
				a.queue.requeue(batch[i:])
				a.metrics.queueDepth.Set(float64(a.queue.len()))
				a.draining = false
				a.mu.Unlock()
				a.reportError(SDKError{Kind: ErrTransportWrite, Command: msg.Command, Sequence: msg.Sequence, Cause: err})
				return
			}
		}
	}
}

func (a *agent) enqueueLocked(msg *Message) error {
	if err := a.queue.enqueue(msg); err != nil {
		a.metrics.queueOverflows.Inc()
		return err
	}
	a.metrics.queueDepth.Set(float64(a.queue.len()))
	return nil
}

func (a *agent) write(conn transportConn, msg *Message) error {
	if err := conn.send(msg); err != nil {
		return err
	}
	a.metrics.messagesSent.WithLabelValues(msg.Command.String()).Inc()
	return nil
}

// writer binds write to one connection, for borrowers like auth and heartbeat.
func (a *agent) writer(conn transportConn) func(*Message) error {
	return func(msg *Message) error {
		return a.write(conn, msg)
	}
}

// subscribe attaches a listener to the inbound stream.
func (a *agent) subscribe(match func(*Message) bool, deliver func(*Message)) func() {
	return a.bus.subscribe(match, deliver)
}

func (a *agent) handleMessage(conn transportConn, msg *Message) {
	a.mu.Lock()
	current := a.conn == conn
	state := a.state
	a.mu.Unlock()
	if !current {
		return
	}

	a.metrics.messagesReceived.WithLabelValues(msg.Command.String()).Inc()

	switch msg.Command {
	case CmdOpen:
		var open OpenData
		if len(msg.Data) > 0 {
			json.Unmarshal(msg.Data, &open)
		}
		a.log.Debug("server open", "ping_interval", open.PingInterval, "ping_timeout", open.PingTimeout)
	case CmdAbort:
		if state != StateAwaitingAuth {
			a.abortSession(conn, msg)
			return
		}
	case CmdDisconnect:
		a.log.Info("server sent disconnect", "message", msg.Text)
	}

	a.bus.publish(msg)
}

func (a *agent) handleParseError(conn transportConn, raw []byte, err error) {
	a.reportError(SDKError{Kind: ErrParseFailure, Raw: raw, Cause: err})
}

func (a *agent) handleClose(conn transportConn, clean bool, err error) {
	a.mu.Lock()
	if a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	a.ready = false
	a.endConnLocked()
	hb := a.heartbeat
	a.heartbeat = nil
	a.setState(StateDisconnected)
	a.mu.Unlock()

	hb.stop()
	a.fireDisconnect(err)

	if clean {
		a.log.Info("connection closed by server")
		a.notifyStatus(StatusClosed)
		return
	}

	a.log.Warn("connection lost", "error", err)
	a.notifyStatus(StatusLost)
	if a.cfg.OnClose != nil {
		a.cfg.OnClose(err)
	}
	a.scheduleReconnect(StatusLostScheduledReconnect)
}

// abortSession handles a server abort outside the auth handshake: the
// connection is dropped and not retried.
func (a *agent) abortSession(conn transportConn, msg *Message) {
	a.mu.Lock()
	if a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.epoch++
	a.conn = nil
	a.ready = false
	a.exhausted = true
	a.endConnLocked()
	hb := a.heartbeat
	a.heartbeat = nil
	a.setState(StateAborted)
	a.mu.Unlock()

	hb.stop()
	conn.close()

	a.log.Warn("session aborted by server", "message", msg.Text)
	a.reportError(SDKError{Kind: ErrServerAbort, Command: msg.Command, Cause: newProtocolError(msg, "aborted")})
	a.fireDisconnect(newProtocolError(msg, "aborted"))
	a.notifyStatus(StatusAborted)
}

// scheduleReconnect starts a reconnect cycle unless one is running, the
// schedule was already exhausted, or the client is closed.
func (a *agent) scheduleReconnect(status ConnectionStatus) {
	a.mu.Lock()
	if a.closed || a.reconnecting || a.exhausted || len(a.cfg.ReconnectDelays) == 0 {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.reconnecting = true
	a.reconnectGen++
	gen := a.reconnectGen
	a.stopLoop = cancel
	a.setState(StateReconnecting)
	a.mu.Unlock()

	a.notifyStatus(status)
	go a.reconnectLoop(ctx, gen)
}

func (a *agent) reconnectLoop(ctx context.Context, gen uint64) {
	defer func() {
		a.mu.Lock()
		if a.reconnectGen == gen {
			a.reconnecting = false
			if a.stopLoop != nil {
				a.stopLoop()
				a.stopLoop = nil
			}
		}
		a.mu.Unlock()
	}()

	schedule := newReconnectSchedule(a.cfg.ReconnectDelays)
	for {
		delay, ok := schedule.next()
		if !ok {
			break
		}
		a.log.Info("reconnect scheduled", "attempt", schedule.attempts(), "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		a.metrics.reconnectAttempts.Inc()
		ready, err := a.establish(ctx, false)
		if ctx.Err() != nil {
			return
		}
		if !ready {
			a.log.Warn("reconnect attempt failed", "attempt", schedule.attempts(), "error", err)
			continue
		}

		a.mu.Lock()
		if a.conn == nil {
			// Dropped again before we could announce it; keep going.
			a.mu.Unlock()
			schedule.reset()
			continue
		}
		if a.reconnectGen == gen {
			a.reconnecting = false
			if a.stopLoop != nil {
				a.stopLoop()
				a.stopLoop = nil
			}
		}
		a.mu.Unlock()

		a.metrics.reconnects.Inc()
		a.log.Info("reconnected", "attempt", schedule.attempts())
		a.fireReconnected()
		return
	}

	a.mu.Lock()
	if a.reconnectGen != gen {
		a.mu.Unlock()
		return
	}
	a.exhausted = true
	if a.conn == nil {
		a.setState(StateAborted)
	}
	a.mu.Unlock()

	a.log.Error("reconnect attempts exhausted", "attempts", schedule.attempts())
	a.notifyStatus(StatusRetriesExceeded)
}

// disconnect closes the connection and cancels any reconnect cycle. Idempotent.
func (a *agent) disconnect() {
	a.mu.Lock()
	a.epoch++
	if a.stopLoop != nil {
		a.stopLoop()
		a.stopLoop = nil
	}
	a.reconnecting = false
	a.reconnectGen++
	conn := a.conn
	a.conn = nil
	a.ready = false
	a.endConnLocked()
	hb := a.heartbeat
	a.heartbeat = nil
	a.setState(StateDisconnected)
	a.mu.Unlock()

	hb.stop()
	if conn != nil {
		conn.close()
		a.log.Info("disconnected")
	}
}

// endConnLocked wakes everything waiting on the current connection. a.mu must be held.
func (a *agent) endConnLocked() {
	if a.connDone != nil {
		close(a.connDone)
		a.connDone = nil
	}
}

// close disconnects and refuses any further connect.
func (a *agent) close() {
	a.mu.Lock()
	a.closed = true
	a.queue.clear()
	a.metrics.queueDepth.Set(0)
	a.mu.Unlock()
	a.disconnect()
}

func (a *agent) isOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

func (a *agent) isReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil && a.ready
}

func (a *agent) currentState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// setState must be called with a.mu held.
func (a *agent) setState(s State) {
	if a.state == s {
		return
	}
	a.log.Debug("state change", "from", a.state.String(), "to", s.String())
	a.state = s
}

func (a *agent) onReconnected(fn func()) {
	a.hooksMu.Lock()
	a.reconnectedHooks = append(a.reconnectedHooks, fn)
	a.hooksMu.Unlock()
}

func (a *agent) onDisconnect(fn func(error)) {
	a.hooksMu.Lock()
	a.disconnectHooks = append(a.disconnectHooks, fn)
	a.hooksMu.Unlock()
}

func (a *agent) fireReconnected() {
	a.hooksMu.Lock()
	hooks := append([]func(){}, a.reconnectedHooks...)
	a.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (a *agent) fireDisconnect(err error) {
	a.hooksMu.Lock()
	hooks := append([]func(error){}, a.disconnectHooks...)
	a.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (a *agent) notifyStatus(s ConnectionStatus) {
	a.log.Debug("connection status", "status", s.String())
	if a.cfg.OnStatus != nil {
		a.cfg.OnStatus(s)
	}
}

func (a *agent) reportError(e SDKError) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if a.onError != nil {
		a.onError(e)
	}
}
