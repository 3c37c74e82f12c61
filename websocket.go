package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// websocketTransport implements transport over gorilla/websocket, one JSON
// message per text frame.
type websocketTransport struct {
	handshakeTimeout time.Duration
}

func newWebsocketTransport(handshakeTimeout time.Duration) *websocketTransport {
	return &websocketTransport{handshakeTimeout: handshakeTimeout}
}

func (t *websocketTransport) open(ctx context.Context, url string, protocols []string, events transportEvents) (transportConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.handshakeTimeout,
		Subprotocols:     protocols,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &ConnectionError{
			URL:     url,
			Reason:  err.Error(),
			Refused: errors.Is(err, websocket.ErrBadHandshake),
		}
	}

	return &websocketConn{
		conn:   conn,
		events: events,
		done:   make(chan struct{}),
	}, nil
}

// websocketConn is one gorilla connection with its read goroutine.
type websocketConn struct {
	conn   *websocket.Conn
	events transportEvents

	mu sync.Mutex // serializes writes

	done      chan struct{}
	closeOnce sync.Once
	listening sync.Once
}

func (c *websocketConn) listen() {
	c.listening.Do(func() {
		go c.readLoop()
	})
}

func (c *websocketConn) send(msg *Message) error {
	data, err := marshalMessage(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		// WriteControl may run concurrently with WriteMessage.
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))

		err = c.conn.Close()
	})
	return err
}

func (c *websocketConn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.conn.Close()
			c.events.handleClose(c, c.cleanClose(err), err)
			return
		}

		msg, err := parseMessage(data)
		if err != nil {
			c.events.handleParseError(c, data, err)
			continue
		}

		c.events.handleMessage(c, msg)
	}
}

// cleanClose reports whether the read error ended the connection cleanly:
// either we closed it, or the peer sent a normal close frame.
func (c *websocketConn) cleanClose(err error) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
