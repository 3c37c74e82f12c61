package realtime

import "context"

// transport opens connections to the server.
// The current implementation uses gorilla/websocket (websocket.go).
type transport interface {
	// open dials url offering protocols. Inbound frames and the eventual
	// close of the returned connection are reported to events.
	open(ctx context.Context, url string, protocols []string, events transportEvents) (transportConn, error)
}

// transportConn is one live connection. A fresh one is created for every
// successful open; it is never reused after close.
type transportConn interface {
	// listen starts the read goroutine. Called once, after the agent has
	// adopted the connection, so no event can arrive for an unknown conn.
	listen()

	// send writes one message. Safe for concurrent use.
	send(msg *Message) error

	// close shuts the connection down. handleClose is still reported, with clean set.
	close() error
}

// transportEvents receives notifications from a transportConn.
type transportEvents interface {
	// handleMessage is called from the connection's read goroutine for every frame.
	handleMessage(conn transportConn, msg *Message)

	// handleParseError is called for frames that could not be decoded.
	handleParseError(conn transportConn, raw []byte, err error)

	// handleClose is called once when the connection ends. clean is false
	// for errors and abnormal closes.
	handleClose(conn transportConn, clean bool, err error)
}
