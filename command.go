package realtime

import "fmt"

// Command selects the meaning of a wire message and which of its fields are set.
// Numeric values are fixed by the server protocol.
type Command int

const (
	CmdError      Command = 0 // internal server error
	CmdOpen       Command = 1 // server hello after the socket opens (ping interval etc.)
	CmdConnect    Command = 2 // client authenticate
	CmdConnected  Command = 3 // server accepted authentication
	CmdAbort      Command = 4 // server refused the connection; the client should not reconnect
	CmdDisconnect Command = 5 // server/client disconnect notice
	CmdPing       Command = 6
	CmdPong       Command = 7

	CmdRequest       Command = 20 // one-shot request
	CmdRequestAck    Command = 21
	CmdResponseError Command = 22

	CmdEvent      Command = 23 // event in either direction
	CmdEventAck   Command = 24
	CmdEventError Command = 25

	CmdSubscribe        Command = 30
	CmdSubscribeAck     Command = 31
	CmdSubscribeError   Command = 32
	CmdUnsubscribe      Command = 33
	CmdUnsubscribeAck   Command = 34
	CmdUnsubscribeError Command = 35
	CmdPublish          Command = 36 // server publishes to a subscribed topic
	CmdPublishAck       Command = 37
	CmdPublishError     Command = 38
)

var commandNames = map[Command]string{
	CmdError:            "error",
	CmdOpen:             "open",
	CmdConnect:          "connect",
	CmdConnected:        "connected",
	CmdAbort:            "abort",
	CmdDisconnect:       "disconnect",
	CmdPing:             "ping",
	CmdPong:             "pong",
	CmdRequest:          "request",
	CmdRequestAck:       "request_ack",
	CmdResponseError:    "response_error",
	CmdEvent:            "event",
	CmdEventAck:         "event_ack",
	CmdEventError:       "event_error",
	CmdSubscribe:        "subscribe",
	CmdSubscribeAck:     "subscribe_ack",
	CmdSubscribeError:   "subscribe_error",
	CmdUnsubscribe:      "unsubscribe",
	CmdUnsubscribeAck:   "unsubscribe_ack",
	CmdUnsubscribeError: "unsubscribe_error",
	CmdPublish:          "publish",
	CmdPublishAck:       "publish_ack",
	CmdPublishError:     "publish_error",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// State is the connection agent's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuth
	StateReady
	StateReconnecting
	StateAborted
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateAwaitingAuth: "awaiting_auth",
	StateReady:        "ready",
	StateReconnecting: "reconnecting",
	StateAborted:      "aborted",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ConnectionStatus is a notification delivered through Config.OnStatus when the
// connection changes in a way the caller may want to react to.
type ConnectionStatus int

const (
	StatusClosed                        ConnectionStatus = 0 // closed cleanly
	StatusLost                          ConnectionStatus = 1 // dropped without a clean close
	StatusRetriesExceeded               ConnectionStatus = 2 // reconnect schedule exhausted; no further automatic attempts
	StatusUnreachable                   ConnectionStatus = 3 // dial failed
	StatusUnsupported                   ConnectionStatus = 4 // server refused the WebSocket upgrade
	StatusUnreachableScheduledReconnect ConnectionStatus = 5
	StatusLostScheduledReconnect        ConnectionStatus = 6
	StatusAborted                       ConnectionStatus = 7 // server aborted the session; no reconnect
)

var statusNames = [...]string{
	StatusClosed:                        "closed",
	StatusLost:                          "lost",
	StatusRetriesExceeded:               "retries_exceeded",
	StatusUnreachable:                   "unreachable",
	StatusUnsupported:                   "unsupported",
	StatusUnreachableScheduledReconnect: "unreachable_scheduled_reconnect",
	StatusLostScheduledReconnect:        "lost_scheduled_reconnect",
	StatusAborted:                       "aborted",
}

func (s ConnectionStatus) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("ConnectionStatus(%d)", int(s))
}
