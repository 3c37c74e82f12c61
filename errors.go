package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sentinel errors for client state.
var (
	ErrNotConnected = errors.New("client is not connected")
	ErrClientClosed = errors.New("client is closed")
	ErrQueueFull    = errors.New("outbound queue is full")
	ErrTimeout      = errors.New("TIMEOUT")
)

// Default error texts used when the server omits a message.
const (
	msgBadRequest      = "Bad request"
	msgSubscribeFailed = "Subscribe failed"
	msgWatchError      = "Watch event error"
	msgEventError      = "Event error"
)

// ProtocolError is an explicit error reply from the server, addressed to one
// request, event or subscription.
type ProtocolError struct {
	Command   Command
	Sequence  int64
	Namespace string
	Text      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error [%s nsp=%s seq=%d]: %s", e.Command, e.Namespace, e.Sequence, e.Text)
}

func newProtocolError(msg *Message, fallback string) *ProtocolError {
	text := msg.Text
	if text == "" {
		text = fallback
	}
	return &ProtocolError{
		Command:   msg.Command,
		Sequence:  msg.Sequence,
		Namespace: msg.Namespace,
		Text:      text,
	}
}

// ConnectionError represents a failure to open or keep the transport.
type ConnectionError struct {
	URL    string
	Reason string

	// Refused is set when the server answered but rejected the WebSocket upgrade.
	Refused bool
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s]: %s", e.URL, e.Reason)
}

// ErrorKind classifies SDK-level errors that cannot be returned to a caller.
type ErrorKind int

const (
	ErrParseFailure   ErrorKind = iota // inbound frame couldn't be decoded
	ErrListenerPanic                   // an inbound listener panicked
	ErrQueueOverflow                   // outbound queue full, message dropped
	ErrTransportWrite                  // failed to write to the connection
	ErrAuthRejected                    // server refused the credential
	ErrServerAbort                     // server aborted the session
)

var errorKindNames = [...]string{
	ErrParseFailure:   "ErrParseFailure",
	ErrListenerPanic:  "ErrListenerPanic",
	ErrQueueOverflow:  "ErrQueueOverflow",
	ErrTransportWrite: "ErrTransportWrite",
	ErrAuthRejected:   "ErrAuthRejected",
	ErrServerAbort:    "ErrServerAbort",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// SDKError represents an error that the SDK could not deliver to a direct caller.
// These errors are routed to the ErrorHandler configured with WithErrorHandler.
type SDKError struct {
	Kind      ErrorKind
	Command   Command
	Sequence  int64
	Cause     error
	Raw       []byte // raw frame (for parse failures)
	Timestamp time.Time
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (cmd=%s seq=%d)", e.Kind, e.Cause, e.Command, e.Sequence)
	}
	return fmt.Sprintf("%s (cmd=%s seq=%d)", e.Kind, e.Command, e.Sequence)
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ErrorHandler is called for every SDK-level error that cannot be returned
// to a direct caller.
type ErrorHandler func(SDKError)

// LogErrors returns an ErrorHandler that logs all SDK errors to the given logger.
func LogErrors(logger *slog.Logger) ErrorHandler {
	return func(e SDKError) {
		attrs := []any{
			"kind", e.Kind.String(),
			"cmd", e.Command.String(),
			"seq", e.Sequence,
		}
		if e.Cause != nil {
			attrs = append(attrs, "error", e.Cause)
		}
		logger.Warn("realtime sdk error", attrs...)
	}
}
