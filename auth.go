package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errAuthRejected is returned by authorize when the server answers with abort.
var errAuthRejected = errors.New("authentication rejected")

// authCoordinator runs the authenticate handshake on one connection.
type authCoordinator struct {
	bus     *bus
	write   func(*Message) error
	timeout time.Duration
	done    <-chan struct{} // closed when the connection goes away
}

// authorize sends the credential and waits for the server's verdict. The
// result is true only for a connected reply. Anything else yields false with
// the cause: abort, a write failure, the timeout, ctx ending, or the
// connection closing (ErrNotConnected).
func (a *authCoordinator) authorize(ctx context.Context, credential any) (bool, error) {
	msg, err := newConnectMessage(credential)
	if err != nil {
		return false, err
	}

	verdict := make(chan *Message, 1)
	cancel := a.bus.subscribe(
		func(m *Message) bool { return m.Command == CmdConnected || m.Command == CmdAbort },
		func(m *Message) {
			select {
			case verdict <- m:
			default:
			}
		},
	)
	defer cancel()

	if a.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, a.timeout)
		defer stop()
	}

	if err := a.write(msg); err != nil {
		return false, fmt.Errorf("send authenticate: %w", err)
	}

	select {
	case reply := <-verdict:
		if reply.Command == CmdConnected {
			return true, nil
		}
		if reply.Text != "" {
			return false, fmt.Errorf("%w: %s", errAuthRejected, reply.Text)
		}
		return false, errAuthRejected
	case <-a.done:
		return false, fmt.Errorf("authenticate: %w", ErrNotConnected)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, fmt.Errorf("authenticate: %w", ErrTimeout)
		}
		return false, ctx.Err()
	}
}
