package realtime

// heartbeat answers server pings on one connection. It borrows the
// connection's write function and must be stopped before that connection is
// replaced.
type heartbeat struct {
	cancel func()
}

func startHeartbeat(b *bus, write func(*Message) error, onError func(error)) *heartbeat {
	cancel := b.subscribe(
		func(msg *Message) bool { return msg.Command == CmdPing },
		func(*Message) {
			if err := write(newPongMessage()); err != nil && onError != nil {
				onError(err)
			}
		},
	)
	return &heartbeat{cancel: cancel}
}

func (h *heartbeat) stop() {
	if h != nil {
		h.cancel()
	}
}
