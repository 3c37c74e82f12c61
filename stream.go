package realtime

import (
	"encoding/json"
	"sync"
)

// stream decouples bus delivery from a consumer channel. push never blocks:
// values are buffered and a pump goroutine hands them to C in order. A slow
// consumer therefore never stalls the connection's read loop.
type stream struct {
	mu     sync.Mutex
	buf    []json.RawMessage
	ended  bool
	err    error
	notify chan struct{}

	out      chan json.RawMessage
	stopCh   chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
}

func newStream() *stream {
	s := &stream{
		notify: make(chan struct{}, 1),
		out:    make(chan json.RawMessage),
		stopCh: make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.pump()
	return s
}

// push queues a value for the consumer. Ignored once the stream has ended.
func (s *stream) push(v json.RawMessage) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, v)
	s.mu.Unlock()
	s.wake()
}

// fail ends the stream with err. Values already buffered are still delivered
// before C is closed.
func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.err = err
	s.mu.Unlock()
	s.wake()
}

// stop discards pending values, closes C and waits for the pump to exit.
func (s *stream) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.buf = nil
		s.mu.Unlock()
		close(s.stopCh)
	})
	<-s.exited
}

func (s *stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) pump() {
	defer close(s.exited)
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			v := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()

			select {
			case s.out <- v:
			case <-s.stopCh:
				return
			}
			continue
		}
		ended := s.ended
		s.mu.Unlock()
		if ended {
			return
		}

		select {
		case <-s.notify:
		case <-s.stopCh:
			return
		}
	}
}

// C returns the channel carrying stream values. It is closed when the stream
// ends, after which Err reports why.
func (s *stream) C() <-chan json.RawMessage {
	return s.out
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
