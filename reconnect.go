package realtime

import "time"

// reconnectSchedule walks a fixed list of delays, one per attempt.
type reconnectSchedule struct {
	delays  []time.Duration
	attempt int
}

func newReconnectSchedule(delays []time.Duration) *reconnectSchedule {
	return &reconnectSchedule{delays: delays}
}

// next returns the wait before the next attempt, or false once every attempt
// has been used.
func (s *reconnectSchedule) next() (time.Duration, bool) {
	if s.attempt >= len(s.delays) {
		return 0, false
	}
	d := s.delays[s.attempt]
	s.attempt++
	return d, true
}

// attempts reports how many attempts have been handed out.
func (s *reconnectSchedule) attempts() int {
	return s.attempt
}

func (s *reconnectSchedule) reset() {
	s.attempt = 0
}
