package realtime

import (
	"sync/atomic"
	"time"
)

// processSequence is shared by every client in the process. It starts at the
// load time in milliseconds shifted left by 12 bits and increases by one per
// id, so ids never collide within a process run and stay below 2^53 for
// servers that decode them as doubles.
var processSequence = func() *atomic.Int64 {
	var v atomic.Int64
	v.Store(time.Now().UnixMilli() << 12)
	return &v
}()

// sequencer hands out correlation ids from the process-wide counter.
type sequencer struct {
	last *atomic.Int64
}

func newSequencer() *sequencer {
	return &sequencer{last: processSequence}
}

func (s *sequencer) next() int64 {
	return s.last.Add(1)
}
