package realtime

import (
	"errors"
	"testing"
)

func TestBus_FiltersByMatch(t *testing.T) {
	b := newBus()
	var pings, all int
	b.subscribe(func(m *Message) bool { return m.Command == CmdPing }, func(*Message) { pings++ })
	b.subscribe(nil, func(*Message) { all++ })

	b.publish(&Message{Command: CmdPing})
	b.publish(&Message{Command: CmdPublish})

	if pings != 1 || all != 2 {
		t.Errorf("pings=%d all=%d, want 1 and 2", pings, all)
	}
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	b := newBus()
	var n int
	cancel := b.subscribe(nil, func(*Message) { n++ })

	b.publish(&Message{})
	cancel()
	cancel()
	b.publish(&Message{})

	if n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
	if b.len() != 0 {
		t.Errorf("len() = %d, want 0", b.len())
	}
}

func TestBus_CancelDuringDelivery(t *testing.T) {
	b := newBus()
	var second int
	var cancelSecond func()
	b.subscribe(nil, func(*Message) { cancelSecond() })
	cancelSecond = b.subscribe(nil, func(*Message) { second++ })

	b.publish(&Message{})
	if second != 0 {
		t.Errorf("listener cancelled earlier in the same publish still ran %d times", second)
	}
}

func TestBus_SubscribeDuringDelivery(t *testing.T) {
	b := newBus()
	var late int
	b.subscribe(nil, func(*Message) {
		b.subscribe(nil, func(*Message) { late++ })
	})

	b.publish(&Message{})
	if late != 0 {
		t.Errorf("listener added during publish ran %d times in that publish", late)
	}
}

func TestBus_PanicIsIsolated(t *testing.T) {
	b := newBus()
	var reported error
	b.onPanic = func(err error, _ *Message) { reported = err }

	var after int
	b.subscribe(nil, func(*Message) { panic(errors.New("boom")) })
	b.subscribe(nil, func(*Message) { after++ })

	b.publish(&Message{})

	if reported == nil {
		t.Error("panic should be reported")
	}
	if after != 1 {
		t.Errorf("listener after the panicking one ran %d times, want 1", after)
	}
}
