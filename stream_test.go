package realtime

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestStream_DeliversInOrder(t *testing.T) {
	s := newStream()
	defer s.stop()

	for _, v := range []string{"1", "2", "3"} {
		s.push(json.RawMessage(v))
	}
	for _, want := range []string{"1", "2", "3"} {
		select {
		case got := <-s.C():
			if string(got) != want {
				t.Errorf("got %s, want %s", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for value")
		}
	}
}

func TestStream_FailDeliversBufferedFirst(t *testing.T) {
	s := newStream()
	defer s.stop()

	s.push(json.RawMessage("1"))
	s.fail(errors.New("done"))
	s.push(json.RawMessage("2"))

	var got []string
	for v := range s.C() {
		got = append(got, string(v))
	}
	if len(got) != 1 || got[0] != "1" {
		t.Errorf("values = %v, want [1]", got)
	}
	if s.Err() == nil || s.Err().Error() != "done" {
		t.Errorf("Err() = %v, want done", s.Err())
	}
}

func TestStream_StopDiscardsAndCloses(t *testing.T) {
	s := newStream()
	s.push(json.RawMessage("1"))
	s.stop()
	s.stop()

	for v := range s.C() {
		// The pump may already be offering the first value.
		if string(v) != "1" {
			t.Errorf("unexpected value %s after stop", v)
		}
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.Err())
	}
}

func TestStream_PushNeverBlocks(t *testing.T) {
	s := newStream()
	defer s.stop()

	done := make(chan struct{})
	go func() {
		for range 1000 {
			s.push(json.RawMessage("0"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked without a reader")
	}
}
