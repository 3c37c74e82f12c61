package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func publish(mock *mockServer, nsp, topic string, v any) {
	data, _ := json.Marshal(v)
	mock.sendToClient(Message{Command: CmdPublish, Namespace: nsp, Topic: topic, Data: data})
}

func TestFeed_ReceivesPublishes(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	defer feed.Unsubscribe()

	subs := mock.waitFor(t, CmdSubscribe, 1)
	if subs[0].Namespace != "msg" || subs[0].Topic != "/t" {
		t.Errorf("subscribe = %+v, want nsp=msg topic=/t", subs[0])
	}

	for i := 1; i <= 3; i++ {
		publish(mock, "msg", "/t", i)
	}
	publish(mock, "msg", "/other", 99)

	for i := 1; i <= 3; i++ {
		select {
		case data := <-feed.C():
			if string(data) != fmt.Sprint(i) {
				t.Errorf("publish %d = %s", i, data)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for publish %d", i)
		}
	}
}

func TestFeed_UnsubscribeStopsDelivery(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	feed.Unsubscribe()

	for i := range 3 {
		publish(mock, "msg", "/t", i)
	}

	var got int
	for range feed.C() {
		got++
	}
	if got != 0 {
		t.Errorf("received %d publishes after Unsubscribe, want 0", got)
	}

	unsubs := mock.waitFor(t, CmdUnsubscribe, 1)
	if unsubs[0].Namespace != "msg" || unsubs[0].Topic != "/t" {
		t.Errorf("unsubscribe = %+v", unsubs[0])
	}
	if client.subs.size() != 0 {
		t.Errorf("registry size = %d, want 0", client.subs.size())
	}
}

func TestFeed_SubscribeError(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	defer feed.Unsubscribe()
	mock.waitFor(t, CmdSubscribe, 1)

	mock.sendToClient(Message{Command: CmdSubscribeError, Namespace: "msg", Topic: "/t", Text: "forbidden"})

	select {
	case _, ok := <-feed.C():
		if ok {
			t.Fatal("expected C to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for feed to end")
	}

	var perr *ProtocolError
	if !errors.As(feed.Err(), &perr) || perr.Text != "forbidden" {
		t.Errorf("Err() = %v, want forbidden", feed.Err())
	}
	if client.subs.size() != 0 {
		t.Error("failed feed should leave the registry")
	}
}

func activeCount(c *Client) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

func TestFeed_FailedFeedSendsNoUnsubscribe(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	mock.waitFor(t, CmdSubscribe, 1)
	mock.sendToClient(Message{Command: CmdSubscribeError, Namespace: "msg", Topic: "/t", Text: "forbidden"})

	select {
	case <-feed.C():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for feed to end")
	}
	if n := activeCount(client); n != 0 {
		t.Errorf("active = %d after subscribe error, want 0", n)
	}

	feed.Unsubscribe()
	client.SendEvent(EventParams{Name: "marker"})
	mock.waitFor(t, CmdEvent, 1)
	if got := mock.receivedWith(CmdUnsubscribe); len(got) != 0 {
		t.Errorf("unsubscribe sent for a rejected subscription: %+v", got)
	}
	if !errors.As(feed.Err(), new(*ProtocolError)) {
		t.Errorf("Err() = %v, want the subscribe error kept", feed.Err())
	}
}

func TestFeed_Renewal(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true, RenewInterval: 30 * time.Millisecond})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	subs := mock.waitFor(t, CmdSubscribe, 3)
	for _, s := range subs {
		if s.Namespace != "msg" || s.Topic != "/t" {
			t.Errorf("renewal = %+v", s)
		}
	}

	feed.Unsubscribe()
	n := len(mock.receivedWith(CmdSubscribe))
	time.Sleep(100 * time.Millisecond)
	if after := len(mock.receivedWith(CmdSubscribe)); after != n {
		t.Errorf("renewals continued after Unsubscribe: %d -> %d", n, after)
	}
}

func TestFeed_RenewalSkippedWhileDisconnected(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true, RenewInterval: 20 * time.Millisecond})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	defer feed.Unsubscribe()
	mock.waitFor(t, CmdSubscribe, 2)

	client.Disconnect()
	time.Sleep(150 * time.Millisecond)

	client.agent.mu.Lock()
	queued := client.agent.queue.len()
	client.agent.mu.Unlock()
	if queued != 0 {
		t.Errorf("queued = %d while disconnected, want no renewals queued", queued)
	}
}

func TestFeed_IgnoresPartialKeys(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	defer feed.Unsubscribe()
	mock.waitFor(t, CmdSubscribe, 1)

	// No namespace: must not match even though the concatenated key is "/t".
	mock.sendToClient(Message{Command: CmdPublish, Topic: "msg/t", Data: json.RawMessage(`1`)})
	publish(mock, "msg", "/t", 2)

	select {
	case data := <-feed.C():
		if string(data) != "2" {
			t.Errorf("data = %s, want 2", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for publish")
	}
}
