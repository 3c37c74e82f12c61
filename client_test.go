package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// discardErrors is a no-op ErrorHandler used in tests that don't assert error handler behavior.
var discardErrors = WithErrorHandler(func(SDKError) {})

func newTestClient(t *testing.T, cfg Config, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient(cfg, append([]Option{discardErrors}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func connectClient(t *testing.T, client *Client, credential any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ready, err := client.Connect(ctx, credential)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if !ready {
		t.Fatal("Connect() should be ready")
	}
}

// authServer answers authenticate with connected when the credential is "secret".
func authServer(mock *mockServer) {
	mock.setOnMsg(func(msg Message) {
		if msg.Command != CmdConnect {
			return
		}
		if string(msg.Data) == `"secret"` {
			mock.sendToClient(Message{Command: CmdConnected})
			return
		}
		mock.sendToClient(Message{Command: CmdAbort, Text: "invalid credential"})
	})
}

func TestNewClient_ValidConfig(t *testing.T) {
	client, err := NewClient(Config{URL: "ws://localhost:4000/socket"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if client.ID() == "" {
		t.Error("ID() should not be empty")
	}
	if client.IsConnected() {
		t.Error("new client should not be connected")
	}
	if client.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", client.State())
	}
}

func TestNewClient_MissingURL(t *testing.T) {
	_, err := NewClient(Config{})
	if err == nil {
		t.Fatal("NewClient() should error when URL is missing")
	}
}

func TestNewClient_DistinctIDs(t *testing.T) {
	a, _ := NewClient(Config{URL: "ws://localhost:4000"})
	b, _ := NewClient(Config{URL: "ws://localhost:4000"})
	if a.ID() == b.ID() {
		t.Error("clients should get distinct IDs")
	}
}

func TestClient_ConnectAndClose(t *testing.T) {
	_, wsURL := setupMockServer(t)

	var opened int
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true, OnOpen: func() { opened++ }})
	connectClient(t, client, nil)

	if !client.IsConnected() || !client.IsReady() {
		t.Error("client should be connected and ready")
	}
	if opened != 1 {
		t.Errorf("OnOpen called %d times, want 1", opened)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if client.IsConnected() {
		t.Error("client should not be connected after Close")
	}
	if _, err := client.Connect(context.Background(), nil); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Connect() after Close = %v, want ErrClientClosed", err)
	}
}

func TestClient_Connect_Auth(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	authServer(mock)

	client := newTestClient(t, Config{URL: wsURL})
	connectClient(t, client, "secret")

	if client.State() != StateReady {
		t.Errorf("State() = %s, want ready", client.State())
	}
}

func TestClient_Connect_AuthRejected(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	authServer(mock)

	client := newTestClient(t, Config{URL: wsURL})
	ready, err := client.Connect(context.Background(), "wrong")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if ready {
		t.Fatal("Connect() should not be ready with a rejected credential")
	}
	if !client.IsConnected() {
		t.Error("transport should stay open after rejection")
	}
	if client.IsReady() {
		t.Error("client should not be ready after rejection")
	}
}

func TestClient_Reauthorize(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	authServer(mock)

	client := newTestClient(t, Config{URL: wsURL})
	if ready, _ := client.Connect(context.Background(), "wrong"); ready {
		t.Fatal("first Connect() should not be ready")
	}

	ready, err := client.Reauthorize(context.Background(), "secret")
	if err != nil {
		t.Fatalf("Reauthorize() error: %v", err)
	}
	if !ready {
		t.Fatal("Reauthorize() with a valid credential should be ready")
	}
}

func TestClient_Reauthorize_NotConnected(t *testing.T) {
	client := newTestClient(t, Config{URL: "ws://localhost:4000"})
	if _, err := client.Reauthorize(context.Background(), "secret"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Reauthorize() = %v, want ErrNotConnected", err)
	}
}

func TestClient_Connect_Unreachable(t *testing.T) {
	statuses := make(chan ConnectionStatus, 8)
	client := newTestClient(t, Config{
		URL:             "ws://127.0.0.1:1/socket",
		SkipAuth:        true,
		ReconnectDelays: []time.Duration{time.Hour},
		OnStatus:        func(s ConnectionStatus) { statuses <- s },
	})

	ready, err := client.Connect(context.Background(), nil)
	if ready || err == nil {
		t.Fatalf("Connect() = %v, %v; want false and an error", ready, err)
	}
	if s := <-statuses; s != StatusUnreachable {
		t.Errorf("first status = %s, want unreachable", s)
	}
	if s := <-statuses; s != StatusUnreachableScheduledReconnect {
		t.Errorf("second status = %s, want unreachable_scheduled_reconnect", s)
	}
	if client.State() != StateReconnecting {
		t.Errorf("State() = %s, want reconnecting", client.State())
	}
}

func TestClient_AnswersPing(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})
	connectClient(t, client, nil)

	mock.sendToClient(Message{Command: CmdPing})
	mock.waitFor(t, CmdPong, 1)
}

func TestClient_QueuedBeforeConnect(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})

	if err := client.SendEvent(EventParams{Name: "first", Namespace: "msg"}); err != nil {
		t.Fatalf("SendEvent() error: %v", err)
	}
	client.CreateFeed("/t", "msg")
	connectClient(t, client, nil)
	client.SendEvent(EventParams{Name: "after", Namespace: "msg"})

	mock.waitFor(t, CmdEvent, 2)
	var order []string
	for _, m := range mock.getReceived() {
		switch m.Command {
		case CmdEvent:
			order = append(order, m.Name)
		case CmdSubscribe:
			order = append(order, m.Topic)
		}
	}
	want := []string{"first", "/t", "after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestClient_ReplaysSubscriptionsOnReconnect(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{
		URL:             wsURL,
		SkipAuth:        true,
		ReconnectDelays: []time.Duration{20 * time.Millisecond},
	})

	reconnected := make(chan struct{}, 1)
	client.OnReconnect(func() { reconnected <- struct{}{} })

	connectClient(t, client, nil)
	client.CreateFeed("/t", "msg")
	client.CreateFeed("/u", "msg")
	mock.waitFor(t, CmdSubscribe, 2)

	mock.drop()

	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reconnect")
	}

	subs := mock.waitFor(t, CmdSubscribe, 4)
	if subs[2].Topic != "/t" || subs[3].Topic != "/u" {
		t.Errorf("replayed %q, %q; want /t then /u", subs[2].Topic, subs[3].Topic)
	}
	if mock.connections() != 2 {
		t.Errorf("connections = %d, want 2", mock.connections())
	}
}

func TestClient_UnsubscribedFeedNotReplayed(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{
		URL:             wsURL,
		SkipAuth:        true,
		ReconnectDelays: []time.Duration{20 * time.Millisecond},
	})

	reconnected := make(chan struct{}, 1)
	client.OnReconnect(func() { reconnected <- struct{}{} })

	connectClient(t, client, nil)
	feed := client.CreateFeed("/t", "msg")
	mock.waitFor(t, CmdSubscribe, 1)
	feed.Unsubscribe()
	mock.waitFor(t, CmdUnsubscribe, 1)

	mock.drop()
	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reconnect")
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(mock.receivedWith(CmdSubscribe)); n != 1 {
		t.Errorf("subscribe messages = %d, want 1", n)
	}
}

func TestClient_OnDisconnect(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true, ReconnectDelays: []time.Duration{}})

	called := make(chan error, 1)
	client.OnDisconnect(func(err error) { called <- err })
	connectClient(t, client, nil)

	mock.drop()

	select {
	case err := <-called:
		if err == nil {
			t.Error("abrupt drop should report an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for OnDisconnect")
	}
}

func TestClient_ServerCloseIsNotRetried(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	statuses := make(chan ConnectionStatus, 8)
	client := newTestClient(t, Config{
		URL:             wsURL,
		SkipAuth:        true,
		ReconnectDelays: []time.Duration{10 * time.Millisecond},
		OnStatus:        func(s ConnectionStatus) { statuses <- s },
	})
	connectClient(t, client, nil)

	mock.closeClean()

	select {
	case s := <-statuses:
		if s != StatusClosed {
			t.Errorf("status = %s, want closed", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for status")
	}

	time.Sleep(100 * time.Millisecond)
	if mock.connections() != 1 {
		t.Errorf("connections = %d, want 1", mock.connections())
	}
}

func TestClient_CloseUnsubscribesFeeds(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true})
	connectClient(t, client, nil)

	feed := client.CreateFeed("/t", "msg")
	watcher := client.WatchEvent("ping", "msg")
	mock.waitFor(t, CmdSubscribe, 1)

	client.Close()

	if _, ok := <-feed.C(); ok {
		t.Error("feed channel should be closed after Close")
	}
	if _, ok := <-watcher.C(); ok {
		t.Error("watcher channel should be closed after Close")
	}
	mock.waitFor(t, CmdUnsubscribe, 1)
}

func TestClient_ErrorHandler_ParseFailure(t *testing.T) {
	mock, wsURL := setupMockServer(t)

	var mu sync.Mutex
	var got []SDKError
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true}, WithErrorHandler(func(e SDKError) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}))
	connectClient(t, client, nil)

	mock.sendRaw("{broken")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Kind != ErrParseFailure {
		t.Fatalf("errors = %v, want one ErrParseFailure", got)
	}
	if string(got[0].Raw) != "{broken" {
		t.Errorf("Raw = %q, want the offending frame", got[0].Raw)
	}
}

func TestClient_Metrics(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	mock.setOnMsg(func(msg Message) {
		if msg.Command == CmdRequest {
			mock.sendToClient(Message{Command: CmdRequestAck, Sequence: msg.Sequence, Data: json.RawMessage(`{}`)})
		}
	})

	registry := prometheus.NewRegistry()
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true}, WithMetricsRegistry(registry))
	connectClient(t, client, nil)

	if _, err := client.Request(context.Background(), RequestParams{Path: "/x", Namespace: "msg"}); err != nil {
		t.Fatalf("Request() error: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		if mf.GetName() != "realtime_messages_sent_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "command" && l.GetValue() == "request" && m.GetCounter().GetValue() != 1 {
					t.Errorf("messages_sent_total{command=request} = %v, want 1", m.GetCounter().GetValue())
				}
			}
		}
	}
	for _, name := range []string{"realtime_messages_sent_total", "realtime_request_duration_seconds"} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
