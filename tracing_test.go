package realtime

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// recordingProvider remembers the name of every span started through it.
type recordingProvider struct {
	noop.TracerProvider

	mu    sync.Mutex
	spans []string
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return recordingTracer{provider: p}
}

func (p *recordingProvider) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.spans)
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingProvider
}

func (t recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, name)
	t.provider.mu.Unlock()
	return t.Tracer.Start(ctx, name, opts...)
}

func TestClient_WithTracerProvider(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	mock.setOnMsg(func(msg Message) {
		switch msg.Command {
		case CmdRequest:
			mock.sendToClient(Message{Command: CmdRequestAck, Sequence: msg.Sequence})
		case CmdEvent:
			mock.sendToClient(Message{Command: CmdEventAck, Sequence: msg.Sequence, Name: msg.Name})
		}
	})

	provider := &recordingProvider{}
	client := newTestClient(t, Config{URL: wsURL, SkipAuth: true}, WithTracerProvider(provider))
	connectClient(t, client, nil)

	if _, err := client.Request(context.Background(), RequestParams{Path: "/x", Timeout: 2 * time.Second}); err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if _, err := client.SendEventAck(context.Background(), EventParams{Name: "saved"}); err != nil {
		t.Fatalf("SendEventAck() error: %v", err)
	}

	got := provider.names()
	for _, want := range []string{"realtime.connect", "realtime.request", "realtime.event"} {
		if !slices.Contains(got, want) {
			t.Errorf("spans = %v, missing %q", got, want)
		}
	}
}
