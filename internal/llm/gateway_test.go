package llm

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// mockClient lets tests script Complete behavior directly.
type mockClient struct {
	CompleteFunc func(ctx context.Context, req CompletionRequest) (string, error)
	calls        int
}

func (m *mockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.calls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "ok", nil
}

func TestGateway_Success(t *testing.T) {
	client := &mockClient{
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
			return "hello from model", nil
		},
	}
	g := NewGateway(client, nil, nil)

	got := g.Complete(context.Background(), Prompt("", "hi", 0))
	if got != "hello from model" {
		t.Errorf("expected model reply, got %q", got)
	}
	if client.calls != 1 {
		t.Errorf("expected exactly one call, got %d", client.calls)
	}
}

func TestGateway_FailureBecomesText(t *testing.T) {
	client := &mockClient{
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
			return "", fmt.Errorf("connection refused")
		},
	}
	g := NewGateway(client, nil, nil)

	got := g.Complete(context.Background(), Prompt("", "hi", 0))
	if !strings.Contains(got, "Error calling completion service") {
		t.Errorf("expected error text, got %q", got)
	}
	if !strings.Contains(got, "connection refused") {
		t.Errorf("expected cause in error text, got %q", got)
	}
	// No retry on failure.
	if client.calls != 1 {
		t.Errorf("expected exactly one call, got %d", client.calls)
	}
}

func TestGateway_NotificationsEmitted(t *testing.T) {
	var notes []string
	g := NewGateway(&mockClient{}, func(note string) {
		notes = append(notes, note)
	}, nil)

	g.Complete(context.Background(), Prompt("", "hi", 500))

	if len(notes) != 2 {
		t.Fatalf("expected pre and post notes, got %v", notes)
	}
	if !strings.Contains(notes[0], "max tokens: 500") {
		t.Errorf("unexpected pre-call note: %q", notes[0])
	}
	if !strings.Contains(notes[1], "Completion received") {
		t.Errorf("unexpected post-call note: %q", notes[1])
	}
}

func TestGateway_PanickingNotifierDoesNotFailCall(t *testing.T) {
	g := NewGateway(&mockClient{
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
			return "still fine", nil
		},
	}, func(string) {
		panic("observer bug")
	}, nil)

	got := g.Complete(context.Background(), Prompt("", "hi", 0))
	if got != "still fine" {
		t.Errorf("notifier panic leaked into result: %q", got)
	}
}

func TestStubClient_ReplaysInOrder(t *testing.T) {
	stub := NewStubClient("one", "two")

	for _, want := range []string{"one", "two"} {
		got, err := stub.Complete(context.Background(), Prompt("", "x", 0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	if _, err := stub.Complete(context.Background(), Prompt("", "x", 0)); err == nil {
		t.Error("expected error after script exhausted")
	}
	if stub.Calls() != 3 {
		t.Errorf("expected 3 recorded calls, got %d", stub.Calls())
	}
}
