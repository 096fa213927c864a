package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConversation_AppendOrder(t *testing.T) {
	c := NewConversation()
	c.Append(RoleUser, "first")
	c.Append(RoleAssistant, "second")
	c.Append(RoleUser, "third")

	want := []Turn{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "second"},
		{Role: RoleUser, Content: "third"},
	}
	if diff := cmp.Diff(want, c.Turns()); diff != "" {
		t.Errorf("Turns mismatch (-want +got):\n%s", diff)
	}
}

func TestConversation_LastN(t *testing.T) {
	c := NewConversation()
	for i := 0; i < 5; i++ {
		c.Append(RoleUser, fmt.Sprintf("msg-%d", i))
	}

	last := c.LastN(3)
	if len(last) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(last))
	}
	if last[0].Content != "msg-2" || last[2].Content != "msg-4" {
		t.Errorf("unexpected window: %v", last)
	}

	if got := c.LastN(100); len(got) != 5 {
		t.Errorf("LastN beyond length should return all turns, got %d", len(got))
	}
	if got := c.LastN(0); got != nil {
		t.Errorf("LastN(0) should be nil, got %v", got)
	}
}

func TestConversation_Reset(t *testing.T) {
	c := NewConversation()
	c.Append(RoleUser, "hello")
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("expected empty conversation after reset, got %d turns", c.Len())
	}
}

func TestConversation_TurnsIsCopy(t *testing.T) {
	c := NewConversation()
	c.Append(RoleUser, "original")

	turns := c.Turns()
	turns[0].Content = "mutated"

	if c.Turns()[0].Content != "original" {
		t.Error("Turns returned a reference to internal state")
	}
}

func TestConversation_ConcurrentAppend(t *testing.T) {
	c := NewConversation()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Append(RoleUser, fmt.Sprintf("w%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 1000 {
		t.Errorf("expected 1000 turns, got %d", c.Len())
	}
}
