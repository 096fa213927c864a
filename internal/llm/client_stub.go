package llm

import (
	"context"
	"fmt"
	"sync"
)

// StubClient replays a scripted sequence of replies. It backs the selftest
// command and the package tests, so scripted runs work without credentials.
type StubClient struct {
	mu       sync.Mutex
	replies  []string
	next     int
	requests []CompletionRequest
}

// NewStubClient creates a stub that returns the given replies in order.
func NewStubClient(replies ...string) *StubClient {
	return &StubClient{replies: replies}
}

// Complete returns the next scripted reply, or an error once the script is
// exhausted.
func (s *StubClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.next >= len(s.replies) {
		return "", fmt.Errorf("stub script exhausted after %d replies", len(s.replies))
	}
	reply := s.replies[s.next]
	s.next++
	return reply, nil
}

// Calls returns how many completions have been requested.
func (s *StubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of all requests seen so far.
func (s *StubClient) Requests() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}
