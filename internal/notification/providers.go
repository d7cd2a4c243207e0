package notification

import (
	"context"
	"fmt"
	"sync"
)

// ConsolePusher logs pushes to stdout (for development).
type ConsolePusher struct{}

// Push logs the push to console.
func (ConsolePusher) Push(_ context.Context, token, title, message string) error {
	fmt.Printf("[PUSH] To: %s..., Title: %s, Message: %s\n", shortToken(token), title, message)
	return nil
}

// MockPusher is a mock push transport for testing.
type MockPusher struct {
	mu         sync.RWMutex
	sent       []string
	failOnPush bool
}

// NewMockPusher creates a new mock pusher.
func NewMockPusher() *MockPusher {
	return &MockPusher{}
}

// Push records the push (mock implementation).
func (p *MockPusher) Push(_ context.Context, token, title, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOnPush {
		return fmt.Errorf("mock push failure")
	}
	p.sent = append(p.sent, token+":"+title)
	return nil
}

// SetFailOnPush sets whether Push should fail.
func (p *MockPusher) SetFailOnPush(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnPush = fail
}

// Sent returns all recorded pushes as "token:title" pairs.
func (p *MockPusher) Sent() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, len(p.sent))
	copy(out, p.sent)
	return out
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
