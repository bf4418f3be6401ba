package notification

import (
	"context"
	"sync"
)

// MemorySink records notifications for assertions in tests.
type MemorySink struct {
	mu       sync.Mutex
	delivered []Notification
	failWith  error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes every subsequent delivery return err.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemorySink) Deliver(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.delivered = append(s.delivered, n)
	return nil
}

// Delivered returns a snapshot of everything delivered so far.
func (s *MemorySink) Delivered() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.delivered...)
}

// ByEvent filters delivered notifications by event type.
func (s *MemorySink) ByEvent(event EventType) []Notification {
	var out []Notification
	for _, n := range s.Delivered() {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}
