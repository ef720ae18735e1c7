package killswitch

import (
	"context"
	"sync"
)

// InMemory implements Store with a process-local singleton.
type InMemory struct {
	mu          sync.Mutex
	initialized bool
	state       State
}

// NewInMemory creates an uninitialized in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) GetOrInit(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		s.state = State{}
		s.initialized = true
	}
	return s.state, nil
}

func (s *InMemory) Update(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.initialized = true
	return nil
}
