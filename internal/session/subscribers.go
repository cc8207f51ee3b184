package session

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription identifies one registered callback.
type Subscription struct {
	ID uuid.UUID
}

type subscribers struct {
	mu  sync.Mutex
	fns map[uuid.UUID]func()
}

func newSubscribers() *subscribers {
	return &subscribers{fns: make(map[uuid.UUID]func())}
}

func (s *subscribers) add(fn func()) Subscription {
	id := uuid.New()
	s.mu.Lock()
	s.fns[id] = fn
	s.mu.Unlock()
	return Subscription{ID: id}
}

func (s *subscribers) remove(sub Subscription) {
	s.mu.Lock()
	delete(s.fns, sub.ID)
	s.mu.Unlock()
}

// snapshot lets callbacks run without holding the lock, so a callback may
// subscribe or unsubscribe.
func (s *subscribers) snapshot() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(), 0, len(s.fns))
	for _, fn := range s.fns {
		out = append(out, fn)
	}
	return out
}
