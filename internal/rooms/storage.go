package rooms

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrUnavailable marks storage faults the caller may retry.
var ErrUnavailable = errors.New("room storage unavailable")

// Store persists one room per stake tier.
type Store interface {
	// FetchActive returns the room of stake, creating an empty enrolling room
	// when none exists.
	FetchActive(ctx context.Context, stake int) (*Room, error)
	Save(ctx context.Context, room *Room) error
	List(ctx context.Context) ([]*Room, error)
	Delete(ctx context.Context, stake int) error
}

type MemoryStore struct {
	mu    sync.Mutex
	rooms map[int]*Room
	clock clockwork.Clock
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		rooms: make(map[int]*Room),
		clock: clock,
	}
}

func (s *MemoryStore) FetchActive(ctx context.Context, stake int) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[stake]
	if !ok {
		r = New(uuid.New().String(), stake, s.clock.Now())
		s.rooms[stake] = r
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := room.Clone()
	c.UpdatedAt = s.clock.Now()
	room.UpdatedAt = c.UpdatedAt
	s.rooms[room.Stake] = c
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r.Clone())
	}
	return list, nil
}

func (s *MemoryStore) Delete(ctx context.Context, stake int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, stake)
	return nil
}
