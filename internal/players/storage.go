package players

import (
	"context"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound    = errors.New("account not found")
	ErrUnavailable = errors.New("account storage unavailable")
)

// Store reads and writes one account record at a time and appends ledger
// entries.
type Store interface {
	GetOrCreate(ctx context.Context, id, name string) (*Account, error)
	Get(ctx context.Context, id string) (*Account, error)
	Save(ctx context.Context, a *Account) error
	AppendLedger(ctx context.Context, e LedgerEntry) error
}

type MemoryStore struct {
	mu              sync.Mutex
	accounts        map[string]*Account
	ledger          []LedgerEntry
	startingBalance decimal.Decimal
	clock           clockwork.Clock
}

func NewMemoryStore(startingBalance decimal.Decimal, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		accounts:        make(map[string]*Account),
		startingBalance: startingBalance,
		clock:           clock,
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, id, name string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		a = &Account{
			ID:           id,
			Name:         name,
			Balance:      s.startingBalance,
			TotalWagered: decimal.Zero,
			TotalWon:     decimal.Zero,
			LastSeen:     s.clock.Now(),
		}
		s.accounts[id] = a
	} else if name != "" && a.Name != name {
		a.Name = name
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) Save(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.accounts[a.ID] = &c
	return nil
}

func (s *MemoryStore) AppendLedger(ctx context.Context, e LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, e)
	return nil
}

// Ledger returns a copy of every entry, optionally filtered to one participant.
func (s *MemoryStore) Ledger(participantID string) []LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LedgerEntry, 0, len(s.ledger))
	for _, e := range s.ledger {
		if participantID == "" || e.ParticipantID == participantID {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) GetList() []*Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		c := *a
		list = append(list, &c)
	}
	return list
}
