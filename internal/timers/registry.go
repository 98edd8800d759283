package timers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyScheduled = errors.New("timer already scheduled")

// Task runs on every tick of a scheduled timer. ctx is cancelled once the
// timer is cancelled.
type Task func(ctx context.Context)

type entry struct {
	cancel context.CancelFunc
	ticker clockwork.Ticker
}

// Registry owns every repeating timer of the process, keyed by purpose and
// room. At most one timer is live per key; ticks of one key never overlap.
type Registry struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	active map[string]*entry
}

func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:  clock,
		active: make(map[string]*entry),
	}
}

// Start schedules task every interval under key. Callers must Cancel a live
// key before starting it again.
func (r *Registry) Start(key string, interval time.Duration, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[key]; exists {
		log.Error().Str("timer", key).Msg("timer already scheduled, refusing to start a second one")
		return ErrAlreadyScheduled
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{cancel: cancel, ticker: r.clock.NewTicker(interval)}
	r.active[key] = e

	go r.run(ctx, key, e, task)

	log.Debug().Str("timer", key).Dur("interval", interval).Msg("timer started")
	return nil
}

func (r *Registry) run(ctx context.Context, key string, e *entry, task Task) {
	defer e.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ticker.Chan():
			// Both cases can be ready at once; a cancelled timer must not fire.
			if ctx.Err() != nil {
				return
			}
			task(ctx)
		}
	}
}

// Cancel stops the timer under key. It is safe to call for unknown keys and
// from inside the timer's own task.
func (r *Registry) Cancel(key string) {
	r.mu.Lock()
	e, ok := r.active[key]
	if ok {
		delete(r.active, key)
	}
	r.mu.Unlock()

	if ok {
		e.cancel()
		log.Debug().Str("timer", key).Msg("timer cancelled")
	}
}

func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[key]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// CancelAll stops every timer; used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	entries := r.active
	r.active = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
}
