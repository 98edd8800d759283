package engine

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingohall/internal/bingo"
	"bingohall/internal/events"
	"bingohall/internal/players"
	"bingohall/internal/rooms"
	"bingohall/internal/timers"
)

const testStake = 10

type sent struct {
	ids  []string
	ev   events.Event
	room bool
}

// recorder is a Notifier that keeps everything it is given.
type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Notify(ids []string, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{ids: slices.Clone(ids), ev: ev})
}

func (r *recorder) NotifyRoom(stake int, ids []string, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{ids: slices.Clone(ids), ev: ev, room: true})
}

// to returns the events of type typ addressed to id, or to anyone when id is
// empty.
func (r *recorder) to(id string, typ events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, s := range r.sent {
		if s.ev.Type != typ {
			continue
		}
		if id == "" || slices.Contains(s.ids, id) {
			out = append(out, s.ev)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	e        *Engine
	clock    *clockwork.FakeClock
	timers   *timers.Registry
	rooms    *rooms.MemoryStore
	accounts *players.MemoryStore
	notes    *recorder
	queue    []int
}

// newHarness builds an engine whose timers never fire on their own; tests
// drive countdown and draw ticks directly.
func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := clockwork.NewFakeClock()
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		clock:    clock,
		timers:   timers.NewRegistry(clockwork.NewFakeClock()),
		rooms:    rooms.NewMemoryStore(clock),
		accounts: players.NewMemoryStore(decimal.NewFromInt(100), clock),
		notes:    &recorder{},
	}
	h.e = New(cfg, Deps{
		Rooms:    h.rooms,
		Accounts: h.accounts,
		Timers:   h.timers,
		Notifier: h.notes,
		Clock:    clock,
		Picker:   h.pick,
	})
	t.Cleanup(h.e.Shutdown)
	return h
}

// pick returns queued values first, then always the lowest value so Draw
// falls back to its ascending scan.
func (h *harness) pick(n int) int {
	if len(h.queue) > 0 {
		v := h.queue[0]
		h.queue = h.queue[1:]
		return v - 1
	}
	return 0
}

func (h *harness) connect(id string) {
	h.t.Helper()
	_, err := h.e.Connect(h.ctx, "conn-"+id, id, id)
	require.NoError(h.t, err)
}

func (h *harness) join(id string, slot int) {
	h.t.Helper()
	h.connect(id)
	require.NoError(h.t, h.e.Enroll(h.ctx, id, testStake, slot))
}

func (h *harness) room() *rooms.Room {
	h.t.Helper()
	r, err := h.rooms.FetchActive(h.ctx, testStake)
	require.NoError(h.t, err)
	return r
}

func (h *harness) account(id string) *players.Account {
	h.t.Helper()
	a, err := h.accounts.Get(h.ctx, id)
	require.NoError(h.t, err)
	return a
}

func (h *harness) balance(id string) string {
	return h.account(id).Balance.String()
}

// startRound enrolls ids on slots 1..n and runs the countdown to drawing.
func (h *harness) startRound(ids ...string) {
	h.t.Helper()
	for i, id := range ids {
		h.join(id, i+1)
	}
	require.Equal(h.t, rooms.PhaseCountingDown, h.room().Phase)
	h.clock.Advance(h.e.cfg.CountdownDuration)
	h.e.countdownTick(h.ctx, testStake)
	require.Equal(h.t, rooms.PhaseDrawing, h.room().Phase)
}

// draw queues values and runs one draw tick per value.
func (h *harness) draw(values ...int) {
	h.t.Helper()
	h.queue = append(h.queue, values...)
	for range values {
		h.e.drawTick(h.ctx, testStake)
	}
}

// cardValues lists the non-free values of a slot's card on a pattern.
func cardValues(slot int, pattern int) []int {
	card := bingo.CardForSlot(slot)
	var out []int
	for _, rc := range bingo.Patterns[pattern].Cells {
		if v := card[rc[0]][rc[1]]; v != bingo.Free {
			out = append(out, int(v))
		}
	}
	return out
}

func asCells(vs []int) []bingo.Cell {
	out := make([]bingo.Cell, len(vs))
	for i, v := range vs {
		out[i] = bingo.Cell(v)
	}
	return out
}

func assertListsAligned(t *testing.T, r *rooms.Room) {
	t.Helper()
	assert.Len(t, r.Slots, len(r.Enrolled))
	assert.NoError(t, r.Validate(bingo.ValueSpace))
}
