package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bingohall/internal/bingo"
	"bingohall/internal/events"
	"bingohall/internal/players"
	"bingohall/internal/presence"
	"bingohall/internal/rooms"
	"bingohall/internal/timers"
)

// Metrics receives lifecycle counters. The engine never depends on the
// result.
type Metrics interface {
	RoundSettled(stake int, outcome string, payout decimal.Decimal)
	ClaimRejected(stake int, code string)
	ValueDrawn(stake int)
	CountdownAborted(stake int, reason string)
	RoomQuarantined(stake int)
}

type NoOpMetrics struct{}

func (NoOpMetrics) RoundSettled(int, string, decimal.Decimal) {}
func (NoOpMetrics) ClaimRejected(int, string)                 {}
func (NoOpMetrics) ValueDrawn(int)                            {}
func (NoOpMetrics) CountdownAborted(int, string)              {}
func (NoOpMetrics) RoomQuarantined(int)                       {}

// Deps are the collaborators of an Engine. Rooms and Accounts are required.
type Deps struct {
	Rooms    rooms.Store
	Accounts players.Store
	Presence *presence.Tracker
	Timers   *timers.Registry
	Notifier events.Notifier
	Metrics  Metrics
	Clock    clockwork.Clock
	Picker   bingo.Picker
}

// Engine drives every room through enrolling, countingDown, drawing and
// settling. All mutations of a room happen under that stake's lock, and any
// account touched while holding it is locked after the room.
type Engine struct {
	cfg      Config
	rooms    rooms.Store
	accounts players.Store
	presence *presence.Tracker
	timers   *timers.Registry
	notifier events.Notifier
	metrics  Metrics
	clock    clockwork.Clock
	pick     bingo.Picker

	roomLocks    keyedMutex
	accountLocks keyedMutex

	claimMu  sync.Mutex
	claiming map[int]struct{}
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Presence == nil {
		deps.Presence = presence.NewTracker()
	}
	if deps.Timers == nil {
		deps.Timers = timers.NewRegistry(deps.Clock)
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Discard{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NoOpMetrics{}
	}
	if deps.Picker == nil {
		deps.Picker = bingo.DefaultPicker
	}
	return &Engine{
		cfg:          cfg,
		rooms:        deps.Rooms,
		accounts:     deps.Accounts,
		presence:     deps.Presence,
		timers:       deps.Timers,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		clock:        deps.Clock,
		pick:         deps.Picker,
		roomLocks:    keyedMutex{locks: make(map[string]*refMutex)},
		accountLocks: keyedMutex{locks: make(map[string]*refMutex)},
		claiming:     make(map[int]struct{}),
	}
}

func (e *Engine) Config() Config              { return e.cfg }
func (e *Engine) Presence() *presence.Tracker { return e.presence }

// Shutdown stops every countdown and draw timer.
func (e *Engine) Shutdown() {
	e.timers.CancelAll()
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func stakeKey(stake int) string     { return strconv.Itoa(stake) }
func countdownKey(stake int) string { return "countdown:" + strconv.Itoa(stake) }
func drawKey(stake int) string      { return "draw:" + strconv.Itoa(stake) }

func (e *Engine) tryLockClaim(stake int) bool {
	e.claimMu.Lock()
	defer e.claimMu.Unlock()
	if _, busy := e.claiming[stake]; busy {
		return false
	}
	e.claiming[stake] = struct{}{}
	return true
}

func (e *Engine) unlockClaim(stake int) {
	e.claimMu.Lock()
	defer e.claimMu.Unlock()
	delete(e.claiming, stake)
}

type phaseGuard func(rooms.Phase) bool

func inPhase(ps ...rooms.Phase) phaseGuard {
	return func(p rooms.Phase) bool { return slices.Contains(ps, p) }
}

func anyPhase(rooms.Phase) bool { return true }

// withFreshRoom locks the stake, re-reads its room, and hands it to fn when
// the phase passes guard. The room is saved when fn asks for it. A room that
// fails validation is quarantined instead.
func (e *Engine) withFreshRoom(ctx context.Context, stake int, guard phaseGuard, fn func(r *rooms.Room) (bool, error)) (*rooms.Room, error) {
	return e.withFreshRoomCommit(ctx, stake, guard, fn, nil)
}

// withFreshRoomCommit is withFreshRoom with a commit step that runs once fn
// and the save have succeeded, while the stake is still locked. Timer starts
// and cancels go there so they stay ordered with the room writes.
func (e *Engine) withFreshRoomCommit(ctx context.Context, stake int, guard phaseGuard, fn func(r *rooms.Room) (bool, error), commit func()) (*rooms.Room, error) {
	unlock := e.roomLocks.lock(stakeKey(stake))
	defer unlock()

	r, err := e.rooms.FetchActive(ctx, stake)
	if err != nil {
		log.Error().Err(err).Int("stake", stake).Msg("Failed to fetch room")
		return nil, fmt.Errorf("fetch room %d: %w", stake, err)
	}
	if err := r.Validate(bingo.ValueSpace); err != nil {
		e.quarantineLocked(ctx, r, err)
		return nil, ErrRoomQuarantined
	}
	if !guard(r.Phase) {
		return r, fmt.Errorf("%w: room %d is %s", ErrWrongPhase, stake, r.Phase)
	}

	save, err := fn(r)
	if err != nil {
		return r, err
	}
	if save {
		if err := e.rooms.Save(ctx, r); err != nil {
			log.Error().Err(err).Int("stake", stake).Str("phase", string(r.Phase)).Msg("Failed to save room")
			return r, fmt.Errorf("save room %d: %w", stake, err)
		}
	}
	if commit != nil {
		commit()
	}
	return r, nil
}

// quarantineLocked resets a room whose record is internally inconsistent.
// Members whose account still points here get their stake back.
func (e *Engine) quarantineLocked(ctx context.Context, r *rooms.Room, cause error) {
	log.Error().Err(cause).Int("stake", r.Stake).Str("room", r.ID).Msg("Room invariant violated, resetting")
	e.metrics.RoomQuarantined(r.Stake)
	e.timers.Cancel(countdownKey(r.Stake))
	e.timers.Cancel(drawKey(r.Stake))

	var b batch
	members := dedupe(r.Enrolled)
	for _, id := range members {
		acct, err := e.refund(ctx, id, r.Stake, "room reset")
		if err != nil {
			log.Error().Err(err).Str("participant", id).Int("stake", r.Stake).Msg("Refund during quarantine failed")
			continue
		}
		b.direct([]string{id}, balanceEvent(acct))
	}

	now := e.clock.Now()
	r.Record(rooms.RoundRecord{
		Participants: len(members),
		DrawCount:    len(r.Drawn),
		Reason:       "quarantined",
		SettledAt:    now,
	})
	r.Reset(now)
	if err := e.rooms.Save(ctx, r); err != nil {
		log.Error().Err(err).Int("stake", r.Stake).Msg("Failed to save quarantined room")
	}
	b.room(r.Stake, members, events.Event{Type: events.RoundSettled, Stake: r.Stake, Reason: "quarantined"})
	b.flush(e.notifier)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

type pending struct {
	stake int
	ids   []string
	ev    events.Event
	room  bool
}

// batch collects notifications while locks are held so they are sent after
// release.
type batch []pending

func (b *batch) room(stake int, ids []string, ev events.Event) {
	*b = append(*b, pending{stake: stake, ids: slices.Clone(ids), ev: ev, room: true})
}

func (b *batch) direct(ids []string, ev events.Event) {
	*b = append(*b, pending{ids: slices.Clone(ids), ev: ev})
}

func (b batch) flush(n events.Notifier) {
	for _, p := range b {
		if p.room {
			n.NotifyRoom(p.stake, p.ids, p.ev)
		} else {
			n.Notify(p.ids, p.ev)
		}
	}
}

func balanceEvent(a *players.Account) events.Event {
	return events.Event{
		Type:          events.BalanceChanged,
		ParticipantID: a.ID,
		Balance:       events.Amount(a.Balance),
	}
}

func slotEvent(r *rooms.Room, slot int, by string) events.Event {
	return events.Event{
		Type:         events.SlotUpdate,
		Stake:        r.Stake,
		ClaimedSlots: slices.Clone(r.Slots),
		NewSlot:      slot,
		By:           by,
	}
}

// updateAccount applies fn to a fresh copy of the account under its lock and
// saves the result.
func (e *Engine) updateAccount(ctx context.Context, id string, fn func(a *players.Account) error) (*players.Account, error) {
	unlock := e.accountLocks.lock(id)
	defer unlock()

	a, err := e.accounts.Get(ctx, id)
	if errors.Is(err, players.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	if err := e.accounts.Save(ctx, a); err != nil {
		log.Error().Err(err).Str("participant", id).Msg("Failed to save account")
		return nil, fmt.Errorf("save account %s: %w", id, err)
	}
	return a, nil
}

func (e *Engine) appendLedger(ctx context.Context, typ players.EntryType, id string, amount decimal.Decimal, stake int, reason string) error {
	entry := players.LedgerEntry{
		ID:            uuid.New().String(),
		Type:          typ,
		ParticipantID: id,
		Amount:        amount,
		Stake:         stake,
		Reason:        reason,
		CreatedAt:     e.clock.Now(),
	}
	if err := e.accounts.AppendLedger(ctx, entry); err != nil {
		log.Error().Err(err).Str("participant", id).Str("type", string(typ)).Str("amount", amount.String()).Msg("Failed to append ledger entry")
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// refund returns the stake to a participant whose account still points at
// stake and clears the pointer. Accounts pointing elsewhere are left alone,
// so a second refund for the same enrollment is a no-op.
func (e *Engine) refund(ctx context.Context, id string, stake int, reason string) (*players.Account, error) {
	amount := decimal.NewFromInt(int64(stake))
	credited := false
	acct, err := e.updateAccount(ctx, id, func(a *players.Account) error {
		if a.CurrentStake != stake {
			return nil
		}
		a.Balance = a.Balance.Add(amount)
		a.ClearRoom()
		credited = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !credited {
		log.Warn().Str("participant", id).Int("stake", stake).Int("current", acct.CurrentStake).Msg("Skipping refund, account not in this room")
		return acct, nil
	}
	// The credit is already saved, so the refund counts as done and callers
	// must still detach the participant from the room.
	if err := e.appendLedger(ctx, players.EntryRefund, id, amount, stake, reason); err != nil {
		log.Error().Err(err).Str("participant", id).Int("stake", stake).Msg("Refund credited without ledger entry")
	}
	return acct, nil
}

// releaseAll refunds and removes every enrolled participant. Participants
// whose refund fails stay enrolled and the first failure is returned.
func (e *Engine) releaseAll(ctx context.Context, r *rooms.Room, reason string, b *batch) error {
	var firstErr error
	for _, id := range slices.Clone(r.Enrolled) {
		acct, err := e.refund(ctx, id, r.Stake, reason)
		if err != nil {
			log.Error().Err(err).Str("participant", id).Int("stake", r.Stake).Msg("Refund failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.Remove(id)
		b.direct([]string{id}, balanceEvent(acct))
	}
	return firstErr
}
