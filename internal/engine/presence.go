package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"bingohall/internal/bingo"
	"bingohall/internal/events"
	"bingohall/internal/players"
	"bingohall/internal/rooms"
)

// Connect records a new connection advertising participantID, creating the
// account on first contact, and resends the participant's balance and room.
func (e *Engine) Connect(ctx context.Context, connID, participantID, name string) (*players.Account, error) {
	if participantID == "" {
		return nil, ErrUnknownParticipant
	}
	e.presence.Connect(connID, participantID)
	return e.online(ctx, participantID, name)
}

// Register binds an open connection to participantID.
func (e *Engine) Register(ctx context.Context, connID, participantID, name string) (*players.Account, error) {
	if participantID == "" {
		return nil, ErrUnknownParticipant
	}
	for _, displaced := range e.presence.Register(connID, participantID) {
		e.release(ctx, displaced)
	}
	return e.online(ctx, participantID, name)
}

func (e *Engine) online(ctx context.Context, participantID, name string) (*players.Account, error) {
	acct, err := e.touch(ctx, participantID, name, true)
	if err != nil {
		return nil, err
	}
	e.notifier.Notify([]string{participantID}, balanceEvent(acct))
	if acct.Enrolled() {
		e.resync(ctx, participantID, acct.CurrentStake)
		e.maybeStartCountdown(ctx, acct.CurrentStake)
	}
	return acct, nil
}

func (e *Engine) touch(ctx context.Context, participantID, name string, reachable bool) (*players.Account, error) {
	if _, err := e.accounts.GetOrCreate(ctx, participantID, name); err != nil {
		return nil, fmt.Errorf("load account %s: %w", participantID, err)
	}
	return e.updateAccount(ctx, participantID, func(a *players.Account) error {
		a.LastSeen = e.clock.Now()
		a.Reachable = reachable
		return nil
	})
}

// resync sends the participant the current state of their room. An account
// pointing at a room that no longer lists it is refunded.
func (e *Engine) resync(ctx context.Context, participantID string, stake int) {
	var b batch
	r, err := e.withFreshRoom(ctx, stake, anyPhase, func(r *rooms.Room) (bool, error) {
		if r.IsEnrolled(participantID) || r.Phase == rooms.PhaseSettling {
			return false, nil
		}
		acct, err := e.refund(ctx, participantID, stake, "stale enrollment")
		if err != nil {
			return false, err
		}
		log.Warn().Str("participant", participantID).Int("stake", stake).Msg("Repaired stale room pointer")
		b.direct([]string{participantID}, balanceEvent(acct))
		return false, nil
	})
	if err != nil {
		log.Error().Err(err).Str("participant", participantID).Int("stake", stake).Msg("Failed to resync participant")
		return
	}
	b.direct([]string{participantID}, stateEvent(r, e.clock.Now()))
	b.flush(e.notifier)
}

// Disconnect forgets a connection. A participant left with no connection is
// removed and refunded while the room is still enrolling or counting down;
// during drawing they stay enrolled and may reconnect.
func (e *Engine) Disconnect(ctx context.Context, connID string) {
	for _, participantID := range e.presence.Unregister(connID) {
		e.release(ctx, participantID)
	}
}

// release marks a participant with no remaining connection offline and frees
// their slot when the room has not started drawing.
func (e *Engine) release(ctx context.Context, participantID string) {
	acct, err := e.updateAccount(ctx, participantID, func(a *players.Account) error {
		a.LastSeen = e.clock.Now()
		a.Reachable = false
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrUnknownParticipant) {
			log.Error().Err(err).Str("participant", participantID).Msg("Failed to mark participant offline")
		}
		return
	}
	if !acct.Enrolled() {
		return
	}
	stake := acct.CurrentStake

	var b batch
	removed := false
	_, err = e.withFreshRoom(ctx, stake, inPhase(rooms.PhaseEnrolling, rooms.PhaseCountingDown), func(r *rooms.Room) (bool, error) {
		if e.presence.IsReachable(participantID) || !r.IsEnrolled(participantID) {
			return false, nil
		}
		refunded, err := e.refund(ctx, participantID, stake, "disconnected")
		if err != nil {
			return false, err
		}
		r.Remove(participantID)
		removed = true
		b.room(stake, r.Enrolled, slotEvent(r, 0, participantID))
		b.direct([]string{participantID}, balanceEvent(refunded))
		return true, nil
	})
	if err != nil {
		if !errors.Is(err, ErrWrongPhase) {
			log.Error().Err(err).Str("participant", participantID).Int("stake", stake).Msg("Failed to release disconnected participant")
		}
		return
	}
	if !removed {
		return
	}
	log.Info().Str("participant", participantID).Int("stake", stake).Msg("Disconnected participant released")
	b.flush(e.notifier)
	e.recheckCountdown(ctx, stake)
}

// RoomState returns a room-state event describing the stake's room.
func (e *Engine) RoomState(ctx context.Context, stake int) (events.Event, error) {
	if _, ok := e.cfg.Commission[stake]; !ok {
		return events.Event{}, fmt.Errorf("%w: %d", ErrUnknownStake, stake)
	}
	r, err := e.withFreshRoom(ctx, stake, anyPhase, func(*rooms.Room) (bool, error) { return false, nil })
	if err != nil {
		return events.Event{}, err
	}
	return stateEvent(r, e.clock.Now()), nil
}

// Rooms lists every stored room.
func (e *Engine) Rooms(ctx context.Context) ([]*rooms.Room, error) {
	list, err := e.rooms.List(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(list, func(a, b *rooms.Room) int { return a.Stake - b.Stake })
	return list, nil
}

func stateEvent(r *rooms.Room, now time.Time) events.Event {
	ev := events.Event{
		Type:         events.RoomState,
		Stake:        r.Stake,
		Phase:        string(r.Phase),
		ClaimedSlots: slices.Clone(r.Slots),
		Value:        r.Current,
		DrawCount:    r.DrawCount,
		Drawn:        slices.Clone(r.Drawn),
		Total:        len(r.Enrolled),
	}
	if r.Current != 0 {
		ev.Band = bingo.Band(r.Current)
	}
	if cd := r.Countdown; cd != nil {
		left := cd.Remaining - int(now.Sub(cd.At)/time.Second)
		ev.SecondsRemaining = max(left, 0)
		ev.Reachable = cd.Reachable
	}
	return ev
}
