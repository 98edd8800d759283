package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bingohall/internal/bingo"
	"bingohall/internal/events"
	"bingohall/internal/players"
	"bingohall/internal/rooms"
)

// Settlement describes a round won by a claim.
type Settlement struct {
	Stake    int
	WinnerID string
	Slot     int
	Pattern  string
	Payout   Payout
}

// Claim verifies a bingo claim and, when it holds, pays the winner and
// resets the room. Only one claim per stake is evaluated at a time; a
// concurrent one fails with ErrClaimInProgress.
func (e *Engine) Claim(ctx context.Context, stake int, participantID string, marked []bingo.Cell, layout bingo.Card) (*Settlement, error) {
	if _, ok := e.cfg.Commission[stake]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStake, stake)
	}
	if !e.tryLockClaim(stake) {
		e.metrics.ClaimRejected(stake, Code(ErrClaimInProgress))
		return nil, ErrClaimInProgress
	}
	var once sync.Once
	release := func() { once.Do(func() { e.unlockClaim(stake) }) }
	defer release()

	var b batch
	var result *Settlement
	_, err := e.withFreshRoom(ctx, stake, inPhase(rooms.PhaseDrawing), func(r *rooms.Room) (bool, error) {
		i := r.IndexOf(participantID)
		if i < 0 {
			return false, ErrNotEnrolled
		}
		slot := r.Slots[i]
		if err := layout.Validate(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		if e.cfg.VerifyCards && layout != bingo.CardForSlot(slot) {
			return false, fmt.Errorf("%w: card does not belong to slot %d", ErrInvalidPattern, slot)
		}
		pattern, ok := bingo.Match(layout, marked, r.Drawn)
		if !ok {
			return false, ErrInvalidPattern
		}

		// Persist the settling marker first so a crash mid-payout is
		// recoverable by the stale room sweeper.
		r.SetPhase(rooms.PhaseSettling, e.clock.Now())
		if err := e.rooms.Save(ctx, r); err != nil {
			return false, fmt.Errorf("mark room %d settling: %w", stake, err)
		}

		payout := e.cfg.Payout(stake, len(r.Enrolled), pattern.Corners)
		if err := e.settleWinnerLocked(ctx, r, participantID, slot, pattern.Name, payout, &b); err != nil {
			return false, err
		}
		result = &Settlement{Stake: stake, WinnerID: participantID, Slot: slot, Pattern: pattern.Name, Payout: payout}
		return true, nil
	})
	release()
	if err != nil {
		e.metrics.ClaimRejected(stake, Code(err))
		log.Info().Err(err).Str("participant", participantID).Int("stake", stake).Msg("Claim rejected")
		return nil, err
	}

	e.timers.Cancel(drawKey(stake))
	e.metrics.RoundSettled(stake, "winner", result.Payout.Total)
	log.Info().
		Str("winner", participantID).
		Int("stake", stake).
		Str("pattern", result.Pattern).
		Str("prize", result.Payout.Total.String()).
		Msg("Round settled")
	b.flush(e.notifier)
	return result, nil
}

// settleWinnerLocked clears the losers, credits the winner, writes the win
// and house ledger entries and resets the room. Losers are cleared first so
// that a crash before the credit leaves only the winner pointing here.
func (e *Engine) settleWinnerLocked(ctx context.Context, r *rooms.Room, winnerID string, slot int, pattern string, p Payout, b *batch) error {
	members := slices.Clone(r.Enrolled)
	reachable := len(e.presence.ReachableSubset(members))

	for _, id := range members {
		if id == winnerID {
			continue
		}
		acct, err := e.updateAccount(ctx, id, func(a *players.Account) error {
			if a.CurrentStake == r.Stake {
				a.ClearRoom()
			}
			return nil
		})
		if err != nil {
			return err
		}
		b.direct([]string{id}, balanceEvent(acct))
	}

	winner, err := e.updateAccount(ctx, winnerID, func(a *players.Account) error {
		a.Balance = a.Balance.Add(p.Total)
		a.TotalWon = a.TotalWon.Add(p.Total)
		a.ClearRoom()
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.appendLedger(ctx, players.EntryWin, winnerID, p.Total, r.Stake, pattern); err != nil {
		return err
	}
	if err := e.appendLedger(ctx, players.EntryHouse, players.HouseAccount, p.HouseEarnings, r.Stake, fmt.Sprintf("commission x%d", p.Participants)); err != nil {
		return err
	}
	b.direct([]string{winnerID}, balanceEvent(winner))

	now := e.clock.Now()
	r.Record(rooms.RoundRecord{
		WinnerID:     winnerID,
		Slot:         slot,
		Pattern:      pattern,
		Prize:        p.Total,
		Bonus:        p.Bonus,
		HouseEarning: p.HouseEarnings,
		Participants: p.Participants,
		DrawCount:    r.DrawCount,
		Reason:       "bingo",
		SettledAt:    now,
	})
	b.room(r.Stake, members, events.Event{
		Type:      events.RoundSettled,
		Stake:     r.Stake,
		WinnerID:  winnerID,
		NewSlot:   slot,
		Pattern:   pattern,
		Prize:     events.Amount(p.Total),
		Bonus:     events.Amount(p.Bonus),
		Reachable: reachable,
		Total:     len(members),
		DrawCount: r.DrawCount,
		Reason:    "bingo",
	})
	r.Reset(now)
	b.room(r.Stake, members, stateEvent(r, now))
	return nil
}

// settleNoWinner refunds every participant of a drawing room and resets it.
// check, when set, must approve the fresh room before anything changes.
func (e *Engine) settleNoWinner(ctx context.Context, stake int, reason string, check func(*rooms.Room) bool) error {
	if !e.tryLockClaim(stake) {
		return ErrClaimInProgress
	}
	defer e.unlockClaim(stake)

	var b batch
	settled := false
	_, err := e.withFreshRoom(ctx, stake, inPhase(rooms.PhaseDrawing), func(r *rooms.Room) (bool, error) {
		if check != nil && !check(r) {
			return false, nil
		}
		r.SetPhase(rooms.PhaseSettling, e.clock.Now())
		if err := e.rooms.Save(ctx, r); err != nil {
			return false, fmt.Errorf("mark room %d settling: %w", stake, err)
		}
		if err := e.resetWithRefundsLocked(ctx, r, reason, &b); err != nil {
			return false, err
		}
		settled = true
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrWrongPhase) {
			e.timers.Cancel(drawKey(stake))
		}
		return err
	}
	if !settled {
		return nil
	}

	e.timers.Cancel(drawKey(stake))
	e.metrics.RoundSettled(stake, "no_winner", decimal.Zero)
	log.Info().Int("stake", stake).Str("reason", reason).Msg("Round ended without a winner")
	b.flush(e.notifier)
	return nil
}

// resetWithRefundsLocked refunds everyone still enrolled, records a
// no-winner round and resets the room. When a refund fails the room is left
// as is for a later retry.
func (e *Engine) resetWithRefundsLocked(ctx context.Context, r *rooms.Room, reason string, b *batch) error {
	members := slices.Clone(r.Enrolled)
	drawCount := r.DrawCount
	if err := e.releaseAll(ctx, r, reason, b); err != nil {
		return err
	}
	now := e.clock.Now()
	r.Record(rooms.RoundRecord{
		Prize:        decimal.Zero,
		Bonus:        decimal.Zero,
		HouseEarning: decimal.Zero,
		Participants: len(members),
		DrawCount:    drawCount,
		Reason:       reason,
		SettledAt:    now,
	})
	r.Reset(now)
	b.room(r.Stake, members, events.Event{
		Type:      events.RoundSettled,
		Stake:     r.Stake,
		Total:     len(members),
		DrawCount: drawCount,
		Reason:    reason,
	})
	b.room(r.Stake, members, stateEvent(r, now))
	return nil
}
