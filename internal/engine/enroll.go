package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bingohall/internal/players"
	"bingohall/internal/rooms"
)

// Enroll debits stake from the participant and places them on slot. It may
// start the countdown once enough enrolled participants are reachable.
func (e *Engine) Enroll(ctx context.Context, participantID string, stake, slot int) error {
	if _, ok := e.cfg.Commission[stake]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStake, stake)
	}
	if slot < 1 || slot > e.cfg.MaxSlot {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	amount := decimal.NewFromInt(int64(stake))

	var b batch
	debited := false
	_, err := e.withFreshRoom(ctx, stake, inPhase(rooms.PhaseEnrolling, rooms.PhaseCountingDown), func(r *rooms.Room) (bool, error) {
		if r.IsEnrolled(participantID) {
			return false, ErrAlreadyEnrolled
		}
		if r.SlotTaken(slot) {
			return false, fmt.Errorf("%w: %d", ErrSlotTaken, slot)
		}

		acct, err := e.updateAccount(ctx, participantID, func(a *players.Account) error {
			if a.Enrolled() {
				return fmt.Errorf("%w: stake %d", ErrAlreadyEnrolled, a.CurrentStake)
			}
			if a.Balance.LessThan(amount) {
				return ErrInsufficientBalance
			}
			a.Balance = a.Balance.Sub(amount)
			a.TotalWagered = a.TotalWagered.Add(amount)
			a.CurrentStake = stake
			a.CurrentSlot = slot
			return nil
		})
		if err != nil {
			return false, err
		}
		debited = true
		if err := e.appendLedger(ctx, players.EntryStake, participantID, amount.Neg(), stake, fmt.Sprintf("slot %d", slot)); err != nil {
			return false, err
		}

		r.Add(participantID, slot)
		b.room(stake, r.Enrolled, slotEvent(r, slot, participantID))
		b.direct([]string{participantID}, balanceEvent(acct))
		return true, nil
	})
	if err != nil {
		if debited {
			e.compensateEnroll(ctx, participantID, stake)
		}
		return err
	}

	log.Info().Str("participant", participantID).Int("stake", stake).Int("slot", slot).Msg("Participant enrolled")
	b.flush(e.notifier)
	e.maybeStartCountdown(ctx, stake)
	return nil
}

// compensateEnroll undoes a debit whose room write did not land.
func (e *Engine) compensateEnroll(ctx context.Context, participantID string, stake int) {
	acct, err := e.refund(ctx, participantID, stake, "enrollment failed")
	if err != nil {
		log.Error().Err(err).Str("participant", participantID).Int("stake", stake).Msg("Failed to reverse enrollment debit")
		return
	}
	e.notifier.Notify([]string{participantID}, balanceEvent(acct))
}

// Leave removes the participant from the room and refunds the stake. It is
// only allowed before drawing starts.
func (e *Engine) Leave(ctx context.Context, participantID string, stake int) error {
	if _, ok := e.cfg.Commission[stake]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStake, stake)
	}

	var b batch
	_, err := e.withFreshRoom(ctx, stake, inPhase(rooms.PhaseEnrolling, rooms.PhaseCountingDown), func(r *rooms.Room) (bool, error) {
		if !r.IsEnrolled(participantID) {
			return false, ErrNotEnrolled
		}
		acct, err := e.refund(ctx, participantID, stake, "left room")
		if err != nil {
			return false, err
		}
		r.Remove(participantID)
		b.room(stake, append(slices.Clone(r.Enrolled), participantID), slotEvent(r, 0, participantID))
		b.direct([]string{participantID}, balanceEvent(acct))
		return true, nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("participant", participantID).Int("stake", stake).Msg("Participant left")
	b.flush(e.notifier)
	e.recheckCountdown(ctx, stake)
	return nil
}
