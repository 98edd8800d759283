package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"bingohall/internal/events"
	"bingohall/internal/rooms"
)

// RunSweepers repairs stuck rooms every SweepInterval until ctx is done.
func (e *Engine) RunSweepers(ctx context.Context) {
	ticker := e.clock.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.cfg.SweepInterval).Msg("Room sweepers started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Room sweepers stopped")
			return
		case <-ticker.Chan():
			e.Sweep(ctx)
		}
	}
}

// Sweep runs every sweeper once.
func (e *Engine) Sweep(ctx context.Context) {
	list, err := e.rooms.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Sweep could not list rooms")
		return
	}
	e.SweepStuckCountdowns(ctx, list)
	e.SweepDrawTimeouts(ctx, list)
	e.SweepStaleRooms(ctx, list)
}

// SweepStuckCountdowns forces countingDown rooms that outlived their
// countdown by more than the margin back to enrolling. Participants stay
// enrolled and the countdown starts afresh if the room still qualifies.
func (e *Engine) SweepStuckCountdowns(ctx context.Context, list []*rooms.Room) {
	limit := e.cfg.CountdownDuration + e.cfg.StuckCountdownMargin
	for _, candidate := range list {
		if candidate.Phase != rooms.PhaseCountingDown || e.clock.Since(candidate.PhaseEnteredAt) <= limit {
			continue
		}
		stake := candidate.Stake
		var b batch
		reset := false
		_, err := e.withFreshRoomCommit(ctx, stake, inPhase(rooms.PhaseCountingDown), func(r *rooms.Room) (bool, error) {
			if e.clock.Since(r.PhaseEnteredAt) <= limit {
				return false, nil
			}
			r.ClearCountdown()
			r.SetPhase(rooms.PhaseEnrolling, e.clock.Now())
			e.metrics.CountdownAborted(stake, "countdown stalled")
			b.room(stake, r.Enrolled, events.Event{Type: events.CountdownAborted, Stake: stake, Reason: "countdown stalled"})
			reset = true
			return true, nil
		}, func() {
			if reset {
				e.timers.Cancel(countdownKey(stake))
			}
		})
		if err != nil {
			if !errors.Is(err, ErrWrongPhase) {
				log.Error().Err(err).Int("stake", stake).Msg("Failed to reset stuck countdown")
			}
			continue
		}
		if !reset {
			continue
		}
		log.Warn().Int("stake", stake).Msg("Reset stuck countdown")
		b.flush(e.notifier)
		e.maybeStartCountdown(ctx, stake)
	}
}

// SweepDrawTimeouts ends rounds that have been drawing longer than
// MaxRoundDuration with refunds and no winner.
func (e *Engine) SweepDrawTimeouts(ctx context.Context, list []*rooms.Room) {
	for _, candidate := range list {
		if candidate.Phase != rooms.PhaseDrawing || e.clock.Since(candidate.PhaseEnteredAt) <= e.cfg.MaxRoundDuration {
			continue
		}
		err := e.settleNoWinner(ctx, candidate.Stake, "round timed out", func(r *rooms.Room) bool {
			return e.clock.Since(r.PhaseEnteredAt) > e.cfg.MaxRoundDuration
		})
		switch {
		case err == nil:
			log.Warn().Int("stake", candidate.Stake).Msg("Timed out drawing round")
		case errors.Is(err, ErrWrongPhase), errors.Is(err, ErrClaimInProgress):
		default:
			log.Error().Err(err).Int("stake", candidate.Stake).Msg("Failed to time out drawing round")
		}
	}
}

// SweepStaleRooms recovers rooms left in settling by an interrupted
// settlement and deletes empty rooms idle longer than RoomRetention.
func (e *Engine) SweepStaleRooms(ctx context.Context, list []*rooms.Room) {
	for _, candidate := range list {
		switch {
		case candidate.Phase == rooms.PhaseSettling && e.clock.Since(candidate.PhaseEnteredAt) > e.cfg.SettleGrace:
			e.recoverSettling(ctx, candidate.Stake)
		case candidate.Phase == rooms.PhaseEnrolling && len(candidate.Enrolled) == 0 &&
			e.cfg.RoomRetention > 0 && e.clock.Since(candidate.UpdatedAt) > e.cfg.RoomRetention:
			e.deleteIdle(ctx, candidate.Stake)
		}
	}
}

func (e *Engine) recoverSettling(ctx context.Context, stake int) {
	if !e.tryLockClaim(stake) {
		return
	}
	defer e.unlockClaim(stake)

	var b batch
	_, err := e.withFreshRoom(ctx, stake, inPhase(rooms.PhaseSettling), func(r *rooms.Room) (bool, error) {
		if e.clock.Since(r.PhaseEnteredAt) <= e.cfg.SettleGrace {
			return false, nil
		}
		return true, e.resetWithRefundsLocked(ctx, r, "settlement recovered", &b)
	})
	if err != nil {
		if !errors.Is(err, ErrWrongPhase) {
			log.Error().Err(err).Int("stake", stake).Msg("Failed to recover settling room")
		}
		return
	}
	e.timers.Cancel(drawKey(stake))
	if len(b) > 0 {
		log.Warn().Int("stake", stake).Msg("Recovered interrupted settlement")
	}
	b.flush(e.notifier)
}

func (e *Engine) deleteIdle(ctx context.Context, stake int) {
	unlock := e.roomLocks.lock(stakeKey(stake))
	defer unlock()

	r, err := e.rooms.FetchActive(ctx, stake)
	if err != nil {
		log.Error().Err(err).Int("stake", stake).Msg("Failed to load idle room")
		return
	}
	if r.Phase != rooms.PhaseEnrolling || len(r.Enrolled) > 0 || e.clock.Since(r.UpdatedAt) <= e.cfg.RoomRetention {
		return
	}
	if err := e.rooms.Delete(ctx, stake); err != nil {
		log.Error().Err(err).Int("stake", stake).Msg("Failed to delete idle room")
		return
	}
	log.Info().Int("stake", stake).Msg("Deleted idle room")
}
