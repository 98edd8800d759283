package engine

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"bingohall/internal/events"
	"bingohall/internal/rooms"
)

type countdownOutcome int

const (
	countdownRunning countdownOutcome = iota
	countdownAborted
	countdownFinished
)

// maybeStartCountdown moves an enrolling room into countingDown once the
// reachable subset of its participants meets the enrollment floor.
func (e *Engine) maybeStartCountdown(ctx context.Context, stake int) {
	var b batch
	started := false
	_, err := e.withFreshRoomCommit(ctx, stake, inPhase(rooms.PhaseEnrolling), func(r *rooms.Room) (bool, error) {
		reachable := len(e.presence.ReachableSubset(r.Enrolled))
		if reachable < e.cfg.EnrollmentFloor {
			return false, nil
		}
		now := e.clock.Now()
		secs := int(e.cfg.CountdownDuration / time.Second)
		r.SetPhase(rooms.PhaseCountingDown, now)
		r.CountdownStartedWith = reachable
		r.Countdown = &rooms.CountdownSnapshot{Remaining: secs, Reachable: reachable, Total: len(r.Enrolled), At: now}
		b.room(stake, r.Enrolled, countdownEvent(r))
		started = true
		return true, nil
	}, func() {
		if started {
			e.scheduleCountdown(stake)
		}
	})
	if err != nil {
		if !errors.Is(err, ErrWrongPhase) {
			log.Error().Err(err).Int("stake", stake).Msg("Failed to start countdown")
		}
		return
	}
	if !started {
		return
	}

	log.Info().Int("stake", stake).Msg("Countdown started")
	b.flush(e.notifier)
}

// scheduleCountdown replaces the stake's countdown timer. Callers hold the
// stake lock.
func (e *Engine) scheduleCountdown(stake int) {
	key := countdownKey(stake)
	e.timers.Cancel(key)
	if err := e.timers.Start(key, e.cfg.CountdownTick, func(ctx context.Context) {
		e.countdownTick(ctx, stake)
	}); err != nil {
		log.Error().Err(err).Int("stake", stake).Msg("Failed to schedule countdown")
	}
}

func countdownEvent(r *rooms.Room) events.Event {
	ev := events.Event{Type: events.CountdownTick, Stake: r.Stake}
	if r.Countdown != nil {
		ev.SecondsRemaining = r.Countdown.Remaining
		ev.Reachable = r.Countdown.Reachable
		ev.Total = r.Countdown.Total
	}
	return ev
}

// remaining is the whole seconds left in the countdown, rounded up.
func (e *Engine) remaining(r *rooms.Room, now time.Time) int {
	left := e.cfg.CountdownDuration - now.Sub(r.PhaseEnteredAt)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (e *Engine) countdownTick(ctx context.Context, stake int) {
	// timerCtx is cancelled once this tick's timer is stopped or replaced.
	timerCtx := ctx
	ctx = context.WithoutCancel(ctx)

	var b batch
	outcome := countdownRunning
	stop := false
	_, err := e.withFreshRoomCommit(ctx, stake, anyPhase, func(r *rooms.Room) (bool, error) {
		if timerCtx.Err() != nil {
			return false, nil
		}
		if r.Phase != rooms.PhaseCountingDown {
			stop = true
			return false, nil
		}

		now := e.clock.Now()
		reachable := e.presence.ReachableSubset(r.Enrolled)
		if len(reachable) < e.cfg.EnrollmentFloor {
			outcome, stop = countdownAborted, true
			e.abortCountdownLocked(ctx, r, "not enough players online", &b)
			return true, nil
		}

		if left := e.remaining(r, now); left > 0 {
			r.Countdown = &rooms.CountdownSnapshot{Remaining: left, Reachable: len(reachable), Total: len(r.Enrolled), At: now}
			b.room(stake, r.Enrolled, countdownEvent(r))
			return true, nil
		}

		stop = true
		if e.finishCountdownLocked(ctx, r, &b) {
			outcome = countdownFinished
		} else {
			outcome = countdownAborted
		}
		return true, nil
	}, func() {
		if stop {
			e.timers.Cancel(countdownKey(stake))
		}
		if outcome == countdownFinished {
			e.startDrawing(stake)
		}
	})
	if err != nil {
		if !errors.Is(err, ErrRoomQuarantined) {
			log.Error().Err(err).Int("stake", stake).Msg("Countdown tick failed")
		}
		return
	}
	b.flush(e.notifier)
}

// recheckCountdown aborts a running countdown whose reachable participants
// fell below the enrollment floor.
func (e *Engine) recheckCountdown(ctx context.Context, stake int) {
	var b batch
	aborted := false
	_, err := e.withFreshRoomCommit(ctx, stake, inPhase(rooms.PhaseCountingDown), func(r *rooms.Room) (bool, error) {
		if len(e.presence.ReachableSubset(r.Enrolled)) >= e.cfg.EnrollmentFloor {
			return false, nil
		}
		e.abortCountdownLocked(ctx, r, "not enough players online", &b)
		aborted = true
		return true, nil
	}, func() {
		if aborted {
			e.timers.Cancel(countdownKey(stake))
		}
	})
	if err != nil {
		if !errors.Is(err, ErrWrongPhase) {
			log.Error().Err(err).Int("stake", stake).Msg("Countdown recheck failed")
		}
		return
	}
	b.flush(e.notifier)
}

// abortCountdownLocked returns the room to enrolling. With RefundOnAbort every
// participant is released; otherwise they stay enrolled for the next start.
func (e *Engine) abortCountdownLocked(ctx context.Context, r *rooms.Room, reason string, b *batch) {
	members := slices.Clone(r.Enrolled)
	if e.cfg.RefundOnAbort {
		if err := e.releaseAll(ctx, r, "countdown aborted", b); err != nil {
			log.Error().Err(err).Int("stake", r.Stake).Msg("Some refunds failed during countdown abort")
		}
	}
	r.ClearCountdown()
	r.SetPhase(rooms.PhaseEnrolling, e.clock.Now())

	log.Info().Int("stake", r.Stake).Str("reason", reason).Msg("Countdown aborted")
	e.metrics.CountdownAborted(r.Stake, reason)
	b.room(r.Stake, members, events.Event{Type: events.CountdownAborted, Stake: r.Stake, Reason: reason})
	b.room(r.Stake, members, slotEvent(r, 0, ""))
}

// finishCountdownLocked purges unreachable participants and enters drawing.
// It reports false when too few remain and the room went back to enrolling.
func (e *Engine) finishCountdownLocked(ctx context.Context, r *rooms.Room, b *batch) bool {
	now := e.clock.Now()
	members := slices.Clone(r.Enrolled)

	if e.cfg.PurgeUnreachable {
		reachable := e.presence.ReachableSubset(r.Enrolled)
		purged := false
		for _, id := range members {
			if slices.Contains(reachable, id) {
				continue
			}
			acct, err := e.refund(ctx, id, r.Stake, "unreachable at round start")
			if err != nil {
				log.Error().Err(err).Str("participant", id).Int("stake", r.Stake).Msg("Failed to refund unreachable participant")
				continue
			}
			r.Remove(id)
			purged = true
			b.direct([]string{id}, balanceEvent(acct))
		}
		if purged {
			b.room(r.Stake, members, slotEvent(r, 0, ""))
		}
	}

	if len(e.presence.ReachableSubset(r.Enrolled)) < e.cfg.PostCountdownFloor {
		if err := e.releaseAll(ctx, r, "no eligible players", b); err != nil {
			log.Error().Err(err).Int("stake", r.Stake).Msg("Some refunds failed after countdown")
		}
		r.ClearCountdown()
		r.SetPhase(rooms.PhaseEnrolling, now)
		e.metrics.CountdownAborted(r.Stake, "no eligible players")
		b.room(r.Stake, members, events.Event{Type: events.CountdownAborted, Stake: r.Stake, Reason: "no eligible players"})
		return false
	}

	r.ClearCountdown()
	r.ResetDraws()
	r.SetPhase(rooms.PhaseDrawing, now)
	log.Info().Int("stake", r.Stake).Int("participants", len(r.Enrolled)).Msg("Drawing started")
	b.room(r.Stake, r.Enrolled, stateEvent(r, now))
	return true
}
