package engine

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"bingohall/internal/bingo"
	"bingohall/internal/events"
	"bingohall/internal/rooms"
)

func (e *Engine) startDrawing(stake int) {
	key := drawKey(stake)
	e.timers.Cancel(key)
	if err := e.timers.Start(key, e.cfg.DrawInterval, func(ctx context.Context) {
		e.drawTick(ctx, stake)
	}); err != nil {
		log.Error().Err(err).Int("stake", stake).Msg("Failed to schedule draws")
	}
}

// drawTick draws one new value, or settles the round without a winner once
// the draw budget or the value space is used up.
func (e *Engine) drawTick(ctx context.Context, stake int) {
	timerCtx := ctx
	ctx = context.WithoutCancel(ctx)

	var b batch
	exhausted, drew, stop := false, false, false
	_, err := e.withFreshRoomCommit(ctx, stake, anyPhase, func(r *rooms.Room) (bool, error) {
		if timerCtx.Err() != nil {
			return false, nil
		}
		if r.Phase != rooms.PhaseDrawing {
			stop = true
			return false, nil
		}
		if r.DrawCount >= e.cfg.maxDraws() {
			exhausted = true
			return false, nil
		}
		v, err := bingo.Draw(r.Drawn, e.pick, e.cfg.MaxSampleAttempts)
		if errors.Is(err, bingo.ErrExhausted) {
			exhausted = true
			return false, nil
		}
		if err != nil {
			return false, err
		}
		r.Drawn = append(r.Drawn, v)
		r.Current = v
		r.DrawCount++
		b.room(stake, r.Enrolled, events.Event{
			Type:      events.Draw,
			Stake:     stake,
			Value:     v,
			Band:      bingo.Band(v),
			DrawCount: r.DrawCount,
			Drawn:     slices.Clone(r.Drawn),
		})
		drew = true
		return true, nil
	}, func() {
		if stop {
			e.timers.Cancel(drawKey(stake))
		}
	})
	if err != nil {
		if !errors.Is(err, ErrRoomQuarantined) {
			log.Error().Err(err).Int("stake", stake).Msg("Draw tick failed")
		}
		return
	}

	if exhausted {
		// A claim in flight settles the round itself; otherwise retry next tick.
		err := e.settleNoWinner(ctx, stake, "all values drawn", nil)
		if err != nil && !errors.Is(err, ErrClaimInProgress) {
			log.Error().Err(err).Int("stake", stake).Msg("Failed to settle exhausted round")
		}
		return
	}
	if drew {
		e.metrics.ValueDrawn(stake)
	}
	b.flush(e.notifier)
}
