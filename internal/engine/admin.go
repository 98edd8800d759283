package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bingohall/internal/players"
)

var ErrInvalidAmount = errors.New("amount must be non-zero")

// AdjustBalance credits (or, when negative, debits) a participant outside of
// any round. The balance never goes below zero.
func (e *Engine) AdjustBalance(ctx context.Context, participantID string, amount decimal.Decimal, reason string) (*players.Account, error) {
	amount = amount.Round(2)
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	acct, err := e.updateAccount(ctx, participantID, func(a *players.Account) error {
		next := a.Balance.Add(amount)
		if next.IsNegative() {
			return fmt.Errorf("%w: balance %s", ErrInsufficientBalance, a.Balance)
		}
		a.Balance = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "admin adjustment"
	}
	if err := e.appendLedger(ctx, players.EntryAdmin, participantID, amount, 0, reason); err != nil {
		return acct, err
	}
	log.Info().Str("participant", participantID).Str("amount", amount.String()).Str("reason", reason).Msg("Balance adjusted")
	e.notifier.Notify([]string{participantID}, balanceEvent(acct))
	return acct, nil
}
