package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"bingohall/internal/players"
)

// StakeEarnings is the commission the house kept on one stake tier.
type StakeEarnings struct {
	Stake    int             `json:"stake"`
	Rounds   int             `json:"rounds"`
	Earnings decimal.Decimal `json:"earnings"`
}

type WinnerEntry struct {
	ParticipantID string          `json:"participantId"`
	Name          string          `json:"name"`
	Wins          int             `json:"wins"`
	TotalWon      decimal.Decimal `json:"totalWon"`
	Rank          int             `json:"rank"`
}

// Reporter builds the admin reports from the ledger.
type Reporter interface {
	HouseEarnings(ctx context.Context) ([]StakeEarnings, error)
	TopWinners(ctx context.Context, limit int) ([]WinnerEntry, error)
}

// LedgerReader lists a participant's most recent ledger entries, newest first.
type LedgerReader interface {
	Ledger(ctx context.Context, participantID string, limit int) ([]players.LedgerEntry, error)
}
