package players

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a participant. It is created on first contact and never deleted.
type Account struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Balance      decimal.Decimal `json:"balance"`
	CurrentStake int             `json:"currentStake"` // 0 when not enrolled
	CurrentSlot  int             `json:"currentSlot"`
	TotalWagered decimal.Decimal `json:"totalWagered"`
	TotalWon     decimal.Decimal `json:"totalWon"`
	LastSeen     time.Time       `json:"lastSeen"`
	Reachable    bool            `json:"reachable"`
}

// Enrolled reports whether the account points at a room.
func (a *Account) Enrolled() bool { return a.CurrentStake != 0 }

func (a *Account) ClearRoom() {
	a.CurrentStake = 0
	a.CurrentSlot = 0
}

type EntryType string

const (
	EntryStake  = EntryType("stake")
	EntryRefund = EntryType("refund")
	EntryWin    = EntryType("win")
	EntryHouse  = EntryType("house")
	EntryAdmin  = EntryType("admin")
)

// HouseAccount is the participant ID recorded on house commission entries.
const HouseAccount = "house"

// LedgerEntry is an immutable record of a balance-affecting event. Amount is
// signed from the participant's point of view.
type LedgerEntry struct {
	ID            string          `json:"id"`
	Type          EntryType       `json:"type"`
	ParticipantID string          `json:"participantId"`
	Amount        decimal.Decimal `json:"amount"`
	Stake         int             `json:"stake"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"createdAt"`
}
