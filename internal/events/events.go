package events

import (
	"github.com/shopspring/decimal"
)

type Type string

const (
	SlotUpdate       = Type("slot-update")
	CountdownTick    = Type("countdown-tick")
	CountdownAborted = Type("countdown-aborted")
	Draw             = Type("draw")
	RoundSettled     = Type("round-settled")
	BalanceChanged   = Type("balance-changed")
	RoomState        = Type("room-state")
	Ack              = Type("ack")
	Error            = Type("error")
)

// Event is the JSON structure sent to clients. Only the fields relevant to
// Type are set.
type Event struct {
	Type  Type `json:"t"`
	Stake int  `json:"stake,omitempty"`

	ClaimedSlots []int  `json:"slots,omitempty"`
	NewSlot      int    `json:"slot,omitempty"`
	By           string `json:"by,omitempty"`

	SecondsRemaining int `json:"seconds,omitempty"`
	Reachable        int `json:"reachable,omitempty"`
	Total            int `json:"total,omitempty"`

	Value     int    `json:"value,omitempty"`
	Band      string `json:"band,omitempty"`
	DrawCount int    `json:"drawCount,omitempty"`
	Drawn     []int  `json:"drawn,omitempty"`

	WinnerID string           `json:"winner,omitempty"`
	Pattern  string           `json:"pattern,omitempty"`
	Prize    *decimal.Decimal `json:"prize,omitempty"`
	Bonus    *decimal.Decimal `json:"bonus,omitempty"`

	ParticipantID string           `json:"participant,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`

	Phase  string `json:"phase,omitempty"`
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`
	Ref    string `json:"ref,omitempty"`
}

// Notifier delivers outbound events. Implementations must not block.
type Notifier interface {
	// Notify sends ev to every live connection of the given participants.
	Notify(participantIDs []string, ev Event)
	// NotifyRoom sends ev to the participants and to every connection
	// watching the stake's lobby, each connection at most once.
	NotifyRoom(stake int, participantIDs []string, ev Event)
}

// Multi fans every event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(participantIDs []string, ev Event) {
	for _, n := range m {
		n.Notify(participantIDs, ev)
	}
}

func (m Multi) NotifyRoom(stake int, participantIDs []string, ev Event) {
	for _, n := range m {
		n.NotifyRoom(stake, participantIDs, ev)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify([]string, Event)          {}
func (Discard) NotifyRoom(int, []string, Event) {}

// Amount is a helper for the optional decimal fields.
func Amount(d decimal.Decimal) *decimal.Decimal { return &d }
