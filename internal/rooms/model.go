package rooms

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseEnrolling    = Phase("enrolling")
	PhaseCountingDown = Phase("countingDown")
	PhaseDrawing      = Phase("drawing")
	PhaseSettling     = Phase("settling")
)

var ErrInvariant = errors.New("room invariant violated")

// CountdownSnapshot lets a late joiner learn the true remaining time without
// waiting for the next tick.
type CountdownSnapshot struct {
	Remaining int       `json:"remaining"`
	Reachable int       `json:"reachable"`
	Total     int       `json:"total"`
	At        time.Time `json:"at"`
}

// RoundRecord is one settled round. WinnerID is empty for no-winner rounds.
type RoundRecord struct {
	WinnerID     string          `json:"winnerId,omitempty"`
	Slot         int             `json:"slot,omitempty"`
	Pattern      string          `json:"pattern,omitempty"`
	Prize        decimal.Decimal `json:"prize"`
	Bonus        decimal.Decimal `json:"bonus"`
	HouseEarning decimal.Decimal `json:"houseEarning"`
	Participants int             `json:"participants"`
	DrawCount    int             `json:"drawCount"`
	Reason       string          `json:"reason"`
	SettledAt    time.Time       `json:"settledAt"`
}

type Room struct {
	ID    string `json:"id"`
	Stake int    `json:"stake"`
	Phase Phase  `json:"phase"`

	// Enrolled[i] owns Slots[i]. Only Add and Remove touch these.
	Enrolled []string `json:"enrolled"`
	Slots    []int    `json:"slots"`

	Drawn     []int `json:"drawn"`
	Current   int   `json:"current"`
	DrawCount int   `json:"drawCount"`

	PhaseEnteredAt       time.Time          `json:"phaseEnteredAt"`
	CountdownStartedWith int                `json:"countdownStartedWith"`
	Countdown            *CountdownSnapshot `json:"countdown,omitempty"`

	History   []RoundRecord `json:"history"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func New(id string, stake int, now time.Time) *Room {
	return &Room{
		ID:             id,
		Stake:          stake,
		Phase:          PhaseEnrolling,
		Enrolled:       []string{},
		Slots:          []int{},
		Drawn:          []int{},
		History:        []RoundRecord{},
		PhaseEnteredAt: now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy so stores never share memory with callers.
func (r *Room) Clone() *Room {
	c := *r
	c.Enrolled = slices.Clone(r.Enrolled)
	c.Slots = slices.Clone(r.Slots)
	c.Drawn = slices.Clone(r.Drawn)
	c.History = slices.Clone(r.History)
	if r.Countdown != nil {
		cd := *r.Countdown
		c.Countdown = &cd
	}
	return &c
}

func (r *Room) IndexOf(participantID string) int {
	return slices.Index(r.Enrolled, participantID)
}

func (r *Room) IsEnrolled(participantID string) bool {
	return r.IndexOf(participantID) >= 0
}

func (r *Room) SlotTaken(slot int) bool {
	return slices.Contains(r.Slots, slot)
}

// SlotOf returns the slot held by participantID, or 0.
func (r *Room) SlotOf(participantID string) int {
	if i := r.IndexOf(participantID); i >= 0 {
		return r.Slots[i]
	}
	return 0
}

// Add enrolls participantID on slot, keeping both lists in lockstep.
func (r *Room) Add(participantID string, slot int) {
	r.Enrolled = append(r.Enrolled, participantID)
	r.Slots = append(r.Slots, slot)
}

// Remove drops participantID and its slot. It reports the freed slot.
func (r *Room) Remove(participantID string) (int, bool) {
	i := r.IndexOf(participantID)
	if i < 0 {
		return 0, false
	}
	slot := r.Slots[i]
	r.Enrolled = slices.Delete(r.Enrolled, i, i+1)
	r.Slots = slices.Delete(r.Slots, i, i+1)
	return slot, true
}

func (r *Room) ClearCountdown() {
	r.CountdownStartedWith = 0
	r.Countdown = nil
}

func (r *Room) ResetDraws() {
	r.Drawn = []int{}
	r.Current = 0
	r.DrawCount = 0
}

// SetPhase moves the room to p and stamps the entry time.
func (r *Room) SetPhase(p Phase, now time.Time) {
	r.Phase = p
	r.PhaseEnteredAt = now
}

// HistoryLimit bounds the settled rounds kept on a room.
const HistoryLimit = 50

// Record appends a settled round, dropping the oldest beyond HistoryLimit.
func (r *Room) Record(rec RoundRecord) {
	r.History = append(r.History, rec)
	if n := len(r.History); n > HistoryLimit {
		r.History = slices.Clone(r.History[n-HistoryLimit:])
	}
}

// Reset empties the room back to a clean enrolling snapshot. History is kept.
func (r *Room) Reset(now time.Time) {
	r.Enrolled = []string{}
	r.Slots = []int{}
	r.ResetDraws()
	r.ClearCountdown()
	r.SetPhase(PhaseEnrolling, now)
}

// Validate reports the first broken structural invariant.
func (r *Room) Validate(valueSpace int) error {
	if len(r.Enrolled) != len(r.Slots) {
		return fmt.Errorf("%w: %d enrolled but %d slots", ErrInvariant, len(r.Enrolled), len(r.Slots))
	}
	seenSlot := make(map[int]bool, len(r.Slots))
	for _, s := range r.Slots {
		if seenSlot[s] {
			return fmt.Errorf("%w: slot %d claimed twice", ErrInvariant, s)
		}
		seenSlot[s] = true
	}
	seenID := make(map[string]bool, len(r.Enrolled))
	for _, id := range r.Enrolled {
		if seenID[id] {
			return fmt.Errorf("%w: participant %s enrolled twice", ErrInvariant, id)
		}
		seenID[id] = true
	}
	if r.DrawCount != len(r.Drawn) {
		return fmt.Errorf("%w: drawCount %d but %d drawn", ErrInvariant, r.DrawCount, len(r.Drawn))
	}
	if r.DrawCount > valueSpace {
		return fmt.Errorf("%w: drawCount %d exceeds %d", ErrInvariant, r.DrawCount, valueSpace)
	}
	seenDraw := make(map[int]bool, len(r.Drawn))
	for _, v := range r.Drawn {
		if seenDraw[v] {
			return fmt.Errorf("%w: value %d drawn twice", ErrInvariant, v)
		}
		seenDraw[v] = true
	}
	return nil
}
