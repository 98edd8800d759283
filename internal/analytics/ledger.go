package analytics

import (
	"cmp"
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"bingohall/internal/players"
)

// HouseEarningsFrom sums house entries per stake, ordered by stake.
func HouseEarningsFrom(entries []players.LedgerEntry) []StakeEarnings {
	byStake := make(map[int]*StakeEarnings)
	for _, e := range entries {
		if e.Type != players.EntryHouse {
			continue
		}
		s, ok := byStake[e.Stake]
		if !ok {
			s = &StakeEarnings{Stake: e.Stake, Earnings: decimal.Zero}
			byStake[e.Stake] = s
		}
		s.Rounds++
		s.Earnings = s.Earnings.Add(e.Amount)
	}
	out := make([]StakeEarnings, 0, len(byStake))
	for _, s := range byStake {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b StakeEarnings) int { return cmp.Compare(a.Stake, b.Stake) })
	return out
}

// TopWinnersFrom ranks participants by total winnings. Ties break on ID.
func TopWinnersFrom(entries []players.LedgerEntry, names map[string]string, limit int) []WinnerEntry {
	byID := make(map[string]*WinnerEntry)
	for _, e := range entries {
		if e.Type != players.EntryWin {
			continue
		}
		w, ok := byID[e.ParticipantID]
		if !ok {
			w = &WinnerEntry{ParticipantID: e.ParticipantID, Name: names[e.ParticipantID], TotalWon: decimal.Zero}
			byID[e.ParticipantID] = w
		}
		w.Wins++
		w.TotalWon = w.TotalWon.Add(e.Amount)
	}
	out := make([]WinnerEntry, 0, len(byID))
	for _, w := range byID {
		out = append(out, *w)
	}
	slices.SortFunc(out, func(a, b WinnerEntry) int {
		if c := b.TotalWon.Cmp(a.TotalWon); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// MemoryReports serves reports from an in-memory account store.
type MemoryReports struct {
	Store *players.MemoryStore
}

func (m MemoryReports) HouseEarnings(ctx context.Context) ([]StakeEarnings, error) {
	return HouseEarningsFrom(m.Store.Ledger("")), nil
}

func (m MemoryReports) TopWinners(ctx context.Context, limit int) ([]WinnerEntry, error) {
	names := make(map[string]string)
	for _, a := range m.Store.GetList() {
		names[a.ID] = a.Name
	}
	return TopWinnersFrom(m.Store.Ledger(""), names, limit), nil
}

func (m MemoryReports) Ledger(ctx context.Context, participantID string, limit int) ([]players.LedgerEntry, error) {
	entries := m.Store.Ledger(participantID)
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
