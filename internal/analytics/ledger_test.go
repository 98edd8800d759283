package analytics

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingohall/internal/players"
)

func entry(typ players.EntryType, id string, stake int, amount string) players.LedgerEntry {
	return players.LedgerEntry{Type: typ, ParticipantID: id, Stake: stake, Amount: decimal.RequireFromString(amount)}
}

func TestHouseEarningsFrom(t *testing.T) {
	entries := []players.LedgerEntry{
		entry(players.EntryHouse, players.HouseAccount, 20, "12"),
		entry(players.EntryStake, "p1", 20, "-20"),
		entry(players.EntryHouse, players.HouseAccount, 10, "4"),
		entry(players.EntryHouse, players.HouseAccount, 20, "8"),
	}

	got := HouseEarningsFrom(entries)
	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Stake)
	assert.Equal(t, 1, got[0].Rounds)
	assert.Equal(t, 20, got[1].Stake)
	assert.Equal(t, 2, got[1].Rounds)
	assert.True(t, got[1].Earnings.Equal(decimal.NewFromInt(20)))
}

func TestTopWinnersFrom(t *testing.T) {
	entries := []players.LedgerEntry{
		entry(players.EntryWin, "bob", 10, "40"),
		entry(players.EntryWin, "alice", 10, "16"),
		entry(players.EntryWin, "alice", 10, "24"),
		entry(players.EntryWin, "carol", 50, "90"),
		entry(players.EntryRefund, "dave", 10, "500"),
	}
	names := map[string]string{"alice": "Alice", "bob": "Bob"}

	got := TopWinnersFrom(entries, names, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "carol", got[0].ParticipantID)
	assert.Equal(t, 1, got[0].Rank)
	// alice and bob tie on 40; ID order decides.
	assert.Equal(t, "alice", got[1].ParticipantID)
	assert.Equal(t, "Alice", got[1].Name)
	assert.Equal(t, 2, got[1].Wins)
	assert.Equal(t, 2, got[1].Rank)
}

func TestMemoryReports(t *testing.T) {
	store := players.NewMemoryStore(decimal.NewFromInt(100), nil)
	ctx := context.Background()
	_, err := store.GetOrCreate(ctx, "p1", "Pat")
	require.NoError(t, err)
	require.NoError(t, store.AppendLedger(ctx, entry(players.EntryWin, "p1", 10, "40")))
	require.NoError(t, store.AppendLedger(ctx, entry(players.EntryHouse, players.HouseAccount, 10, "10")))

	var r Reporter = MemoryReports{Store: store}

	house, err := r.HouseEarnings(ctx)
	require.NoError(t, err)
	require.Len(t, house, 1)
	assert.Equal(t, "10", house[0].Earnings.String())

	winners, err := r.TopWinners(ctx, 10)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "Pat", winners[0].Name)
}

func TestMemoryReports_LedgerNewestFirst(t *testing.T) {
	store := players.NewMemoryStore(decimal.NewFromInt(100), nil)
	ctx := context.Background()
	require.NoError(t, store.AppendLedger(ctx, entry(players.EntryStake, "p1", 10, "-10")))
	require.NoError(t, store.AppendLedger(ctx, entry(players.EntryStake, "p2", 10, "-10")))
	require.NoError(t, store.AppendLedger(ctx, entry(players.EntryRefund, "p1", 10, "10")))
	require.NoError(t, store.AppendLedger(ctx, entry(players.EntryWin, "p1", 10, "16")))

	var r LedgerReader = MemoryReports{Store: store}

	got, err := r.Ledger(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, players.EntryWin, got[0].Type)
	assert.Equal(t, players.EntryRefund, got[1].Type)

	all, err := r.Ledger(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
