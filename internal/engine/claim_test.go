package engine

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingohall/internal/bingo"
	"bingohall/internal/events"
	"bingohall/internal/players"
	"bingohall/internal/rooms"
)

const (
	rowOne      = 0
	fourCorners = 12
)

func TestDraw_NeverRepeatsAndExhaustionRefunds(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxDraws = 5 })
	h.startRound("p1", "p2")

	h.draw(1, 2, 3, 4, 5)
	r := h.room()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, r.Drawn)
	assert.Equal(t, 5, r.DrawCount)
	assert.Equal(t, 5, r.Current)
	assertListsAligned(t, r)

	draws := h.notes.to("p2", events.Draw)
	require.Len(t, draws, 5)
	assert.Equal(t, "B", draws[0].Band)
	assert.Equal(t, 3, draws[2].DrawCount)

	h.e.drawTick(h.ctx, testStake)

	r = h.room()
	assert.Equal(t, rooms.PhaseEnrolling, r.Phase)
	assert.Empty(t, r.Enrolled)
	assert.Empty(t, r.Drawn)
	require.Len(t, r.History, 1)
	assert.Equal(t, "all values drawn", r.History[0].Reason)
	assert.Empty(t, r.History[0].WinnerID)
	assert.Equal(t, "100", h.balance("p1"))
	assert.Equal(t, "100", h.balance("p2"))
	assert.False(t, h.timers.Active(drawKey(testStake)))

	settled := h.notes.to("p1", events.RoundSettled)
	require.Len(t, settled, 1)
	assert.Empty(t, settled[0].WinnerID)
}

func TestDraw_FullValueSpace(t *testing.T) {
	h := newHarness(t, nil)
	h.startRound("p1", "p2")

	for i := 0; i < bingo.ValueSpace; i++ {
		h.e.drawTick(h.ctx, testStake)
	}
	r := h.room()
	require.Len(t, r.Drawn, bingo.ValueSpace)
	sorted := slices.Clone(r.Drawn)
	slices.Sort(sorted)
	assert.Equal(t, len(sorted), len(slices.Compact(sorted)))

	h.e.drawTick(h.ctx, testStake)
	assert.Equal(t, rooms.PhaseEnrolling, h.room().Phase)
}

func TestClaim_RowPaysPoolMinusCommission(t *testing.T) {
	h := newHarness(t, nil)
	h.startRound("p1", "p2", "p3", "p4", "p5")
	row := cardValues(1, rowOne)
	h.draw(row...)

	s, err := h.e.Claim(h.ctx, testStake, "p1", asCells(row), bingo.CardForSlot(1))
	require.NoError(t, err)
	assert.Equal(t, "row-1", s.Pattern)
	assert.Equal(t, "40", s.Payout.BasePrize.String())
	assert.Equal(t, "0", s.Payout.Bonus.String())
	assert.Equal(t, "40", s.Payout.Total.String())
	assert.Equal(t, "10", s.Payout.HouseEarnings.String())

	assert.Equal(t, "130", h.balance("p1"))
	for _, id := range []string{"p2", "p3", "p4", "p5"} {
		assert.Equal(t, "90", h.balance(id))
		assert.False(t, h.account(id).Enrolled())
	}
	winner := h.account("p1")
	assert.False(t, winner.Enrolled())
	assert.Equal(t, "40", winner.TotalWon.String())

	ledger := h.accounts.Ledger("p1")
	require.Len(t, ledger, 2)
	assert.Equal(t, players.EntryWin, ledger[1].Type)
	assert.Equal(t, "40", ledger[1].Amount.String())
	house := h.accounts.Ledger(players.HouseAccount)
	require.Len(t, house, 1)
	assert.Equal(t, "10", house[0].Amount.String())

	r := h.room()
	assert.Equal(t, rooms.PhaseEnrolling, r.Phase)
	assert.Empty(t, r.Enrolled)
	require.Len(t, r.History, 1)
	assert.Equal(t, "p1", r.History[0].WinnerID)
	assert.False(t, h.timers.Active(drawKey(testStake)))

	settled := h.notes.to("p4", events.RoundSettled)
	require.Len(t, settled, 1)
	assert.Equal(t, "p1", settled[0].WinnerID)
	assert.Equal(t, "40", settled[0].Prize.String())
	assert.Equal(t, 5, settled[0].Total)
}

func TestClaim_FourCornersAddsBonus(t *testing.T) {
	h := newHarness(t, nil)
	h.startRound("p1", "p2", "p3", "p4", "p5")
	corners := cardValues(1, fourCorners)
	h.draw(corners...)

	s, err := h.e.Claim(h.ctx, testStake, "p1", asCells(corners), bingo.CardForSlot(1))
	require.NoError(t, err)
	assert.Equal(t, "four-corners", s.Pattern)
	assert.Equal(t, "50", s.Payout.Bonus.String())
	assert.Equal(t, "90", s.Payout.Total.String())
	assert.Equal(t, "180", h.balance("p1"))
}

func TestClaim_Rejections(t *testing.T) {
	h := newHarness(t, nil)
	h.connect("p9")
	_, err := h.e.Claim(h.ctx, testStake, "p9", nil, bingo.CardForSlot(1))
	assert.ErrorIs(t, err, ErrWrongPhase)

	h.startRound("p1", "p2")
	row := cardValues(1, rowOne)
	h.draw(row[:4]...)

	_, err = h.e.Claim(h.ctx, testStake, "p1", asCells(row), bingo.CardForSlot(1))
	assert.ErrorIs(t, err, ErrInvalidPattern, "last value not drawn")

	_, err = h.e.Claim(h.ctx, testStake, "p1", asCells(cardValues(2, rowOne)), bingo.CardForSlot(2))
	assert.ErrorIs(t, err, ErrInvalidPattern, "card of another slot")

	var broken bingo.Card
	_, err = h.e.Claim(h.ctx, testStake, "p1", nil, broken)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = h.e.Claim(h.ctx, testStake, "p9", asCells(row), bingo.CardForSlot(1))
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = h.e.Claim(h.ctx, 15, "p1", asCells(row), bingo.CardForSlot(1))
	assert.ErrorIs(t, err, ErrUnknownStake)

	assert.Equal(t, rooms.PhaseDrawing, h.room().Phase)
	require.True(t, h.e.tryLockClaim(testStake), "claim lock must be free after rejections")
	h.e.unlockClaim(testStake)

	h.draw(row[4])
	_, err = h.e.Claim(h.ctx, testStake, "p1", asCells(row), bingo.CardForSlot(1))
	assert.NoError(t, err)
}

func TestClaim_HeldLockRejectsSecondClaim(t *testing.T) {
	h := newHarness(t, nil)
	h.startRound("p1", "p2")
	row := cardValues(1, rowOne)
	h.draw(row...)

	require.True(t, h.e.tryLockClaim(testStake))
	_, err := h.e.Claim(h.ctx, testStake, "p1", asCells(row), bingo.CardForSlot(1))
	assert.ErrorIs(t, err, ErrClaimInProgress)
	assert.Equal(t, "claim_in_progress", Code(err))
	assert.True(t, Retryable(err))
	h.e.unlockClaim(testStake)

	_, err = h.e.Claim(h.ctx, testStake, "p1", asCells(row), bingo.CardForSlot(1))
	assert.NoError(t, err)
}

func TestClaim_ConcurrentClaimsSettleOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.startRound("p1", "p2")
	rowA := cardValues(1, rowOne)
	rowB := cardValues(2, rowOne)
	values := slices.Clone(rowA)
	for _, v := range rowB {
		if !slices.Contains(values, v) {
			values = append(values, v)
		}
	}
	h.draw(values...)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		results []error
	)
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		id, slot, row := "p1", 1, rowA
		if i%2 == 1 {
			id, slot, row = "p2", 2, rowB
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.e.Claim(h.ctx, testStake, id, asCells(row), bingo.CardForSlot(slot))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			results = append(results, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range results {
		assert.Contains(t, []string{"claim_in_progress", "room_locked"}, Code(err))
	}
	require.Len(t, h.room().History, 1)
	require.Len(t, h.accounts.Ledger(players.HouseAccount), 1)
}

func TestDisconnectDuringDrawing_ReconnectAndClaim(t *testing.T) {
	h := newHarness(t, nil)
	h.startRound("p1", "p2")
	row := cardValues(2, rowOne)
	h.draw(row[:3]...)

	h.e.Disconnect(h.ctx, "conn-p2")
	r := h.room()
	assert.Equal(t, []string{"p1", "p2"}, r.Enrolled)
	assert.False(t, h.account("p2").Reachable)
	assert.Equal(t, "90", h.balance("p2"))

	h.draw(row[3:]...)
	_, err := h.e.Connect(h.ctx, "conn-p2-again", "p2", "p2")
	require.NoError(t, err)

	states := h.notes.to("p2", events.RoomState)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.Equal(t, string(rooms.PhaseDrawing), last.Phase)
	assert.Equal(t, row, last.Drawn)

	s, err := h.e.Claim(h.ctx, testStake, "p2", asCells(row), bingo.CardForSlot(2))
	require.NoError(t, err)
	assert.Equal(t, "p2", s.WinnerID)
	assert.Equal(t, "106", h.balance("p2"))
}
