package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingohall/internal/events"
	"bingohall/internal/rooms"
)

func TestCountdown_StartsAtEnrollmentFloor(t *testing.T) {
	h := newHarness(t, nil)

	h.join("p1", 1)
	assert.Equal(t, rooms.PhaseEnrolling, h.room().Phase)
	assert.False(t, h.timers.Active(countdownKey(testStake)))

	h.join("p2", 2)
	r := h.room()
	assert.Equal(t, rooms.PhaseCountingDown, r.Phase)
	assert.Equal(t, 2, r.CountdownStartedWith)
	assert.True(t, h.timers.Active(countdownKey(testStake)))

	ticks := h.notes.to("p1", events.CountdownTick)
	require.Len(t, ticks, 1)
	assert.Equal(t, 30, ticks[0].SecondsRemaining)
	assert.Equal(t, 2, ticks[0].Reachable)
	assert.Equal(t, 2, ticks[0].Total)
}

func TestCountdown_UnreachableEnrolleeDoesNotCount(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.accounts.GetOrCreate(h.ctx, "offline", "offline")
	require.NoError(t, err)
	require.NoError(t, h.e.Enroll(h.ctx, "offline", testStake, 3))

	h.join("p1", 1)
	assert.Equal(t, rooms.PhaseEnrolling, h.room().Phase)
}

func TestCountdown_TickUpdatesSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	h.join("p1", 1)
	h.join("p2", 2)

	h.clock.Advance(time.Second)
	h.e.countdownTick(h.ctx, testStake)

	r := h.room()
	require.NotNil(t, r.Countdown)
	assert.Equal(t, 29, r.Countdown.Remaining)
	assert.Equal(t, rooms.PhaseCountingDown, r.Phase)

	ev, err := h.e.RoomState(h.ctx, testStake)
	require.NoError(t, err)
	assert.Equal(t, 29, ev.SecondsRemaining)
}

func TestCountdown_AbortsWhenParticipantDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	h.join("p1", 1)
	h.join("p2", 2)

	h.e.Disconnect(h.ctx, "conn-p2")

	r := h.room()
	assert.Equal(t, rooms.PhaseEnrolling, r.Phase)
	assert.Empty(t, r.Enrolled)
	assert.Nil(t, r.Countdown)
	assert.False(t, h.timers.Active(countdownKey(testStake)))
	assert.Equal(t, "100", h.balance("p1"))
	assert.Equal(t, "100", h.balance("p2"))
	assert.Len(t, h.accounts.Ledger("p1"), 2)
	assert.Len(t, h.accounts.Ledger("p2"), 2)
	assert.NotEmpty(t, h.notes.to("p1", events.CountdownAborted))
}

func TestCountdown_SecondConnectionKeepsParticipant(t *testing.T) {
	h := newHarness(t, nil)
	h.join("p1", 1)
	h.join("p2", 2)
	_, err := h.e.Register(h.ctx, "conn-p2-tab", "p2", "")
	require.NoError(t, err)

	h.e.Disconnect(h.ctx, "conn-p2")

	r := h.room()
	assert.Equal(t, rooms.PhaseCountingDown, r.Phase)
	assert.Equal(t, []string{"p1", "p2"}, r.Enrolled)
}

func TestCountdown_TickAbortKeepsEnrollmentWithoutRefund(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RefundOnAbort = false })
	h.join("p1", 1)
	h.join("p2", 2)

	h.e.Presence().Unregister("conn-p2")
	h.clock.Advance(time.Second)
	h.e.countdownTick(h.ctx, testStake)

	r := h.room()
	assert.Equal(t, rooms.PhaseEnrolling, r.Phase)
	assert.Equal(t, []string{"p1", "p2"}, r.Enrolled)
	assert.Equal(t, "90", h.balance("p2"))
	assert.False(t, h.timers.Active(countdownKey(testStake)))
}

func TestCountdown_FinishPurgesUnreachable(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.accounts.GetOrCreate(h.ctx, "offline", "offline")
	require.NoError(t, err)
	require.NoError(t, h.e.Enroll(h.ctx, "offline", testStake, 3))

	h.startRound("p1", "p2")

	r := h.room()
	assert.Equal(t, []string{"p1", "p2"}, r.Enrolled)
	assert.Empty(t, r.Drawn)
	assert.Equal(t, "100", h.balance("offline"))
	assert.False(t, h.account("offline").Enrolled())
	assert.False(t, h.timers.Active(countdownKey(testStake)))
	assert.True(t, h.timers.Active(drawKey(testStake)))

	states := h.notes.to("p1", events.RoomState)
	require.NotEmpty(t, states)
	assert.Equal(t, string(rooms.PhaseDrawing), states[len(states)-1].Phase)
}

func TestCountdown_FinishBelowPostFloorRefunds(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PostCountdownFloor = 3 })
	h.join("p1", 1)
	h.join("p2", 2)

	h.clock.Advance(30 * time.Second)
	h.e.countdownTick(h.ctx, testStake)

	r := h.room()
	assert.Equal(t, rooms.PhaseEnrolling, r.Phase)
	assert.Empty(t, r.Enrolled)
	assert.Equal(t, "100", h.balance("p1"))
	assert.Equal(t, "100", h.balance("p2"))
	assert.False(t, h.timers.Active(drawKey(testStake)))
}

func TestCountdown_StaleTickIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.join("p1", 1)

	h.e.countdownTick(h.ctx, testStake)

	r := h.room()
	assert.Equal(t, rooms.PhaseEnrolling, r.Phase)
	assert.Equal(t, []string{"p1"}, r.Enrolled)
	assert.Empty(t, h.notes.to("", events.CountdownAborted))
}

func TestCountdown_TickFromReplacedTimerIsIgnored(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RefundOnAbort = false })
	h.join("p1", 1)
	h.join("p2", 2)
	require.True(t, h.timers.Active(countdownKey(testStake)))
	h.e.Presence().Unregister("conn-p2")

	stale, cancel := context.WithCancel(h.ctx)
	cancel()
	h.e.countdownTick(stale, testStake)

	assert.Equal(t, rooms.PhaseCountingDown, h.room().Phase)
	assert.True(t, h.timers.Active(countdownKey(testStake)))
	assert.Empty(t, h.notes.to("", events.CountdownAborted))
}

func TestCountdown_RestartAfterAbortKeepsNewTimer(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RefundOnAbort = false })
	h.join("p1", 1)
	h.join("p2", 2)
	h.e.Presence().Unregister("conn-p2")

	h.e.countdownTick(h.ctx, testStake)
	require.Equal(t, rooms.PhaseEnrolling, h.room().Phase)
	require.False(t, h.timers.Active(countdownKey(testStake)))

	h.connect("p2")

	assert.Equal(t, rooms.PhaseCountingDown, h.room().Phase)
	assert.True(t, h.timers.Active(countdownKey(testStake)))
}
