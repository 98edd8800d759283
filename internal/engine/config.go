package engine

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"bingohall/internal/bingo"
)

// Config holds the game's constants. None of them change at runtime.
type Config struct {
	// Commission maps each stake tier to the house cut per participant. A
	// stake absent from the table is not playable.
	Commission       map[int]decimal.Decimal
	FourCornersBonus decimal.Decimal
	MaxSlot          int

	// EnrollmentFloor is the reachable count needed to start and keep a
	// countdown; PostCountdownFloor is the count needed to enter the draw.
	EnrollmentFloor    int
	PostCountdownFloor int
	// PurgeUnreachable refunds and removes unreachable participants when the
	// countdown ends.
	PurgeUnreachable bool
	// RefundOnAbort releases every participant when a countdown aborts.
	RefundOnAbort bool
	// VerifyCards requires a claimed layout to be the card printed on the
	// claimant's slot.
	VerifyCards bool

	CountdownDuration time.Duration
	CountdownTick     time.Duration
	DrawInterval      time.Duration
	MaxDraws          int
	MaxSampleAttempts int

	MaxRoundDuration     time.Duration
	StuckCountdownMargin time.Duration
	SettleGrace          time.Duration
	RoomRetention        time.Duration
	SweepInterval        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Commission: map[int]decimal.Decimal{
			10:  decimal.NewFromInt(2),
			20:  decimal.NewFromInt(4),
			50:  decimal.NewFromInt(10),
			100: decimal.NewFromInt(20),
		},
		FourCornersBonus:     decimal.NewFromInt(50),
		MaxSlot:              100,
		EnrollmentFloor:      2,
		PostCountdownFloor:   1,
		PurgeUnreachable:     true,
		RefundOnAbort:        true,
		VerifyCards:          true,
		CountdownDuration:    30 * time.Second,
		CountdownTick:        time.Second,
		DrawInterval:         3 * time.Second,
		MaxDraws:             bingo.ValueSpace,
		MaxSampleAttempts:    100,
		MaxRoundDuration:     10 * time.Minute,
		StuckCountdownMargin: 30 * time.Second,
		SettleGrace:          2 * time.Minute,
		RoomRetention:        24 * time.Hour,
		SweepInterval:        30 * time.Second,
	}
}

// Stakes lists the playable stake tiers in ascending order.
func (c Config) Stakes() []int {
	stakes := make([]int, 0, len(c.Commission))
	for s := range c.Commission {
		stakes = append(stakes, s)
	}
	slices.Sort(stakes)
	return stakes
}

func (c Config) maxDraws() int {
	if c.MaxDraws <= 0 || c.MaxDraws > bingo.ValueSpace {
		return bingo.ValueSpace
	}
	return c.MaxDraws
}

// Payout is the split of one settled round.
type Payout struct {
	Participants  int
	Commission    decimal.Decimal
	Contribution  decimal.Decimal
	BasePrize     decimal.Decimal
	Bonus         decimal.Decimal
	Total         decimal.Decimal
	HouseEarnings decimal.Decimal
}

// Payout computes the prize for a round of n participants at stake.
func (c Config) Payout(stake, n int, fourCorners bool) Payout {
	commission := c.Commission[stake]
	contribution := decimal.NewFromInt(int64(stake)).Sub(commission)
	count := decimal.NewFromInt(int64(n))

	p := Payout{
		Participants:  n,
		Commission:    commission,
		Contribution:  contribution,
		BasePrize:     contribution.Mul(count).Round(2),
		Bonus:         decimal.Zero,
		HouseEarnings: commission.Mul(count).Round(2),
	}
	if fourCorners {
		p.Bonus = c.FourCornersBonus
	}
	p.Total = p.BasePrize.Add(p.Bonus)
	return p
}
