package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bingohall/internal/engine"
)

var _ engine.Metrics = (*Collector)(nil)

func TestCollector_Counts(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RoundSettled(10, "winner", decimal.NewFromInt(40))
	c.RoundSettled(10, "no_winner", decimal.Zero)
	c.ClaimRejected(10, "claim_in_progress")
	c.ValueDrawn(10)
	c.ValueDrawn(10)
	c.CountdownAborted(20, "not enough players online")
	c.RoomQuarantined(50)
	c.FrameDropped("c1")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rounds.WithLabelValues("10", "winner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rounds.WithLabelValues("10", "no_winner")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.payouts.WithLabelValues("10")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.claimsRejected.WithLabelValues("10", "claim_in_progress")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.draws.WithLabelValues("10")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.aborts.WithLabelValues("20", "not enough players online")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.quarantines.WithLabelValues("50")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.droppedFrames))
}

func TestCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "duplicate registration must fail loudly")
}
