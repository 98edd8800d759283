package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Collector records room lifecycle counters. It satisfies engine.Metrics.
type Collector struct {
	rounds         *prometheus.CounterVec
	payouts        *prometheus.CounterVec
	claimsRejected *prometheus.CounterVec
	draws          *prometheus.CounterVec
	aborts         *prometheus.CounterVec
	quarantines    *prometheus.CounterVec
	droppedFrames  prometheus.Counter
}

func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		rounds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "rounds_settled_total",
			Help:      "Rounds settled, by stake and outcome.",
		}, []string{"stake", "outcome"}),
		payouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "payouts_total",
			Help:      "Total prize money paid, by stake.",
		}, []string{"stake"}),
		claimsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "claims_rejected_total",
			Help:      "Rejected bingo claims, by stake and error code.",
		}, []string{"stake", "code"}),
		draws: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "values_drawn_total",
			Help:      "Values drawn, by stake.",
		}, []string{"stake"}),
		aborts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "countdowns_aborted_total",
			Help:      "Countdowns aborted, by stake and reason.",
		}, []string{"stake", "reason"}),
		quarantines: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "rooms_quarantined_total",
			Help:      "Rooms reset after failing validation.",
		}, []string{"stake"}),
		droppedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bingo",
			Name:      "dropped_frames_total",
			Help:      "Outbound frames dropped on full client queues.",
		}),
	}
}

func label(stake int) string { return strconv.Itoa(stake) }

func (c *Collector) RoundSettled(stake int, outcome string, payout decimal.Decimal) {
	c.rounds.WithLabelValues(label(stake), outcome).Inc()
	if payout.IsPositive() {
		c.payouts.WithLabelValues(label(stake)).Add(payout.InexactFloat64())
	}
}

func (c *Collector) ClaimRejected(stake int, code string) {
	c.claimsRejected.WithLabelValues(label(stake), code).Inc()
}

func (c *Collector) ValueDrawn(stake int) {
	c.draws.WithLabelValues(label(stake)).Inc()
}

func (c *Collector) CountdownAborted(stake int, reason string) {
	c.aborts.WithLabelValues(label(stake), reason).Inc()
}

func (c *Collector) RoomQuarantined(stake int) {
	c.quarantines.WithLabelValues(label(stake)).Inc()
}

// FrameDropped matches broadcast.Broadcaster.OnDrop.
func (c *Collector) FrameDropped(string) {
	c.droppedFrames.Inc()
}
