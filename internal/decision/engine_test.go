package decision

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/qloop/internal/feed"
	"github.com/quantloop/qloop/internal/sim"
)

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(seed int64) (*Engine, *sim.Clock) {
	clock := sim.NewClock()
	return NewEngine(DefaultConfig(), seed, clock, sim.NewRand(seed)), clock
}

func TestDecideNoActBeforeMinBars(t *testing.T) {
	e, _ := newTestEngine(7)
	for i := uint64(0); i < 4; i++ {
		rec := e.Decide(feed.Event{Seq: i, Symbol: "CRUS", Price: price("84.10")})
		require.False(t, rec.Act, "window below min bars must not act")
		require.Equal(t, SideNone, rec.Side)
		require.True(t, rec.Notional.IsZero())
	}
}

func TestDecideMeanReversionSides(t *testing.T) {
	e, _ := newTestEngine(7)
	for i := uint64(0); i < 5; i++ {
		e.Decide(feed.Event{Seq: i, Symbol: "CRUS", Price: price("100")})
	}
	// price above the rolling mean -> sell
	rec := e.Decide(feed.Event{Seq: 5, Symbol: "CRUS", Price: price("110")})
	require.True(t, rec.Act)
	require.Equal(t, SideSell, rec.Side)
	require.Equal(t, "-1000", rec.Notional.String())

	// well below the mean -> buy
	rec = e.Decide(feed.Event{Seq: 6, Symbol: "CRUS", Price: price("80")})
	require.True(t, rec.Act)
	require.Equal(t, SideBuy, rec.Side)
	require.Equal(t, "1000", rec.Notional.String())
}

func TestDecideDeterministicAcrossRuns(t *testing.T) {
	events := []feed.Event{
		{Seq: 0, Symbol: "CRUS", Price: price("84.10")},
		{Seq: 1, Symbol: "DDOG", Price: price("121.00")},
		{Seq: 2, Symbol: "CRUS", Price: price("84.55")},
		{Seq: 3, Symbol: "CRUS", Price: price("84.20")},
	}
	e1, _ := newTestEngine(7)
	e2, _ := newTestEngine(7)
	for _, ev := range events {
		r1 := e1.Decide(ev)
		r2 := e2.Decide(ev)
		require.Equal(t, r1, r2, "identical seed, event and state must decide identically")
	}
}

func TestDecideLatencyFromVirtualClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CostJitterNs = 0
	clock := sim.NewClock()
	clock.Advance(5_000_000)
	e := NewEngine(cfg, 7, clock, sim.NewRand(7))

	rec := e.Decide(feed.Event{Seq: 0, Symbol: "CRUS", Price: price("84.10"), At: 4_000_000})
	require.EqualValues(t, 5_000_000, rec.DequeuedAt)
	require.Equal(t, cfg.CostBaseNs, rec.LatencyNs)
	require.Equal(t, rec.DequeuedAt+rec.LatencyNs, rec.DecidedAt)
	require.Equal(t, clock.Now(), rec.DecidedAt, "decide must advance the clock by its service time")
}

func TestOrderIDStableAndDistinct(t *testing.T) {
	a := orderID(7, "CRUS", 12, 1)
	require.Len(t, a, 16)
	require.Equal(t, a, orderID(7, "CRUS", 12, 1))
	require.NotEqual(t, a, orderID(7, "CRUS", 13, 1), "different events get different ids")
	require.NotEqual(t, a, orderID(8, "CRUS", 12, 1), "different seeds get different ids")
}

func TestWindowRollingMean(t *testing.T) {
	w := newWindow(3)
	require.InDelta(t, 1.0, w.push(1), 1e-12)
	require.InDelta(t, 1.5, w.push(2), 1e-12)
	require.InDelta(t, 2.0, w.push(3), 1e-12)
	// 1 evicted
	require.InDelta(t, 3.0, w.push(4), 1e-12)
	require.Equal(t, 3, w.size())
}
