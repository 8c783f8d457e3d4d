package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms-core/internal/clock"
	"oms-core/internal/order"
)

func newReplica(t *testing.T) *ReplicaBroker {
	t.Helper()
	r := NewReplicaBroker(clock.NewManual(testStart), nil)
	r.AddInstrument(NewInstrument("aapl", 1, 125))
	r.AddInstrument(NewInstrument("goog", 2, 300))
	return r
}

func place(t *testing.T, r *ReplicaBroker, args order.Args) string {
	t.Helper()
	resp, err := r.OrderPlace(context.Background(), args)
	require.NoError(t, err)
	require.True(t, resp.OK(), resp.Message)
	return resp.OrderID
}

func TestInstrument_Update(t *testing.T) {
	inst := NewInstrument("aapl", 1, 125)
	for _, p := range []float64{128, 123, 124, 126} {
		inst.Update(p)
	}
	assert.Equal(t, 125.0, inst.Open)
	assert.Equal(t, 128.0, inst.High)
	assert.Equal(t, 123.0, inst.Low)
	assert.Equal(t, 126.0, inst.Last)
}

func TestReplica_MarketFillsAtLast(t *testing.T) {
	r := newReplica(t)
	id := place(t, r, placeArgs("aapl", order.SideBuy, 10))
	assert.Equal(t, []string{id}, r.Pending())

	r.UpdatePrice("aapl", 127)
	assert.Equal(t, 1, r.RunFill())
	assert.Empty(t, r.Pending())
	assert.Equal(t, []string{id}, r.Completed())

	snaps, _ := r.Orders(context.Background())
	require.Len(t, snaps, 1)
	assert.Equal(t, order.StatusComplete, snaps[0].Status)
	assert.Equal(t, 127.0, snaps[0].AveragePrice)
}

func TestReplica_LimitFillsOnTouchAtLimit(t *testing.T) {
	r := newReplica(t)
	buy := placeArgs("aapl", order.SideBuy, 10)
	buy.OrderType = order.TypeLimit
	buy.Price = order.Ptr(120.0)
	buyID := place(t, r, buy)

	sell := placeArgs("goog", order.SideSell, 5)
	sell.OrderType = order.TypeLimit
	sell.Price = order.Ptr(310.0)
	sellID := place(t, r, sell)

	r.UpdatePrices(map[string]float64{"aapl": 121, "goog": 309})
	assert.Zero(t, r.RunFill())

	r.UpdatePrices(map[string]float64{"aapl": 120, "goog": 312})
	assert.Equal(t, 2, r.RunFill())

	snaps, _ := r.Orders(context.Background())
	byID := map[string]order.Snapshot{}
	for _, s := range snaps {
		byID[s.OrderID] = s
	}
	assert.Equal(t, 120.0, byID[buyID].AveragePrice)
	assert.Equal(t, 310.0, byID[sellID].AveragePrice, "never better than the limit")
}

func TestReplica_StopMarketTriggersOnAdverseCross(t *testing.T) {
	r := newReplica(t)
	sl := placeArgs("aapl", order.SideSell, 10)
	sl.OrderType = order.TypeStopMarket
	sl.TriggerPrice = order.Ptr(120.0)
	place(t, r, sl)

	r.UpdatePrice("aapl", 121)
	assert.Zero(t, r.RunFill())
	r.UpdatePrice("aapl", 119.5)
	assert.Equal(t, 1, r.RunFill())

	trades, _ := r.Trades(context.Background())
	require.Len(t, trades, 1)
	assert.Equal(t, 119.5, trades[0].Price)
}

func TestReplica_StopLimitBehavesAsLimitAfterTrigger(t *testing.T) {
	r := newReplica(t)
	sl := placeArgs("aapl", order.SideBuy, 10)
	sl.OrderType = order.TypeStopLimit
	sl.TriggerPrice = order.Ptr(130.0)
	sl.Price = order.Ptr(131.0)
	id := place(t, r, sl)

	r.UpdatePrice("aapl", 129)
	assert.Zero(t, r.RunFill())
	r.UpdatePrice("aapl", 133)
	assert.Zero(t, r.RunFill(), "triggered but above the limit")
	r.UpdatePrice("aapl", 131)
	assert.Equal(t, 1, r.RunFill())

	snaps, _ := r.Orders(context.Background())
	assert.Equal(t, id, snaps[0].OrderID)
	assert.Equal(t, 131.0, snaps[0].AveragePrice)
}

func TestReplica_ModifyCancelAndValidation(t *testing.T) {
	r := newReplica(t)
	ctx := context.Background()

	resp, _ := r.OrderPlace(ctx, placeArgs("dow", order.SideBuy, 10))
	assert.False(t, resp.OK(), "unknown instrument")

	limit := placeArgs("aapl", order.SideBuy, 10)
	limit.OrderType = order.TypeLimit
	resp, _ = r.OrderPlace(ctx, limit)
	assert.False(t, resp.OK(), "limit without price")

	limit.Price = order.Ptr(100.0)
	id := place(t, r, limit)
	resp, _ = r.OrderModify(ctx, id, order.Args{Price: order.Ptr(125.0)})
	require.True(t, resp.OK())
	assert.Equal(t, 1, r.RunFill())

	resp, _ = r.OrderCancel(ctx, id)
	assert.False(t, resp.OK(), "filled orders leave the pending set")

	other := place(t, r, func() order.Args {
		a := placeArgs("goog", order.SideSell, 4)
		a.OrderType = order.TypeLimit
		a.Price = order.Ptr(500.0)
		return a
	}())
	resp, _ = r.OrderCancel(ctx, other)
	require.True(t, resp.OK())
	assert.Equal(t, order.StatusCanceled, resp.Data.Status)
	assert.Empty(t, r.Pending())

	positions, _ := r.Positions(ctx)
	require.Len(t, positions, 1)
	assert.EqualValues(t, 10, positions[0].NetQuantity())
	assert.Equal(t, map[string]float64{"aapl": 125}, r.LTP("aapl", "dow"))
}
