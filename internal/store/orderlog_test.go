package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms-core/internal/clock"
	"oms-core/internal/config"
	"oms-core/internal/order"
)

var testStart = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stripTimes(r order.Record) order.Record {
	r.CreatedAt, r.LastUpdatedAt, r.ExchangeTimestamp = time.Time{}, time.Time{}, time.Time{}
	return r
}

func TestOrderLog_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	log, err := NewOrderLog(newMemoryStore(t), nil)
	require.NoError(t, err)

	c := clock.NewManual(testStart)
	o, err := order.New(order.Params{
		Symbol:    "AAPL",
		Side:      order.SideBuy,
		Quantity:  10,
		OrderType: order.TypeLimit,
		Price:     125.5,
		Tag:       "entry",
	}, order.WithClock(c), order.WithSink(log))
	require.NoError(t, err)

	saved, err := o.Save(ctx)
	require.NoError(t, err)
	assert.True(t, saved)

	got, err := log.Get(ctx, o.ID)
	require.NoError(t, err)
	want := o.Record()
	assert.Equal(t, stripTimes(want), stripTimes(got))
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.LastUpdatedAt.IsZero())
}

func TestOrderLog_UpsertByID(t *testing.T) {
	ctx := context.Background()
	log, err := NewOrderLog(newMemoryStore(t), nil)
	require.NoError(t, err)

	r := order.Record{ID: "a1", Symbol: "AAPL", Side: "BUY", OrderType: "MARKET", Quantity: 10, PendingQuantity: 10,
		Validity: "DAY", MaxModifications: 10, ExpiryPolicy: "cancel", CreatedAt: testStart}
	require.NoError(t, log.SaveOrder(ctx, r))

	r.Status = "COMPLETE"
	r.FilledQuantity, r.PendingQuantity = 10, 0
	r.AveragePrice = 101.25
	r.ExchangeTimestamp = testStart.Add(time.Second)
	require.NoError(t, log.SaveOrder(ctx, r))

	all, err := log.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "COMPLETE", all[0].Status)
	assert.EqualValues(t, 10, all[0].FilledQuantity)
	assert.True(t, all[0].ExchangeTimestamp.Equal(testStart.Add(time.Second)))
}

func TestOrderLog_ListByParent(t *testing.T) {
	ctx := context.Background()
	log, err := NewOrderLog(newMemoryStore(t), nil)
	require.NoError(t, err)

	c := clock.NewManual(testStart)
	com := order.NewCompoundOrder(nil, order.WithClock(c), order.WithSink(log))
	for _, sym := range []string{"AAPL", "GOOG", "AMZN"} {
		c.Advance(time.Second)
		_, err := com.AddOrder(ctx, order.Params{Symbol: sym, Side: order.SideSell, Quantity: 1}, sym)
		require.NoError(t, err)
	}
	require.NoError(t, log.SaveOrder(ctx, order.Record{ID: "other", Symbol: "X", Side: "BUY", OrderType: "MARKET",
		Validity: "DAY", ExpiryPolicy: "cancel", CreatedAt: testStart}))

	children, err := log.List(ctx, com.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, []string{"AAPL", "GOOG", "AMZN"}, []string{children[0].Symbol, children[1].Symbol, children[2].Symbol})

	all, err := log.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestOrderLog_GetMissing(t *testing.T) {
	log, err := NewOrderLog(newMemoryStore(t), nil)
	require.NoError(t, err)
	_, err = log.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewOrderLog(nil, nil)
	assert.Error(t, err)
}
