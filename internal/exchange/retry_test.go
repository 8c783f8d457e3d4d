package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"oms-core/internal/config"
	"oms-core/internal/order"
	"oms-core/internal/simulation"
)

var fastRetry = config.RetryConfig{MaxAttempts: 3, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestRetrying_RecoversFromUnavailable(t *testing.T) {
	cp := &flakyCounterparty{failures: 2, reason: order.ReasonUnavailable}
	r := NewRetrying(cp, fastRetry, nil)

	resp, err := r.OrderPlace(context.Background(), order.Args{Symbol: "aapl"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, 3, cp.count())
}

func TestRetrying_ExhaustedReturnsLastFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cp := &flakyCounterparty{failures: 100, reason: order.ReasonUnavailable}
	r := NewRetrying(cp, fastRetry, zap.New(core))

	resp, err := r.OrderCancel(context.Background(), "id-1")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.True(t, resp.Retryable())
	assert.Equal(t, 3, cp.count())

	assert.Equal(t, 2, logs.FilterMessage("交易对手调用失败，准备重试").Len())
	assert.Equal(t, 1, logs.FilterMessage("交易对手调用重试次数耗尽").Len())
}

func TestRetrying_DoesNotRetryRejections(t *testing.T) {
	for _, reason := range []order.FailureReason{order.ReasonInvalid, order.ReasonNotFound, order.ReasonRejected} {
		cp := &flakyCounterparty{failures: 100, reason: reason}
		r := NewRetrying(cp, fastRetry, nil)

		resp, err := r.OrderModify(context.Background(), "id-1", order.Args{Price: order.Ptr(10.0)})
		require.NoError(t, err)
		assert.False(t, resp.OK())
		assert.Equal(t, 1, cp.count(), "reason %s", reason)
	}
}

func TestRetrying_TransportErrors(t *testing.T) {
	transport := errors.New("connection reset")
	cp := &flakyCounterparty{err: transport}
	r := NewRetrying(cp, fastRetry, nil)

	_, err := r.OrderPlace(context.Background(), order.Args{})
	assert.ErrorIs(t, err, transport)
	assert.Equal(t, 3, cp.count())

	canceled := &flakyCounterparty{err: context.Canceled}
	r = NewRetrying(canceled, fastRetry, nil)
	_, err = r.OrderPlace(context.Background(), order.Args{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, canceled.count())
}

func TestRetrying_Orders(t *testing.T) {
	cp := &flakyCounterparty{failures: 1, err: errors.New("timeout")}
	r := NewRetrying(cp, fastRetry, nil)

	snaps, err := r.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 2, cp.count())
}

func TestRetrying_Reporter(t *testing.T) {
	r := NewRetrying(&flakyCounterparty{}, fastRetry, nil)
	_, err := r.Positions(context.Background())
	assert.ErrorIs(t, err, ErrNoReporter)

	vb, err := simulation.NewVirtualBroker(simulation.WithFailureRate(0))
	require.NoError(t, err)
	r = NewRetrying(vb, fastRetry, nil)
	positions, err := r.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestRetrying_AgainstVirtualBroker(t *testing.T) {
	vb, err := simulation.NewVirtualBroker(simulation.WithFailureRate(1.0))
	require.NoError(t, err)
	r := NewRetrying(vb, fastRetry, nil)

	resp, err := r.OrderPlace(context.Background(), order.Args{Symbol: "aapl", Side: order.SideBuy, Quantity: order.Ptr[int64](1)})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, order.ReasonUnavailable, resp.Reason)

	snaps, _ := vb.Orders(context.Background())
	assert.Empty(t, snaps)
}
