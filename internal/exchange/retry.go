package exchange

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"oms-core/internal/config"
	"oms-core/internal/order"
)

const (
	defaultMinDelay    = 500 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
	defaultMaxAttempts = 5
)

// Retrying 为交易对手增加退避重试，仅重试暂不可用的失败与传输错误。
type Retrying struct {
	next   order.Counterparty
	logger *zap.Logger

	place  failsafe.Executor[order.Response]
	modify failsafe.Executor[order.Response]
	cancel failsafe.Executor[order.Response]
	orders failsafe.Executor[[]order.Snapshot]
}

// NewRetrying 按重试配置包装交易对手。
func NewRetrying(next order.Counterparty, cfg config.RetryConfig, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = defaultMinDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	r := &Retrying{next: next, logger: logger}
	r.place = failsafe.With[order.Response](responsePolicy(cfg, logger, "order_place"))
	r.modify = failsafe.With[order.Response](responsePolicy(cfg, logger, "order_modify"))
	r.cancel = failsafe.With[order.Response](responsePolicy(cfg, logger, "order_cancel"))
	r.orders = failsafe.With[[]order.Snapshot](newPolicy(cfg, logger, "orders", func(_ []order.Snapshot, err error) bool {
		return IsRetryable(order.Response{}, err)
	}))
	return r
}

func responsePolicy(cfg config.RetryConfig, logger *zap.Logger, operation string) retrypolicy.RetryPolicy[order.Response] {
	return newPolicy(cfg, logger, operation, IsRetryable)
}

func newPolicy[R any](cfg config.RetryConfig, logger *zap.Logger, operation string, handle func(R, error) bool) retrypolicy.RetryPolicy[R] {
	b := retrypolicy.NewBuilder[R]().
		HandleIf(handle).
		WithMaxAttempts(cfg.MaxAttempts).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[R]) {
			logger.Warn("交易对手调用失败，准备重试",
				zap.String("operation", operation),
				zap.Int("attempt", e.Attempts()),
				zap.Error(e.LastError()),
			)
		}).
		OnRetriesExceeded(func(e failsafe.ExecutionEvent[R]) {
			logger.Error("交易对手调用重试次数耗尽",
				zap.String("operation", operation),
				zap.Int("attempts", e.Attempts()),
				zap.Error(e.LastError()),
			)
		})
	if cfg.MaxDelay > cfg.MinDelay {
		b = b.WithBackoff(cfg.MinDelay, cfg.MaxDelay)
	} else {
		b = b.WithDelay(cfg.MinDelay)
	}
	return b.Build()
}

// OrderPlace 下单，失败按策略重试。
func (r *Retrying) OrderPlace(ctx context.Context, args order.Args) (order.Response, error) {
	return r.place.WithContext(ctx).Get(func() (order.Response, error) {
		return r.next.OrderPlace(ctx, args)
	})
}

// OrderModify 改单，失败按策略重试。
func (r *Retrying) OrderModify(ctx context.Context, orderID string, args order.Args) (order.Response, error) {
	return r.modify.WithContext(ctx).Get(func() (order.Response, error) {
		return r.next.OrderModify(ctx, orderID, args)
	})
}

// OrderCancel 撤单，失败按策略重试。
func (r *Retrying) OrderCancel(ctx context.Context, orderID string) (order.Response, error) {
	return r.cancel.WithContext(ctx).Get(func() (order.Response, error) {
		return r.next.OrderCancel(ctx, orderID)
	})
}

// Orders 查询订单快照，仅传输错误时重试。
func (r *Retrying) Orders(ctx context.Context) ([]order.Snapshot, error) {
	return r.orders.WithContext(ctx).Get(func() ([]order.Snapshot, error) {
		return r.next.Orders(ctx)
	})
}

// Positions 透传持仓查询。
func (r *Retrying) Positions(ctx context.Context) ([]order.BasicPosition, error) {
	rep, ok := r.next.(order.Reporter)
	if !ok {
		return nil, ErrNoReporter
	}
	return rep.Positions(ctx)
}

// Trades 透传成交查询。
func (r *Retrying) Trades(ctx context.Context) ([]order.Trade, error) {
	rep, ok := r.next.(order.Reporter)
	if !ok {
		return nil, ErrNoReporter
	}
	return rep.Trades(ctx)
}

var (
	_ order.Counterparty = (*Retrying)(nil)
	_ order.Reporter     = (*Retrying)(nil)
)
