package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"oms-core/internal/order"
)

// TargetOrder 为带止盈的止损单，价格到达目标后一次性市价离场。
type TargetOrder struct {
	*StopOrder

	target float64
	state  State
	logger *zap.Logger
}

// NewTargetOrder 创建止盈止损组合。
func NewTargetOrder(ctx context.Context, cp order.Counterparty, p StopParams, target float64, logger *zap.Logger, opts ...order.Option) (*TargetOrder, error) {
	if target <= 0 {
		return nil, &order.ValidationError{Field: "target", Reason: fmt.Sprintf("目标价必须为正数: %v", target)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	so, err := NewStopOrder(ctx, cp, p, append(opts, order.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}
	return &TargetOrder{StopOrder: so, target: target, logger: logger}, nil
}

// Target 目标价。
func (t *TargetOrder) Target() float64 { return t.target }

// State 当前状态。
func (t *TargetOrder) State() State { return t.state }

// IsTargetHit 买入时价格不低于目标，卖出时价格不高于目标。
func (t *TargetOrder) IsTargetHit(ltp float64) bool {
	if ltp <= 0 {
		return false
	}
	if t.entry.Side == order.SideSell {
		return ltp <= t.target
	}
	return ltp >= t.target
}

// Run 目标命中后将离场单转为市价，之后只等待离场单终结。
func (t *TargetOrder) Run(ctx context.Context, ltp map[string]float64) error {
	switch t.state {
	case Done:
		return nil
	case Exiting:
		if t.exit.IsDone() {
			t.state = Done
		}
		return nil
	}

	t.com.UpdateLTP(ltp)
	if t.exit.IsDone() {
		t.state = Done
		return nil
	}
	price, ok := ltp[t.entry.Symbol]
	if !ok || !t.IsTargetHit(price) {
		return nil
	}

	t.logger.Info("到达目标价，市价离场",
		zap.String("symbol", t.entry.Symbol),
		zap.Float64("ltp", price),
		zap.Float64("target", t.target),
	)
	ok, err := exitToMarket(ctx, t.exit)
	if err != nil {
		return fmt.Errorf("strategy: 止盈离场失败: %w", err)
	}
	if !ok {
		t.logger.Warn("离场单未被受理，下一轮重试", zap.String("id", t.exit.ID))
		return nil
	}
	t.state = Exiting
	return nil
}
