package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"oms-core/internal/order"
)

// TrailBy 为盯市盈亏到止损位移的换算比例，每 Big 单位盈亏移动 Small。
type TrailBy struct {
	Big   float64
	Small float64
}

// TrailingStop 随最大盯市盈亏上移止损位，价格反向穿越止损位时市价离场。
type TrailingStop struct {
	*StopOrder

	trail       TrailBy
	initialStop float64
	stop        float64
	maxMTM      float64
	state       State
	logger      *zap.Logger
}

// NewTrailingStop 基于止损限价单对创建移动止损。
func NewTrailingStop(ctx context.Context, cp order.Counterparty, p StopParams, trail TrailBy, logger *zap.Logger, opts ...order.Option) (*TrailingStop, error) {
	if trail.Big <= 0 || trail.Small < 0 {
		return nil, &order.ValidationError{Field: "trail_by", Reason: fmt.Sprintf("比例不合法: (%v, %v)", trail.Big, trail.Small)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	so, err := NewStopLimitOrder(ctx, cp, p, 0, append(opts, order.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}
	return &TrailingStop{
		StopOrder:   so,
		trail:       trail,
		initialStop: p.TriggerPrice,
		stop:        p.TriggerPrice,
		logger:      logger,
	}, nil
}

// Stop 当前止损位。
func (t *TrailingStop) Stop() float64 { return t.stop }

// MaxMTM 运行期间的最大盯市盈亏。
func (t *TrailingStop) MaxMTM() float64 { return t.maxMTM }

// State 当前状态。
func (t *TrailingStop) State() State { return t.state }

func (t *TrailingStop) updateStop() {
	t.maxMTM = max(t.maxMTM, t.com.TotalMTM())
	qty := t.entry.Quantity
	if qty == 0 {
		return
	}
	perUnit := t.maxMTM / float64(qty)
	sign := float64(t.entry.Side.Sign())
	t.stop = t.initialStop + sign*perUnit*(t.trail.Small/t.trail.Big)
}

func (t *TrailingStop) crossed(ltp float64) bool {
	if t.entry.Side == order.SideSell {
		return ltp > t.stop
	}
	return ltp < t.stop
}

// Watch 更新止损位，价格反向穿越时将离场单转为市价。
func (t *TrailingStop) Watch(ctx context.Context) error {
	switch t.state {
	case Done:
		return nil
	case Exiting:
		if t.exit.IsDone() {
			t.state = Done
		}
		return nil
	}
	if t.exit.IsDone() {
		t.state = Done
		return nil
	}

	t.updateStop()
	ltp, ok := t.com.LTP()[t.entry.Symbol]
	if !ok || ltp == 0 || !t.crossed(ltp) {
		return nil
	}

	t.logger.Info("价格穿越移动止损，市价离场",
		zap.String("symbol", t.entry.Symbol),
		zap.Float64("ltp", ltp),
		zap.Float64("stop", t.stop),
		zap.Float64("max_mtm", t.maxMTM),
	)
	ok, err := exitToMarket(ctx, t.exit)
	if err != nil {
		return fmt.Errorf("strategy: 移动止损离场失败: %w", err)
	}
	if !ok {
		t.logger.Warn("离场单未被受理，下一轮重试", zap.String("id", t.exit.ID))
		return nil
	}
	t.state = Exiting
	return nil
}

// Run 更新最新价后执行 Watch。
func (t *TrailingStop) Run(ctx context.Context, ltp map[string]float64) error {
	t.com.UpdateLTP(ltp)
	return t.Watch(ctx)
}

// StepTrailingStop 价格每越过一个步长，止损触发价同向移动一个步长。
type StepTrailingStop struct {
	*StopOrder

	trail  float64
	stop   float64
	next   float64
	state  State
	logger *zap.Logger
}

// NewStepTrailingStop 创建按步长移动的止损，入场价为 0 时不移动。
func NewStepTrailingStop(ctx context.Context, cp order.Counterparty, p StopParams, trail float64, logger *zap.Logger, opts ...order.Option) (*StepTrailingStop, error) {
	if trail <= 0 {
		return nil, &order.ValidationError{Field: "trail", Reason: fmt.Sprintf("步长必须为正数: %v", trail)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	so, err := NewStopOrder(ctx, cp, p, append(opts, order.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}
	s := &StepTrailingStop{
		StopOrder: so,
		trail:     trail,
		stop:      p.TriggerPrice,
		logger:    logger,
	}
	if p.Price != 0 {
		s.next = p.Price + float64(so.entry.Side.Sign())*trail
	}
	return s, nil
}

// Stop 当前止损触发价。
func (s *StepTrailingStop) Stop() float64 { return s.stop }

// Next 下一次移动止损的价格，0 表示不移动。
func (s *StepTrailingStop) Next() float64 { return s.next }

// State 当前状态。
func (s *StepTrailingStop) State() State { return s.state }

func (s *StepTrailingStop) reached(ltp float64) bool {
	if s.entry.Side == order.SideSell {
		return ltp < s.next
	}
	return ltp > s.next
}

// Run 每次最多移动一个步长并修改离场单触发价。
func (s *StepTrailingStop) Run(ctx context.Context, ltp map[string]float64) error {
	if s.state == Done {
		return nil
	}
	if s.exit.IsDone() {
		s.state = Done
		return nil
	}
	s.com.UpdateLTP(ltp)
	price, ok := ltp[s.entry.Symbol]
	if !ok || s.next == 0 || !s.reached(price) {
		return nil
	}

	step := float64(s.entry.Side.Sign()) * s.trail
	stop := s.stop + step
	ok, err := s.exit.Modify(ctx, nil, order.Args{TriggerPrice: order.Ptr(stop)})
	if err != nil {
		return fmt.Errorf("strategy: 修改止损触发价失败: %w", err)
	}
	if !ok {
		s.logger.Warn("止损触发价未被受理，下一轮重试", zap.String("id", s.exit.ID), zap.Float64("stop", stop))
		return nil
	}
	s.stop = stop
	s.next += step
	s.logger.Debug("止损上移一个步长",
		zap.String("symbol", s.entry.Symbol),
		zap.Float64("ltp", price),
		zap.Float64("stop", s.stop),
		zap.Float64("next", s.next),
	)
	return nil
}
