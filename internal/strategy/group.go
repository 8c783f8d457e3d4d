package strategy

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"oms-core/internal/order"
)

// OrderStrategy 汇总多个策略的持仓与盈亏，并统一驱动它们。
type OrderStrategy struct {
	ID      string
	runners []Runner
}

// NewOrderStrategy 创建策略组合。
func NewOrderStrategy(id string, runners ...Runner) *OrderStrategy {
	return &OrderStrategy{ID: id, runners: append([]Runner(nil), runners...)}
}

// Add 追加策略。
func (s *OrderStrategy) Add(r Runner) {
	s.runners = append(s.runners, r)
}

// Runners 返回全部策略。
func (s *OrderStrategy) Runners() []Runner {
	return append([]Runner(nil), s.runners...)
}

// Positions 各品种净持仓合计。
func (s *OrderStrategy) Positions() map[string]int64 {
	out := make(map[string]int64)
	for _, r := range s.runners {
		for sym, q := range r.Compound().Positions() {
			out[sym] += q
		}
	}
	return out
}

// MTM 各品种盯市盈亏合计。
func (s *OrderStrategy) MTM() map[string]float64 {
	out := make(map[string]float64)
	for _, r := range s.runners {
		for sym, v := range r.Compound().MTM() {
			out[sym] += v
		}
	}
	return out
}

// TotalMTM 全部策略盯市盈亏合计。
func (s *OrderStrategy) TotalMTM() float64 {
	var total float64
	for _, r := range s.runners {
		total += r.Compound().TotalMTM()
	}
	return total
}

// UpdateLTP 将最新价下发到全部策略。
func (s *OrderStrategy) UpdateLTP(ltp map[string]float64) {
	for _, r := range s.runners {
		r.Compound().UpdateLTP(ltp)
	}
}

// UpdateOrders 将回报下发到全部策略，返回合并后的结果。
func (s *OrderStrategy) UpdateOrders(ctx context.Context, updates map[string]order.Update) map[string]bool {
	out := make(map[string]bool)
	for _, r := range s.runners {
		for id, ok := range r.Compound().UpdateOrders(ctx, updates) {
			out[id] = out[id] || ok
		}
	}
	return out
}

// Run 依次驱动全部策略，单个失败不影响其余策略。
func (s *OrderStrategy) Run(ctx context.Context, ltp map[string]float64) error {
	var errs error
	for i, r := range s.runners {
		if err := r.Run(ctx, ltp); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("strategy: 第 %d 个策略运行失败: %w", i, err))
		}
	}
	return errs
}
