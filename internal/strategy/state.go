package strategy

import (
	"context"
	"fmt"

	"oms-core/internal/order"
)

// State 为策略状态机的阶段。
type State int

const (
	// Armed 等待行情驱动。
	Armed State = iota
	// Exiting 已发出离场指令，等待离场单终结。
	Exiting
	// Done 策略结束，再次调用不做任何事。
	Done
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Exiting:
		return "exiting"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Runner 为按行情周期驱动的策略。
type Runner interface {
	Compound() *order.CompoundOrder
	Run(ctx context.Context, ltp map[string]float64) error
}

// Basket 为不带反应逻辑的普通组合订单，仅处理过期。
type Basket struct {
	com *order.CompoundOrder
}

// NewBasket 包装组合订单。
func NewBasket(com *order.CompoundOrder) *Basket {
	return &Basket{com: com}
}

// Compound 返回底层组合订单。
func (b *Basket) Compound() *order.CompoundOrder {
	return b.com
}

// Run 更新最新价并处理过期子订单。
func (b *Basket) Run(ctx context.Context, ltp map[string]float64) error {
	b.com.UpdateLTP(ltp)
	return b.com.CheckFlags(ctx)
}

// exitToMarket 将离场单转为市价单。
func exitToMarket(ctx context.Context, exit *order.Order) (bool, error) {
	return exit.Modify(ctx, nil, order.Args{
		OrderType:    order.TypeMarket,
		Price:        order.Ptr(0.0),
		TriggerPrice: order.Ptr(0.0),
	})
}

var (
	_ Runner = (*Basket)(nil)
	_ Runner = (*StopOrder)(nil)
	_ Runner = (*TrailingStop)(nil)
	_ Runner = (*StepTrailingStop)(nil)
	_ Runner = (*TargetOrder)(nil)
	_ Runner = (*PegExisting)(nil)
	_ Runner = (*PegMarket)(nil)
)
