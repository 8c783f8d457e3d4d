package strategy

import (
	"context"
	"fmt"
	"time"

	"oms-core/internal/order"
)

const (
	entryKey = "entry"
	exitKey  = "exit"
)

// StopParams 为带保护性止损的入场参数。
type StopParams struct {
	Symbol       string
	Side         order.Side
	Quantity     int64
	Price        float64
	TriggerPrice float64
	// EntryType 为入场单类型，默认市价。
	EntryType         order.OrderType
	DisclosedQuantity int64
	ExpiresIn         time.Duration
}

// StopOrder 由入场单与反向止损离场单组成，只包含两个子订单。
type StopOrder struct {
	com   *order.CompoundOrder
	entry *order.Order
	exit  *order.Order
}

// NewStopOrder 创建入场单与 SL-M 离场单。
func NewStopOrder(ctx context.Context, cp order.Counterparty, p StopParams, opts ...order.Option) (*StopOrder, error) {
	return newStop(ctx, cp, p, order.TypeStopMarket, 0, opts)
}

func newStop(ctx context.Context, cp order.Counterparty, p StopParams, exitType order.OrderType, exitPrice float64, opts []order.Option) (*StopOrder, error) {
	if p.Quantity == 0 {
		p.Quantity = 1
	}
	if p.EntryType == "" {
		p.EntryType = order.TypeMarket
	}
	side, err := order.ParseSide(string(p.Side))
	if err != nil {
		return nil, &order.ValidationError{Field: "side", Reason: err.Error()}
	}

	com := order.NewCompoundOrder(cp, opts...)
	entry, err := com.AddOrder(ctx, order.Params{
		Symbol:            p.Symbol,
		Side:              side,
		Quantity:          p.Quantity,
		OrderType:         p.EntryType,
		Price:             p.Price,
		DisclosedQuantity: p.DisclosedQuantity,
		ExpiresIn:         p.ExpiresIn,
	}, entryKey)
	if err != nil {
		return nil, fmt.Errorf("strategy: 创建入场单失败: %w", err)
	}
	exit, err := com.AddOrder(ctx, order.Params{
		Symbol:            p.Symbol,
		Side:              side.Opposite(),
		Quantity:          p.Quantity,
		OrderType:         exitType,
		Price:             exitPrice,
		TriggerPrice:      p.TriggerPrice,
		DisclosedQuantity: p.DisclosedQuantity,
		ExpiresIn:         p.ExpiresIn,
		ExpiryPolicy:      order.ExpiryKeep,
	}, exitKey)
	if err != nil {
		return nil, fmt.Errorf("strategy: 创建止损单失败: %w", err)
	}
	return &StopOrder{com: com, entry: entry, exit: exit}, nil
}

// NewStopLimitOrder 创建入场单与 SL 离场单，止损限价为 0 时取触发价。
func NewStopLimitOrder(ctx context.Context, cp order.Counterparty, p StopParams, stopLimitPrice float64, opts ...order.Option) (*StopOrder, error) {
	if stopLimitPrice == 0 {
		stopLimitPrice = p.TriggerPrice
	}
	return newStop(ctx, cp, p, order.TypeStopLimit, stopLimitPrice, opts)
}

// Compound 返回底层组合订单。
func (s *StopOrder) Compound() *order.CompoundOrder { return s.com }

// Entry 入场单。
func (s *StopOrder) Entry() *order.Order { return s.entry }

// Exit 止损离场单。
func (s *StopOrder) Exit() *order.Order { return s.exit }

// Execute 提交入场单与离场单。
func (s *StopOrder) Execute(ctx context.Context, extra order.Args) error {
	return s.com.ExecuteAll(ctx, extra)
}

// Run 更新最新价并处理过期的子订单。
func (s *StopOrder) Run(ctx context.Context, ltp map[string]float64) error {
	s.com.UpdateLTP(ltp)
	return s.com.CheckFlags(ctx)
}
