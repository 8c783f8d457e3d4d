package simulation

import (
	"strings"
	"time"

	"oms-core/internal/order"
)

// VTrade 为模拟成交。
type VTrade struct {
	TradeID   string
	OrderID   string
	Symbol    string
	Quantity  int64
	Price     float64
	Side      Side
	Timestamp time.Time
}

// Value 成交金额，卖出为负。
func (t VTrade) Value() float64 {
	return float64(int64(t.Side)*t.Quantity) * t.Price
}

// Trade 转换为订单核心的成交记录。
func (t VTrade) Trade() order.Trade {
	return order.Trade{
		TradeID:   t.TradeID,
		OrderID:   t.OrderID,
		Symbol:    t.Symbol,
		Side:      t.Side.OrderSide(),
		Quantity:  t.Quantity,
		Price:     t.Price,
		Timestamp: t.Timestamp,
	}
}

// VPosition 为单品种模拟持仓。
type VPosition struct {
	Symbol       string
	BuyQuantity  int64
	SellQuantity int64
	BuyValue     float64
	SellValue    float64
}

func (p *VPosition) add(v *VOrder) {
	value := float64(v.FilledQuantity) * v.AveragePrice
	if v.Side == SideSell {
		p.SellQuantity += v.FilledQuantity
		p.SellValue += value
		return
	}
	p.BuyQuantity += v.FilledQuantity
	p.BuyValue += value
}

// NetQuantity 净持仓。
func (p VPosition) NetQuantity() int64 {
	return p.BuyQuantity - p.SellQuantity
}

// NetValue 买入金额减卖出金额。
func (p VPosition) NetValue() float64 {
	return p.BuyValue - p.SellValue
}

// AverageBuyPrice 买入均价。
func (p VPosition) AverageBuyPrice() float64 {
	if p.BuyQuantity == 0 {
		return 0
	}
	return p.BuyValue / float64(p.BuyQuantity)
}

// AverageSellPrice 卖出均价。
func (p VPosition) AverageSellPrice() float64 {
	if p.SellQuantity == 0 {
		return 0
	}
	return p.SellValue / float64(p.SellQuantity)
}

// BasicPosition 转换为订单核心的持仓统计。
func (p VPosition) BasicPosition() order.BasicPosition {
	return order.BasicPosition{
		Symbol:       p.Symbol,
		BuyQuantity:  p.BuyQuantity,
		SellQuantity: p.SellQuantity,
		BuyValue:     p.BuyValue,
		SellValue:    p.SellValue,
	}
}

// VUser 为模拟账户，编号统一为大写。
type VUser struct {
	UserID string
	Name   string
	Orders []*VOrder
}

// NewVUser 创建账户。
func NewVUser(userID, name string) *VUser {
	return &VUser{UserID: strings.ToUpper(userID), Name: name}
}
