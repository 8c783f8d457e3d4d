package simulation

import (
	"math/rand/v2"
	"strings"
	"time"

	"oms-core/internal/order"
)

// DefaultDelay 为模拟订单状态变化前的默认延迟。
const DefaultDelay = time.Second

// VOrder 为模拟订单，状态完全由三类数量与状态信息决定。
type VOrder struct {
	OrderID           string
	Symbol            string
	Side              Side
	OrderType         order.OrderType
	Quantity          int64
	Price             float64
	TriggerPrice      float64
	AveragePrice      float64
	Timestamp         time.Time
	ExchangeOrderID   string
	ExchangeTimestamp time.Time
	StatusMessage     string

	FilledQuantity   int64
	PendingQuantity  int64
	CanceledQuantity int64

	// Delay 为创建后到允许状态变化的时长。
	Delay time.Duration
}

// NewVOrder 规整数量并补全默认延迟，保证三类数量之和等于委托数量。
func NewVOrder(v VOrder) *VOrder {
	if v.Delay <= 0 {
		v.Delay = DefaultDelay
	}
	if v.Quantity < 0 {
		v.Quantity = 0
	}
	v.normalize()
	return &v
}

func (v *VOrder) normalize() {
	q := v.Quantity
	f, p, c := max(v.FilledQuantity, 0), max(v.PendingQuantity, 0), max(v.CanceledQuantity, 0)
	switch {
	case c > 0:
		c = min(c, q)
		f, p = q-c, 0
	case f > 0:
		f = min(f, q)
		p = q - f
	case p > 0:
		p = min(p, q)
		f = q - p
	default:
		p = q
	}
	v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity = f, p, c
}

// Status 由数量推导状态。
func (v *VOrder) Status() Status {
	q, f, p, c := v.Quantity, v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity
	switch {
	case f == q:
		return StatusComplete
	case c == q:
		if strings.HasPrefix(strings.ToUpper(v.StatusMessage), "REJ") {
			return StatusRejected
		}
		return StatusCanceled
	case c > 0:
		if c+f == q {
			return StatusPartialFill
		}
		return StatusPending
	case p > 0 && f > 0:
		return StatusPending
	default:
		return StatusOpen
	}
}

// IsDone 已完成、已撤销、已拒绝或部分成交后终结。
func (v *VOrder) IsDone() bool {
	switch v.Status() {
	case StatusComplete, StatusCanceled, StatusRejected, StatusPartialFill:
		return true
	}
	return false
}

// IsPastDelay 创建后经过的时长已超过延迟。
func (v *VOrder) IsPastDelay(now time.Time) bool {
	return now.Sub(v.Timestamp) > v.Delay
}

// ModifyByStatus 延迟结束且未终结时按目标状态改写数量，部分成交的数量随机拆分。
func (v *VOrder) ModifyByStatus(now time.Time, target Status, rng *rand.Rand) bool {
	if !v.IsPastDelay(now) || v.IsDone() {
		return false
	}
	q := v.Quantity
	switch target {
	case StatusComplete:
		v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity = q, 0, 0
	case StatusCanceled:
		v.CanceledQuantity, v.PendingQuantity = q-v.FilledQuantity, 0
	case StatusRejected:
		v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity = 0, 0, q
		v.StatusMessage = "REJECTED by simulation"
	case StatusOpen:
		v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity = 0, q, 0
	case StatusPartialFill, StatusPending:
		if q < 2 {
			v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity = q, 0, 0
			break
		}
		f := rng.Int64N(q-1) + 1
		if target == StatusPartialFill {
			v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity = f, 0, q-f
		} else {
			v.FilledQuantity, v.PendingQuantity, v.CanceledQuantity = f, q-f, 0
		}
	default:
		return false
	}
	v.ExchangeTimestamp = now
	return true
}

// Value 已成交金额，卖出为负。
func (v *VOrder) Value() float64 {
	return float64(int64(v.Side)*v.FilledQuantity) * v.AveragePrice
}

// Snapshot 转换为交易对手快照。
func (v *VOrder) Snapshot() order.Snapshot {
	return order.Snapshot{
		OrderID:           v.OrderID,
		ExchangeOrderID:   v.ExchangeOrderID,
		Symbol:            v.Symbol,
		Side:              v.Side.OrderSide(),
		OrderType:         v.OrderType,
		Quantity:          v.Quantity,
		Price:             v.Price,
		TriggerPrice:      v.TriggerPrice,
		Status:            v.Status().OrderStatus(),
		FilledQuantity:    v.FilledQuantity,
		PendingQuantity:   v.PendingQuantity,
		CancelledQuantity: v.CanceledQuantity,
		AveragePrice:      v.AveragePrice,
		Timestamp:         v.ExchangeTimestamp,
	}
}
