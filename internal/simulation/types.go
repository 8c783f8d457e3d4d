package simulation

import (
	"fmt"

	"oms-core/internal/order"
)

// Status 为模拟订单状态，由数量推导得出。
type Status int

const (
	StatusComplete Status = iota + 1
	StatusRejected
	StatusCanceled
	// StatusPartialFill 部分成交后其余撤销，已终结。
	StatusPartialFill
	// StatusOpen 全部数量待成交。
	StatusOpen
	// StatusPending 部分成交，其余待成交。
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "COMPLETE"
	case StatusRejected:
		return "REJECTED"
	case StatusCanceled:
		return "CANCELED"
	case StatusPartialFill:
		return "PARTIAL_FILL"
	case StatusOpen:
		return "OPEN"
	case StatusPending:
		return "PENDING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// OrderStatus 转换为订单核心的状态值。
func (s Status) OrderStatus() order.Status {
	switch s {
	case StatusComplete:
		return order.StatusComplete
	case StatusRejected:
		return order.StatusRejected
	case StatusCanceled:
		return order.StatusCanceled
	case StatusPartialFill:
		return order.StatusPartialFill
	case StatusPending:
		return order.StatusPending
	default:
		return order.StatusOpen
	}
}

// Side 买为 1，卖为 -1。
type Side int

const (
	SideBuy  Side = 1
	SideSell Side = -1
)

// SideOf 由订单核心的方向转换。
func SideOf(s order.Side) Side {
	if s == order.SideSell {
		return SideSell
	}
	return SideBuy
}

// OrderSide 转换为订单核心的方向。
func (s Side) OrderSide() order.Side {
	if s == SideSell {
		return order.SideSell
	}
	return order.SideBuy
}

func (s Side) String() string {
	return string(s.OrderSide())
}

// OHLC 为行情的开高低收与最新价。
type OHLC struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Last  float64
}

// Operation 为可被强制指定回复的交易对手操作。
type Operation string

const (
	OpPlace  Operation = "place"
	OpModify Operation = "modify"
	OpCancel Operation = "cancel"
)
