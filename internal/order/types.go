package order

import (
	"fmt"
	"strings"
)

// Side 表示买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 忽略大小写解析方向。
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	default:
		return "", fmt.Errorf("order: 未知的买卖方向 %q", s)
	}
}

// Opposite 返回相反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign 买为 1，卖为 -1。
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OrderType 表示委托类型。
type OrderType string

const (
	TypeMarket     OrderType = "MARKET"
	TypeLimit      OrderType = "LIMIT"
	TypeStopLimit  OrderType = "SL"
	TypeStopMarket OrderType = "SL-M"
)

// Status 为交易对手回报的订单状态。
type Status string

const (
	StatusOpen        Status = "OPEN"
	StatusPending     Status = "PENDING"
	StatusPartialFill Status = "PARTIAL_FILL"
	StatusComplete    Status = "COMPLETE"
	StatusCanceled    Status = "CANCELED"
	StatusCancelled   Status = "CANCELLED"
	StatusRejected    Status = "REJECTED"
)

// ValidityDay 为默认有效期。
const ValidityDay = "DAY"

// ExpiryPolicy 决定挂单过期后的处理方式。
type ExpiryPolicy int

const (
	// ExpiryCancel 过期后撤单。
	ExpiryCancel ExpiryPolicy = iota
	// ExpiryConvertToMarket 过期后改为市价单。
	ExpiryConvertToMarket
	// ExpiryKeep 过期后不做处理。
	ExpiryKeep
)

func (p ExpiryPolicy) String() string {
	switch p {
	case ExpiryCancel:
		return "cancel"
	case ExpiryConvertToMarket:
		return "convert_to_market"
	case ExpiryKeep:
		return "keep"
	default:
		return fmt.Sprintf("ExpiryPolicy(%d)", int(p))
	}
}
