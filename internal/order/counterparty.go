package order

import (
	"context"
	"time"
)

// Counterparty 为订单核心所需的交易对手能力，真实或模拟实现均需满足。
type Counterparty interface {
	OrderPlace(ctx context.Context, args Args) (Response, error)
	OrderModify(ctx context.Context, orderID string, args Args) (Response, error)
	OrderCancel(ctx context.Context, orderID string) (Response, error)
	Orders(ctx context.Context) ([]Snapshot, error)
}

// Reporter 为可选的持仓与成交快照能力。
type Reporter interface {
	Positions(ctx context.Context) ([]BasicPosition, error)
	Trades(ctx context.Context) ([]Trade, error)
}

// ResponseStatus 表示交易对手调用结果。
type ResponseStatus string

const (
	ResponseSuccess ResponseStatus = "success"
	ResponseFailure ResponseStatus = "failure"
)

// FailureReason 区分失败原因，决定调用方是否重试。
type FailureReason string

const (
	ReasonNone        FailureReason = ""
	ReasonUnavailable FailureReason = "unavailable"
	ReasonInvalid     FailureReason = "invalid"
	ReasonNotFound    FailureReason = "not_found"
	ReasonRejected    FailureReason = "rejected"
)

// Response 为交易对手的结构化回复，失败不会以 error 形式抛出。
type Response struct {
	Status    ResponseStatus
	OrderID   string
	Message   string
	Reason    FailureReason
	Timestamp time.Time
	Data      *Snapshot
}

// OK 调用是否成功。
func (r Response) OK() bool {
	return r.Status == ResponseSuccess
}

// Retryable 仅交易对手暂不可用时可以重试。
func (r Response) Retryable() bool {
	return r.Status == ResponseFailure && r.Reason == ReasonUnavailable
}

// Success 构造成功回复。
func Success(orderID string, ts time.Time, data *Snapshot) Response {
	return Response{Status: ResponseSuccess, OrderID: orderID, Timestamp: ts, Data: data}
}

// Failure 构造失败回复。
func Failure(reason FailureReason, message string, ts time.Time) Response {
	return Response{Status: ResponseFailure, Reason: reason, Message: message, Timestamp: ts}
}

// Snapshot 为交易对手侧的订单快照。
type Snapshot struct {
	OrderID           string
	ExchangeOrderID   string
	Symbol            string
	Side              Side
	OrderType         OrderType
	Quantity          int64
	Price             float64
	TriggerPrice      float64
	DisclosedQuantity int64
	Status            Status
	FilledQuantity    int64
	PendingQuantity   int64
	CancelledQuantity int64
	AveragePrice      float64
	Timestamp         time.Time
}

// Update 将快照转换为订单回报。
func (s Snapshot) Update() Update {
	u := Update{
		Version:           UpdateVersion,
		Status:            Ptr(s.Status),
		FilledQuantity:    Ptr(s.FilledQuantity),
		PendingQuantity:   Ptr(s.PendingQuantity),
		CancelledQuantity: Ptr(s.CancelledQuantity),
		AveragePrice:      Ptr(s.AveragePrice),
	}
	if s.ExchangeOrderID != "" {
		u.ExchangeOrderID = Ptr(s.ExchangeOrderID)
	}
	if !s.Timestamp.IsZero() {
		u.ExchangeTimestamp = Ptr(s.Timestamp)
	}
	return u
}

// Updates 按交易对手订单号归集快照。
func Updates(snapshots []Snapshot) map[string]Update {
	out := make(map[string]Update, len(snapshots))
	for _, s := range snapshots {
		if s.OrderID == "" {
			continue
		}
		out[s.OrderID] = s.Update()
	}
	return out
}

// Trade 为一笔成交。
type Trade struct {
	TradeID   string
	OrderID   string
	Symbol    string
	Side      Side
	Quantity  int64
	Price     float64
	Timestamp time.Time
}

// UpdateVersion 为当前支持的回报结构版本。
const UpdateVersion uint8 = 1

// Update 为交易对手回报中允许写入订单的字段白名单，nil 表示未提供。
type Update struct {
	Version           uint8
	ExchangeTimestamp *time.Time
	ExchangeOrderID   *string
	Status            *Status
	FilledQuantity    *int64
	PendingQuantity   *int64
	CancelledQuantity *int64
	DisclosedQuantity *int64
	AveragePrice      *float64
}

// IsEmpty 回报未携带任何字段。
func (u Update) IsEmpty() bool {
	return u.ExchangeTimestamp == nil &&
		u.ExchangeOrderID == nil &&
		u.Status == nil &&
		u.FilledQuantity == nil &&
		u.PendingQuantity == nil &&
		u.CancelledQuantity == nil &&
		u.DisclosedQuantity == nil &&
		u.AveragePrice == nil
}

// Sink 为订单落库的被动日志。
type Sink interface {
	SaveOrder(ctx context.Context, r Record) error
}
