package monitor

import (
	"time"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventExecution EventType = "execution"
	EventFill      EventType = "fill"
	EventPosition  EventType = "position"
	EventError     EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ExecutionPayload 记录一次下单、改单或撤单的结果。
type ExecutionPayload struct {
	Strategy  string  `json:"strategy"`
	Operation string  `json:"operation"`
	OrderID   string  `json:"order_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	OK        bool    `json:"ok"`
	Message   string  `json:"message,omitempty"`
}

// FillPayload 记录订单回报带来的成交变化。
type FillPayload struct {
	Strategy       string  `json:"strategy"`
	OrderID        string  `json:"order_id"`
	Symbol         string  `json:"symbol"`
	Status         string  `json:"status"`
	FilledQuantity int64   `json:"filled_quantity"`
	AveragePrice   float64 `json:"average_price"`
}

// PositionPayload 追踪策略持仓与盯市盈亏。
type PositionPayload struct {
	Strategy  string             `json:"strategy"`
	Positions map[string]int64   `json:"positions"`
	MTM       map[string]float64 `json:"mtm"`
	TotalMTM  float64            `json:"total_mtm"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
