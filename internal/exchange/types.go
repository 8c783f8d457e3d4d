package exchange

import (
	"time"

	"oms-core/internal/order"
)

// AccountSnapshot 聚合一次采集到的订单、持仓与成交。
type AccountSnapshot struct {
	Orders      []order.Snapshot
	Positions   []order.BasicPosition
	Trades      []order.Trade
	RetrievedAt time.Time
}

// Updates 将订单快照按订单号转换为回报。
func (s AccountSnapshot) Updates() map[string]order.Update {
	return order.Updates(s.Orders)
}
