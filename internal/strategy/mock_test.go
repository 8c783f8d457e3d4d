package strategy

import (
	"context"
	"fmt"
	"time"

	"oms-core/internal/order"
)

var testStart = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type mockCounterparty struct {
	calls    []string
	modifies []order.Args
	cancels  []string
	seq      int

	// failModify 与 failCancel 为接下来需要返回失败回复的调用次数。
	failModify int
	failCancel int
}

func (m *mockCounterparty) OrderPlace(_ context.Context, _ order.Args) (order.Response, error) {
	m.calls = append(m.calls, "OrderPlace")
	m.seq++
	return order.Success(fmt.Sprintf("OID-%d", m.seq), time.Time{}, nil), nil
}

func (m *mockCounterparty) OrderModify(_ context.Context, orderID string, args order.Args) (order.Response, error) {
	m.calls = append(m.calls, "OrderModify")
	if m.failModify > 0 {
		m.failModify--
		return order.Failure(order.ReasonUnavailable, "unavailable", time.Time{}), nil
	}
	m.modifies = append(m.modifies, args)
	return order.Success(orderID, time.Time{}, nil), nil
}

func (m *mockCounterparty) OrderCancel(_ context.Context, orderID string) (order.Response, error) {
	m.calls = append(m.calls, "OrderCancel")
	if m.failCancel > 0 {
		m.failCancel--
		return order.Failure(order.ReasonUnavailable, "unavailable", time.Time{}), nil
	}
	m.cancels = append(m.cancels, orderID)
	return order.Success(orderID, time.Time{}, nil), nil
}

func (m *mockCounterparty) Orders(context.Context) ([]order.Snapshot, error) {
	return nil, nil
}

var _ order.Counterparty = (*mockCounterparty)(nil)

func fillOrder(o *order.Order, price float64) {
	o.FilledQuantity = o.Quantity
	o.PendingQuantity = 0
	o.AveragePrice = price
	o.Status = order.StatusComplete
}

func (m *mockCounterparty) count(name string) int {
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}
