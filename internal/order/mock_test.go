package order

import (
	"context"
	"fmt"
	"time"
)

type placeCall struct {
	args Args
}

type modifyCall struct {
	orderID string
	args    Args
}

type mockCounterparty struct {
	calls    []string
	places   []placeCall
	modifies []modifyCall
	cancels  []string
	fail     map[string]bool
	seq      int
}

func (m *mockCounterparty) OrderPlace(_ context.Context, args Args) (Response, error) {
	m.calls = append(m.calls, "OrderPlace")
	m.places = append(m.places, placeCall{args: args})
	if m.fail["place"] {
		return Failure(ReasonRejected, "rejected by mock", time.Time{}), nil
	}
	m.seq++
	return Success(fmt.Sprintf("OID-%d", m.seq), time.Time{}, nil), nil
}

func (m *mockCounterparty) OrderModify(_ context.Context, orderID string, args Args) (Response, error) {
	m.calls = append(m.calls, "OrderModify")
	m.modifies = append(m.modifies, modifyCall{orderID: orderID, args: args})
	if m.fail["modify"] {
		return Failure(ReasonUnavailable, "unavailable", time.Time{}), nil
	}
	return Success(orderID, time.Time{}, nil), nil
}

func (m *mockCounterparty) OrderCancel(_ context.Context, orderID string) (Response, error) {
	m.calls = append(m.calls, "OrderCancel")
	m.cancels = append(m.cancels, orderID)
	return Success(orderID, time.Time{}, nil), nil
}

func (m *mockCounterparty) Orders(context.Context) ([]Snapshot, error) {
	m.calls = append(m.calls, "Orders")
	return nil, nil
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

type mockSink struct {
	records []Record
	err     error
}

func (m *mockSink) SaveOrder(_ context.Context, r Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

var _ Counterparty = (*mockCounterparty)(nil)
var _ Sink = (*mockSink)(nil)
