package exchange

import (
	"context"
	"sync"
	"time"

	"oms-core/internal/order"
)

var testStart = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// flakyCounterparty 前 failures 次返回 reason 失败，之后成功。
type flakyCounterparty struct {
	mu       sync.Mutex
	calls    []string
	failures int
	reason   order.FailureReason
	err      error
}

func (f *flakyCounterparty) next(name string) (order.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return order.Response{}, f.err
	}
	if len(f.calls) <= f.failures {
		return order.Failure(f.reason, "simulated", testStart), nil
	}
	return order.Success("id-1", testStart, nil), nil
}

func (f *flakyCounterparty) OrderPlace(context.Context, order.Args) (order.Response, error) {
	return f.next("place")
}

func (f *flakyCounterparty) OrderModify(context.Context, string, order.Args) (order.Response, error) {
	return f.next("modify")
}

func (f *flakyCounterparty) OrderCancel(context.Context, string) (order.Response, error) {
	return f.next("cancel")
}

func (f *flakyCounterparty) Orders(context.Context) ([]order.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "orders")
	if len(f.calls) <= f.failures {
		return nil, f.err
	}
	return []order.Snapshot{{OrderID: "id-1", Status: order.StatusComplete}}, nil
}

func (f *flakyCounterparty) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
