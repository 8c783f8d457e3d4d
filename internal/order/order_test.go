package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"oms-core/internal/clock"
)

var testStart = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestOrder(t *testing.T, p Params, opts ...Option) (*Order, *clock.Manual) {
	t.Helper()
	c := clock.NewManual(testStart)
	o, err := New(p, append([]Option{WithClock(c)}, opts...)...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return o, c
}

func TestNew_Defaults(t *testing.T) {
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: "buy", Quantity: 10})

	if o.ID == "" || len(o.ID) != 32 {
		t.Fatalf("expected 32 char hex id, got %q", o.ID)
	}
	if o.Side != SideBuy {
		t.Errorf("expected side BUY, got %s", o.Side)
	}
	if o.OrderType != TypeMarket {
		t.Errorf("expected default MARKET, got %s", o.OrderType)
	}
	if o.Validity != ValidityDay {
		t.Errorf("expected default DAY validity, got %s", o.Validity)
	}
	if o.PendingQuantity != 10 || o.FilledQuantity != 0 || o.CancelledQuantity != 0 {
		t.Errorf("unexpected quantities f=%d p=%d c=%d", o.FilledQuantity, o.PendingQuantity, o.CancelledQuantity)
	}
	if o.MaxModifications != 10 {
		t.Errorf("expected 10 max modifications, got %d", o.MaxModifications)
	}
	want := 13*time.Hour + 59*time.Minute + 59*time.Second
	if o.ExpiresIn != want {
		t.Errorf("expected expiry until end of day %s, got %s", want, o.ExpiresIn)
	}
}

func TestNew_ExpiresInNegativeIsAbsolute(t *testing.T) {
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideSell, Quantity: 1, ExpiresIn: -30 * time.Second})
	if o.ExpiresIn != 30*time.Second {
		t.Fatalf("expected 30s, got %s", o.ExpiresIn)
	}
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name  string
		p     Params
		field string
	}{
		{"negative quantity", Params{Symbol: "aapl", Side: SideBuy, Quantity: -1}, "quantity"},
		{"empty symbol", Params{Side: SideBuy, Quantity: 1}, "symbol"},
		{"bad side", Params{Symbol: "aapl", Side: "hold", Quantity: 1}, "side"},
		{"negative price", Params{Symbol: "aapl", Side: SideBuy, Quantity: 1, Price: -1}, "price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.p)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected field %s, got %s", tc.field, verr.Field)
			}
		})
	}
}

func TestOrder_StatePredicates(t *testing.T) {
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	if o.IsComplete() || !o.IsPending() || o.IsDone() {
		t.Fatalf("fresh order should be pending only")
	}

	o.FilledQuantity, o.CancelledQuantity = 6, 4
	if !o.IsComplete() {
		t.Errorf("filled+cancelled==quantity should be complete")
	}
	if o.IsPending() {
		t.Errorf("complete order must not be pending")
	}

	o.FilledQuantity, o.CancelledQuantity = 2, 0
	o.Status = StatusComplete
	if !o.IsComplete() || o.IsPending() {
		t.Errorf("status COMPLETE should be complete and not pending")
	}

	o.Status = StatusRejected
	if o.IsComplete() || o.IsPending() || !o.IsDone() {
		t.Errorf("rejected order should be done but neither complete nor pending")
	}

	for _, st := range []Status{StatusCanceled, StatusCancelled} {
		o.Status = st
		if o.IsPending() || !o.IsDone() {
			t.Errorf("%s order should be done and not pending", st)
		}
	}
}

func TestOrder_CancelledSpellingStopsReconciliation(t *testing.T) {
	cp := &mockCounterparty{}
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	o.Execute(context.Background(), cp, Args{})
	o.Update(context.Background(), Update{Status: Ptr(StatusCancelled)})

	if !o.IsDone() || o.IsPending() {
		t.Fatalf("CANCELLED update should leave the order done, got done=%v pending=%v", o.IsDone(), o.IsPending())
	}
}

func TestOrder_Expiry(t *testing.T) {
	o, c := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10, ExpiresIn: 60 * time.Second})

	c.Advance(20 * time.Second)
	if got := o.TimeToExpiry(); got != 40*time.Second {
		t.Errorf("expected 40s to expiry, got %s", got)
	}
	if o.TimeAfterExpiry() != 0 || o.HasExpired() {
		t.Errorf("order should not have expired yet")
	}

	c.Advance(70 * time.Second)
	if o.TimeToExpiry() != 0 {
		t.Errorf("time to expiry must not go negative")
	}
	if got := o.TimeAfterExpiry(); got != 30*time.Second {
		t.Errorf("expected 30s after expiry, got %s", got)
	}
	if !o.HasExpired() {
		t.Errorf("order should have expired")
	}
}

func TestOrder_UpdateTrustsCounterparty(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10}, WithLogger(zap.New(core)))

	ok := o.Update(context.Background(), Update{
		FilledQuantity:  Ptr[int64](5),
		PendingQuantity: Ptr[int64](2),
	})
	if !ok {
		t.Fatalf("expected update to apply")
	}
	if o.FilledQuantity != 5 || o.PendingQuantity != 2 {
		t.Fatalf("expected f=5 p=2, got f=%d p=%d", o.FilledQuantity, o.PendingQuantity)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one reconciliation warning, got %d", logs.Len())
	}
	if o.LastUpdatedAt.IsZero() {
		t.Errorf("expected last updated timestamp")
	}
}

func TestOrder_UpdateRecomputesPending(t *testing.T) {
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	o.Update(context.Background(), Update{FilledQuantity: Ptr[int64](4), Status: Ptr(StatusPending)})
	if o.PendingQuantity != 6 {
		t.Fatalf("expected pending recomputed to 6, got %d", o.PendingQuantity)
	}
}

func TestOrder_UpdateIgnoredWhenDone(t *testing.T) {
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	o.Update(context.Background(), Update{FilledQuantity: Ptr[int64](10), Status: Ptr(StatusComplete)})

	if o.Update(context.Background(), Update{FilledQuantity: Ptr[int64](3)}) {
		t.Fatalf("terminal order must ignore updates")
	}
	if o.FilledQuantity != 10 {
		t.Errorf("filled quantity changed after terminal state: %d", o.FilledQuantity)
	}
}

func TestOrder_ExecuteOnce(t *testing.T) {
	cp := &mockCounterparty{}
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10, OrderType: TypeLimit, Price: 650})

	id, err := o.Execute(context.Background(), cp, Args{Symbol: "msft", Validity: "IOC", Params: map[string]any{"tag": "x"}})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if id != "OID-1" || o.OrderID != "OID-1" {
		t.Fatalf("expected OID-1, got %q", id)
	}
	again, _ := o.Execute(context.Background(), cp, Args{})
	if again != id {
		t.Errorf("second execute returned %q", again)
	}
	if got := cp.count("OrderPlace"); got != 1 {
		t.Fatalf("expected exactly one place call, got %d", got)
	}

	args := cp.places[0].args
	if args.Symbol != "AAPL" {
		t.Errorf("base symbol must win over extra, got %s", args.Symbol)
	}
	if args.Validity != "IOC" {
		t.Errorf("extra validity should pass through, got %s", args.Validity)
	}
	if args.Price == nil || *args.Price != 650 {
		t.Errorf("expected price 650, got %v", args.Price)
	}
	if v, _ := args.Param("tag"); v != "x" {
		t.Errorf("expected tag param, got %v", args.Params)
	}
}

func TestOrder_ExecuteOmitsZeroPrice(t *testing.T) {
	cp := &mockCounterparty{}
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	if _, err := o.Execute(context.Background(), cp, Args{}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	args := cp.places[0].args
	if args.Price != nil {
		t.Errorf("market order should not carry a price, got %v", *args.Price)
	}
	if args.TriggerPrice == nil || args.DisclosedQuantity == nil {
		t.Errorf("trigger and disclosed quantity should always be sent")
	}
}

func TestOrder_ExecuteFailureRecordsError(t *testing.T) {
	cp := &mockCounterparty{fail: map[string]bool{"place": true}}
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})

	id, err := o.Execute(context.Background(), cp, Args{})
	if err != nil {
		t.Fatalf("counterparty failure must not be an error: %v", err)
	}
	if id != "" || o.OrderID != "" {
		t.Fatalf("expected no id after failure, got %q", id)
	}
	if o.Error != "rejected by mock" {
		t.Errorf("expected failure message recorded, got %q", o.Error)
	}
}

func TestOrder_ExecuteRespectsCreationLock(t *testing.T) {
	cp := &mockCounterparty{}
	o, c := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	o.AddLock(LockCreation, 5*time.Second)

	o.Execute(context.Background(), cp, Args{})
	if len(cp.calls) != 0 {
		t.Fatalf("expected no calls while locked, got %v", cp.calls)
	}
	c.Advance(6 * time.Second)
	o.Execute(context.Background(), cp, Args{})
	if cp.count("OrderPlace") != 1 {
		t.Fatalf("expected place after lock elapsed, got %v", cp.calls)
	}
}

func TestOrder_ExecuteWithoutCounterparty(t *testing.T) {
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	if _, err := o.Execute(context.Background(), nil, Args{}); !errors.Is(err, ErrNoCounterparty) {
		t.Fatalf("expected ErrNoCounterparty, got %v", err)
	}
}

func TestOrder_Modify(t *testing.T) {
	cp := &mockCounterparty{}
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10, OrderType: TypeLimit, Price: 650}, WithCounterparty(cp))
	o.Execute(context.Background(), nil, Args{})

	ok, err := o.Modify(context.Background(), nil, Args{
		Symbol:   "msft",
		Side:     SideSell,
		Price:    Ptr(655.0),
		Quantity: Ptr[int64](12),
	})
	if err != nil || !ok {
		t.Fatalf("Modify returned ok=%v err=%v", ok, err)
	}
	if o.Symbol != "aapl" || o.Side != SideBuy {
		t.Errorf("frozen fields changed: %s %s", o.Symbol, o.Side)
	}
	if o.Price != 655 || o.Quantity != 12 || o.PendingQuantity != 12 {
		t.Errorf("unexpected local state price=%v q=%d p=%d", o.Price, o.Quantity, o.PendingQuantity)
	}
	if o.NumModifications() != 1 {
		t.Errorf("expected 1 modification, got %d", o.NumModifications())
	}

	call := cp.modifies[0]
	if call.orderID != "OID-1" {
		t.Errorf("expected modify on OID-1, got %s", call.orderID)
	}
	if call.args.Symbol != "" || call.args.Side != "" {
		t.Errorf("frozen fields must be stripped from modify args: %+v", call.args)
	}
	if *call.args.Price != 655 || *call.args.Quantity != 12 || call.args.OrderType != TypeLimit {
		t.Errorf("unexpected modify args %+v", call.args.Map())
	}
}

func TestOrder_ModifyRefusals(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		cp := &mockCounterparty{}
		o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
		o.Execute(context.Background(), cp, Args{})
		o.Update(context.Background(), Update{FilledQuantity: Ptr[int64](10), Status: Ptr(StatusComplete)})

		if ok, _ := o.Modify(context.Background(), cp, Args{Price: Ptr(1.0)}); ok {
			t.Fatalf("complete order must refuse modify")
		}
		if cp.count("OrderModify") != 0 {
			t.Fatalf("expected zero modify calls, got %v", cp.calls)
		}
	})

	t.Run("ceiling", func(t *testing.T) {
		cp := &mockCounterparty{}
		o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10, MaxModifications: 2})
		o.Execute(context.Background(), cp, Args{})
		for i := 0; i < 5; i++ {
			o.Modify(context.Background(), cp, Args{Price: Ptr(float64(100 + i))})
		}
		if got := cp.count("OrderModify"); got != 2 {
			t.Fatalf("expected 2 modify calls, got %d", got)
		}
	})

	t.Run("lock", func(t *testing.T) {
		cp := &mockCounterparty{}
		o, c := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
		o.Execute(context.Background(), cp, Args{})
		o.AddLock(LockModification, 10*time.Second)

		if ok, _ := o.Modify(context.Background(), cp, Args{Price: Ptr(1.0)}); ok {
			t.Fatalf("modify must be refused while locked")
		}
		c.Advance(11 * time.Second)
		if ok, _ := o.Modify(context.Background(), cp, Args{Price: Ptr(1.0)}); !ok {
			t.Fatalf("modify should succeed after the lock elapsed")
		}
	})

	t.Run("failure keeps local fields", func(t *testing.T) {
		cp := &mockCounterparty{fail: map[string]bool{"modify": true}}
		o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideSell, Quantity: 10, OrderType: TypeStopLimit, Price: 95, TriggerPrice: 96})
		o.Execute(context.Background(), cp, Args{})

		if ok, _ := o.Modify(context.Background(), cp, Args{OrderType: TypeMarket, Price: Ptr(0.0), TriggerPrice: Ptr(0.0)}); ok {
			t.Fatalf("failed response must not report success")
		}
		if o.OrderType != TypeStopLimit || o.Price != 95 || o.TriggerPrice != 96 {
			t.Errorf("local fields must match the counterparty after a failure, got %s %v %v", o.OrderType, o.Price, o.TriggerPrice)
		}
		if o.NumModifications() != 1 {
			t.Errorf("failed attempt still counts toward the ceiling, got %d", o.NumModifications())
		}

		cp.fail["modify"] = false
		if ok, _ := o.Modify(context.Background(), cp, Args{OrderType: TypeMarket, Price: Ptr(0.0), TriggerPrice: Ptr(0.0)}); !ok {
			t.Fatalf("modify should succeed once the counterparty accepts")
		}
		if o.OrderType != TypeMarket || o.Price != 0 {
			t.Errorf("accepted modify should update local fields, got %s %v", o.OrderType, o.Price)
		}
	})

	t.Run("unsubmitted", func(t *testing.T) {
		cp := &mockCounterparty{}
		o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
		if ok, _ := o.Modify(context.Background(), cp, Args{Price: Ptr(120.0)}); ok {
			t.Fatalf("unsubmitted order should not report a remote modify")
		}
		if o.Price != 120 {
			t.Errorf("local fields should still change, got %v", o.Price)
		}
		if len(cp.calls) != 0 {
			t.Errorf("expected no counterparty calls, got %v", cp.calls)
		}
	})
}

func TestOrder_Cancel(t *testing.T) {
	cp := &mockCounterparty{}
	o, c := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})

	if ok, _ := o.Cancel(context.Background(), cp); ok || len(cp.calls) != 0 {
		t.Fatalf("cancel without id must be a no-op")
	}

	o.Execute(context.Background(), cp, Args{})
	o.AddLock(LockCancellation, 3*time.Second)
	if ok, _ := o.Cancel(context.Background(), cp); ok {
		t.Fatalf("cancel must respect the cancellation lock")
	}
	c.Advance(4 * time.Second)
	if ok, err := o.Cancel(context.Background(), cp); !ok || err != nil {
		t.Fatalf("expected cancel to be accepted, ok=%v err=%v", ok, err)
	}
	if len(cp.cancels) != 1 || cp.cancels[0] != "OID-1" {
		t.Errorf("unexpected cancels %v", cp.cancels)
	}
}

func TestOrder_Clone(t *testing.T) {
	o, c := newTestOrder(t, Params{Symbol: "aapl", Side: SideSell, Quantity: 10, OrderType: TypeLimit, Price: 120, Tag: "swing"})
	o.ParentID = "parent"
	c.Advance(time.Second)

	cl := o.Clone()
	if cl.ID == o.ID || cl.ParentID != "" {
		t.Fatalf("clone should have a new id and no parent")
	}
	if !cl.CreatedAt.After(o.CreatedAt) {
		t.Fatalf("clone timestamp should be after the original")
	}

	a, b := o.Record(), cl.Record()
	a.ID, a.ParentID, a.CreatedAt = "", "", time.Time{}
	b.ID, b.ParentID, b.CreatedAt = "", "", time.Time{}
	if a != b {
		t.Fatalf("clone differs beyond id/parent/timestamp:\n%+v\n%+v", a, b)
	}
}

func TestOrder_Save(t *testing.T) {
	o, _ := newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10})
	if ok, err := o.Save(context.Background()); ok || err != nil {
		t.Fatalf("save without sink should return false, ok=%v err=%v", ok, err)
	}

	sink := &mockSink{}
	o, _ = newTestOrder(t, Params{Symbol: "aapl", Side: SideBuy, Quantity: 10}, WithSink(sink))
	if ok, err := o.Save(context.Background()); !ok || err != nil {
		t.Fatalf("expected save to succeed, ok=%v err=%v", ok, err)
	}
	if len(sink.records) != 1 || sink.records[0].ID != o.ID {
		t.Fatalf("unexpected records %+v", sink.records)
	}

	sink.err = errors.New("disk full")
	if _, err := o.Save(context.Background()); err == nil {
		t.Fatalf("expected sink error to surface")
	}
}
