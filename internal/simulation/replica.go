package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/order"
)

const replicaName = "Replica"

// Instrument 为回放品种，记录最新价与开高低。
type Instrument struct {
	Name  string
	Token int64
	Last  float64
	Open  float64
	High  float64
	Low   float64
}

// NewInstrument 以初始价格创建品种。
func NewInstrument(name string, token int64, price float64) *Instrument {
	return &Instrument{Name: name, Token: token, Last: price, Open: price, High: price, Low: price}
}

// Update 更新最新价与高低点。
func (i *Instrument) Update(price float64) {
	if price <= 0 {
		return
	}
	if i.Open == 0 {
		i.Open, i.High, i.Low = price, price, price
	}
	i.Last = price
	i.High = max(i.High, price)
	i.Low = min(i.Low, price)
}

// OrderFill 跟踪单笔订单的撮合，按最新价判断是否成交。
type OrderFill struct {
	Order     *VOrder
	LastPrice float64
	triggered bool
}

// NewOrderFill 以下单时的品种价格创建撮合跟踪。
func NewOrderFill(vo *VOrder, last float64) *OrderFill {
	return &OrderFill{Order: vo, LastPrice: last}
}

// Done 订单已终结。
func (f *OrderFill) Done() bool {
	return f.Order.IsDone()
}

// Triggered 止损单是否已触发。
func (f *OrderFill) Triggered() bool {
	return f.triggered
}

func (f *OrderFill) complete(price float64, now time.Time) {
	vo := f.Order
	vo.FilledQuantity, vo.PendingQuantity = vo.Quantity-vo.CanceledQuantity, 0
	vo.AveragePrice = price
	vo.ExchangeTimestamp = now
}

// limitReached 买入价格不高于限价，卖出价格不低于限价。
func limitReached(side Side, last, limit decimal.Decimal) bool {
	if side == SideSell {
		return last.GreaterThanOrEqual(limit)
	}
	return last.LessThanOrEqual(limit)
}

// stopReached 买入止损价格不低于触发价，卖出止损价格不高于触发价。
func stopReached(side Side, last, trigger decimal.Decimal) bool {
	if side == SideSell {
		return last.LessThanOrEqual(trigger)
	}
	return last.GreaterThanOrEqual(trigger)
}

// Update 以最新价撮合，市价单按最新价成交，限价单只按限价成交。
func (f *OrderFill) Update(last float64, now time.Time) bool {
	if f.Done() || last <= 0 {
		return false
	}
	f.LastPrice = last
	vo := f.Order
	px := decimal.NewFromFloat(last)

	switch vo.OrderType {
	case order.TypeLimit:
		if limitReached(vo.Side, px, decimal.NewFromFloat(vo.Price)) {
			f.complete(vo.Price, now)
			return true
		}
	case order.TypeStopMarket:
		if stopReached(vo.Side, px, decimal.NewFromFloat(vo.TriggerPrice)) {
			f.triggered = true
			f.complete(last, now)
			return true
		}
	case order.TypeStopLimit:
		if !f.triggered && stopReached(vo.Side, px, decimal.NewFromFloat(vo.TriggerPrice)) {
			f.triggered = true
		}
		if f.triggered && limitReached(vo.Side, px, decimal.NewFromFloat(vo.Price)) {
			f.complete(vo.Price, now)
			return true
		}
	default:
		f.complete(last, now)
		return true
	}
	return false
}

// ReplicaBroker 以品种最新价轮询撮合的回放交易对手。
type ReplicaBroker struct {
	mu sync.Mutex

	instruments map[string]*Instrument
	fills       map[string]*OrderFill
	pending     []string
	completed   map[string]*VOrder
	ids         []string
	orders      map[string]*VOrder
	trades      []VTrade

	clock  clock.Clock
	logger *zap.Logger
}

// NewReplicaBroker 创建回放交易对手。
func NewReplicaBroker(c clock.Clock, logger *zap.Logger) *ReplicaBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicaBroker{
		instruments: make(map[string]*Instrument),
		fills:       make(map[string]*OrderFill),
		completed:   make(map[string]*VOrder),
		orders:      make(map[string]*VOrder),
		clock:       clock.OrReal(c),
		logger:      logger,
	}
}

// AddInstrument 注册品种。
func (r *ReplicaBroker) AddInstrument(inst *Instrument) {
	r.mu.Lock()
	r.instruments[inst.Name] = inst
	r.mu.Unlock()
}

// Instrument 返回品种副本。
func (r *ReplicaBroker) Instrument(name string) (Instrument, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instruments[name]
	if !ok {
		return Instrument{}, false
	}
	return *inst, true
}

// UpdatePrice 更新单个品种价格，未注册的品种自动创建。
func (r *ReplicaBroker) UpdatePrice(symbol string, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updatePrice(symbol, price)
}

func (r *ReplicaBroker) updatePrice(symbol string, price float64) {
	inst, ok := r.instruments[symbol]
	if !ok {
		r.instruments[symbol] = NewInstrument(symbol, 0, price)
		return
	}
	inst.Update(price)
}

// UpdatePrices 批量更新价格。
func (r *ReplicaBroker) UpdatePrices(prices map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sym, p := range prices {
		r.updatePrice(sym, p)
	}
}

// LTP 返回指定品种最新价。
func (r *ReplicaBroker) LTP(symbols ...string) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if inst, ok := r.instruments[sym]; ok {
			out[sym] = inst.Last
		}
	}
	return out
}

// OrderPlace 以品种当前价创建撮合跟踪，成交在 RunFill 中发生。
func (r *ReplicaBroker) OrderPlace(_ context.Context, args order.Args) (order.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if errs := validatePlace(args); len(errs) > 0 {
		return validationFailure(errs, now), nil
	}
	inst, ok := r.instruments[args.Symbol]
	if !ok {
		return order.Failure(order.ReasonInvalid, fmt.Sprintf("品种 %s 未注册", args.Symbol), now), nil
	}
	orderType := args.OrderType
	if orderType == "" {
		orderType = order.TypeMarket
	}
	if (orderType == order.TypeLimit || orderType == order.TypeStopLimit) && deref(args.Price) <= 0 {
		return validationFailure([]fieldError{{string(order.FieldPrice), "限价单必须指定价格"}}, now), nil
	}
	if (orderType == order.TypeStopMarket || orderType == order.TypeStopLimit) && deref(args.TriggerPrice) <= 0 {
		return validationFailure([]fieldError{{string(order.FieldTriggerPrice), "止损单必须指定触发价"}}, now), nil
	}

	side, _ := order.ParseSide(string(args.Side))
	vo := NewVOrder(VOrder{
		OrderID:   newOrderID(),
		Symbol:    args.Symbol,
		Side:      SideOf(side),
		OrderType: orderType,
		Quantity:  *args.Quantity,
		Price:     deref(args.Price),
		Timestamp: now,
	})
	vo.TriggerPrice = deref(args.TriggerPrice)
	vo.ExchangeOrderID = vo.OrderID

	r.orders[vo.OrderID] = vo
	r.ids = append(r.ids, vo.OrderID)
	r.fills[vo.OrderID] = NewOrderFill(vo, inst.Last)
	r.pending = append(r.pending, vo.OrderID)

	snap := vo.Snapshot()
	return order.Success(vo.OrderID, now, &snap), nil
}

// OrderModify 修改在途订单。
func (r *ReplicaBroker) OrderModify(_ context.Context, orderID string, args order.Args) (order.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	f, ok := r.fills[orderID]
	if !ok {
		return order.Failure(order.ReasonNotFound, fmt.Sprintf("在途订单 %s 不存在", orderID), now), nil
	}
	vo := f.Order
	if args.Quantity != nil {
		q := *args.Quantity
		if q < vo.FilledQuantity+vo.CanceledQuantity {
			return validationFailure([]fieldError{{string(order.FieldQuantity), "小于已成交与已撤销数量之和"}}, now), nil
		}
		vo.Quantity = q
		vo.PendingQuantity = q - vo.FilledQuantity - vo.CanceledQuantity
	}
	if args.Price != nil {
		vo.Price = *args.Price
	}
	if args.TriggerPrice != nil {
		vo.TriggerPrice = *args.TriggerPrice
	}
	if args.OrderType != "" {
		vo.OrderType = args.OrderType
	}
	snap := vo.Snapshot()
	return order.Success(vo.OrderID, now, &snap), nil
}

// OrderCancel 撤销在途订单。
func (r *ReplicaBroker) OrderCancel(_ context.Context, orderID string) (order.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	f, ok := r.fills[orderID]
	if !ok {
		return order.Failure(order.ReasonNotFound, fmt.Sprintf("在途订单 %s 不存在", orderID), now), nil
	}
	vo := f.Order
	vo.CanceledQuantity = vo.Quantity - vo.FilledQuantity
	vo.PendingQuantity = 0
	vo.ExchangeTimestamp = now
	r.migrate()

	snap := vo.Snapshot()
	return order.Success(vo.OrderID, now, &snap), nil
}

// RunFill 以最新价撮合全部在途订单，返回本轮成交的订单数。
func (r *ReplicaBroker) RunFill() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	filled := 0
	for _, id := range r.pending {
		f := r.fills[id]
		inst, ok := r.instruments[f.Order.Symbol]
		if !ok {
			continue
		}
		if !f.Update(inst.Last, now) {
			continue
		}
		filled++
		vo := f.Order
		r.trades = append(r.trades, VTrade{
			TradeID:   newOrderID(),
			OrderID:   vo.OrderID,
			Symbol:    vo.Symbol,
			Quantity:  vo.FilledQuantity,
			Price:     vo.AveragePrice,
			Side:      vo.Side,
			Timestamp: now,
		})
		r.logger.Debug("回放撮合成交",
			zap.String("order_id", vo.OrderID),
			zap.String("symbol", vo.Symbol),
			zap.String("order_type", string(vo.OrderType)),
			zap.Float64("price", vo.AveragePrice),
		)
	}
	r.migrate()
	return filled
}

// migrate 将已终结的订单移出在途集合。
func (r *ReplicaBroker) migrate() {
	kept := r.pending[:0]
	for _, id := range r.pending {
		f := r.fills[id]
		if f.Done() {
			r.completed[id] = f.Order
			delete(r.fills, id)
			continue
		}
		kept = append(kept, id)
	}
	r.pending = kept
}

// Pending 在途订单编号。
func (r *ReplicaBroker) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pending...)
}

// Completed 已终结订单编号。
func (r *ReplicaBroker) Completed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.completed))
	for _, id := range r.ids {
		if _, ok := r.completed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Orders 返回全部订单快照。
func (r *ReplicaBroker) Orders(_ context.Context) ([]order.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.Snapshot, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.orders[id].Snapshot())
	}
	return out, nil
}

// Positions 返回各品种持仓。
func (r *ReplicaBroker) Positions(_ context.Context) ([]order.BasicPosition, error) {
	r.mu.Lock()
	positions := positionsOf(r.ids, r.orders)
	r.mu.Unlock()
	out := make([]order.BasicPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, p.BasicPosition())
	}
	return out, nil
}

// Trades 返回全部成交。
func (r *ReplicaBroker) Trades(_ context.Context) ([]order.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.Trade, 0, len(r.trades))
	for _, t := range r.trades {
		out = append(out, t.Trade())
	}
	return out, nil
}

// Name 返回名称。
func (r *ReplicaBroker) Name() string { return replicaName }

var (
	_ order.Counterparty = (*ReplicaBroker)(nil)
	_ order.Reporter     = (*ReplicaBroker)(nil)
)
