package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/order"
)

const (
	brokerName         = "VBroker"
	defaultFailureRate = 0.001

	// ParamUserID 指定订单所属账户。
	ParamUserID = "userid"
	// ParamDelay 覆盖订单延迟，取值为 time.Duration。
	ParamDelay = "delay"
)

// VirtualBroker 为带随机失败注入的内存交易对手，可被多个策略并发调用。
type VirtualBroker struct {
	mu sync.Mutex

	name        string
	failureRate float64
	delay       time.Duration

	orders  map[string]*VOrder
	ids     []string
	users   []*VUser
	clients map[string]*VUser
	tickers map[string]*Ticker
	forced  map[Operation]order.Response
	trades  []VTrade
	filled  map[string]int64

	rng    *rand.Rand
	clock  clock.Clock
	logger *zap.Logger
}

// BrokerOption 配置模拟交易对手。
type BrokerOption func(*VirtualBroker)

// WithFailureRate 设置每次调用的失败概率。
func WithFailureRate(rate float64) BrokerOption {
	return func(b *VirtualBroker) { b.failureRate = rate }
}

// WithDelay 设置订单默认延迟。
func WithDelay(d time.Duration) BrokerOption {
	return func(b *VirtualBroker) {
		if d > 0 {
			b.delay = d
		}
	}
}

// WithRand 注入随机源。
func WithRand(rng *rand.Rand) BrokerOption {
	return func(b *VirtualBroker) { b.rng = rng }
}

// WithClock 注入时钟。
func WithClock(c clock.Clock) BrokerOption {
	return func(b *VirtualBroker) { b.clock = c }
}

// WithLogger 注入日志。
func WithLogger(logger *zap.Logger) BrokerOption {
	return func(b *VirtualBroker) { b.logger = logger }
}

// WithTickers 注册模拟行情。
func WithTickers(tickers ...*Ticker) BrokerOption {
	return func(b *VirtualBroker) {
		for _, t := range tickers {
			b.tickers[t.Name] = t
		}
	}
}

// NewVirtualBroker 创建模拟交易对手，失败概率必须位于 [0, 1]。
func NewVirtualBroker(opts ...BrokerOption) (*VirtualBroker, error) {
	b := &VirtualBroker{
		name:        brokerName,
		failureRate: defaultFailureRate,
		delay:       DefaultDelay,
		orders:      make(map[string]*VOrder),
		clients:     make(map[string]*VUser),
		tickers:     make(map[string]*Ticker),
		forced:      make(map[Operation]order.Response),
		filled:      make(map[string]int64),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := validateRate(b.failureRate); err != nil {
		return nil, err
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	b.clock = clock.OrReal(b.clock)
	return b, nil
}

func validateRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("simulation: 失败概率必须位于 [0, 1]，当前为 %v", rate)
	}
	return nil
}

// Name 返回名称。
func (b *VirtualBroker) Name() string { return b.name }

// FailureRate 返回失败概率。
func (b *VirtualBroker) FailureRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureRate
}

// SetFailureRate 修改失败概率，越界时保持原值。
func (b *VirtualBroker) SetFailureRate(rate float64) error {
	if err := validateRate(rate); err != nil {
		return err
	}
	b.mu.Lock()
	b.failureRate = rate
	b.mu.Unlock()
	return nil
}

// Force 指定下一次对应操作的回复，跳过模拟逻辑，只生效一次。
func (b *VirtualBroker) Force(op Operation, resp order.Response) {
	b.mu.Lock()
	b.forced[op] = resp
	b.mu.Unlock()
}

func (b *VirtualBroker) takeForced(op Operation) (order.Response, bool) {
	resp, ok := b.forced[op]
	if ok {
		delete(b.forced, op)
	}
	return resp, ok
}

func (b *VirtualBroker) isFailure() bool {
	return b.rng.Float64() < b.failureRate
}

func (b *VirtualBroker) unavailable(op Operation, now time.Time) order.Response {
	b.logger.Debug("模拟交易对手注入失败", zap.String("op", string(op)))
	return order.Failure(order.ReasonUnavailable, "模拟交易对手暂不可用", now)
}

type fieldError struct {
	field  string
	reason string
}

func validationFailure(errs []fieldError, now time.Time) order.Response {
	msg := fmt.Sprintf("发现 %d 个校验错误，首个字段 %s: %s", len(errs), errs[0].field, errs[0].reason)
	return order.Failure(order.ReasonInvalid, msg, now)
}

func validatePlace(args order.Args) []fieldError {
	var errs []fieldError
	if strings.TrimSpace(args.Symbol) == "" {
		errs = append(errs, fieldError{string(order.FieldSymbol), "不能为空"})
	}
	if args.Side == "" {
		errs = append(errs, fieldError{string(order.FieldSide), "不能为空"})
	} else if _, err := order.ParseSide(string(args.Side)); err != nil {
		errs = append(errs, fieldError{string(order.FieldSide), err.Error()})
	}
	switch {
	case args.Quantity == nil:
		errs = append(errs, fieldError{string(order.FieldQuantity), "不能为空"})
	case *args.Quantity < 0:
		errs = append(errs, fieldError{string(order.FieldQuantity), "不能为负数"})
	}
	return errs
}

func orderDelay(args order.Args, fallback time.Duration) time.Duration {
	if v, ok := args.Param(ParamDelay); ok {
		if d, ok := v.(time.Duration); ok && d > 0 {
			return d
		}
	}
	return fallback
}

func newOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// OrderPlace 下单；先判定随机失败，失败时不改变任何状态。
func (b *VirtualBroker) OrderPlace(_ context.Context, args order.Args) (order.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if resp, ok := b.takeForced(OpPlace); ok {
		return resp, nil
	}
	now := b.clock.Now()
	if b.isFailure() {
		return b.unavailable(OpPlace, now), nil
	}
	if errs := validatePlace(args); len(errs) > 0 {
		return validationFailure(errs, now), nil
	}

	side, _ := order.ParseSide(string(args.Side))
	vo := NewVOrder(VOrder{
		OrderID:   newOrderID(),
		Symbol:    args.Symbol,
		Side:      SideOf(side),
		OrderType: args.OrderType,
		Quantity:  *args.Quantity,
		Price:     deref(args.Price),
		Timestamp: now,
		Delay:     orderDelay(args, b.delay),
	})
	vo.TriggerPrice = deref(args.TriggerPrice)
	vo.ExchangeOrderID = vo.OrderID
	b.orders[vo.OrderID] = vo
	b.ids = append(b.ids, vo.OrderID)

	if v, ok := args.Param(ParamUserID); ok {
		if id, ok := v.(string); ok {
			if u, ok := b.clients[strings.ToUpper(id)]; ok {
				u.Orders = append(u.Orders, vo)
			}
		}
	}

	snap := vo.Snapshot()
	return order.Success(vo.OrderID, now, &snap), nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// OrderModify 改单；数量不得小于已成交与已撤销之和。
func (b *VirtualBroker) OrderModify(_ context.Context, orderID string, args order.Args) (order.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if resp, ok := b.takeForced(OpModify); ok {
		return resp, nil
	}
	now := b.clock.Now()
	if b.isFailure() {
		return b.unavailable(OpModify, now), nil
	}
	vo, ok := b.orders[orderID]
	if !ok {
		return order.Failure(order.ReasonNotFound, fmt.Sprintf("订单 %s 不存在", orderID), now), nil
	}
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

// OrderCancel 撤销未成交部分。
func (b *VirtualBroker) OrderCancel(_ context.Context, orderID string) (order.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if resp, ok := b.takeForced(OpCancel); ok {
		return resp, nil
	}
	now := b.clock.Now()
	if b.isFailure() {
		return b.unavailable(OpCancel, now), nil
	}
	vo, ok := b.orders[orderID]
	if !ok {
		return order.Failure(order.ReasonNotFound, fmt.Sprintf("订单 %s 不存在", orderID), now), nil
	}
	if vo.IsDone() {
		return order.Failure(order.ReasonInvalid, fmt.Sprintf("订单 %s 已终结", orderID), now), nil
	}
	vo.CanceledQuantity = vo.Quantity - vo.FilledQuantity
	vo.PendingQuantity = 0
	vo.ExchangeTimestamp = now

	snap := vo.Snapshot()
	return order.Success(vo.OrderID, now, &snap), nil
}

// advance 推进订单状态并为新增成交记账，调用方需持有锁。
func (b *VirtualBroker) advance(vo *VOrder, target Status, now time.Time) {
	if !vo.ModifyByStatus(now, target, b.rng) {
		return
	}
	prev := b.filled[vo.OrderID]
	delta := vo.FilledQuantity - prev
	if delta <= 0 {
		return
	}
	if vo.AveragePrice == 0 {
		vo.AveragePrice = b.fillPrice(vo)
	}
	b.filled[vo.OrderID] = vo.FilledQuantity
	b.trades = append(b.trades, VTrade{
		TradeID:   newOrderID(),
		OrderID:   vo.OrderID,
		Symbol:    vo.Symbol,
		Quantity:  delta,
		Price:     vo.AveragePrice,
		Side:      vo.Side,
		Timestamp: now,
	})
}

func (b *VirtualBroker) fillPrice(vo *VOrder) float64 {
	if vo.Price > 0 {
		return vo.Price
	}
	if t, ok := b.tickers[vo.Symbol]; ok {
		return t.Last()
	}
	return vo.TriggerPrice
}

// Get 按目标状态推进订单后返回副本，status 为 0 时推进到完成。
func (b *VirtualBroker) Get(orderID string, status Status) (VOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vo, ok := b.orders[orderID]
	if !ok {
		return VOrder{}, false
	}
	if status == 0 {
		status = StatusComplete
	}
	b.advance(vo, status, b.clock.Now())
	return *vo, true
}

// Orders 将延迟已过的订单推进到完成并返回全部快照。
func (b *VirtualBroker) Orders(_ context.Context) ([]order.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	out := make([]order.Snapshot, 0, len(b.ids))
	for _, id := range b.ids {
		vo := b.orders[id]
		b.advance(vo, StatusComplete, now)
		out = append(out, vo.Snapshot())
	}
	return out, nil
}

// VPositions 按品种汇总已成交订单。
func (b *VirtualBroker) VPositions() []VPosition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return positionsOf(b.ids, b.orders)
}

func positionsOf(ids []string, orders map[string]*VOrder) []VPosition {
	bySymbol := make(map[string]*VPosition)
	for _, id := range ids {
		vo := orders[id]
		if vo.FilledQuantity <= 0 {
			continue
		}
		p, ok := bySymbol[vo.Symbol]
		if !ok {
			p = &VPosition{Symbol: vo.Symbol}
			bySymbol[vo.Symbol] = p
		}
		p.add(vo)
	}
	out := make([]VPosition, 0, len(bySymbol))
	for _, p := range bySymbol {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b VPosition) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out
}

// Positions 返回各品种持仓。
func (b *VirtualBroker) Positions(_ context.Context) ([]order.BasicPosition, error) {
	positions := b.VPositions()
	out := make([]order.BasicPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, p.BasicPosition())
	}
	return out, nil
}

// Trades 返回全部成交。
func (b *VirtualBroker) Trades(_ context.Context) ([]order.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]order.Trade, 0, len(b.trades))
	for _, t := range b.trades {
		out = append(out, t.Trade())
	}
	return out, nil
}

// AddUser 注册账户，编号重复时返回 false。
func (b *VirtualBroker) AddUser(u *VUser) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := strings.ToUpper(u.UserID)
	if _, ok := b.clients[id]; ok {
		return false
	}
	u.UserID = id
	b.users = append(b.users, u)
	b.clients[id] = u
	return true
}

// Users 返回全部账户。
func (b *VirtualBroker) Users() []*VUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*VUser(nil), b.users...)
}

// Clients 返回全部账户编号。
func (b *VirtualBroker) Clients() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.users))
	for _, u := range b.users {
		out = append(out, u.UserID)
	}
	return out
}

// AddTicker 注册模拟行情。
func (b *VirtualBroker) AddTicker(t *Ticker) {
	b.mu.Lock()
	b.tickers[t.Name] = t
	b.mu.Unlock()
}

// UpdateTickers 手动更新行情价格，未注册的品种忽略。
func (b *VirtualBroker) UpdateTickers(prices map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sym, p := range prices {
		if t, ok := b.tickers[sym]; ok {
			t.Update(p)
		}
	}
}

// LTP 返回指定品种最新价，未注册的品种不出现在结果中。
func (b *VirtualBroker) LTP(symbols ...string) map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if t, ok := b.tickers[sym]; ok {
			out[sym] = t.LTP()
		}
	}
	return out
}

// OHLC 返回指定品种的开高低收。
func (b *VirtualBroker) OHLC(symbols ...string) map[string]OHLC {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]OHLC, len(symbols))
	for _, sym := range symbols {
		if t, ok := b.tickers[sym]; ok {
			out[sym] = t.OHLC()
		}
	}
	return out
}

var (
	_ order.Counterparty = (*VirtualBroker)(nil)
	_ order.Reporter     = (*VirtualBroker)(nil)
)
