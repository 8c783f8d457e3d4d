package order

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"oms-core/internal/clock"
)

// CompoundOrder 持有一组子订单，聚合指标按需从子订单状态计算。
type CompoundOrder struct {
	ID string

	conn     Counterparty
	sink     Sink
	defaults Args
	lockCfg  LockConfig
	maxMods  int
	clock    clock.Clock
	logger   *zap.Logger

	orders []*Order
	keys   map[string]int
	ids    map[string]int
	ltp    map[string]float64
}

// NewCompoundOrder 创建组合订单，cp 为子订单共享的交易对手，可为 nil。
func NewCompoundOrder(cp Counterparty, opts ...Option) *CompoundOrder {
	o := buildOptions(opts)
	if cp == nil {
		cp = o.conn
	}
	id := o.id
	if id == "" {
		id = newID()
	}
	return &CompoundOrder{
		ID:       id,
		conn:     cp,
		sink:     o.sink,
		defaults: o.defaults,
		lockCfg:  o.lock,
		maxMods:  o.maxMods,
		clock:    o.clock,
		logger:   o.logger,
		keys:     make(map[string]int),
		ids:      make(map[string]int),
		ltp:      make(map[string]float64),
	}
}

// Counterparty 返回共享交易对手。
func (c *CompoundOrder) Counterparty() Counterparty {
	return c.conn
}

// Add 接管子订单，key 为空时仅按序号与编号索引。
func (c *CompoundOrder) Add(ctx context.Context, o *Order, key string) (string, error) {
	if o == nil {
		return "", invalid("order", "不能为空")
	}
	if key != "" {
		if _, ok := c.keys[key]; ok {
			return "", fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
	}
	if _, ok := c.ids[o.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}

	o.ParentID = c.ID
	if o.conn == nil {
		o.conn = c.conn
	}
	if o.sink == nil {
		o.sink = c.sink
	}

	idx := len(c.orders)
	c.orders = append(c.orders, o)
	c.ids[o.ID] = idx
	if key != "" {
		c.keys[key] = idx
	}
	o.saveQuietly(ctx)
	return o.ID, nil
}

// AddOrder 以组合订单的依赖构造子订单并加入。
func (c *CompoundOrder) AddOrder(ctx context.Context, p Params, key string) (*Order, error) {
	o, err := newOrder(p, options{
		logger:  c.logger,
		clock:   c.clock,
		conn:    c.conn,
		sink:    c.sink,
		lock:    c.lockCfg,
		maxMods: c.maxMods,
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.Add(ctx, o, key); err != nil {
		return nil, err
	}
	return o, nil
}

// Get 先按键查找，再按序号查找。
func (c *CompoundOrder) Get(key string) (*Order, bool) {
	if idx, ok := c.keys[key]; ok {
		return c.orders[idx], true
	}
	i, err := strconv.Atoi(key)
	if err != nil {
		return nil, false
	}
	return c.At(i)
}

// At 按序号查找，支持负数从尾部计数。
func (c *CompoundOrder) At(i int) (*Order, bool) {
	if i < 0 {
		i += len(c.orders)
	}
	if i < 0 || i >= len(c.orders) {
		return nil, false
	}
	return c.orders[i], true
}

// ByID 按订单编号查找。
func (c *CompoundOrder) ByID(id string) (*Order, bool) {
	idx, ok := c.ids[id]
	if !ok {
		return nil, false
	}
	return c.orders[idx], true
}

// Orders 返回子订单副本切片。
func (c *CompoundOrder) Orders() []*Order {
	return append([]*Order(nil), c.orders...)
}

// Count 子订单数量。
func (c *CompoundOrder) Count() int {
	return len(c.orders)
}

// Completed 已完成的子订单。
func (c *CompoundOrder) Completed() []*Order {
	var out []*Order
	for _, o := range c.orders {
		if o.IsComplete() {
			out = append(out, o)
		}
	}
	return out
}

// Pending 仍在途的子订单。
func (c *CompoundOrder) Pending() []*Order {
	var out []*Order
	for _, o := range c.orders {
		if o.IsPending() {
			out = append(out, o)
		}
	}
	return out
}

// Positions 各品种带符号的已成交数量，卖出为负。
func (c *CompoundOrder) Positions() map[string]int64 {
	out := make(map[string]int64)
	for _, o := range c.orders {
		out[o.Symbol] += o.Side.Sign() * o.FilledQuantity
	}
	return out
}

func (c *CompoundOrder) quantity(side Side) map[string]int64 {
	out := make(map[string]int64)
	for _, o := range c.orders {
		if o.Side == side {
			out[o.Symbol] += o.FilledQuantity
		}
	}
	return out
}

// BuyQuantity 各品种买入成交数量。
func (c *CompoundOrder) BuyQuantity() map[string]int64 {
	return c.quantity(SideBuy)
}

// SellQuantity 各品种卖出成交数量。
func (c *CompoundOrder) SellQuantity() map[string]int64 {
	return c.quantity(SideSell)
}

func (c *CompoundOrder) averagePrice(side Side) map[string]float64 {
	value := make(map[string]float64)
	qty := make(map[string]int64)
	for _, o := range c.orders {
		if o.Side != side || o.FilledQuantity <= 0 {
			continue
		}
		value[o.Symbol] += float64(o.FilledQuantity) * o.AveragePrice
		qty[o.Symbol] += o.FilledQuantity
	}
	out := make(map[string]float64, len(qty))
	for sym, q := range qty {
		out[sym] = value[sym] / float64(q)
	}
	return out
}

// AverageBuyPrice 各品种买入成交均价。
func (c *CompoundOrder) AverageBuyPrice() map[string]float64 {
	return c.averagePrice(SideBuy)
}

// AverageSellPrice 各品种卖出成交均价。
func (c *CompoundOrder) AverageSellPrice() map[string]float64 {
	return c.averagePrice(SideSell)
}

// NetValue 各品种买入金额减卖出金额。
func (c *CompoundOrder) NetValue() map[string]float64 {
	out := make(map[string]float64)
	for _, o := range c.orders {
		out[o.Symbol] += float64(o.Side.Sign()*o.FilledQuantity) * o.AveragePrice
	}
	return out
}

// UpdateLTP 更新最新价缓存，返回缓存副本。
func (c *CompoundOrder) UpdateLTP(prices map[string]float64) map[string]float64 {
	for sym, p := range prices {
		c.ltp[sym] = p
	}
	return c.LTP()
}

// LTP 返回最新价缓存副本。
func (c *CompoundOrder) LTP() map[string]float64 {
	out := make(map[string]float64, len(c.ltp))
	for sym, p := range c.ltp {
		out[sym] = p
	}
	return out
}

// MTM 各品种盯市盈亏，无最新价的品种只计入已实现部分。
func (c *CompoundOrder) MTM() map[string]float64 {
	positions := c.Positions()
	out := make(map[string]float64)
	for sym, v := range c.NetValue() {
		out[sym] = -v
		if ltp, ok := c.ltp[sym]; ok {
			out[sym] += float64(positions[sym]) * ltp
		}
	}
	return out
}

// TotalMTM 盯市盈亏合计。
func (c *CompoundOrder) TotalMTM() float64 {
	var total float64
	for _, v := range c.MTM() {
		total += v
	}
	return total
}

// BasicPositions 按品种汇总买卖数量与金额。
func (c *CompoundOrder) BasicPositions() map[string]BasicPosition {
	out := make(map[string]BasicPosition)
	for _, o := range c.orders {
		if o.FilledQuantity <= 0 {
			continue
		}
		p := out[o.Symbol]
		p.Symbol = o.Symbol
		value := float64(o.FilledQuantity) * o.AveragePrice
		if o.Side == SideBuy {
			p.BuyQuantity += o.FilledQuantity
			p.BuyValue += value
		} else {
			p.SellQuantity += o.FilledQuantity
			p.SellValue += value
		}
		out[o.Symbol] = p
	}
	return out
}

// UpdateOrders 以交易对手订单号匹配在途子订单并写入回报。
func (c *CompoundOrder) UpdateOrders(ctx context.Context, updates map[string]Update) map[string]bool {
	out := make(map[string]bool)
	for _, o := range c.Pending() {
		if o.OrderID == "" {
			continue
		}
		u, ok := updates[o.OrderID]
		if !ok || u.IsEmpty() {
			out[o.OrderID] = false
			continue
		}
		out[o.OrderID] = o.Update(ctx, u)
	}
	return out
}

// ExecuteAll 依次提交全部子订单，单个失败不影响其余订单。
func (c *CompoundOrder) ExecuteAll(ctx context.Context, extra Args) error {
	args := c.defaults.Merge(extra)
	var errs error
	for _, o := range c.orders {
		if _, err := o.Execute(ctx, c.conn, args); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order: 子订单 %s 提交失败: %w", o.ID, err))
		}
	}
	return errs
}

// CheckFlags 处理已过期的在途子订单，每个订单每次只执行一个动作。
func (c *CompoundOrder) CheckFlags(ctx context.Context) error {
	var errs error
	for _, o := range c.Pending() {
		if !o.HasExpired() {
			continue
		}
		switch o.ExpiryPolicy {
		case ExpiryConvertToMarket:
			c.logger.Info("订单过期，转为市价单", zap.String("id", o.ID), zap.String("order_id", o.OrderID))
			_, err := o.Modify(ctx, c.conn, Args{
				OrderType:    TypeMarket,
				Price:        Ptr(0.0),
				TriggerPrice: Ptr(0.0),
			})
			errs = multierr.Append(errs, err)
		case ExpiryCancel:
			c.logger.Info("订单过期，撤单", zap.String("id", o.ID), zap.String("order_id", o.OrderID))
			_, err := o.Cancel(ctx, c.conn)
			errs = multierr.Append(errs, err)
		case ExpiryKeep:
		}
	}
	return errs
}

// Save 保存全部子订单。
func (c *CompoundOrder) Save(ctx context.Context) error {
	var errs error
	for _, o := range c.orders {
		if _, err := o.Save(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
