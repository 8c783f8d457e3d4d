package strategy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/order"
)

const (
	defaultPegDuration = 60 * time.Second
	defaultPegEvery    = 10 * time.Second
	defaultMarketEvery = 5 * time.Second
	defaultMarketPegs  = 10
	pegKey             = "peg"
)

// PegConfig 为追价参数。
type PegConfig struct {
	// Duration 为追价总时长，默认 60 秒。
	Duration time.Duration
	// Every 为追价间隔，默认 10 秒。
	Every time.Duration
	// ConvertToMarket 到期后转市价，否则撤单。
	ConvertToMarket bool
}

func (c PegConfig) withDefaults() PegConfig {
	if c.Duration <= 0 {
		c.Duration = defaultPegDuration
	}
	if c.Every <= 0 {
		c.Every = defaultPegEvery
	}
	return c
}

// PegExisting 按固定间隔将已有挂单改价到最新价，到期后转市价或撤单。
type PegExisting struct {
	com   *order.CompoundOrder
	order *order.Order
	cfg   PegConfig

	expireAt time.Time
	nextPeg  time.Time
	numPegs  int
	state    State

	clock  clock.Clock
	logger *zap.Logger
}

// NewPegExisting 包装一笔在途订单，订单不在途时返回校验错误。
func NewPegExisting(ctx context.Context, o *order.Order, cfg PegConfig, c clock.Clock, logger *zap.Logger) (*PegExisting, error) {
	if o == nil {
		return nil, &order.ValidationError{Field: "order", Reason: "不能为空"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c = clock.OrReal(c)
	com := order.NewCompoundOrder(o.Counterparty(), order.WithClock(c), order.WithLogger(logger))
	if _, err := com.Add(ctx, o, pegKey); err != nil {
		return nil, fmt.Errorf("strategy: 追价订单加入组合失败: %w", err)
	}
	return newPeg(com, o, cfg, c, logger)
}

func newPeg(com *order.CompoundOrder, o *order.Order, cfg PegConfig, c clock.Clock, logger *zap.Logger) (*PegExisting, error) {
	if !o.IsPending() {
		return nil, &order.ValidationError{Field: "order", Reason: fmt.Sprintf("订单 %s 不在途，无法追价", o.ID)}
	}
	cfg = cfg.withDefaults()
	now := c.Now()
	return &PegExisting{
		com:      com,
		order:    o,
		cfg:      cfg,
		expireAt: now.Add(cfg.Duration),
		nextPeg:  now.Add(cfg.Every),
		clock:    c,
		logger:   logger,
	}, nil
}

// Compound 返回底层组合订单。
func (p *PegExisting) Compound() *order.CompoundOrder { return p.com }

// Order 被追价的订单。
func (p *PegExisting) Order() *order.Order { return p.order }

// NumPegs 已追价次数。
func (p *PegExisting) NumPegs() int { return p.numPegs }

// MaxPegs 追价次数上限。
func (p *PegExisting) MaxPegs() int { return int(p.cfg.Duration / p.cfg.Every) }

// NextPeg 下一次追价时间。
func (p *PegExisting) NextPeg() time.Time { return p.nextPeg }

// ExpireAt 追价截止时间。
func (p *PegExisting) ExpireAt() time.Time { return p.expireAt }

// State 当前状态。
func (p *PegExisting) State() State { return p.state }

// Run 到期则转市价或撤单，否则到点改价到最新价。
func (p *PegExisting) Run(ctx context.Context, ltp map[string]float64) error {
	if p.state == Done {
		return nil
	}
	if p.order.IsDone() {
		p.state = Done
		return nil
	}
	p.com.UpdateLTP(ltp)
	now := p.clock.Now()

	if now.After(p.expireAt) {
		return p.expire(ctx)
	}

	if !now.After(p.nextPeg) {
		return nil
	}
	ref, ok := ltp[p.order.Symbol]
	if !ok || ref <= 0 {
		return nil
	}
	pegged, err := p.order.Modify(ctx, nil, order.Args{Price: order.Ptr(ref)})
	if err != nil {
		return fmt.Errorf("strategy: 追价改单失败: %w", err)
	}
	if !pegged {
		return nil
	}
	p.nextPeg = now.Add(p.cfg.Every)
	p.numPegs++
	p.logger.Debug("追价改单",
		zap.String("id", p.order.ID),
		zap.Float64("price", ref),
		zap.Int("pegs", p.numPegs),
	)
	return nil
}

// expire 到期后转市价或撤单，交易对手受理后才结束，否则下一轮重试。
// 改单次数用尽时无法转市价，改为撤单。
func (p *PegExisting) expire(ctx context.Context) error {
	var (
		ok  bool
		err error
	)
	if p.cfg.ConvertToMarket && p.order.NumModifications() < p.order.MaxModifications {
		p.logger.Info("追价到期，转为市价单", zap.String("id", p.order.ID), zap.Int("pegs", p.numPegs))
		if ok, err = exitToMarket(ctx, p.order); err != nil {
			return fmt.Errorf("strategy: 追价到期转市价失败: %w", err)
		}
	} else {
		p.logger.Info("追价到期，撤单", zap.String("id", p.order.ID), zap.Int("pegs", p.numPegs))
		if ok, err = p.order.Cancel(ctx, nil); err != nil {
			return fmt.Errorf("strategy: 追价到期撤单失败: %w", err)
		}
	}
	if !ok {
		p.logger.Warn("追价到期处理未被受理，下一轮重试", zap.String("id", p.order.ID))
		return nil
	}
	p.state = Done
	return nil
}

// PegMarketParams 为市价追价单参数。
type PegMarketParams struct {
	Symbol   string
	Side     order.Side
	Quantity int64
	// Every 为追价间隔，默认 5 秒。
	Every time.Duration
	// Limit 为追价次数上限，默认 10 次。
	Limit           int
	ConvertToMarket bool
}

// PegMarket 以最新价挂限价单并持续追价。
type PegMarket struct {
	com    *order.CompoundOrder
	order  *order.Order
	params PegMarketParams
	peg    *PegExisting
	clock  clock.Clock
	logger *zap.Logger
}

// NewPegMarket 创建只含一笔限价单的追价组合。
func NewPegMarket(ctx context.Context, cp order.Counterparty, p PegMarketParams, c clock.Clock, logger *zap.Logger, opts ...order.Option) (*PegMarket, error) {
	if p.Every <= 0 {
		p.Every = defaultMarketEvery
	}
	if p.Limit <= 0 {
		p.Limit = defaultMarketPegs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c = clock.OrReal(c)
	com := order.NewCompoundOrder(cp, append(opts, order.WithClock(c), order.WithLogger(logger))...)
	o, err := com.AddOrder(ctx, order.Params{
		Symbol:    p.Symbol,
		Side:      p.Side,
		Quantity:  p.Quantity,
		OrderType: order.TypeLimit,
	}, pegKey)
	if err != nil {
		return nil, fmt.Errorf("strategy: 创建追价订单失败: %w", err)
	}
	return &PegMarket{com: com, order: o, params: p, clock: c, logger: logger}, nil
}

// Compound 返回底层组合订单。
func (m *PegMarket) Compound() *order.CompoundOrder { return m.com }

// Order 追价限价单。
func (m *PegMarket) Order() *order.Order { return m.order }

// Peg 追价状态，执行前为 nil。
func (m *PegMarket) Peg() *PegExisting { return m.peg }

// Execute 以最新价提交限价单并开始追价计时。
func (m *PegMarket) Execute(ctx context.Context, ltp float64, extra order.Args) error {
	if m.peg != nil {
		return nil
	}
	if ltp <= 0 {
		return &order.ValidationError{Field: "ltp", Reason: fmt.Sprintf("最新价不合法: %v", ltp)}
	}
	m.order.Price = ltp
	m.com.UpdateLTP(map[string]float64{m.order.Symbol: ltp})
	if _, err := m.order.Execute(ctx, nil, extra); err != nil {
		return err
	}
	if m.order.OrderID == "" {
		return nil
	}
	peg, err := newPeg(m.com, m.order, PegConfig{
		Duration:        m.params.Every * time.Duration(m.params.Limit),
		Every:           m.params.Every,
		ConvertToMarket: m.params.ConvertToMarket,
	}, m.clock, m.logger)
	if err != nil {
		return err
	}
	m.peg = peg
	return nil
}

// Run 执行前只更新最新价，执行后交由追价逻辑处理。
func (m *PegMarket) Run(ctx context.Context, ltp map[string]float64) error {
	if m.peg == nil {
		m.com.UpdateLTP(ltp)
		return nil
	}
	return m.peg.Run(ctx, ltp)
}
