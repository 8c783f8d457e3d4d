package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/order"
	"oms-core/internal/simulation"
	"oms-core/internal/strategy"
)

// Result 汇总回放结果。
type Result struct {
	Metrics      Metrics
	EquityCurve  []float64
	ReturnSeries []float64
	Trades       int
	FinalEquity  float64
	Positions    map[string]int64
	Ticks        int
}

// Engine 以价格路径驱动回放交易对手与单个策略。
type Engine struct {
	cfg      Config
	provider PriceProvider
	broker   *simulation.ReplicaBroker
	clock    *clock.Manual
	runner   strategy.Runner
	ledger   *Ledger
	logger   *zap.Logger
}

// NewEngine 构建回放引擎，策略须以同一交易对手与时钟创建。
func NewEngine(cfg Config, provider PriceProvider, broker *simulation.ReplicaBroker, c *clock.Manual, runner strategy.Runner, logger *zap.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("backtest: provider 不能为空")
	}
	if broker == nil {
		return nil, fmt.Errorf("backtest: broker 不能为空")
	}
	if c == nil {
		return nil, fmt.Errorf("backtest: clock 不能为空")
	}
	if runner == nil {
		return nil, fmt.Errorf("backtest: runner 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.normalize()

	return &Engine{
		cfg:      cfg,
		provider: provider,
		broker:   broker,
		clock:    c,
		runner:   runner,
		ledger:   NewLedger(cfg.InitialEquity),
		logger:   logger,
	}, nil
}

// Run 逐步回放：推进时钟、更新价格、撮合、回写订单状态、运行策略并记录净值。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	com := e.runner.Compound()
	ticks := 0
	for {
		tick, ok, err := e.provider.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		ticks++

		if tick.Timestamp.IsZero() {
			e.clock.Advance(e.cfg.Step)
		} else {
			e.clock.Set(tick.Timestamp)
		}

		e.broker.UpdatePrices(tick.Prices)
		if filled := e.broker.RunFill(); filled > 0 {
			e.logger.Debug("回放撮合", zap.Int("tick", ticks), zap.Int("filled", filled))
		}

		snaps, err := e.broker.Orders(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("backtest: 查询订单失败: %w", err)
		}
		com.UpdateOrders(ctx, order.Updates(snaps))

		if err := e.runner.Run(ctx, tick.Prices); err != nil {
			e.logger.Warn("策略运行失败", zap.Int("tick", ticks), zap.Error(err))
		}

		e.ledger.Advance(com.TotalMTM())
	}

	trades, err := e.broker.Trades(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("backtest: 查询成交失败: %w", err)
	}

	metrics := calculateMetrics(e.ledger.EquityHistory(), e.ledger.ReturnHistory())
	return Result{
		Metrics:      metrics,
		EquityCurve:  e.ledger.EquityHistory(),
		ReturnSeries: e.ledger.ReturnHistory(),
		Trades:       len(trades),
		FinalEquity:  e.ledger.Equity(),
		Positions:    com.Positions(),
		Ticks:        ticks,
	}, nil
}
