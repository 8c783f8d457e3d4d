package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"oms-core/internal/clock"
	"oms-core/internal/config"
	"oms-core/internal/exchange"
	"oms-core/internal/monitor"
	"oms-core/internal/order"
	"oms-core/internal/store"
	"oms-core/internal/strategy"
)

// ErrSessionClosed 表示交易时段已结束，主循环应停止。
var ErrSessionClosed = errors.New("app: 交易时段已结束")

// 时段已开始时，计时从下一秒算起。
const sessionGrace = time.Second

type pipeline struct {
	id     string
	symbol string
	runner strategy.Runner
}

type orchestrator struct {
	venue     *venue
	account   *exchange.AccountService
	book      *strategy.OrderStrategy
	pipelines []pipeline
	monitor   *monitor.Service
	session   *clock.Timer
	logger    *zap.Logger

	executed bool
	ticks    int
}

func (o *orchestrator) Monitor() *monitor.Service {
	return o.monitor
}

func newOrchestrator(ctx context.Context, cfg *config.Config, c clock.Clock, logger *zap.Logger, db *store.Store) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c = clock.OrReal(c)

	v, err := newVenue(cfg.Simulation, cfg.Exchange.Overrides, c, logger)
	if err != nil {
		return nil, err
	}

	orderLog, err := store.NewOrderLog(db, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化订单日志失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(db, c, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	var session *clock.Timer
	if cfg.Session.Enabled() {
		session, err = newSessionTimer(cfg.Session, c)
		if err != nil {
			return nil, fmt.Errorf("初始化交易时段失败: %w", err)
		}
	}

	cp := exchange.NewRetrying(v.counterparty, cfg.Exchange.Retry, logger)
	opts := []order.Option{
		order.WithClock(c),
		order.WithLogger(logger),
		order.WithSink(orderLog),
		order.WithLockConfig(order.LockConfig{
			Creation:     cfg.Order.Lock.Creation,
			Modification: cfg.Order.Lock.Modification,
			Cancellation: cfg.Order.Lock.Cancellation,
		}),
		order.WithMaxModifications(cfg.Order.MaxModifications),
		order.WithDefaults(order.Args{Validity: cfg.Order.DefaultValidity}),
	}

	pipelines := make([]pipeline, 0, len(cfg.Strategies))
	book := strategy.NewOrderStrategy(cfg.App.Environment)
	for _, sc := range cfg.Strategies {
		r, err := buildRunner(ctx, cp, sc, c, logger.With(zap.String("strategy", sc.ID)), append(slices.Clip(opts), order.WithID(sc.ID)))
		if err != nil {
			return nil, fmt.Errorf("创建策略 %s 失败: %w", sc.ID, err)
		}
		pipelines = append(pipelines, pipeline{id: sc.ID, symbol: sc.Symbol, runner: r})
		book.Add(r)
	}

	logger.Info("编排器已就绪",
		zap.String("broker", v.name),
		zap.Int("strategies", len(pipelines)),
		zap.Bool("session", session != nil),
	)

	return &orchestrator{
		venue:     v,
		account:   exchange.NewAccountService(cp, c, logger),
		book:      book,
		pipelines: pipelines,
		monitor:   monitorSvc,
		session:   session,
		logger:    logger,
	}, nil
}

func newSessionTimer(cfg config.SessionConfig, c clock.Clock) (*clock.Timer, error) {
	now := c.Now()
	start, end, err := cfg.Window(now)
	if err != nil {
		return nil, err
	}
	if !now.Before(end) {
		start, end = start.AddDate(0, 0, 1), end.AddDate(0, 0, 1)
	}
	if start.Before(now) {
		start = now.Add(sessionGrace)
	}
	return clock.NewTimer(start, end, c)
}

func buildRunner(ctx context.Context, cp order.Counterparty, sc config.StrategyConfig, c clock.Clock, logger *zap.Logger, opts []order.Option) (strategy.Runner, error) {
	side, err := order.ParseSide(sc.Side)
	if err != nil {
		return nil, err
	}
	params := strategy.StopParams{
		Symbol:       sc.Symbol,
		Side:         side,
		Quantity:     sc.Quantity,
		Price:        sc.Price,
		TriggerPrice: sc.TriggerPrice,
	}
	if sc.Price > 0 {
		params.EntryType = order.TypeLimit
	}

	switch sc.Kind {
	case config.StrategyBasket:
		com := order.NewCompoundOrder(cp, opts...)
		if _, err := com.AddOrder(ctx, order.Params{
			Symbol:    sc.Symbol,
			Side:      side,
			Quantity:  sc.Quantity,
			OrderType: params.EntryType,
			Price:     sc.Price,
		}, ""); err != nil {
			return nil, err
		}
		return strategy.NewBasket(com), nil
	case config.StrategyStop:
		return strategy.NewStopOrder(ctx, cp, params, opts...)
	case config.StrategyStopLimit:
		return strategy.NewStopLimitOrder(ctx, cp, params, sc.StopLimitPrice, opts...)
	case config.StrategyTrailing:
		return strategy.NewTrailingStop(ctx, cp, params, strategy.TrailBy{Big: sc.TrailBig, Small: sc.TrailSmall}, logger, opts...)
	case config.StrategyStepTrailing:
		return strategy.NewStepTrailingStop(ctx, cp, params, sc.Trail, logger, opts...)
	case config.StrategyTarget:
		return strategy.NewTargetOrder(ctx, cp, params, sc.Target, logger, opts...)
	case config.StrategyPegMarket:
		return strategy.NewPegMarket(ctx, cp, strategy.PegMarketParams{
			Symbol:          sc.Symbol,
			Side:            side,
			Quantity:        sc.Quantity,
			Every:           sc.Every,
			Limit:           sc.Limit,
			ConvertToMarket: sc.ConvertToMarket,
		}, c, logger, opts...)
	default:
		return nil, fmt.Errorf("未知的策略类型 %q", sc.Kind)
	}
}

// Tick 执行一轮：取价、首轮提交、对账、并发驱动策略并记录监控事件。
func (o *orchestrator) Tick(ctx context.Context) error {
	if o.session != nil {
		if o.session.HasCompleted() {
			return ErrSessionClosed
		}
		if !o.session.HasStarted() {
			o.logger.Debug("交易时段尚未开始", zap.Time("start", o.session.Start()))
			return nil
		}
	}
	o.ticks++

	prices := o.venue.quote()

	if !o.executed {
		o.executeAll(ctx, prices)
		o.executed = true
	}

	snapshot, err := o.account.GetSnapshot(ctx)
	if err != nil {
		o.monitor.RecordError(ctx, "获取账户快照失败", err, map[string]interface{}{"tick": o.ticks})
		return err
	}
	updates := snapshot.Updates()

	errs := make([]error, len(o.pipelines))
	var group errgroup.Group
	for i := range o.pipelines {
		p := o.pipelines[i]
		group.Go(func() error {
			com := p.runner.Compound()
			changed := com.UpdateOrders(ctx, updates)
			if err := p.runner.Run(ctx, prices); err != nil {
				errs[i] = fmt.Errorf("策略 %s 运行失败: %w", p.id, err)
				o.monitor.RecordError(ctx, "策略运行失败", err, map[string]interface{}{"strategy": p.id})
			}
			o.monitor.RecordFills(ctx, p.id, com, changed)
			o.monitor.RecordPosition(ctx, p.id, com)
			return nil
		})
	}
	_ = group.Wait()

	o.logger.Info("调度轮次完成",
		zap.Int("tick", o.ticks),
		zap.Any("ltp", prices),
		zap.Int("orders", len(snapshot.Orders)),
		zap.Int("trades", len(snapshot.Trades)),
		zap.Float64("total_mtm", o.book.TotalMTM()),
	)

	return multierr.Combine(errs...)
}

func (o *orchestrator) executeAll(ctx context.Context, prices map[string]float64) {
	for _, p := range o.pipelines {
		var err error
		switch r := p.runner.(type) {
		case *strategy.PegMarket:
			err = r.Execute(ctx, prices[p.symbol], order.Args{})
		case interface {
			Execute(context.Context, order.Args) error
		}:
			err = r.Execute(ctx, order.Args{})
		default:
			err = r.Compound().ExecuteAll(ctx, order.Args{})
		}
		if err != nil {
			o.logger.Warn("策略提交失败", zap.String("strategy", p.id), zap.Error(err))
			o.monitor.RecordError(ctx, "策略提交失败", err, map[string]interface{}{"strategy": p.id})
		}
		for _, child := range p.runner.Compound().Orders() {
			o.monitor.RecordExecution(ctx, monitor.ExecutionPayload{
				Strategy:  p.id,
				Operation: exchange.OpOrderPlace,
				OrderID:   child.OrderID,
				Symbol:    child.Symbol,
				Side:      string(child.Side),
				Quantity:  child.Quantity,
				Price:     child.Price,
				OK:        child.OrderID != "",
				Message:   child.Error,
			})
		}
	}
}
