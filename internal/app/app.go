package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/config"
	"oms-core/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	clock  clock.Clock
}

// New 创建 App 实例，c 为空时使用系统时钟。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store, c clock.Clock) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		clock:  clock.OrReal(c),
	}
}

// Run 按调度间隔驱动编排器，直到收到退出信号、达到轮数上限或交易时段结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("订单管理系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("broker", a.cfg.Simulation.Broker),
		zap.Int("strategies", len(a.cfg.Strategies)),
	)

	orch, err := newOrchestrator(ctx, a.cfg, a.clock, a.logger, a.store)
	if err != nil {
		return err
	}

	loopInterval := a.cfg.Scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = time.Second
	}

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		if a.step(ctx, orch) {
			return nil
		}

		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) step(ctx context.Context, orch *orchestrator) bool {
	err := orch.Tick(ctx)
	switch {
	case errors.Is(err, ErrSessionClosed):
		a.logger.Info("交易时段已结束，停止调度", zap.Int("ticks", orch.ticks))
		return true
	case err != nil:
		a.logger.Error("执行调度失败", zap.Int("tick", orch.ticks), zap.Error(err))
	}
	if limit := a.cfg.Scheduler.MaxTicks; limit > 0 && orch.ticks >= limit {
		a.logger.Info("达到调度轮数上限", zap.Int("ticks", orch.ticks))
		return true
	}
	return false
}
