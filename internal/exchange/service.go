package exchange

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"oms-core/internal/clock"
	"oms-core/internal/order"
)

// AccountService 并发采集交易对手的订单、持仓与成交。
type AccountService struct {
	cp     order.Counterparty
	clock  clock.Clock
	logger *zap.Logger
}

// NewAccountService 创建账户快照服务。
func NewAccountService(cp order.Counterparty, c clock.Clock, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		cp:     cp,
		clock:  clock.OrReal(c),
		logger: logger,
	}
}

// GetSnapshot 拉取账户快照，交易对手不支持持仓与成交查询时这两项为空。
func (s *AccountService) GetSnapshot(ctx context.Context) (AccountSnapshot, error) {
	var (
		orders    []order.Snapshot
		positions []order.BasicPosition
		trades    []order.Trade
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.cp.Orders(groupCtx)
		if err != nil {
			return fmt.Errorf("exchange: 查询订单失败: %w", err)
		}
		orders = data
		return nil
	})

	if rep, ok := s.cp.(order.Reporter); ok {
		group.Go(func() error {
			data, err := rep.Positions(groupCtx)
			if errors.Is(err, ErrNoReporter) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("exchange: 查询持仓失败: %w", err)
			}
			positions = data
			return nil
		})

		group.Go(func() error {
			data, err := rep.Trades(groupCtx)
			if errors.Is(err, ErrNoReporter) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("exchange: 查询成交失败: %w", err)
			}
			trades = data
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return AccountSnapshot{}, err
	}

	snapshot := AccountSnapshot{
		Orders:      orders,
		Positions:   positions,
		Trades:      trades,
		RetrievedAt: s.clock.Now(),
	}

	s.logger.Debug("账户快照获取完成",
		zap.Time("retrieved_at", snapshot.RetrievedAt),
		zap.Int("order_count", len(snapshot.Orders)),
		zap.Int("position_count", len(snapshot.Positions)),
		zap.Int("trade_count", len(snapshot.Trades)),
	)

	return snapshot, nil
}
