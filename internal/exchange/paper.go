package exchange

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/config"
	"oms-core/internal/order"
)

// 可配置改写的操作名。
const (
	OpOrderPlace  = "order_place"
	OpOrderModify = "order_modify"
	OpOrderCancel = "order_cancel"
)

// Call 为一次已改写字段后的调用记录。
type Call struct {
	Operation string
	Fields    map[string]any
}

// Paper 为不成交的纸面交易对手，按改写表记录每次调用的最终字段，查询返回预置快照。
type Paper struct {
	mu        sync.Mutex
	overrides config.OverrideConfig
	calls     []Call
	orders    []order.Snapshot
	positions []order.BasicPosition
	trades    []order.Trade
	clock     clock.Clock
	logger    *zap.Logger
}

// NewPaper 以改写表创建纸面交易对手。
func NewPaper(overrides config.OverrideConfig, c clock.Clock, logger *zap.Logger) *Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paper{overrides: overrides, clock: clock.OrReal(c), logger: logger}
}

// Preload 设置查询返回的快照。
func (p *Paper) Preload(orders []order.Snapshot, positions []order.BasicPosition, trades []order.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append([]order.Snapshot(nil), orders...)
	p.positions = append([]order.BasicPosition(nil), positions...)
	p.trades = append([]order.Trade(nil), trades...)
}

// Rewrite 按操作的改写表重命名字段并补齐默认字段，不修改入参。
func (p *Paper) Rewrite(operation string, fields map[string]any) map[string]any {
	out := maps.Clone(fields)
	if out == nil {
		out = make(map[string]any)
	}
	over, ok := p.overrides[operation]
	if !ok {
		return out
	}
	for from, to := range over.Rename {
		v, ok := out[from]
		if !ok || from == to {
			continue
		}
		delete(out, from)
		out[to] = v
	}
	for k, v := range over.Defaults {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func (p *Paper) record(operation string, fields map[string]any) map[string]any {
	rewritten := p.Rewrite(operation, fields)
	p.mu.Lock()
	p.calls = append(p.calls, Call{Operation: operation, Fields: rewritten})
	p.mu.Unlock()
	p.logger.Info("纸面交易对手收到调用",
		zap.String("operation", operation),
		zap.Any("fields", rewritten),
	)
	return rewritten
}

// Calls 返回全部调用记录。
func (p *Paper) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// OrderPlace 记录下单调用并返回新订单号。
func (p *Paper) OrderPlace(_ context.Context, args order.Args) (order.Response, error) {
	p.record(OpOrderPlace, args.Map())
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return order.Success(id, p.clock.Now(), nil), nil
}

// OrderModify 记录改单调用。
func (p *Paper) OrderModify(_ context.Context, orderID string, args order.Args) (order.Response, error) {
	if orderID == "" {
		return order.Failure(order.ReasonInvalid, "订单号不能为空", p.clock.Now()), nil
	}
	fields := args.Map()
	fields["order_id"] = orderID
	p.record(OpOrderModify, fields)
	return order.Success(orderID, p.clock.Now(), nil), nil
}

// OrderCancel 记录撤单调用。
func (p *Paper) OrderCancel(_ context.Context, orderID string) (order.Response, error) {
	if orderID == "" {
		return order.Failure(order.ReasonInvalid, "订单号不能为空", p.clock.Now()), nil
	}
	p.record(OpOrderCancel, map[string]any{"order_id": orderID})
	return order.Success(orderID, p.clock.Now(), nil), nil
}

// Orders 返回预置订单快照。
func (p *Paper) Orders(_ context.Context) ([]order.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]order.Snapshot(nil), p.orders...), nil
}

// Positions 返回预置持仓。
func (p *Paper) Positions(_ context.Context) ([]order.BasicPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]order.BasicPosition(nil), p.positions...), nil
}

// Trades 返回预置成交。
func (p *Paper) Trades(_ context.Context) ([]order.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]order.Trade(nil), p.trades...), nil
}

var (
	_ order.Counterparty = (*Paper)(nil)
	_ order.Reporter     = (*Paper)(nil)
)
