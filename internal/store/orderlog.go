package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"oms-core/internal/order"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("store: 记录不存在")

// OrderLog 以订单编号为主键保存订单最新状态。
type OrderLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderLog 初始化订单日志并创建表结构。
func NewOrderLog(store *Store, logger *zap.Logger) (*OrderLog, error) {
	if store == nil {
		return nil, fmt.Errorf("store: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &OrderLog{
		db:     store.DB(),
		logger: logger,
	}

	if err := l.initSchema(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *OrderLog) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price REAL NOT NULL,
	trigger_price REAL NOT NULL,
	disclosed_quantity INTEGER NOT NULL,
	validity TEXT NOT NULL,
	expires_in INTEGER NOT NULL,
	order_id TEXT NOT NULL DEFAULT '',
	exchange_order_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	filled_quantity INTEGER NOT NULL,
	pending_quantity INTEGER NOT NULL,
	cancelled_quantity INTEGER NOT NULL,
	average_price REAL NOT NULL,
	created_at TEXT NOT NULL,
	last_updated_at TEXT NOT NULL DEFAULT '',
	exchange_timestamp TEXT NOT NULL DEFAULT '',
	num_modifications INTEGER NOT NULL,
	max_modifications INTEGER NOT NULL,
	expiry_policy TEXT NOT NULL,
	tag TEXT NOT NULL DEFAULT '',
	client_id TEXT NOT NULL DEFAULT '',
	exchange TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_orders_parent ON orders(parent_id);
CREATE INDEX IF NOT EXISTS idx_orders_order_id ON orders(order_id);
`
	if _, err := l.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: 初始化订单表失败: %w", err)
	}
	return nil
}

const orderColumns = `id, parent_id, symbol, side, order_type, quantity, price, trigger_price,
	disclosed_quantity, validity, expires_in, order_id, exchange_order_id, status,
	filled_quantity, pending_quantity, cancelled_quantity, average_price,
	created_at, last_updated_at, exchange_timestamp, num_modifications, max_modifications,
	expiry_policy, tag, client_id, exchange, error`

// SaveOrder 写入或覆盖订单记录。
func (l *OrderLog) SaveOrder(ctx context.Context, r order.Record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ParentID, r.Symbol, r.Side, r.OrderType, r.Quantity, r.Price, r.TriggerPrice,
		r.DisclosedQuantity, r.Validity, r.ExpiresIn, r.OrderID, r.ExchangeOrderID, r.Status,
		r.FilledQuantity, r.PendingQuantity, r.CancelledQuantity, r.AveragePrice,
		formatTime(r.CreatedAt), formatTime(r.LastUpdatedAt), formatTime(r.ExchangeTimestamp),
		r.NumModifications, r.MaxModifications,
		r.ExpiryPolicy, r.Tag, r.ClientID, r.Exchange, r.Error,
	)
	if err != nil {
		return fmt.Errorf("store: 写入订单 %s 失败: %w", r.ID, err)
	}
	l.logger.Debug("订单已落库", zap.String("id", r.ID), zap.String("status", r.Status))
	return nil
}

// Get 按内部编号读取订单。
func (l *OrderLog) Get(ctx context.Context, id string) (order.Record, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List 按创建时间返回订单，parentID 为空时返回全部。
func (l *OrderLog) List(ctx context.Context, parentID string) ([]order.Record, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]interface{}, 0, 1)
	if parentID != "" {
		query += ` WHERE parent_id = ?`
		args = append(args, parentID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: 查询订单失败: %w", err)
	}
	defer rows.Close()

	var out []order.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取订单失败: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (order.Record, error) {
	var (
		r                         order.Record
		created, updated, exchged string
	)
	err := s.Scan(
		&r.ID, &r.ParentID, &r.Symbol, &r.Side, &r.OrderType, &r.Quantity, &r.Price, &r.TriggerPrice,
		&r.DisclosedQuantity, &r.Validity, &r.ExpiresIn, &r.OrderID, &r.ExchangeOrderID, &r.Status,
		&r.FilledQuantity, &r.PendingQuantity, &r.CancelledQuantity, &r.AveragePrice,
		&created, &updated, &exchged, &r.NumModifications, &r.MaxModifications,
		&r.ExpiryPolicy, &r.Tag, &r.ClientID, &r.Exchange, &r.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Record{}, err
	}
	if err != nil {
		return order.Record{}, fmt.Errorf("store: 解析订单失败: %w", err)
	}
	r.CreatedAt = parseTime(created)
	r.LastUpdatedAt = parseTime(updated)
	r.ExchangeTimestamp = parseTime(exchged)
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ order.Sink = (*OrderLog)(nil)
