package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/order"
	"oms-core/internal/store"
)

// Service 负责持久化监控事件。
type Service struct {
	db     *sql.DB
	clock  clock.Clock
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(store *store.Store, c clock.Clock, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		clock:  clock.OrReal(c),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordExecution 记录交易对手调用结果。
func (s *Service) RecordExecution(ctx context.Context, payload ExecutionPayload) {
	if err := s.Record(ctx, Event{
		Type:      EventExecution,
		Timestamp: s.clock.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("记录执行事件失败", zap.Error(err))
	}
}

// RecordFills 记录一个组合单中发生变化的子订单。
func (s *Service) RecordFills(ctx context.Context, strategy string, com *order.CompoundOrder, changed map[string]bool) {
	for _, o := range com.Orders() {
		if !changed[o.OrderID] {
			continue
		}
		payload := FillPayload{
			Strategy:       strategy,
			OrderID:        o.OrderID,
			Symbol:         o.Symbol,
			Status:         string(o.Status),
			FilledQuantity: o.FilledQuantity,
			AveragePrice:   o.AveragePrice,
		}
		if err := s.Record(ctx, Event{
			Type:      EventFill,
			Timestamp: s.clock.Now().UTC(),
			Payload:   payload,
		}); err != nil {
			s.logger.Warn("记录成交事件失败", zap.Error(err))
		}
	}
}

// RecordPosition 记录策略持仓与盈亏。
func (s *Service) RecordPosition(ctx context.Context, strategy string, com *order.CompoundOrder) {
	if err := s.Record(ctx, Event{
		Type:      EventPosition,
		Timestamp: s.clock.Now().UTC(),
		Payload: PositionPayload{
			Strategy:  strategy,
			Positions: com.Positions(),
			MTM:       com.MTM(),
			TotalMTM:  com.TotalMTM(),
		},
	}); err != nil {
		s.logger.Warn("记录仓位事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: s.clock.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = s.clock.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
