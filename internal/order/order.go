package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oms-core/internal/clock"
)

const defaultMaxModifications = 10

// Params 为创建订单的输入。
type Params struct {
	ID                string
	Symbol            string
	Side              Side
	Quantity          int64
	OrderType         OrderType
	Price             float64
	TriggerPrice      float64
	DisclosedQuantity int64
	Validity          string
	// ExpiresIn 为 0 时默认到当日收盘，负数取绝对值。
	ExpiresIn        time.Duration
	MaxModifications int
	ExpiryPolicy     ExpiryPolicy
	Tag              string
	ClientID         string
	Exchange         string
}

// Order 为单笔委托及其生命周期状态。
type Order struct {
	ID       string
	ParentID string

	Symbol            string
	Side              Side
	Quantity          int64
	OrderType         OrderType
	Price             float64
	TriggerPrice      float64
	DisclosedQuantity int64
	Validity          string
	ExpiresIn         time.Duration

	OrderID           string
	ExchangeOrderID   string
	Status            Status
	FilledQuantity    int64
	PendingQuantity   int64
	CancelledQuantity int64
	AveragePrice      float64

	CreatedAt         time.Time
	LastUpdatedAt     time.Time
	ExchangeTimestamp time.Time

	MaxModifications int
	ExpiryPolicy     ExpiryPolicy
	Tag              string
	ClientID         string
	Exchange         string
	// Error 记录最近一次交易对手失败信息。
	Error string

	numModifications int
	lock             *Lock
	conn             Counterparty
	sink             Sink
	clock            clock.Clock
	logger           *zap.Logger
}

// New 校验参数并创建订单。
func New(p Params, opts ...Option) (*Order, error) {
	o := buildOptions(opts)
	return newOrder(p, o)
}

func newOrder(p Params, o options) (*Order, error) {
	if strings.TrimSpace(p.Symbol) == "" {
		return nil, invalid("symbol", "不能为空")
	}
	side, err := ParseSide(string(p.Side))
	if err != nil {
		return nil, invalid("side", err.Error())
	}
	if p.Quantity < 0 {
		return nil, invalid("quantity", fmt.Sprintf("不能为负数: %d", p.Quantity))
	}
	if p.Price < 0 {
		return nil, invalid("price", fmt.Sprintf("不能为负数: %f", p.Price))
	}
	if p.TriggerPrice < 0 {
		return nil, invalid("trigger_price", fmt.Sprintf("不能为负数: %f", p.TriggerPrice))
	}
	if p.DisclosedQuantity < 0 {
		return nil, invalid("disclosed_quantity", fmt.Sprintf("不能为负数: %d", p.DisclosedQuantity))
	}

	now := o.clock.Now()
	ord := &Order{
		ID:                p.ID,
		Symbol:            p.Symbol,
		Side:              side,
		Quantity:          p.Quantity,
		OrderType:         OrderType(strings.ToUpper(string(p.OrderType))),
		Price:             p.Price,
		TriggerPrice:      p.TriggerPrice,
		DisclosedQuantity: p.DisclosedQuantity,
		Validity:          strings.ToUpper(p.Validity),
		ExpiresIn:         p.ExpiresIn,
		PendingQuantity:   p.Quantity,
		CreatedAt:         now,
		MaxModifications:  p.MaxModifications,
		ExpiryPolicy:      p.ExpiryPolicy,
		Tag:               p.Tag,
		ClientID:          p.ClientID,
		Exchange:          p.Exchange,
		lock:              NewLock(o.lock, o.clock),
		conn:              o.conn,
		sink:              o.sink,
		clock:             o.clock,
		logger:            o.logger,
	}
	if ord.ID == "" {
		ord.ID = newID()
	}
	if ord.OrderType == "" {
		ord.OrderType = TypeMarket
	}
	if ord.Validity == "" {
		ord.Validity = ValidityDay
	}
	if ord.MaxModifications <= 0 {
		ord.MaxModifications = o.maxMods
	}
	if ord.MaxModifications <= 0 {
		ord.MaxModifications = defaultMaxModifications
	}
	switch {
	case ord.ExpiresIn == 0:
		ord.ExpiresIn = untilEndOfDay(now)
	case ord.ExpiresIn < 0:
		ord.ExpiresIn = -ord.ExpiresIn
	}
	return ord, nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func untilEndOfDay(now time.Time) time.Duration {
	y, m, d := now.Date()
	eod := time.Date(y, m, d, 23, 59, 59, 0, now.Location())
	left := eod.Sub(now).Truncate(time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// IsComplete 全部成交，或状态为完成，或成交与撤销之和等于委托数量。
func (o *Order) IsComplete() bool {
	switch {
	case o.Quantity == o.FilledQuantity:
		return true
	case o.Status == StatusComplete:
		return true
	case o.FilledQuantity+o.CancelledQuantity == o.Quantity:
		return true
	default:
		return false
	}
}

// IsPending 状态非终态且仍有未处理数量。
func (o *Order) IsPending() bool {
	switch o.Status {
	case StatusComplete, StatusCanceled, StatusCancelled, StatusRejected:
		return false
	}
	return o.FilledQuantity+o.CancelledQuantity < o.Quantity
}

// IsDone 已完成、已撤销或已拒绝。
func (o *Order) IsDone() bool {
	if o.IsComplete() {
		return true
	}
	switch o.Status {
	case StatusCanceled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

func (o *Order) elapsed() time.Duration {
	return o.clock.Now().Sub(o.CreatedAt)
}

// TimeToExpiry 距离过期的剩余时长，不为负。
func (o *Order) TimeToExpiry() time.Duration {
	return max(0, o.ExpiresIn-o.elapsed())
}

// TimeAfterExpiry 已过期的时长，不为负。
func (o *Order) TimeAfterExpiry() time.Duration {
	return max(0, o.elapsed()-o.ExpiresIn)
}

// HasExpired 是否已过期。
func (o *Order) HasExpired() bool {
	return o.TimeToExpiry() == 0
}

// NumModifications 已成功发出的改单次数。
func (o *Order) NumModifications() int {
	return o.numModifications
}

// Lock 返回操作锁。
func (o *Order) Lock() *Lock {
	return o.lock
}

// AddLock 为指定操作加锁 d 时长，超出上限按上限处理。
func (o *Order) AddLock(kind LockKind, d time.Duration) time.Time {
	return o.lock.Extend(kind, d)
}

// Counterparty 返回绑定的交易对手。
func (o *Order) Counterparty() Counterparty {
	return o.conn
}

func (o *Order) counterparty(cp Counterparty) (Counterparty, error) {
	if cp != nil {
		return cp, nil
	}
	if o.conn != nil {
		return o.conn, nil
	}
	return nil, ErrNoCounterparty
}

// Update 按白名单写入交易对手回报，终态订单忽略回报。
func (o *Order) Update(ctx context.Context, u Update) bool {
	if o.IsDone() {
		return false
	}
	if u.Version > UpdateVersion {
		o.logger.Warn("回报版本不受支持，忽略",
			zap.String("id", o.ID),
			zap.Uint8("version", u.Version),
		)
		return false
	}

	if u.ExchangeTimestamp != nil {
		o.ExchangeTimestamp = *u.ExchangeTimestamp
	}
	if u.ExchangeOrderID != nil {
		o.ExchangeOrderID = *u.ExchangeOrderID
	}
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.FilledQuantity != nil {
		o.FilledQuantity = *u.FilledQuantity
	}
	if u.CancelledQuantity != nil {
		o.CancelledQuantity = *u.CancelledQuantity
	}
	if u.DisclosedQuantity != nil {
		o.DisclosedQuantity = *u.DisclosedQuantity
	}
	if u.AveragePrice != nil {
		o.AveragePrice = *u.AveragePrice
	}
	if u.PendingQuantity != nil {
		o.PendingQuantity = *u.PendingQuantity
	} else {
		o.PendingQuantity = o.Quantity - o.FilledQuantity - o.CancelledQuantity
	}
	o.LastUpdatedAt = o.clock.Now()

	if sum := o.FilledQuantity + o.PendingQuantity + o.CancelledQuantity; sum != o.Quantity {
		o.logger.Warn("订单数量对账不一致，以交易对手回报为准",
			zap.String("id", o.ID),
			zap.String("order_id", o.OrderID),
			zap.Int64("quantity", o.Quantity),
			zap.Int64("filled", o.FilledQuantity),
			zap.Int64("pending", o.PendingQuantity),
			zap.Int64("cancelled", o.CancelledQuantity),
		)
	}

	o.saveQuietly(ctx)
	return true
}

func (o *Order) placeArgs() Args {
	args := Args{
		Symbol:            strings.ToUpper(o.Symbol),
		Side:              o.Side,
		OrderType:         o.OrderType,
		Quantity:          Ptr(o.Quantity),
		TriggerPrice:      Ptr(o.TriggerPrice),
		DisclosedQuantity: Ptr(o.DisclosedQuantity),
	}
	if o.Price != 0 {
		args.Price = Ptr(o.Price)
	}
	return args
}

func (o *Order) modifyArgs() Args {
	args := Args{
		OrderType:         o.OrderType,
		Quantity:          Ptr(o.Quantity),
		TriggerPrice:      Ptr(o.TriggerPrice),
		DisclosedQuantity: Ptr(o.DisclosedQuantity),
	}
	if o.Price != 0 {
		args.Price = Ptr(o.Price)
	}
	return args
}

// Execute 提交订单，已提交或已完成时直接返回已有编号，不会重复下单。
func (o *Order) Execute(ctx context.Context, cp Counterparty, extra Args) (string, error) {
	if o.IsComplete() || o.OrderID != "" {
		return o.OrderID, nil
	}
	if !o.lock.Can(LockCreation) {
		o.logger.Debug("下单锁未解除，跳过下单",
			zap.String("id", o.ID),
			zap.Time("until", o.lock.Until(LockCreation)),
		)
		return o.OrderID, nil
	}
	target, err := o.counterparty(cp)
	if err != nil {
		return "", err
	}

	// 订单自身字段优先，extra 只补充未设置的字段
	args := extra.Merge(o.placeArgs())
	resp, err := target.OrderPlace(ctx, args)
	if err != nil {
		return "", fmt.Errorf("order: 下单调用失败: %w", err)
	}
	if !resp.OK() || resp.OrderID == "" {
		o.Error = resp.Message
		o.logger.Warn("交易对手未接受下单",
			zap.String("id", o.ID),
			zap.String("symbol", o.Symbol),
			zap.String("reason", string(resp.Reason)),
			zap.String("message", resp.Message),
		)
		return "", nil
	}

	o.OrderID = resp.OrderID
	o.Error = ""
	o.logger.Info("订单已提交",
		zap.String("id", o.ID),
		zap.String("order_id", o.OrderID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Int64("quantity", o.Quantity),
	)
	o.saveQuietly(ctx)
	return o.OrderID, nil
}

func (o *Order) apply(changes Args) {
	if changes.OrderType != "" {
		o.OrderType = OrderType(strings.ToUpper(string(changes.OrderType)))
	}
	if changes.Quantity != nil {
		o.Quantity = *changes.Quantity
		o.PendingQuantity = o.Quantity - o.FilledQuantity - o.CancelledQuantity
	}
	if changes.Price != nil {
		o.Price = *changes.Price
	}
	if changes.TriggerPrice != nil {
		o.TriggerPrice = *changes.TriggerPrice
	}
	if changes.DisclosedQuantity != nil {
		o.DisclosedQuantity = *changes.DisclosedQuantity
	}
	if changes.Validity != "" {
		o.Validity = strings.ToUpper(changes.Validity)
	}
}

// Modify 改单；锁未解除、已完成或超过改单上限时拒绝，symbol 与 side 不可修改。
func (o *Order) Modify(ctx context.Context, cp Counterparty, changes Args) (bool, error) {
	if !o.lock.Can(LockModification) {
		o.logger.Debug("改单锁未解除，跳过改单",
			zap.String("id", o.ID),
			zap.Time("until", o.lock.Until(LockModification)),
		)
		return false, nil
	}
	if o.IsComplete() {
		o.logger.Debug("订单已完成，跳过改单", zap.String("id", o.ID))
		return false, nil
	}
	if o.numModifications >= o.MaxModifications {
		o.logger.Info("已达改单次数上限",
			zap.String("id", o.ID),
			zap.Int("max_modifications", o.MaxModifications),
		)
		return false, nil
	}

	for _, f := range frozenFields {
		if changes.Has(f) {
			o.logger.Debug("忽略不可修改字段", zap.String("id", o.ID), zap.String("field", string(f)))
		}
	}
	changes = changes.Without(frozenFields...)

	if o.OrderID == "" {
		o.apply(changes)
		o.logger.Debug("订单尚未提交，仅更新本地字段", zap.String("id", o.ID))
		return false, nil
	}
	target, err := o.counterparty(cp)
	if err != nil {
		return false, err
	}

	// 本地字段只在交易对手受理后更新
	args := o.modifyArgs().Merge(changes)
	resp, err := target.OrderModify(ctx, o.OrderID, args)
	if err != nil {
		return false, fmt.Errorf("order: 改单调用失败: %w", err)
	}
	o.numModifications++
	o.LastUpdatedAt = o.clock.Now()
	if !resp.OK() {
		o.Error = resp.Message
		o.logger.Warn("交易对手未接受改单",
			zap.String("id", o.ID),
			zap.String("order_id", o.OrderID),
			zap.String("reason", string(resp.Reason)),
			zap.String("message", resp.Message),
		)
	} else {
		o.apply(changes)
		o.logger.Info("订单已修改",
			zap.String("id", o.ID),
			zap.String("order_id", o.OrderID),
			zap.String("order_type", string(o.OrderType)),
			zap.Float64("price", o.Price),
			zap.Float64("trigger_price", o.TriggerPrice),
		)
	}
	o.saveQuietly(ctx)
	return resp.OK(), nil
}

// Cancel 撤单；未提交或撤单锁未解除时不做任何调用。
func (o *Order) Cancel(ctx context.Context, cp Counterparty) (bool, error) {
	if !o.lock.Can(LockCancellation) {
		o.logger.Debug("撤单锁未解除，跳过撤单",
			zap.String("id", o.ID),
			zap.Time("until", o.lock.Until(LockCancellation)),
		)
		return false, nil
	}
	if o.OrderID == "" {
		o.logger.Debug("订单尚未提交，无需撤单", zap.String("id", o.ID))
		return false, nil
	}
	target, err := o.counterparty(cp)
	if err != nil {
		return false, err
	}

	resp, err := target.OrderCancel(ctx, o.OrderID)
	if err != nil {
		return false, fmt.Errorf("order: 撤单调用失败: %w", err)
	}
	if !resp.OK() {
		o.Error = resp.Message
		o.logger.Warn("交易对手未接受撤单",
			zap.String("id", o.ID),
			zap.String("order_id", o.OrderID),
			zap.String("message", resp.Message),
		)
		return false, nil
	}
	o.logger.Info("撤单请求已受理", zap.String("id", o.ID), zap.String("order_id", o.OrderID))
	return true, nil
}

// Clone 复制订单，生成新编号与时间戳并清空父级关联。
func (o *Order) Clone() *Order {
	c := *o
	c.ID = newID()
	c.ParentID = ""
	c.CreatedAt = o.clock.Now()
	c.numModifications = 0
	c.lock = NewLock(o.lock.Config(), o.clock)
	return &c
}

// Save 写入落库日志，未配置时返回 false。
func (o *Order) Save(ctx context.Context) (bool, error) {
	if o.sink == nil {
		return false, nil
	}
	if err := o.sink.SaveOrder(ctx, o.Record()); err != nil {
		return false, fmt.Errorf("order: 保存订单 %s 失败: %w", o.ID, err)
	}
	return true, nil
}

func (o *Order) saveQuietly(ctx context.Context) {
	if _, err := o.Save(ctx); err != nil {
		o.logger.Warn("订单落库失败", zap.String("id", o.ID), zap.Error(err))
	}
}

// Record 为订单落库的扁平字段。
type Record struct {
	ID                string
	ParentID          string
	Symbol            string
	Side              string
	OrderType         string
	Quantity          int64
	Price             float64
	TriggerPrice      float64
	DisclosedQuantity int64
	Validity          string
	ExpiresIn         int64
	OrderID           string
	ExchangeOrderID   string
	Status            string
	FilledQuantity    int64
	PendingQuantity   int64
	CancelledQuantity int64
	AveragePrice      float64
	CreatedAt         time.Time
	LastUpdatedAt     time.Time
	ExchangeTimestamp time.Time
	NumModifications  int
	MaxModifications  int
	ExpiryPolicy      string
	Tag               string
	ClientID          string
	Exchange          string
	Error             string
}

// Record 导出当前状态。
func (o *Order) Record() Record {
	return Record{
		ID:                o.ID,
		ParentID:          o.ParentID,
		Symbol:            o.Symbol,
		Side:              string(o.Side),
		OrderType:         string(o.OrderType),
		Quantity:          o.Quantity,
		Price:             o.Price,
		TriggerPrice:      o.TriggerPrice,
		DisclosedQuantity: o.DisclosedQuantity,
		Validity:          o.Validity,
		ExpiresIn:         int64(o.ExpiresIn / time.Second),
		OrderID:           o.OrderID,
		ExchangeOrderID:   o.ExchangeOrderID,
		Status:            string(o.Status),
		FilledQuantity:    o.FilledQuantity,
		PendingQuantity:   o.PendingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		AveragePrice:      o.AveragePrice,
		CreatedAt:         o.CreatedAt,
		LastUpdatedAt:     o.LastUpdatedAt,
		ExchangeTimestamp: o.ExchangeTimestamp,
		NumModifications:  o.numModifications,
		MaxModifications:  o.MaxModifications,
		ExpiryPolicy:      o.ExpiryPolicy.String(),
		Tag:               o.Tag,
		ClientID:          o.ClientID,
		Exchange:          o.Exchange,
		Error:             o.Error,
	}
}
