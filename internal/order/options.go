package order

import (
	"go.uber.org/zap"

	"oms-core/internal/clock"
)

type options struct {
	logger   *zap.Logger
	clock    clock.Clock
	conn     Counterparty
	sink     Sink
	lock     LockConfig
	defaults Args
	id       string
	maxMods  int
}

// Option 配置订单与组合订单的依赖。
type Option func(*options)

// WithLogger 注入日志。
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock 注入时钟。
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCounterparty 绑定默认交易对手。
func WithCounterparty(cp Counterparty) Option {
	return func(o *options) { o.conn = cp }
}

// WithSink 绑定落库日志。
func WithSink(s Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithLockConfig 设置操作锁上限。
func WithLockConfig(cfg LockConfig) Option {
	return func(o *options) { o.lock = cfg }
}

// WithDefaults 设置组合订单下单时的共享参数。
func WithDefaults(args Args) Option {
	return func(o *options) { o.defaults = args }
}

// WithMaxModifications 设置未显式指定时的改单次数上限。
func WithMaxModifications(n int) Option {
	return func(o *options) { o.maxMods = n }
}

// WithID 指定组合订单编号。
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func buildOptions(opts []Option) options {
	o := options{lock: DefaultLockConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.clock = clock.OrReal(o.clock)
	return o
}
