package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Order      OrderConfig      `mapstructure:"order"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Strategies []StrategyConfig `mapstructure:"strategies"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Session    SessionConfig    `mapstructure:"session"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// OrderConfig 为订单的默认参数。
type OrderConfig struct {
	MaxModifications int        `mapstructure:"max_modifications"`
	DefaultValidity  string     `mapstructure:"default_validity"`
	Lock             LockConfig `mapstructure:"lock"`
}

// LockConfig 为各类操作锁的最长锁定时长。
type LockConfig struct {
	Creation     time.Duration `mapstructure:"creation"`
	Modification time.Duration `mapstructure:"modification"`
	Cancellation time.Duration `mapstructure:"cancellation"`
}

// 模拟交易对手的类型。
const (
	BrokerVirtual = "virtual"
	BrokerReplica = "replica"
	BrokerPaper   = "paper"
)

// SimulationConfig 描述模拟交易对手与行情。
type SimulationConfig struct {
	Broker      string             `mapstructure:"broker"`
	FailureRate float64            `mapstructure:"failure_rate"`
	Delay       time.Duration      `mapstructure:"delay"`
	Seed        uint64             `mapstructure:"seed"`
	TickSize    float64            `mapstructure:"tick_size"`
	TickerMode  string             `mapstructure:"ticker_mode"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
}

// InstrumentConfig 描述一个模拟品种。
type InstrumentConfig struct {
	Symbol string  `mapstructure:"symbol"`
	Token  int64   `mapstructure:"token"`
	Price  float64 `mapstructure:"price"`
}

// 策略类型。
const (
	StrategyBasket       = "basket"
	StrategyStop         = "stop"
	StrategyStopLimit    = "stop_limit"
	StrategyTrailing     = "trailing"
	StrategyStepTrailing = "step_trailing"
	StrategyTarget       = "target"
	StrategyPegMarket    = "peg_market"
)

// StrategyConfig 描述一个策略实例，按 Kind 取用相关字段。
type StrategyConfig struct {
	ID              string        `mapstructure:"id"`
	Kind            string        `mapstructure:"kind"`
	Symbol          string        `mapstructure:"symbol"`
	Side            string        `mapstructure:"side"`
	Quantity        int64         `mapstructure:"quantity"`
	Price           float64       `mapstructure:"price"`
	TriggerPrice    float64       `mapstructure:"trigger_price"`
	StopLimitPrice  float64       `mapstructure:"stop_limit_price"`
	Target          float64       `mapstructure:"target"`
	Trail           float64       `mapstructure:"trail"`
	TrailBig        float64       `mapstructure:"trail_big"`
	TrailSmall      float64       `mapstructure:"trail_small"`
	Every           time.Duration `mapstructure:"every"`
	Limit           int           `mapstructure:"limit"`
	ConvertToMarket bool          `mapstructure:"convert_to_market"`
}

// ExchangeConfig 描述交易对手调用方式。
type ExchangeConfig struct {
	Retry     RetryConfig    `mapstructure:"retry"`
	Overrides OverrideConfig `mapstructure:"overrides"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OverrideConfig 按操作名配置字段改写，操作名为 order_place、order_modify、order_cancel。
type OverrideConfig map[string]FieldOverride

// FieldOverride 描述单个操作的字段改名与默认字段。
type FieldOverride struct {
	Rename   map[string]string `mapstructure:"rename"`
	Defaults map[string]any    `mapstructure:"defaults"`
}

// SessionConfig 为交易时段，格式 15:04，均为空时不启用。
type SessionConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// Enabled 是否配置了交易时段。
func (s SessionConfig) Enabled() bool {
	return s.Start != "" || s.End != ""
}

// Window 以 day 所在日期解析时段起止时间。
func (s SessionConfig) Window(day time.Time) (time.Time, time.Time, error) {
	start, err := clockOn(day, s.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("session.start: %w", err)
	}
	end, err := clockOn(day, s.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("session.end: %w", err)
	}
	return start, end, nil
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("时间格式应为 15:04: %w", err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制主循环节奏，MaxTicks 为 0 时不限轮数。
type SchedulerConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
	MaxTicks     int           `mapstructure:"max_ticks"`
}

var (
	knownBrokers    = []string{BrokerVirtual, BrokerReplica, BrokerPaper}
	knownStrategies = []string{
		StrategyBasket, StrategyStop, StrategyStopLimit, StrategyTrailing,
		StrategyStepTrailing, StrategyTarget, StrategyPegMarket,
	}
	knownOperations = []string{"order_place", "order_modify", "order_cancel"}
)

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Order.MaxModifications <= 0 {
		err = multierr.Append(err, errors.New("order.max_modifications 必须大于0"))
	}
	if c.Order.Lock.Creation < 0 || c.Order.Lock.Modification < 0 || c.Order.Lock.Cancellation < 0 {
		err = multierr.Append(err, errors.New("order.lock 上限不能为负"))
	}
	if !slices.Contains(knownBrokers, c.Simulation.Broker) {
		err = multierr.Append(err, fmt.Errorf("simulation.broker 仅支持 %s", strings.Join(knownBrokers, "/")))
	}
	if c.Simulation.FailureRate < 0 || c.Simulation.FailureRate > 1 {
		err = multierr.Append(err, errors.New("simulation.failure_rate 必须位于[0,1]"))
	}
	if c.Simulation.Delay < 0 {
		err = multierr.Append(err, errors.New("simulation.delay 不能为负"))
	}
	if c.Simulation.TickSize <= 0 {
		err = multierr.Append(err, errors.New("simulation.tick_size 必须大于0"))
	}
	if c.Simulation.TickerMode != "random" && c.Simulation.TickerMode != "manual" {
		err = multierr.Append(err, errors.New("simulation.ticker_mode 仅支持 random/manual"))
	}
	seen := make(map[string]struct{}, len(c.Simulation.Instruments))
	for i, inst := range c.Simulation.Instruments {
		if inst.Symbol == "" {
			err = multierr.Append(err, fmt.Errorf("simulation.instruments[%d].symbol 不能为空", i))
			continue
		}
		if _, dup := seen[inst.Symbol]; dup {
			err = multierr.Append(err, fmt.Errorf("simulation.instruments[%d].symbol %s 重复", i, inst.Symbol))
		}
		seen[inst.Symbol] = struct{}{}
		if inst.Price < 0 {
			err = multierr.Append(err, fmt.Errorf("simulation.instruments[%d].price 不能为负", i))
		}
	}
	for i, s := range c.Strategies {
		err = multierr.Append(err, s.validate(i, seen))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	for op := range c.Exchange.Overrides {
		if !slices.Contains(knownOperations, op) {
			err = multierr.Append(err, fmt.Errorf("exchange.overrides 包含未知操作 %s", op))
		}
	}
	if c.Session.Enabled() {
		start, end, werr := c.Session.Window(time.Now())
		if werr != nil {
			err = multierr.Append(err, werr)
		} else if !end.After(start) {
			err = multierr.Append(err, errors.New("session.end 必须晚于 session.start"))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}
	if c.Scheduler.MaxTicks < 0 {
		err = multierr.Append(err, errors.New("scheduler.max_ticks 不能为负"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func (s StrategyConfig) validate(i int, instruments map[string]struct{}) error {
	var err error
	prefix := fmt.Sprintf("strategies[%d]", i)

	if s.ID == "" {
		err = multierr.Append(err, fmt.Errorf("%s.id 不能为空", prefix))
	}
	if !slices.Contains(knownStrategies, s.Kind) {
		err = multierr.Append(err, fmt.Errorf("%s.kind 仅支持 %s", prefix, strings.Join(knownStrategies, "/")))
	}
	if _, ok := instruments[s.Symbol]; !ok {
		err = multierr.Append(err, fmt.Errorf("%s.symbol %q 未在 simulation.instruments 中配置", prefix, s.Symbol))
	}
	switch strings.ToUpper(s.Side) {
	case "BUY", "SELL":
	default:
		err = multierr.Append(err, fmt.Errorf("%s.side 仅支持 BUY/SELL", prefix))
	}
	if s.Quantity < 0 {
		err = multierr.Append(err, fmt.Errorf("%s.quantity 不能为负", prefix))
	}

	switch s.Kind {
	case StrategyStop, StrategyStopLimit, StrategyStepTrailing:
		if s.TriggerPrice <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.trigger_price 必须大于0", prefix))
		}
		if s.Kind == StrategyStepTrailing && s.Trail <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.trail 必须大于0", prefix))
		}
	case StrategyTrailing:
		if s.TriggerPrice <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.trigger_price 必须大于0", prefix))
		}
		if s.TrailBig <= 0 || s.TrailSmall <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.trail_big 与 trail_small 必须大于0", prefix))
		}
	case StrategyTarget:
		if s.Target <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.target 必须大于0", prefix))
		}
	case StrategyPegMarket:
		if s.Every < 0 || s.Limit < 0 {
			err = multierr.Append(err, fmt.Errorf("%s.every 与 limit 不能为负", prefix))
		}
	}
	return err
}
