package simulation

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

const (
	defaultInitialPrice = 100.0
	defaultTickSize     = 0.05
	// 每次读取的随机扰动为当前价格的 1%。
	priceVolatility = 0.01
)

// TickerMode 决定最新价的生成方式。
type TickerMode int

const (
	// TickerRandom 每次读取时随机游走。
	TickerRandom TickerMode = iota
	// TickerManual 仅在 Update 时变化。
	TickerManual
)

// Ticker 为单个品种的模拟行情，记录运行期间的最高价与最低价。
type Ticker struct {
	Name         string
	Token        int64
	InitialPrice float64

	mode TickerMode
	tick decimal.Decimal
	rng  *rand.Rand

	ltp  float64
	high float64
	low  float64
}

// TickerOption 配置模拟行情。
type TickerOption func(*Ticker)

// WithTickerMode 设置生成方式。
func WithTickerMode(m TickerMode) TickerOption {
	return func(t *Ticker) { t.mode = m }
}

// WithTickSize 设置最小变动价位。
func WithTickSize(size float64) TickerOption {
	return func(t *Ticker) {
		if size > 0 {
			t.tick = decimal.NewFromFloat(size)
		}
	}
}

// WithTickerRand 注入随机源，便于复现。
func WithTickerRand(rng *rand.Rand) TickerOption {
	return func(t *Ticker) { t.rng = rng }
}

// NewTicker 创建模拟行情，初始价为 0 时取 100。
func NewTicker(name string, token int64, initial float64, opts ...TickerOption) *Ticker {
	if initial <= 0 {
		initial = defaultInitialPrice
	}
	t := &Ticker{
		Name:         name,
		Token:        token,
		InitialPrice: initial,
		tick:         decimal.NewFromFloat(defaultTickSize),
		ltp:          initial,
		high:         initial,
		low:          initial,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return t
}

// Mode 返回生成方式。
func (t *Ticker) Mode() TickerMode { return t.mode }

// SetMode 切换生成方式。
func (t *Ticker) SetMode(m TickerMode) { t.mode = m }

func (t *Ticker) round(v float64) float64 {
	return decimal.NewFromFloat(v).Div(t.tick).Round(0).Mul(t.tick).InexactFloat64()
}

func (t *Ticker) track(price float64) {
	t.ltp = price
	t.high = max(t.high, price)
	t.low = min(t.low, price)
}

// LTP 返回最新价，随机模式下先做一次高斯扰动并按最小变动价位取整。
func (t *Ticker) LTP() float64 {
	if t.mode == TickerRandom {
		next := t.round(t.ltp + t.rng.NormFloat64()*t.ltp*priceVolatility)
		if next > 0 {
			t.track(next)
		}
	}
	return t.ltp
}

// Last 返回当前价格，不触发随机游走。
func (t *Ticker) Last() float64 { return t.ltp }

// Update 手动设置最新价。
func (t *Ticker) Update(price float64) float64 {
	if price > 0 {
		t.track(price)
	}
	return t.ltp
}

// OHLC 开盘价为初始价，收盘价为最新价。
func (t *Ticker) OHLC() OHLC {
	return OHLC{
		Open:  t.InitialPrice,
		High:  t.high,
		Low:   t.low,
		Close: t.ltp,
		Last:  t.ltp,
	}
}
