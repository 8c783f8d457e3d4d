package backtest

import (
	"context"
	"time"

	"oms-core/internal/simulation"
)

// SlicePriceProvider 以固定序列提供行情。
type SlicePriceProvider struct {
	ticks []Tick
	index int
}

// NewSlicePriceProvider 以给定序列创建行情源。
func NewSlicePriceProvider(ticks []Tick) *SlicePriceProvider {
	return &SlicePriceProvider{ticks: ticks}
}

// NewPathProvider 以单品种价格路径创建行情源。
func NewPathProvider(symbol string, path ...float64) *SlicePriceProvider {
	ticks := make([]Tick, 0, len(path))
	for _, p := range path {
		ticks = append(ticks, Tick{Prices: map[string]float64{symbol: p}})
	}
	return NewSlicePriceProvider(ticks)
}

func (p *SlicePriceProvider) Next(ctx context.Context) (Tick, bool, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, false, err
	}
	if p.index >= len(p.ticks) {
		return Tick{}, false, nil
	}
	tick := p.ticks[p.index]
	p.index++
	return tick, true, nil
}

// TickerPriceProvider 由模拟行情生成固定步数的价格路径。
type TickerPriceProvider struct {
	tickers  []*simulation.Ticker
	steps    int
	start    time.Time
	interval time.Duration
	index    int
}

// NewTickerPriceProvider 创建随机行情源，start 为零值时不带时间戳。
func NewTickerPriceProvider(steps int, start time.Time, interval time.Duration, tickers ...*simulation.Ticker) *TickerPriceProvider {
	return &TickerPriceProvider{tickers: tickers, steps: steps, start: start, interval: interval}
}

func (p *TickerPriceProvider) Next(ctx context.Context) (Tick, bool, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, false, err
	}
	if p.index >= p.steps {
		return Tick{}, false, nil
	}
	prices := make(map[string]float64, len(p.tickers))
	for _, t := range p.tickers {
		prices[t.Name] = t.LTP()
	}
	var ts time.Time
	if !p.start.IsZero() {
		ts = p.start.Add(time.Duration(p.index) * p.interval)
	}
	p.index++
	return Tick{Timestamp: ts, Prices: prices}, true, nil
}
