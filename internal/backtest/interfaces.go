package backtest

import (
	"context"
	"time"
)

// Tick 为一步行情，Timestamp 为零值时由引擎按步长推进时钟。
type Tick struct {
	Timestamp time.Time
	Prices    map[string]float64
}

// PriceProvider 按时间顺序提供行情。
type PriceProvider interface {
	Next(ctx context.Context) (Tick, bool, error)
}
