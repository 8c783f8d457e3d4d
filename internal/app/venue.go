package app

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"oms-core/internal/clock"
	"oms-core/internal/config"
	"oms-core/internal/exchange"
	"oms-core/internal/order"
	"oms-core/internal/simulation"
)

// venue 为一个模拟交易场所：交易对手加上驱动它的行情。
type venue struct {
	name         string
	counterparty order.Counterparty
	tickers      []*simulation.Ticker
	// quote 读取一轮最新价，并在需要时驱动撮合。
	quote func() map[string]float64
}

func newVenue(sim config.SimulationConfig, overrides config.OverrideConfig, c clock.Clock, logger *zap.Logger) (*venue, error) {
	rng := newRand(sim.Seed)
	tickers := newTickers(sim, rng)

	switch sim.Broker {
	case config.BrokerVirtual:
		vb, err := simulation.NewVirtualBroker(
			simulation.WithFailureRate(sim.FailureRate),
			simulation.WithDelay(sim.Delay),
			simulation.WithRand(rng),
			simulation.WithClock(c),
			simulation.WithLogger(logger),
			simulation.WithTickers(tickers...),
		)
		if err != nil {
			return nil, fmt.Errorf("初始化模拟交易对手失败: %w", err)
		}
		symbols := symbolsOf(tickers)
		return &venue{
			name:         vb.Name(),
			counterparty: vb,
			tickers:      tickers,
			quote:        func() map[string]float64 { return vb.LTP(symbols...) },
		}, nil

	case config.BrokerReplica:
		rb := simulation.NewReplicaBroker(c, logger)
		for _, inst := range sim.Instruments {
			rb.AddInstrument(simulation.NewInstrument(inst.Symbol, inst.Token, inst.Price))
		}
		return &venue{
			name:         rb.Name(),
			counterparty: rb,
			tickers:      tickers,
			quote: func() map[string]float64 {
				prices := readTickers(tickers)
				rb.UpdatePrices(prices)
				if n := rb.RunFill(); n > 0 {
					logger.Debug("回放撮合完成", zap.Int("filled", n))
				}
				return prices
			},
		}, nil

	case config.BrokerPaper:
		return &venue{
			name:         "paper",
			counterparty: exchange.NewPaper(overrides, c, logger),
			tickers:      tickers,
			quote:        func() map[string]float64 { return readTickers(tickers) },
		}, nil

	default:
		return nil, fmt.Errorf("未知的交易对手类型 %q", sim.Broker)
	}
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func newTickers(sim config.SimulationConfig, rng *rand.Rand) []*simulation.Ticker {
	mode := simulation.TickerRandom
	if sim.TickerMode == "manual" {
		mode = simulation.TickerManual
	}
	out := make([]*simulation.Ticker, 0, len(sim.Instruments))
	for _, inst := range sim.Instruments {
		out = append(out, simulation.NewTicker(inst.Symbol, inst.Token, inst.Price,
			simulation.WithTickerMode(mode),
			simulation.WithTickSize(sim.TickSize),
			simulation.WithTickerRand(rng),
		))
	}
	return out
}

func readTickers(tickers []*simulation.Ticker) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		out[t.Name] = t.LTP()
	}
	return out
}

func symbolsOf(tickers []*simulation.Ticker) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, t.Name)
	}
	return out
}
