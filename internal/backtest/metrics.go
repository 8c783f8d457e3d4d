package backtest

import "math"

// Metrics 记录回放绩效指标，收益按步计算，不做年化。
type Metrics struct {
	TotalReturn    float64
	PeakEquity     float64
	MaxDrawdown    float64
	MaxDrawdownAbs float64
	SharpeRatio    float64
	// WinRate 为收益为正的步数占比。
	WinRate float64
}

func calculateMetrics(equity []float64, returns []float64) Metrics {
	if len(equity) == 0 {
		return Metrics{}
	}

	var m Metrics
	if initial := equity[0]; initial > 0 {
		m.TotalReturn = equity[len(equity)-1]/initial - 1
	}
	m.PeakEquity, m.MaxDrawdownAbs, m.MaxDrawdown = drawdown(equity)
	m.SharpeRatio = computeSharpe(returns)
	m.WinRate = winRate(returns)
	return m
}

// drawdown 一次遍历返回峰值、最大绝对回撤与最大相对回撤。
func drawdown(equity []float64) (peak, maxAbs, maxRel float64) {
	for _, v := range equity {
		peak = math.Max(peak, v)
		if peak <= 0 {
			continue
		}
		maxAbs = math.Max(maxAbs, peak-v)
		maxRel = math.Max(maxRel, (peak-v)/peak)
	}
	return peak, maxAbs, maxRel
}

func computeDrawdown(equity []float64) float64 {
	_, _, rel := drawdown(equity)
	return rel
}

func computeSharpe(returns []float64) float64 {
	n := float64(len(returns))
	if n < 2 {
		return 0
	}
	var sum, sumSq float64
	for _, r := range returns {
		sum += r
		sumSq += r * r
	}
	mean := sum / n
	variance := (sumSq - n*mean*mean) / (n - 1)
	if variance <= 1e-18 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

func winRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}
