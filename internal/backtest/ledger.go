package backtest

// Ledger 以策略盯市盈亏记录净值曲线。
type Ledger struct {
	initialEquity float64
	equity        float64

	equityHistory []float64
	returnHistory []float64
}

func NewLedger(initialEquity float64) *Ledger {
	if initialEquity <= 0 {
		initialEquity = 10000
	}
	return &Ledger{
		initialEquity: initialEquity,
		equity:        initialEquity,
		equityHistory: []float64{initialEquity},
	}
}

// Advance 以最新的总盯市盈亏更新净值。
func (l *Ledger) Advance(totalMTM float64) {
	prevEquity := l.equity
	l.equity = l.initialEquity + totalMTM
	if prevEquity != 0 {
		l.returnHistory = append(l.returnHistory, (l.equity-prevEquity)/prevEquity)
	}
	l.equityHistory = append(l.equityHistory, l.equity)
}

func (l *Ledger) Equity() float64 {
	return l.equity
}

func (l *Ledger) EquityHistory() []float64 {
	return append([]float64(nil), l.equityHistory...)
}

func (l *Ledger) ReturnHistory() []float64 {
	return append([]float64(nil), l.returnHistory...)
}
