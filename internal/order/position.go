package order

// BasicPosition 为简单的单品种持仓统计。
type BasicPosition struct {
	Symbol       string
	BuyQuantity  int64
	SellQuantity int64
	BuyValue     float64
	SellValue    float64
}

// NetQuantity 净持仓数量。
func (p BasicPosition) NetQuantity() int64 {
	return p.BuyQuantity - p.SellQuantity
}

// AverageBuyValue 买入均价，无买入时为 0。
func (p BasicPosition) AverageBuyValue() float64 {
	if p.BuyQuantity <= 0 {
		return 0
	}
	return p.BuyValue / float64(p.BuyQuantity)
}

// AverageSellValue 卖出均价，无卖出时为 0。
func (p BasicPosition) AverageSellValue() float64 {
	if p.SellQuantity <= 0 {
		return 0
	}
	return p.SellValue / float64(p.SellQuantity)
}

// QuantityMatch 比对买卖数量。
type QuantityMatch struct {
	Buy  int64
	Sell int64
}

// IsEqual 买卖数量一致。
func (q QuantityMatch) IsEqual() bool {
	return q.Buy == q.Sell
}

// NotMatched 返回买卖差额。
func (q QuantityMatch) NotMatched() int64 {
	return q.Buy - q.Sell
}
