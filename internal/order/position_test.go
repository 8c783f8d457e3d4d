package order

import (
	"context"
	"testing"
)

func TestBasicPosition(t *testing.T) {
	cases := []struct {
		name    string
		pos     BasicPosition
		net     int64
		avgBuy  float64
		avgSell float64
	}{
		{"flat", BasicPosition{Symbol: "AAPL"}, 0, 0, 0},
		{"long", BasicPosition{Symbol: "AAPL", BuyQuantity: 20, BuyValue: 18400, SellQuantity: 9, SellValue: 8775}, 11, 920, 975},
		{"short", BasicPosition{Symbol: "GOOG", SellQuantity: 4, SellValue: 1200}, -4, 0, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pos.NetQuantity(); got != tc.net {
				t.Errorf("NetQuantity = %d, want %d", got, tc.net)
			}
			if got := tc.pos.AverageBuyValue(); got != tc.avgBuy {
				t.Errorf("AverageBuyValue = %v, want %v", got, tc.avgBuy)
			}
			if got := tc.pos.AverageSellValue(); got != tc.avgSell {
				t.Errorf("AverageSellValue = %v, want %v", got, tc.avgSell)
			}
		})
	}
}

func TestQuantityMatch(t *testing.T) {
	if q := (QuantityMatch{Buy: 10, Sell: 10}); !q.IsEqual() || q.NotMatched() != 0 {
		t.Errorf("matched = %+v", q)
	}
	if q := (QuantityMatch{Buy: 10, Sell: 4}); q.IsEqual() || q.NotMatched() != 6 {
		t.Errorf("unmatched = %+v", q)
	}
}

func TestCompound_WithMaxModifications(t *testing.T) {
	com, _ := newTestCompound(&mockCounterparty{}, WithMaxModifications(3))
	o, err := com.AddOrder(context.Background(), Params{Symbol: "AAPL", Side: SideBuy, Quantity: 1}, "")
	if err != nil {
		t.Fatalf("AddOrder 返回错误: %v", err)
	}
	if o.MaxModifications != 3 {
		t.Errorf("MaxModifications = %d, want 3", o.MaxModifications)
	}

	explicit, err := com.AddOrder(context.Background(), Params{Symbol: "AAPL", Side: SideBuy, Quantity: 1, MaxModifications: 7}, "")
	if err != nil {
		t.Fatalf("AddOrder 返回错误: %v", err)
	}
	if explicit.MaxModifications != 7 {
		t.Errorf("explicit MaxModifications = %d, want 7", explicit.MaxModifications)
	}
}
