package order

import "maps"

// Field 为调用参数中的字段名。
type Field string

const (
	FieldSymbol            Field = "symbol"
	FieldSide              Field = "side"
	FieldOrderType         Field = "order_type"
	FieldQuantity          Field = "quantity"
	FieldPrice             Field = "price"
	FieldTriggerPrice      Field = "trigger_price"
	FieldDisclosedQuantity Field = "disclosed_quantity"
	FieldValidity          Field = "validity"
)

// frozenFields 创建后不允许被覆盖。
var frozenFields = []Field{FieldSymbol, FieldSide}

// Args 为发往交易对手的调用参数，未设置的字段不参与合并。
type Args struct {
	Symbol            string
	Side              Side
	OrderType         OrderType
	Quantity          *int64
	Price             *float64
	TriggerPrice      *float64
	DisclosedQuantity *int64
	Validity          string
	// Params 承载交易对手特有的附加字段。
	Params map[string]any
}

// Ptr 返回 v 的指针，便于构造可选字段。
func Ptr[T any](v T) *T {
	return &v
}

// Has 判断字段是否已设置。
func (a Args) Has(f Field) bool {
	switch f {
	case FieldSymbol:
		return a.Symbol != ""
	case FieldSide:
		return a.Side != ""
	case FieldOrderType:
		return a.OrderType != ""
	case FieldQuantity:
		return a.Quantity != nil
	case FieldPrice:
		return a.Price != nil
	case FieldTriggerPrice:
		return a.TriggerPrice != nil
	case FieldDisclosedQuantity:
		return a.DisclosedQuantity != nil
	case FieldValidity:
		return a.Validity != ""
	default:
		_, ok := a.Params[string(f)]
		return ok
	}
}

// Merge 以 a 为底，over 中已设置的字段覆盖之。
func (a Args) Merge(over Args) Args {
	out := a
	if over.Symbol != "" {
		out.Symbol = over.Symbol
	}
	if over.Side != "" {
		out.Side = over.Side
	}
	if over.OrderType != "" {
		out.OrderType = over.OrderType
	}
	if over.Quantity != nil {
		out.Quantity = over.Quantity
	}
	if over.Price != nil {
		out.Price = over.Price
	}
	if over.TriggerPrice != nil {
		out.TriggerPrice = over.TriggerPrice
	}
	if over.DisclosedQuantity != nil {
		out.DisclosedQuantity = over.DisclosedQuantity
	}
	if over.Validity != "" {
		out.Validity = over.Validity
	}
	if len(a.Params) > 0 || len(over.Params) > 0 {
		params := make(map[string]any, len(a.Params)+len(over.Params))
		maps.Copy(params, a.Params)
		maps.Copy(params, over.Params)
		out.Params = params
	}
	return out
}

// Without 返回去掉指定字段后的副本。
func (a Args) Without(fields ...Field) Args {
	out := a
	var params map[string]any
	for _, f := range fields {
		switch f {
		case FieldSymbol:
			out.Symbol = ""
		case FieldSide:
			out.Side = ""
		case FieldOrderType:
			out.OrderType = ""
		case FieldQuantity:
			out.Quantity = nil
		case FieldPrice:
			out.Price = nil
		case FieldTriggerPrice:
			out.TriggerPrice = nil
		case FieldDisclosedQuantity:
			out.DisclosedQuantity = nil
		case FieldValidity:
			out.Validity = ""
		default:
			if _, ok := out.Params[string(f)]; !ok {
				continue
			}
			if params == nil {
				params = maps.Clone(out.Params)
			}
			delete(params, string(f))
			out.Params = params
		}
	}
	return out
}

// Map 将参数展开为扁平字段表，附加字段不会覆盖标准字段。
func (a Args) Map() map[string]any {
	m := make(map[string]any, 8+len(a.Params))
	for k, v := range a.Params {
		m[k] = v
	}
	if a.Symbol != "" {
		m[string(FieldSymbol)] = a.Symbol
	}
	if a.Side != "" {
		m[string(FieldSide)] = string(a.Side)
	}
	if a.OrderType != "" {
		m[string(FieldOrderType)] = string(a.OrderType)
	}
	if a.Quantity != nil {
		m[string(FieldQuantity)] = *a.Quantity
	}
	if a.Price != nil {
		m[string(FieldPrice)] = *a.Price
	}
	if a.TriggerPrice != nil {
		m[string(FieldTriggerPrice)] = *a.TriggerPrice
	}
	if a.DisclosedQuantity != nil {
		m[string(FieldDisclosedQuantity)] = *a.DisclosedQuantity
	}
	if a.Validity != "" {
		m[string(FieldValidity)] = a.Validity
	}
	return m
}

// Param 读取附加字段。
func (a Args) Param(key string) (any, bool) {
	v, ok := a.Params[key]
	return v, ok
}
