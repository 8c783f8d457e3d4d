package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCounterparty 表示调用时既未传入也未绑定交易对手。
	ErrNoCounterparty = errors.New("order: 未配置交易对手")
	// ErrDuplicateKey 表示组合订单中的键已被占用。
	ErrDuplicateKey = errors.New("order: 键已被占用")
	// ErrDuplicateOrder 表示同一订单重复加入组合订单。
	ErrDuplicateOrder = errors.New("order: 订单已存在")
)

// ValidationError 表示构造参数不合法，构造阶段立即失败。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order: 字段 %s 校验失败: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
