package exchange

import (
	"context"
	"errors"

	"oms-core/internal/order"
)

var (
	// ErrNoReporter 表示交易对手不提供持仓与成交快照。
	ErrNoReporter = errors.New("exchange: 交易对手不支持持仓与成交查询")
)

// IsRetryable 判断一次交易对手调用是否可重试，上下文取消与结构化拒绝均不重试。
func IsRetryable(resp order.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp.Retryable()
}
