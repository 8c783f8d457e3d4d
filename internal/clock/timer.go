package clock

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow 表示时间窗口配置不合法。
var ErrInvalidWindow = errors.New("clock: 时间窗口不合法")

// Timer 判断当前时间是否处于 [start, end] 窗口内。
type Timer struct {
	start time.Time
	end   time.Time
	clock Clock
}

// NewTimer 创建时间窗口，要求结束时间晚于开始时间且开始时间不早于当前时间。
func NewTimer(start, end time.Time, c Clock) (*Timer, error) {
	c = OrReal(c)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: 结束时间 %s 必须晚于开始时间 %s", ErrInvalidWindow, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if start.Before(c.Now()) {
		return nil, fmt.Errorf("%w: 开始时间 %s 已经过去", ErrInvalidWindow, start.Format(time.RFC3339))
	}
	return &Timer{start: start, end: end, clock: c}, nil
}

// Start 返回开始时间。
func (t *Timer) Start() time.Time { return t.start }

// End 返回结束时间。
func (t *Timer) End() time.Time { return t.end }

// HasStarted 当前时间已越过开始时间。
func (t *Timer) HasStarted() bool {
	return t.clock.Now().After(t.start)
}

// HasCompleted 当前时间已越过结束时间。
func (t *Timer) HasCompleted() bool {
	return t.clock.Now().After(t.end)
}

// Active 窗口已开始且尚未结束。
func (t *Timer) Active() bool {
	return t.HasStarted() && !t.HasCompleted()
}
