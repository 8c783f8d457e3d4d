package clock

import (
	"sync"
	"time"
)

// Clock 抽象时间来源，方便在测试中注入确定的时间。
type Clock interface {
	Now() time.Time
}

// Real 使用系统时间。
type Real struct{}

// Now 返回当前系统时间。
func (Real) Now() time.Time { return time.Now() }

// Manual 为手动推进的时钟，仅在 Set/Advance 时变化。
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual 以给定时间创建手动时钟。
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now 返回当前设定的时间。
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set 将时钟设为指定时间。
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance 推进时钟并返回推进后的时间。
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// OrReal 在 c 为空时返回系统时钟。
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
