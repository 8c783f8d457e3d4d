package order

import (
	"time"

	"oms-core/internal/clock"
)

// LockKind 区分三类操作锁。
type LockKind int

const (
	LockCreation LockKind = iota
	LockModification
	LockCancellation
)

func (k LockKind) String() string {
	switch k {
	case LockCreation:
		return "creation"
	case LockModification:
		return "modification"
	case LockCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

const defaultLockCeiling = 60 * time.Second

// LockConfig 为各类锁的最长锁定时长。
type LockConfig struct {
	Creation     time.Duration
	Modification time.Duration
	Cancellation time.Duration
}

// DefaultLockConfig 返回默认上限，各类均为 60 秒。
func DefaultLockConfig() LockConfig {
	return LockConfig{
		Creation:     defaultLockCeiling,
		Modification: defaultLockCeiling,
		Cancellation: defaultLockCeiling,
	}
}

// Lock 为订单操作的时间闸门，仅限制调用频率，不是互斥锁。
type Lock struct {
	cfg   LockConfig
	until [3]time.Time
	clock clock.Clock
}

// NewLock 创建锁，未配置的上限使用默认值。
func NewLock(cfg LockConfig, c clock.Clock) *Lock {
	if cfg.Creation <= 0 {
		cfg.Creation = defaultLockCeiling
	}
	if cfg.Modification <= 0 {
		cfg.Modification = defaultLockCeiling
	}
	if cfg.Cancellation <= 0 {
		cfg.Cancellation = defaultLockCeiling
	}
	return &Lock{cfg: cfg, clock: clock.OrReal(c)}
}

func (l *Lock) ceiling(k LockKind) time.Duration {
	switch k {
	case LockCreation:
		return l.cfg.Creation
	case LockModification:
		return l.cfg.Modification
	default:
		return l.cfg.Cancellation
	}
}

func valid(k LockKind) bool {
	return k >= LockCreation && k <= LockCancellation
}

// Extend 将解锁时间设为 now + min(d, 上限)，返回新的解锁时间。
func (l *Lock) Extend(k LockKind, d time.Duration) time.Time {
	if !valid(k) {
		return time.Time{}
	}
	if d < 0 {
		d = 0
	}
	if ceiling := l.ceiling(k); d > ceiling {
		d = ceiling
	}
	l.until[k] = l.clock.Now().Add(d)
	return l.until[k]
}

// Can 当前时间已越过解锁时间。
func (l *Lock) Can(k LockKind) bool {
	if !valid(k) {
		return true
	}
	return l.clock.Now().After(l.until[k])
}

// Until 返回解锁时间。
func (l *Lock) Until(k LockKind) time.Time {
	if !valid(k) {
		return time.Time{}
	}
	return l.until[k]
}

// Config 返回锁的上限配置。
func (l *Lock) Config() LockConfig {
	return l.cfg
}
