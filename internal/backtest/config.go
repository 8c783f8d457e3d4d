package backtest

import "time"

// Config 定义回放参数。
type Config struct {
	InitialEquity float64       // 初始净值
	Step          time.Duration // 行情未带时间戳时每步推进的时长
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 10000
	}
	if cfg.Step <= 0 {
		cfg.Step = time.Second
	}
	return cfg
}
